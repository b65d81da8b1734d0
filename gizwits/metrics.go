package gizwits

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hzbridge_gizwits_requests_total",
		Help: "Requests sent to the Gizwits cloud, by endpoint and status code",
	}, []string{"endpoint", "code"})

	loginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hzbridge_gizwits_logins_total",
		Help: "Gizwits login attempts, by result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(requestsTotal, loginsTotal)
}
