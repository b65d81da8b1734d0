package heatzy

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	bindingsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hzbridge_bindings",
		Help: "Number of heater switches currently exposed to HomeKit",
	})

	reconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hzbridge_reconcile_changes_total",
		Help: "Bindings created, updated and removed by device refreshes",
	}, []string{"change"})
)

func init() {
	prometheus.MustRegister(bindingsGauge, reconcileTotal)
}
