package gizwits

import (
	"encoding/json"
	"time"
)

// Device is one entry of the bindings listing, only what we need here
type Device struct {
	DID         string `json:"did"`
	Alias       string `json:"dev_alias"`
	IsOnline    bool   `json:"is_online"`
	ProductName string `json:"product_name,omitempty"`
	ProductKey  string `json:"product_key,omitempty"`
	MAC         string `json:"mac,omitempty"`
}

// Session is the bearer token and the time we stop trusting it
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the session is unusable at the given time
func (s Session) Expired(now time.Time) bool {
	return s.Token == "" || s.ExpiresAt.IsZero() || !now.Before(s.ExpiresAt)
}

// ErrorPayload is what Gizwits sends back with a non-200 status
type ErrorPayload struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
	Detail  string `json:"detail_message,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Lang     string `json:"lang"`
}

type loginReply struct {
	Token    string `json:"token"`
	UID      string `json:"uid,omitempty"`
	ExpireAt int64  `json:"expire_at,omitempty"` // sent, but we do not trust it
}

type bindingsReply struct {
	Devices []Device `json:"devices"`
}

type controlRequest struct {
	Attrs map[string]interface{} `json:"attrs"`
}

// Latest is the most recent attribute snapshot of a device
type Latest struct {
	DID     string                     `json:"did"`
	Updated int64                      `json:"updated_at"`
	Attr    map[string]json.RawMessage `json:"attr"`
}

// Mode extracts the integer mode attribute
func (l *Latest) Mode() (int, bool) {
	raw, ok := l.Attr["mode"]
	if !ok {
		return 0, false
	}
	var mode int
	if err := json.Unmarshal(raw, &mode); err != nil {
		return 0, false
	}
	return mode, true
}
