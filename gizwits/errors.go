package gizwits

import (
	"errors"
	"fmt"
)

// ErrNoToken is returned when a call needs a session and none could be had
var ErrNoToken = errors.New("token not available")

// ErrDeviceNotFound is returned when a device is absent from a listing
var ErrDeviceNotFound = errors.New("device not found")

// AuthError is a failed login: bad credentials, network failure or a malformed reply
type AuthError struct {
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gizwits login failed (%d): %s", e.Status, e.Err.Error())
	}
	return fmt.Sprintf("gizwits login failed: %s", e.Err.Error())
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError is a failed device listing, including not having a token
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("unable to fetch devices: %s", e.Err.Error())
}

func (e *FetchError) Unwrap() error { return e.Err }

// ControlError is a control call that did not come back 200
type ControlError struct {
	DID     string
	Status  int
	Payload *ErrorPayload
	Err     error
}

func (e *ControlError) Error() string {
	msg := fmt.Sprintf("unable to control [%s]", e.DID)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Payload != nil && e.Payload.Message != "" {
		msg = fmt.Sprintf("%s: %s (%d)", msg, e.Payload.Message, e.Payload.Code)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

func (e *ControlError) Unwrap() error { return e.Err }

// ReadError is a state read that could not produce a trustworthy answer
type ReadError struct {
	DID string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("unable to read [%s]: %s", e.DID, e.Err.Error())
}

func (e *ReadError) Unwrap() error { return e.Err }
