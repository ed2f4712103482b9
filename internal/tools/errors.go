package tools

import "errors"

// ErrUnavailable matches every [UnavailableError] under errors.Is.
var ErrUnavailable = errors.New("tool unavailable")

// UnavailableError reports a tool whose backend is not configured.
type UnavailableError struct {
	Tool   string
	Reason string // what to configure, if known
}

func (e *UnavailableError) Error() string {
	msg := e.Tool + " unavailable"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *UnavailableError) Unwrap() error { return ErrUnavailable }
