package session

import (
	"fmt"
)

// ErrorKind classifies session failures.
type ErrorKind string

const (
	KindDiscoveryFailed       ErrorKind = "discovery_failed"
	KindServiceUnavailable    ErrorKind = "service_unavailable"
	KindCharacteristicMissing ErrorKind = "characteristic_missing"
	KindDeviceUnreachable     ErrorKind = "device_unreachable"
	KindInvalidFrame          ErrorKind = "invalid_frame"
	KindInvalidState          ErrorKind = "invalid_state"
	KindBindInProgress        ErrorKind = "bind_in_progress"
)

// Error is returned by session operations. errors.Is matches it against the
// sentinels below by Kind; errors.Unwrap yields the transport or decode error.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Kind)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors, one per kind
var (
	ErrDiscoveryFailed       = &Error{Kind: KindDiscoveryFailed}
	ErrServiceUnavailable    = &Error{Kind: KindServiceUnavailable}
	ErrCharacteristicMissing = &Error{Kind: KindCharacteristicMissing}
	ErrDeviceUnreachable     = &Error{Kind: KindDeviceUnreachable}
	ErrInvalidFrame          = &Error{Kind: KindInvalidFrame}
	ErrInvalidState          = &Error{Kind: KindInvalidState}
	ErrBindInProgress        = &Error{Kind: KindBindInProgress}
)

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}
