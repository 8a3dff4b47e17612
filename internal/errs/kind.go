package errs

import (
	"errors"
	"fmt"
)

// Kind tags a client-side failure.
type Kind int

const (
	KindCorruptState Kind = iota + 1
	KindExpiredCredential
	KindAuthenticationRequired
	KindRefreshFailed
	KindRequestFailed
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindCorruptState:
		return "corrupt_state"
	case KindExpiredCredential:
		return "expired_credential"
	case KindAuthenticationRequired:
		return "authentication_required"
	case KindRefreshFailed:
		return "refresh_failed"
	case KindRequestFailed:
		return "request_failed"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindCorruptState:
		return ErrCorruptState
	case KindExpiredCredential:
		return ErrExpiredCredential
	case KindAuthenticationRequired:
		return ErrAuthenticationRequired
	case KindRefreshFailed:
		return ErrRefreshFailed
	case KindRequestFailed:
		return ErrRequestFailed
	case KindTransport:
		return ErrTransport
	default:
		return nil
	}
}

// Error is a tagged failure returned by the request layer.
// errors.Is matches both the sentinel of its Kind and the wrapped cause.
type Error struct {
	Kind   Kind
	Status int    // HTTP status, 0 when no response was received
	Detail string // human-readable detail, optional
	Err    error  // underlying cause, optional
}

func (e *Error) Error() string {
	msg := e.Kind.sentinel()
	var s string
	if msg != nil {
		s = msg.Error()
	} else {
		s = e.Kind.String()
	}
	if e.Status != 0 {
		s = fmt.Sprintf("%s (status %d)", s, e.Status)
	}
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// New builds a tagged error.
func New(kind Kind, status int, detail string, cause error) *Error {
	return &Error{Kind: kind, Status: status, Detail: detail, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// StatusOf returns the HTTP status carried by err, if any.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
