package domain

import (
	"errors"
	"fmt"
	"time"
)

type ErrorKind string

const (
	KindValidation     ErrorKind = "validation error"
	KindNotFound       ErrorKind = "not found"
	KindAuthentication ErrorKind = "authentication error"
	KindAuthorization  ErrorKind = "authorization error"
	KindRateLimit      ErrorKind = "rate limit exceeded"
	KindServer         ErrorKind = "server error"
	KindNetwork        ErrorKind = "network error"
	KindTimeout        ErrorKind = "timeout"
	KindDownload       ErrorKind = "download error"
	KindAPI            ErrorKind = "api error"
)

// Error is the error type returned by every component that talks to the API,
// the CDN or the download tree.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Resource   string
	RetryAfter time.Duration
	Err        error
}

var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrRateLimit      = &Error{Kind: KindRateLimit}
	ErrServer         = &Error{Kind: KindServer}
	ErrNetwork        = &Error{Kind: KindNetwork}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrDownload       = &Error{Kind: KindDownload}
	ErrAPI            = &Error{Kind: KindAPI}
)

func NewError(kind ErrorKind, resource, format string, args ...any) *Error {
	return &Error{
		Kind:     kind,
		Resource: resource,
		Message:  fmt.Sprintf(format, args...),
	}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Resource != "" {
		msg += ": " + e.Resource
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Kind == KindRateLimit && e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on the error kind, so errors.Is(err, ErrNotFound) works for any not found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsRetryable reports whether the request that produced err may succeed if sent again.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindRateLimit, KindServer, KindNetwork, KindTimeout:
		return true
	}
	return false
}

// KindOf returns the kind of err, or an empty kind for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
