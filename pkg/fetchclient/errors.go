package fetchclient

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a fetch failure.
type Kind int

const (
	// KindTimeout marks a request that exceeded its deadline.
	KindTimeout Kind = iota
	// KindConnection marks DNS/dial/reset failures before a response arrived.
	KindConnection
	// KindHTTPStatus marks a non-2xx response; StatusCode carries the code.
	KindHTTPStatus
	// KindDecode marks a response body that could not be read or decoded.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindHTTPStatus:
		return "http_status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is a classified fetch failure.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying: timeouts,
// connection errors, and 5xx responses. 4xx responses are permanent.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindConnection:
		return true
	case KindHTTPStatus:
		return e.StatusCode >= 500
	default:
		return false
	}
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Transient()
}

// classify wraps a transport-level error from the HTTP client.
func classify(url string, err error) *Error {
	kind := KindConnection
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, URL: url, Err: err}
}
