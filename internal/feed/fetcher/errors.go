package fetcher

import (
	"fmt"
	"time"
)

// ErrorKind classifies fetch failures.
type ErrorKind int

const (
	// ErrorNotFound is a 404: the feed no longer exists.
	ErrorNotFound ErrorKind = iota
	// ErrorBadRequest is a 400: we sent a request the server rejects.
	ErrorBadRequest
	// ErrorForbidden is a 403: not allowed to access the feed.
	ErrorForbidden
	// ErrorRateLimited is a 429; RetryAfter carries the server supplied delay.
	ErrorRateLimited
	// ErrorMovedWithoutLocation is a 301 with no Location header.
	ErrorMovedWithoutLocation
	// ErrorServer is any 5xx.
	ErrorServer
	// ErrorUnexpectedStatus is any status outside the dispatch table.
	ErrorUnexpectedStatus
	// ErrorTransport wraps connection, TLS, timeout and redirect-limit failures.
	ErrorTransport
)

// Error is a classified fetch failure.
type Error struct {
	Kind   ErrorKind
	Status int
	// RetryAfter is set for ErrorRateLimited only
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrorNotFound:
		return "feed no longer exists"
	case ErrorBadRequest:
		return "sent a bad request to the feed server"
	case ErrorForbidden:
		return "not allowed to access the feed"
	case ErrorRateLimited:
		return fmt.Sprintf("feed is rate limited, retry after %s", e.RetryAfter)
	case ErrorMovedWithoutLocation:
		return "feed moved without providing a new location"
	case ErrorServer:
		return fmt.Sprintf("feed server failed with status code %d", e.Status)
	case ErrorUnexpectedStatus:
		return fmt.Sprintf("feed server responded with unexpected status code %d", e.Status)
	case ErrorTransport:
		return fmt.Sprintf("feed request failed: %v", e.cause)
	default:
		return "unknown fetch error"
	}
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Expected reports whether the failure is routine for dead or misbehaving
// feeds, so callers can log it quietly.
func (e *Error) Expected() bool {
	switch e.Kind {
	case ErrorNotFound, ErrorForbidden, ErrorRateLimited, ErrorServer:
		return true
	default:
		return false
	}
}
