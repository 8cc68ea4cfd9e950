package modeladapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies why a provider call failed.
type ErrorKind string

// Provider error kinds. Every adapter failure maps to exactly one of these.
const (
	KindAuth            ErrorKind = "AUTH"
	KindRateLimit       ErrorKind = "RATE_LIMIT"
	KindTimeout         ErrorKind = "TIMEOUT"
	KindTransport       ErrorKind = "TRANSPORT"
	KindInvalidResponse ErrorKind = "INVALID_RESPONSE"
)

// ProviderError is the normalized failure returned by every Sender.
type ProviderError struct {
	Kind       ErrorKind
	Provider   string        // Provider name, e.g. "groq".
	StatusCode int           // HTTP status, 0 when no response was received.
	RetryAfter time.Duration // Parsed Retry-After for RATE_LIMIT, zero otherwise.
	Message    string
	Err        error // Underlying cause, if any.
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	prefix := string(e.Kind)
	if e.Provider != "" {
		prefix = e.Provider + ": " + prefix
	}

	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s): %s", prefix, e.RetryAfter, msg)
	}

	return fmt.Sprintf("%s: %s", prefix, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the same provider might succeed on a later call.
// The orchestrator falls back on every kind; this only feeds diagnostics.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindTimeout, KindTransport:
		return true
	default:
		return false
	}
}

// KindOf returns the ErrorKind carried by err, or "" when err is not a
// ProviderError.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// ParseRetryAfter parses the Retry-After header value as either seconds (integer)
// or an HTTP-date (RFC 7231). Returns zero if unparseable or if the date is in the past.
func ParseRetryAfter(val string) time.Duration {
	if val == "" {
		return 0
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(val); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// KindForStatus maps a non-2xx HTTP status code to an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindTransport
	default:
		return KindInvalidResponse
	}
}

// kindForTransportError maps an error returned by http.Client.Do (or a body
// read) to TIMEOUT or TRANSPORT.
func kindForTransportError(ctx context.Context, err error) ErrorKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}

	return KindTransport
}
