package remote

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"

	"resty.dev/v3"
)

// Outcomes of a call to one of the store's services. Every adapter error
// wraps exactly one of these.
var (
	// ErrNotFound is returned when a lookup answered 404.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means the request never took effect: the service could
	// not be reached, the circuit breaker is open, or a read-only call failed.
	ErrUnavailable = errors.New("service unavailable")
	// ErrRejected means the service answered a mutating call with a
	// non-success status, so the change was not applied.
	ErrRejected = errors.New("request rejected")
	// ErrUnknownOutcome means a mutating call may or may not have been applied,
	// typically because it timed out after being sent.
	ErrUnknownOutcome = errors.New("outcome unknown")
)

// StatusError carries the HTTP answer of a failed call.
type StatusError struct {
	Service    string
	Op         string
	StatusCode int
	Body       string
	kind       error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %v (status %d): %s", e.Service, e.Op, e.kind, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return e.kind }

// ReadError classifies the result of a read-only call. Any transport failure
// is reported as ErrUnavailable since retrying a read is always safe.
func ReadError(service, op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", service, op, ErrUnavailable, err)
	}
	switch {
	case resp.IsSuccess():
		return nil
	case resp.StatusCode() == http.StatusNotFound:
		return newStatusError(service, op, resp, ErrNotFound)
	default:
		return newStatusError(service, op, resp, ErrUnavailable)
	}
}

// MutationError classifies the result of a state-changing call. A transport
// failure is only reported as ErrUnavailable when the request provably never
// reached the service; everything else is ErrUnknownOutcome.
func MutationError(service, op string, resp *resty.Response, err error) error {
	if err != nil {
		if notSent(err) {
			return fmt.Errorf("%s %s: %w: %w", service, op, ErrUnavailable, err)
		}
		return fmt.Errorf("%s %s: %w: %w", service, op, ErrUnknownOutcome, err)
	}
	if resp.IsSuccess() {
		return nil
	}
	if resp.StatusCode() == http.StatusNotFound {
		return newStatusError(service, op, resp, ErrNotFound)
	}
	return newStatusError(service, op, resp, ErrRejected)
}

func notSent(err error) bool {
	return errors.Is(err, resty.ErrCircuitBreakerOpen) || errors.Is(err, syscall.ECONNREFUSED)
}

func newStatusError(service, op string, resp *resty.Response, kind error) *StatusError {
	return &StatusError{
		Service:    service,
		Op:         op,
		StatusCode: resp.StatusCode(),
		Body:       truncate(resp.String(), 256),
		kind:       kind,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
