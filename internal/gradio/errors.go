package gradio

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrRemoteCall is matched by every *RemoteError through errors.Is.
var ErrRemoteCall = errors.New("remote call failed")

// ErrorKind classifies a remote failure so callers never inspect message text.
type ErrorKind string

// Remote failure kinds.
const (
	KindQuota        ErrorKind = "quota"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindUnavailable  ErrorKind = "unavailable"
	KindTransport    ErrorKind = "transport"
	KindRemote       ErrorKind = "remote"
)

// RemoteError is returned by every Client operation that fails.
type RemoteError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gradio %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("gradio %s error: %s", e.Kind, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrRemoteCall.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteCall
}

func newTransportError(op string, err error) *RemoteError {
	return &RemoteError{
		Kind:       KindTransport,
		StatusCode: 0,
		Message:    fmt.Sprintf("%s: %v", op, err),
		Err:        err,
	}
}

func newRemoteError(statusCode int, message string) *RemoteError {
	return &RemoteError{
		Kind:       classify(statusCode, message),
		StatusCode: statusCode,
		Message:    message,
		Err:        nil,
	}
}

// classify maps an HTTP status, or failing that the Space's error text, to a
// kind. The text fallback exists because Gradio reports queue-side failures
// (ZeroGPU quota, expired tokens) as free-form SSE error payloads.
func classify(statusCode int, message string) ErrorKind {
	switch statusCode {
	case http.StatusTooManyRequests:
		return KindQuota
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindUnavailable
	}

	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "quota"), strings.Contains(lower, "exceeded"):
		return KindQuota
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "authentication"),
		strings.Contains(lower, "401"):
		return KindUnauthorized
	case strings.Contains(lower, "forbidden"):
		return KindForbidden
	default:
		return KindRemote
	}
}
