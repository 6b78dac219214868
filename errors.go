package apifetch

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies the phase of a request that failed.
type ErrorKind string

const (
	// KindNetwork means the transport never produced a response.
	KindNetwork ErrorKind = "NETWORK"
	// KindHTTP means the transport responded with a non-2xx status.
	KindHTTP ErrorKind = "HTTP"
	// KindFilter means the response chain failed after a successful transport call.
	KindFilter ErrorKind = "FILTER"
)

// Sentinel errors for common failure scenarios
var (
	// ErrConstraint is returned by a Constraint step built without an explicit error.
	ErrConstraint = errors.New("apifetch: constraint not satisfied")

	// ErrChainType is returned when a value reaching a chain step has the wrong type.
	ErrChainType = errors.New("apifetch: chain value has unexpected type")

	// ErrRequestReused is returned when Fetch is called on a request that already ran.
	ErrRequestReused = errors.New("apifetch: request already fetched")

	// ErrNoResponse is the cause of a NETWORK error when a transport returns neither a response nor an error.
	ErrNoResponse = errors.New("apifetch: transport returned no response")

	// ErrCircuitOpen is returned by the HTTP transport while its circuit breaker rejects calls.
	ErrCircuitOpen = errors.New("apifetch: circuit open")
)

// RequestError is the classified failure of a request. Kind is set once, when
// the error is created, and never changes.
type RequestError struct {
	Kind       ErrorKind
	Status     int
	StatusText string
	Cause      error
	RequestID  string
	Method     Method
	URL        string
	Elapsed    time.Duration
}

func newRequestError(kind ErrorKind, status int, statusText string, cause error) *RequestError {
	if statusText == "" && cause != nil {
		statusText = cause.Error()
	}
	return &RequestError{
		Kind:       kind,
		Status:     status,
		StatusText: statusText,
		Cause:      cause,
	}
}

// Error implements error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s %d", msg, e.Status)
	}
	if e.StatusText != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.StatusText)
	}
	if e.Method != "" || e.URL != "" {
		msg = fmt.Sprintf("%s (%s %s)", msg, e.Method, e.URL)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is a *RequestError of the same kind.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*RequestError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err is, or wraps, a *RequestError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *RequestError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Kind: %s\n", e.Kind)
	if e.Status != 0 {
		info += fmt.Sprintf("Status: %d\n", e.Status)
	}
	if e.StatusText != "" {
		info += fmt.Sprintf("Status Text: %s\n", e.StatusText)
	}
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Elapsed > 0 {
		info += fmt.Sprintf("Elapsed: %v\n", e.Elapsed)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
