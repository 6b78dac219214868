package apifetch

import (
	"bytes"
	"context"
	"net/http"
	"time"
)

// Method is the HTTP verb of a request.
type Method string

const (
	MethodGet  Method = http.MethodGet
	MethodPost Method = http.MethodPost
)

// State is the lifecycle phase of a request.
type State int32

const (
	StatePending State = iota
	StateFiltering
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateFiltering:
		return "FILTERING"
	case StateSuccess:
		return "SUCCESS"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Active reports whether a request in state s has not finished yet.
func (s State) Active() bool {
	return s == StatePending || s == StateFiltering
}

// Descriptor is the non-generic part of a request. Before-send hooks may
// mutate it; the transport receives it after the hooks, the URL processor,
// body preprocessing and authorization have run.
type Descriptor struct {
	ID                  string
	URL                 string
	Method              Method
	Body                any
	Header              http.Header
	Timeout             time.Duration
	IgnoreAuthorization bool
	RequestTime         time.Time
}

// Response is a buffered transport result.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// clone returns a copy that shares no memory with r.
func (r *Response) clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		StatusCode: r.StatusCode,
		Status:     r.Status,
		Header:     r.Header.Clone(),
		Body:       bytes.Clone(r.Body),
	}
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport performs the network exchange for a request.
type Transport interface {
	Send(ctx context.Context, d *Descriptor) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, d *Descriptor) (*Response, error)

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, d *Descriptor) (*Response, error) {
	return f(ctx, d)
}

// Middleware wraps the round trip of the HTTP transport.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Option represents a configuration option
type Option func(*Client)
