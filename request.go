package apifetch

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// Callbacks observe the life of one request. All are optional. OnUpdate runs
// on the update ticker's goroutine; the others run on the goroutine calling
// Fetch.
type Callbacks[T any] struct {
	OnStart       func(r *Request[T])
	OnStateChange func(r *Request[T], state State)
	OnUpdate      func(r *Request[T], elapsed time.Duration)
	OnFilterStep  func(r *Request[T], i, total int)
	// OnError replaces the client's error handler for this request. The
	// handler is passed along so the callback can delegate to it.
	OnError func(r *Request[T], err *RequestError, global *ErrorHandler)
}

// Options tune a single request.
type Options[T any] struct {
	// UpdateInterval, if positive, fires OnUpdate periodically while the request is active.
	UpdateInterval time.Duration
	// BodyPreprocessing runs after the client's body preprocessing.
	BodyPreprocessing *Chain[any, any, any]
	// IgnoreAuthorization suppresses the Authorization header.
	IgnoreAuthorization bool
	// Header is added to the outgoing request.
	Header http.Header
	// Timeout bounds the transport call.
	Timeout time.Duration
	Callbacks Callbacks[T]
}

// responseChain is what a request needs of its Chain; any
// Chain[*Response, In, T] satisfies it.
type responseChain[T any] interface {
	Apply(ctx context.Context, input *Response, onStep StepFunc) (T, error)
	Len() int
}

// Request is one in-flight operation: a Descriptor, the chain that turns the
// raw response into a T, and an observable state. It is fetched at most once.
type Request[T any] struct {
	Descriptor

	client  *Client
	chain   responseChain[T]
	options *Options[T]
	state   atomic.Int32
	fetched atomic.Bool
}

// NewRequest prepares a request without sending it.
func NewRequest[In, T any](c *Client, method Method, url string, chain Chain[*Response, In, T], body any, opts *Options[T]) *Request[T] {
	if opts == nil {
		opts = &Options[T]{}
	}
	r := &Request[T]{
		Descriptor: Descriptor{
			URL:                 url,
			Method:              method,
			Body:                body,
			Header:              make(http.Header),
			Timeout:             opts.Timeout,
			IgnoreAuthorization: opts.IgnoreAuthorization,
			RequestTime:         time.Now(),
		},
		client:  c,
		chain:   chain,
		options: opts,
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	if c.debug != nil && c.debug.RequestIDGen != nil {
		r.ID = c.debug.RequestIDGen()
	}
	r.state.Store(int32(StatePending))
	return r
}

// Get fetches url and runs the response through chain.
func Get[In, T any](ctx context.Context, c *Client, url string, chain Chain[*Response, In, T], opts *Options[T]) (T, error) {
	return NewRequest(c, MethodGet, url, chain, nil, opts).Fetch(ctx)
}

// Post sends body to url and runs the response through chain.
func Post[In, T any](ctx context.Context, c *Client, url string, body any, chain Chain[*Response, In, T], opts *Options[T]) (T, error) {
	return NewRequest(c, MethodPost, url, chain, body, opts).Fetch(ctx)
}

// State returns the current lifecycle state.
func (r *Request[T]) State() State {
	return State(r.state.Load())
}

// ElapsedTime returns the time since the request was created.
func (r *Request[T]) ElapsedTime() time.Duration {
	return time.Since(r.RequestTime)
}

// Fetch sends the request and filters the response. Every failure is
// reported to the error callbacks before it is returned as a *RequestError.
func (r *Request[T]) Fetch(ctx context.Context) (T, error) {
	var zero T
	if !r.fetched.CompareAndSwap(false, true) {
		return zero, ErrRequestReused
	}

	c := r.client
	c.metrics.RecordRequestStart(r.Method)
	defer func() {
		c.metrics.RecordRequestEnd(r.Method, r.State(), r.ElapsedTime())
	}()

	r.onStart()
	r.startUpdateTicker(ctx)

	resp, err := r.send(ctx)
	if err == nil && resp == nil {
		err = ErrNoResponse
	}
	if err != nil {
		return zero, r.fail(newRequestError(KindNetwork, 0, "", err))
	}
	if !resp.OK() {
		return zero, r.fail(newRequestError(KindHTTP, resp.StatusCode, resp.Status, nil))
	}

	r.setState(StateFiltering)
	out, err := r.chain.Apply(ctx, resp, r.onFilterStep)
	if err != nil {
		return zero, r.fail(newRequestError(KindFilter, 0, "", err))
	}

	r.setState(StateSuccess)
	if c.logRequests() {
		c.logger.Debug("Request succeeded", "requestID", r.ID, "method", r.Method, "url", r.URL, "elapsed", r.ElapsedTime())
	}
	return out, nil
}

func (r *Request[T]) send(ctx context.Context) (*Response, error) {
	c := r.client
	d := &r.Descriptor
	if err := c.prepare(ctx, d, r.options.BodyPreprocessing); err != nil {
		return nil, err
	}
	if c.logRequests() {
		c.logger.Debug("Sending request", "requestID", r.ID, "method", d.Method, "url", d.URL)
	}
	return c.transport.Send(ctx, d)
}

// setState moves the request forward. Terminal states never change again.
// Entering StateError is silent here; fail reports it with the error.
func (r *Request[T]) setState(s State) {
	for {
		cur := State(r.state.Load())
		if !cur.Active() || s < cur {
			return
		}
		if r.state.CompareAndSwap(int32(cur), int32(s)) {
			break
		}
	}
	if s != StateError && r.options.Callbacks.OnStateChange != nil {
		r.options.Callbacks.OnStateChange(r, s)
	}
}

func (r *Request[T]) fail(err *RequestError) *RequestError {
	err.RequestID = r.ID
	err.Method = r.Method
	err.URL = r.URL
	err.Elapsed = r.ElapsedTime()

	r.setState(StateError)

	c := r.client
	c.metrics.RecordError(err)
	if c.logErrors() {
		c.logger.Warn("Request failed", "requestID", r.ID, "kind", string(err.Kind), "status", err.Status, "error", err.Error())
	}

	if cb := r.options.Callbacks.OnError; cb != nil {
		cb(r, err, c.config.ErrorHandler)
	} else {
		c.config.ErrorHandler.Handle(err)
	}
	return err
}

func (r *Request[T]) onStart() {
	if r.client.logRequests() {
		r.client.logger.Debug("Starting request", "requestID", r.ID, "method", r.Method, "url", r.URL)
	}
	if cb := r.options.Callbacks.OnStart; cb != nil {
		cb(r)
	}
}

func (r *Request[T]) onFilterStep(i, total int) {
	r.client.metrics.RecordFilterStep(r.Method)
	if r.client.logFilters() {
		r.client.logger.Debug("Filter step", "requestID", r.ID, "step", i, "total", total)
	}
	if cb := r.options.Callbacks.OnFilterStep; cb != nil {
		cb(r, i, total)
	}
}

// startUpdateTicker fires OnUpdate every UpdateInterval while the request is
// active. The first tick after a terminal state stops it.
func (r *Request[T]) startUpdateTicker(ctx context.Context) {
	interval := r.options.UpdateInterval
	if interval <= 0 || r.options.Callbacks.OnUpdate == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !r.State().Active() {
					return
				}
				r.options.Callbacks.OnUpdate(r, r.ElapsedTime())
			}
		}
	}()
}
