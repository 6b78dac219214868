package apifetch

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Client carries the configuration every request made through it shares:
// the transport, the before-send hooks, the error handler, logging and
// metrics. It is safe for concurrent use.
type Client struct {
	transport       Transport
	httpClient      *http.Client
	timeout         time.Duration
	timeoutSet      bool
	middleware      []Middleware
	rateLimit       *RateLimitConfig
	circuitBreaker  *CircuitBreakerConfig
	deduplication   bool
	config          Config
	metrics         *MetricsCollector
	debug           *DebugConfig
	logger          Logger
	validationError error
}

// New constructs a Client using the provided functional options. Unless
// WithTransport is given, requests go through an HTTPTransport assembled from
// the HTTP options. A best effort validation is performed; call IsValid /
// ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		timeout:    30 * time.Second,
		middleware: []Middleware{},
		debug:      DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if client.transport == nil {
		client.transport = NewHTTPTransport(HTTPTransportOptions{
			Client:         client.httpClient,
			Middleware:     client.middleware,
			RateLimit:      client.rateLimit,
			CircuitBreaker: client.circuitBreaker,
			Deduplicate:    client.deduplication,
			Metrics:        client.metrics,
			Logger:         client.logger,
		})
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// IsValid reports whether the configuration passed validation.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// Config returns a copy of the client-wide hooks.
func (c *Client) Config() Config {
	return c.config
}

// Metrics returns the metrics collector, or nil when metrics are disabled.
func (c *Client) Metrics() *MetricsCollector {
	return c.metrics
}

// prepare runs the before-send pipeline on d: hooks, URL processor, body
// preprocessing and authorization, in that order.
func (c *Client) prepare(ctx context.Context, d *Descriptor, body *Chain[any, any, any]) error {
	c.config.beforeSend(d)

	u, err := c.config.URLProcessor.Apply(ctx, d.URL, nil)
	if err != nil {
		return fmt.Errorf("process url: %w", err)
	}
	d.URL = u

	if d.Body != nil {
		b, err := c.config.BodyPreprocessing.Apply(ctx, d.Body, nil)
		if err != nil {
			return fmt.Errorf("preprocess body: %w", err)
		}
		if body != nil {
			if b, err = body.Apply(ctx, b, nil); err != nil {
				return fmt.Errorf("preprocess body: %w", err)
			}
		}
		d.Body = b
	}

	if d.IgnoreAuthorization || c.config.Authorization == nil {
		return nil
	}
	if h, ok := c.config.Authorization(); ok {
		if d.Header == nil {
			d.Header = make(http.Header)
		}
		d.Header.Set("Authorization", string(h))
	}
	return nil
}

func (c *Client) debugEnabled() bool {
	return c.debug != nil && c.debug.Enabled && c.logger != nil
}

func (c *Client) logRequests() bool {
	return c.debugEnabled() && c.debug.LogRequests
}

func (c *Client) logFilters() bool {
	return c.debugEnabled() && c.debug.LogFilters
}

func (c *Client) logErrors() bool {
	return c.debugEnabled() && c.debug.LogErrors
}
