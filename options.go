package apifetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WithTransport replaces the HTTP transport. The HTTP options (client,
// timeout, middleware, rate limit, circuit breaker, deduplication) are then
// ignored.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithHTTPClient sets a custom HTTP client. Its own Timeout is kept unless
// WithTimeout is also given, in either order.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
		if client == nil {
			return
		}
		if c.timeoutSet {
			client.Timeout = c.timeout
		} else if client.Timeout > 0 {
			c.timeout = client.Timeout
		}
	}
}

// WithTimeout sets the overall timeout of the HTTP client. Options.Timeout
// bounds a single request instead.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		c.timeoutSet = true
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithMiddleware adds middleware to the HTTP transport
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithRateLimit limits the HTTP transport to rps requests per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.rateLimit = &RateLimitConfig{RequestsPerSecond: rps, Burst: burst}
	}
}

// WithCircuitBreaker sets the circuit breaker configuration
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = &config
	}
}

// WithDeduplication merges identical in-flight GET requests into one round trip.
func WithDeduplication() Option {
	return func(c *Client) {
		c.deduplication = true
	}
}

// WithConfig replaces all client-wide hooks at once.
func WithConfig(config Config) Option {
	return func(c *Client) {
		c.config = config
	}
}

// WithURLProcessor sets the chain every request URL passes through.
func WithURLProcessor(chain Chain[string, string, string]) Option {
	return func(c *Client) {
		c.config.URLProcessor = chain
	}
}

// WithBaseURL resolves relative request URLs against base. It appends a step
// to the URL processor, so it composes with WithURLProcessor when given after it.
func WithBaseURL(base string) Option {
	base = strings.TrimRight(base, "/")
	return func(c *Client) {
		c.config.URLProcessor = c.config.URLProcessor.Then(func(_ context.Context, raw string) (string, error) {
			u, err := url.Parse(raw)
			if err != nil {
				return "", err
			}
			if u.IsAbs() {
				return raw, nil
			}
			return base + "/" + strings.TrimLeft(raw, "/"), nil
		})
	}
}

// WithBodyPreprocessing sets the chain every non-nil request body passes through.
func WithBodyPreprocessing(chain Chain[any, any, any]) Option {
	return func(c *Client) {
		c.config.BodyPreprocessing = chain
	}
}

// WithAuthorization sets the Authorization header supplier.
func WithAuthorization(fn func() (AuthorizationHeader, bool)) Option {
	return func(c *Client) {
		c.config.Authorization = fn
	}
}

// WithBeforeEach sets the hook run on every request before it is sent.
func WithBeforeEach(fn func(d *Descriptor)) Option {
	return func(c *Client) {
		c.config.BeforeEach = fn
	}
}

// WithBeforeEachMatching adds before-send processors for matching requests.
func WithBeforeEachMatching(matchers ...RequestMatcher) Option {
	return func(c *Client) {
		c.config.BeforeEachMatching = append(c.config.BeforeEachMatching, matchers...)
	}
}

// WithErrorHandler sets the client-wide error handler
func WithErrorHandler(h *ErrorHandler) Option {
	return func(c *Client) {
		c.config.ErrorHandler = h
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// ConfigError lists every problem found by ValidateConfiguration.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration validation failed: %s", strings.Join(e.Problems, "; "))
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateTransportConfig()...)
	errors = append(errors, c.validateRateLimitConfig()...)
	errors = append(errors, c.validateCircuitBreakerConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateMiddlewareConfig()...)
	errors = append(errors, c.validateHookConfig()...)
	errors = append(errors, c.validateExtremeValues()...)

	if len(errors) > 0 {
		return &ConfigError{Problems: errors}
	}

	return nil
}

func (c *Client) validateTransportConfig() []string {
	var errors []string

	if c.transport == nil {
		return append(errors, "transport cannot be nil")
	}
	if _, ok := c.transport.(*HTTPTransport); !ok {
		return errors
	}
	if c.httpClient == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}
	if c.timeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}

	return errors
}

func (c *Client) validateRateLimitConfig() []string {
	var errors []string

	if c.rateLimit != nil {
		if c.rateLimit.RequestsPerSecond <= 0 {
			errors = append(errors, "rateLimit RequestsPerSecond must be positive")
		}
		if c.rateLimit.Burst < 0 {
			errors = append(errors, "rateLimit Burst must be non-negative")
		}
	}

	return errors
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var errors []string

	if c.circuitBreaker != nil {
		if c.circuitBreaker.FailureThreshold < 0 {
			errors = append(errors, "circuitBreaker FailureThreshold must be non-negative")
		}
		if c.circuitBreaker.RecoveryTimeout < 0 {
			errors = append(errors, "circuitBreaker RecoveryTimeout must be non-negative")
		}
		if c.circuitBreaker.SuccessThreshold < 0 {
			errors = append(errors, "circuitBreaker SuccessThreshold must be non-negative")
		}
	}

	return errors
}

func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errors = append(errors, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errors = append(errors, "logger must be set when debug is enabled")
		}
	}

	return errors
}

func (c *Client) validateMiddlewareConfig() []string {
	var errors []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errors
}

func (c *Client) validateHookConfig() []string {
	var errors []string

	for i, m := range c.config.BeforeEachMatching {
		if m.Process == nil {
			errors = append(errors, fmt.Sprintf("beforeEachMatching[%d] has no Process function", i))
		}
		if m.Match == nil && m.Endpoint == "" && m.URL == "" && m.Method == "" {
			errors = append(errors, fmt.Sprintf("beforeEachMatching[%d] matches nothing", i))
		}
	}
	if h := c.config.ErrorHandler; h != nil {
		for i, m := range h.Catch {
			if m.Process == nil {
				errors = append(errors, fmt.Sprintf("errorHandler.Catch[%d] has no Process function", i))
			}
		}
	}

	return errors
}

// validateExtremeValues validates that configuration values are within reasonable bounds
func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}
	if c.rateLimit != nil && c.rateLimit.Burst > 1000000 {
		errors = append(errors, "rateLimit Burst > 1M may cause request floods")
	}

	return errors
}
