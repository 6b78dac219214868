package apifetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// CircuitBreakerConfig configures the circuit breaker of the HTTP transport.
type CircuitBreakerConfig struct {
	// Name labels the breaker in metrics and logs. Defaults to "default".
	Name string
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	// RecoveryTimeout is how long the breaker stays open before probing again.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the number of probe requests allowed while half-open.
	SuccessThreshold int
	// Interval clears the failure counts while closed. Zero never clears them.
	Interval time.Duration
}

// RateLimitConfig configures client-side rate limiting of the HTTP transport.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate.
	RequestsPerSecond float64
	// Burst is the number of requests allowed at once. Defaults to 1.
	Burst int
}

// HTTPTransportOptions configure NewHTTPTransport. Zero values disable the
// corresponding feature.
type HTTPTransportOptions struct {
	// Client performs the round trips. Defaults to a client with a 30s timeout.
	Client *http.Client
	// Middleware wraps every round trip, first entry outermost.
	Middleware []Middleware
	// RateLimit, if set, makes every send wait for a token.
	RateLimit *RateLimitConfig
	// CircuitBreaker, if set, rejects sends with ErrCircuitOpen while open.
	// Transport errors and 5xx responses count as failures.
	CircuitBreaker *CircuitBreakerConfig
	// Deduplicate merges identical in-flight GET and HEAD requests.
	Deduplicate bool
	// Metrics, if set, records round trips, breaker state and dedup hits.
	Metrics *MetricsCollector
	// Logger, if set, logs breaker state changes.
	Logger Logger
}

// HTTPTransport is the default Transport, built on net/http.
type HTTPTransport struct {
	client     *http.Client
	middleware []Middleware
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	dedup      *singleflight.Group
	metrics    *MetricsCollector
	logger     Logger
}

var errServerStatus = errors.New("server error status")

// NewHTTPTransport builds an HTTPTransport from options.
func NewHTTPTransport(options HTTPTransportOptions) *HTTPTransport {
	t := &HTTPTransport{
		client:     options.Client,
		middleware: options.Middleware,
		metrics:    options.Metrics,
		logger:     options.Logger,
	}
	if t.client == nil {
		t.client = &http.Client{Timeout: 30 * time.Second}
	}

	if rl := options.RateLimit; rl != nil && rl.RequestsPerSecond > 0 {
		burst := rl.Burst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst)
	}

	if cb := options.CircuitBreaker; cb != nil {
		t.breaker = gobreaker.NewCircuitBreaker(t.breakerSettings(*cb))
	}

	if options.Deduplicate {
		t.dedup = &singleflight.Group{}
	}

	return t
}

func (t *HTTPTransport) breakerSettings(cb CircuitBreakerConfig) gobreaker.Settings {
	if cb.Name == "" {
		cb.Name = "default"
	}
	if cb.FailureThreshold <= 0 {
		cb.FailureThreshold = 5
	}
	if cb.RecoveryTimeout <= 0 {
		cb.RecoveryTimeout = 60 * time.Second
	}
	if cb.SuccessThreshold <= 0 {
		cb.SuccessThreshold = 2
	}
	threshold := uint32(cb.FailureThreshold)

	return gobreaker.Settings{
		Name:        cb.Name,
		MaxRequests: uint32(cb.SuccessThreshold),
		Interval:    cb.Interval,
		Timeout:     cb.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.metrics.RecordCircuitBreakerState(name, to)
			if t.logger != nil {
				t.logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			}
		},
	}
}

// Send implements Transport. Deduplicated callers each get their own copy of
// the shared response.
func (t *HTTPTransport) Send(ctx context.Context, d *Descriptor) (*Response, error) {
	if t.dedup == nil || !deduplicable(d) {
		return t.send(ctx, d)
	}

	// the leader runs fn; every other caller is a hit
	var leader bool
	v, err, shared := t.dedup.Do(deduplicationKey(d), func() (any, error) {
		leader = true
		return t.send(ctx, d)
	})
	if shared && !leader {
		t.metrics.RecordDeduplicationHit(string(d.Method))
	}
	if err != nil {
		return nil, err
	}
	return v.(*Response).clone(), nil
}

func (t *HTTPTransport) send(ctx context.Context, d *Descriptor) (*Response, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := newHTTPRequest(ctx, d)
	if err != nil {
		return nil, err
	}

	if t.breaker == nil {
		return t.roundTrip(req)
	}

	var resp *Response
	_, err = t.breaker.Execute(func() (interface{}, error) {
		r, err := t.roundTrip(req)
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode >= 500 {
			return nil, errServerStatus
		}
		return nil, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	case errors.Is(err, errServerStatus):
		return resp, nil
	case err != nil:
		return nil, err
	}
	return resp, nil
}

func (t *HTTPTransport) roundTrip(req *http.Request) (*Response, error) {
	resp, err := t.executeMiddleware(req)
	if err != nil {
		t.metrics.RecordTransportAttempt(req.Method, "error")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.metrics.RecordTransportAttempt(req.Method, "error")
		return nil, fmt.Errorf("read response body: %w", err)
	}

	outcome := "ok"
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome = "status"
	}
	t.metrics.RecordTransportAttempt(req.Method, outcome)

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     statusText(resp),
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (t *HTTPTransport) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(t.middleware) == 0 {
		return t.client.Do(req)
	}

	current := RoundTripperFunc(t.client.Do)

	for i := len(t.middleware) - 1; i >= 0; i-- {
		middleware := t.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

func newHTTPRequest(ctx context.Context, d *Descriptor) (*http.Request, error) {
	body, contentType, err := encodeBody(d.Body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	method := string(d.Method)
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, d.URL, body)
	if err != nil {
		return nil, err
	}

	for k, vs := range d.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// encodeBody passes raw bodies through and encodes anything else as JSON.
func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case string:
		return strings.NewReader(b), "", nil
	case io.Reader:
		return b, "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func statusText(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func deduplicable(d *Descriptor) bool {
	return d.Method == MethodGet || d.Method == http.MethodHead || d.Method == ""
}

// deduplicationKey identifies a request by method, URL and its full header
// set. Header names are canonicalized and sorted; value order is kept.
func deduplicationKey(d *Descriptor) string {
	var b strings.Builder
	b.WriteString(string(d.Method))
	b.WriteByte(' ')
	b.WriteString(d.URL)

	header := make(http.Header, len(d.Header))
	for k, vs := range d.Header {
		k = http.CanonicalHeaderKey(k)
		header[k] = append(header[k], vs...)
	}
	names := make([]string, 0, len(header))
	for k := range header {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		for _, v := range header[k] {
			b.WriteByte('\n')
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
		}
	}
	return b.String()
}
