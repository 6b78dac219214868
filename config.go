package apifetch

import (
	"net/url"
)

// Config holds the client-wide hooks every request passes through. It is
// injected into a Client with WithConfig or the granular options.
type Config struct {
	// URLProcessor rewrites the request URL right before sending.
	URLProcessor Chain[string, string, string]
	// BodyPreprocessing transforms a non-nil body before any per-request preprocessing.
	BodyPreprocessing Chain[any, any, any]
	// Authorization supplies the Authorization header. Returning false sends none.
	Authorization func() (AuthorizationHeader, bool)
	// BeforeEach mutates every request before the matchers run.
	BeforeEach func(d *Descriptor)
	// BeforeEachMatching mutates requests accepted by a matcher.
	BeforeEachMatching []RequestMatcher
	// ErrorHandler receives classified errors of requests without their own OnError callback.
	ErrorHandler *ErrorHandler
}

// RequestMatcher selects requests for a before-send processor. A matcher
// accepts a request when any of its set criteria matches.
type RequestMatcher struct {
	Match    func(d *Descriptor) bool
	Endpoint string // URL path
	URL      string
	Method   Method
	Process  func(d *Descriptor)
}

func (m RequestMatcher) matches(d *Descriptor) bool {
	if m.Match != nil && m.Match(d) {
		return true
	}
	if m.Endpoint != "" {
		if u, err := url.Parse(d.URL); err == nil && u.Path == m.Endpoint {
			return true
		}
	}
	if m.URL != "" && m.URL == d.URL {
		return true
	}
	return m.Method != "" && m.Method == d.Method
}

// ErrorHandler is the client-wide error sink. CatchAll sees every error, then
// every matcher in Catch that accepts the error runs.
type ErrorHandler struct {
	CatchAll func(err *RequestError)
	Catch    []ErrorMatcher
}

// ErrorMatcher selects errors for a processor. A matcher accepts an error
// when any of its set criteria matches; HTTPCode only applies to HTTP errors.
type ErrorMatcher struct {
	Match      func(err *RequestError) bool
	Kind       ErrorKind
	HTTPCode   int
	StatusText string
	Process    func(err *RequestError)
}

func (m ErrorMatcher) matches(err *RequestError) bool {
	if m.Match != nil && m.Match(err) {
		return true
	}
	if m.Kind != "" && m.Kind == err.Kind {
		return true
	}
	if m.HTTPCode != 0 && err.Kind == KindHTTP && err.Status == m.HTTPCode {
		return true
	}
	return m.StatusText != "" && m.StatusText == err.StatusText
}

// Handle runs the catch-all handler and every matching processor. It is safe
// to call on a nil handler.
func (h *ErrorHandler) Handle(err *RequestError) {
	if h == nil || err == nil {
		return
	}
	if h.CatchAll != nil {
		h.CatchAll(err)
	}
	for _, m := range h.Catch {
		if m.Process != nil && m.matches(err) {
			m.Process(err)
		}
	}
}

// beforeSend applies BeforeEach and then every accepting matcher, in
// registration order. Matchers are selected before any of them runs.
func (c *Config) beforeSend(d *Descriptor) {
	if c.BeforeEach != nil {
		c.BeforeEach(d)
	}
	var selected []RequestMatcher
	for _, m := range c.BeforeEachMatching {
		if m.Process != nil && m.matches(d) {
			selected = append(selected, m)
		}
	}
	for _, m := range selected {
		m.Process(d)
	}
}
