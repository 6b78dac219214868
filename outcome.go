package apifetch

import (
	"context"
	"time"

	"github.com/theobix/simple-api-fetch/internal/backoff"
)

// OutcomeKind tags the decision a recovery policy took for a failed step.
type OutcomeKind int

const (
	// OutcomeUnhandled passes the (possibly transformed) cause on to the next policy.
	OutcomeUnhandled OutcomeKind = iota
	// OutcomeRetry re-runs the step on its original input while attempts remain.
	OutcomeRetry
	// OutcomeFallback resolves the step with a static value.
	OutcomeFallback
	// OutcomeFallbackFilter resolves the step by running an alternate filter on its original input.
	OutcomeFallbackFilter
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRetry:
		return "RETRY"
	case OutcomeFallback:
		return "FALLBACK"
	case OutcomeFallbackFilter:
		return "FALLBACK_FILTER"
	default:
		return "UNHANDLED"
	}
}

// Backoff configures the wait between retry attempts of a step.
// Strategy is "exponential" (default) or "decorrelated".
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
	Strategy   string
}

func (b *Backoff) delay(attempt int) time.Duration {
	if b == nil {
		return 0
	}
	return backoff.ByName(b.Strategy).Delay(attempt, backoff.Params{
		Initial:    b.Initial,
		Max:        b.Max,
		Multiplier: b.Multiplier,
		Jitter:     b.Jitter,
	})
}

// Outcome is the result of evaluating one recovery policy.
type Outcome[In, Out any] struct {
	Kind        OutcomeKind
	MaxAttempts int
	Backoff     *Backoff
	Value       Out
	Filter      Filter[In, Out]
	Cause       error
}

// Outcomes builds Outcome values for a policy. The zero value is ready to use.
type Outcomes[In, Out any] struct{}

// Retry asks for the step to be re-run until it has been retried max times.
func (Outcomes[In, Out]) Retry(max int) Outcome[In, Out] {
	return Outcome[In, Out]{Kind: OutcomeRetry, MaxAttempts: max}
}

// RetryBackoff is Retry with a wait between attempts.
func (Outcomes[In, Out]) RetryBackoff(max int, b Backoff) Outcome[In, Out] {
	return Outcome[In, Out]{Kind: OutcomeRetry, MaxAttempts: max, Backoff: &b}
}

// Fallback resolves the step with v.
func (Outcomes[In, Out]) Fallback(v Out) Outcome[In, Out] {
	return Outcome[In, Out]{Kind: OutcomeFallback, Value: v}
}

// FallbackFilter resolves the step with f applied to the step's original input.
func (Outcomes[In, Out]) FallbackFilter(f Filter[In, Out]) Outcome[In, Out] {
	return Outcome[In, Out]{Kind: OutcomeFallbackFilter, Filter: f}
}

// Unhandled defers to the next policy, handing it cause instead of the current one.
// A nil cause leaves the current one in place.
func (Outcomes[In, Out]) Unhandled(cause error) Outcome[In, Out] {
	return Outcome[In, Out]{Kind: OutcomeUnhandled, Cause: cause}
}

// Policy decides how a failed step recovers. cause is the step's error, or the
// cause carried forward by an earlier policy of the same step.
type Policy[In, Out any] func(ctx context.Context, cause error, o Outcomes[In, Out]) Outcome[In, Out]

// erasedOutcome is an Outcome with its type parameters stripped so steps of
// different types can live in one slice.
type erasedOutcome struct {
	kind        OutcomeKind
	maxAttempts int
	backoff     *Backoff
	value       any
	filter      func(context.Context, any) (any, error)
	cause       error
}

type erasedPolicy func(ctx context.Context, cause error) erasedOutcome

func erasePolicy[In, Out any](p Policy[In, Out]) erasedPolicy {
	return func(ctx context.Context, cause error) erasedOutcome {
		o := p(ctx, cause, Outcomes[In, Out]{})
		e := erasedOutcome{
			kind:        o.Kind,
			maxAttempts: o.MaxAttempts,
			backoff:     o.Backoff,
			value:       o.Value,
			cause:       o.Cause,
		}
		if o.Filter != nil {
			e.filter = eraseFilter(o.Filter)
		} else if o.Kind == OutcomeFallbackFilter {
			// a fallback filter without a filter resolves nothing
			e.kind = OutcomeUnhandled
		}
		return e
	}
}
