package apifetch

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// step is one transform of a chain plus the recovery policies attached to it.
type step struct {
	run      func(context.Context, any) (any, error)
	policies []erasedPolicy
}

func (s step) withPolicy(p erasedPolicy) step {
	policies := make([]erasedPolicy, len(s.policies), len(s.policies)+1)
	copy(policies, s.policies)
	s.policies = append(policies, p)
	return s
}

// process runs the step on in, consulting the recovery policies in attachment
// order whenever the transform fails. retries counts re-runs of this step only.
func (s step) process(ctx context.Context, in any) (any, error) {
	for retries := 0; ; retries++ {
		out, err := s.run(ctx, in)
		if err == nil {
			return out, nil
		}

		retry, wait := false, time.Duration(0)
		cause := err
	policies:
		for _, policy := range s.policies {
			o := policy(ctx, cause)
			switch o.kind {
			case OutcomeRetry:
				if retries < o.maxAttempts {
					retry, wait = true, o.backoff.delay(retries)
					break policies
				}
			case OutcomeFallbackFilter:
				return o.filter(ctx, in)
			case OutcomeFallback:
				return o.value, nil
			default:
				if o.cause != nil {
					cause = o.cause
				}
			}
		}

		if !retry {
			return nil, err
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func eraseFilter[In, Out any](f Filter[In, Out]) func(context.Context, any) (any, error) {
	return func(ctx context.Context, in any) (any, error) {
		v, err := cast[In](in)
		if err != nil {
			return nil, err
		}
		out, err := f(ctx, v)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

// cast converts an erased value back to V, mapping nil to V's zero value.
func cast[V any](v any) (V, error) {
	if v == nil {
		var zero V
		return zero, nil
	}
	out, ok := v.(V)
	if !ok {
		return out, fmt.Errorf("%w: got %T, want %v", ErrChainType, v, reflect.TypeFor[V]())
	}
	return out, nil
}
