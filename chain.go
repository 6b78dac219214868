package apifetch

import (
	"context"
)

// Filter is one fallible transformation of a chain.
type Filter[In, Out any] func(ctx context.Context, in In) (Out, error)

// StepFunc is notified with the zero-based index of a step and the step count
// right before the step runs.
type StepFunc func(i, total int)

// Chain is an ordered sequence of filters applied to one value of type T.
// In and Out are the input and output types of the most recently appended
// step; recovery policies attach to that step.
//
// A Chain is immutable: every builder method returns a new Chain and leaves
// the receiver untouched, so a chain can be declared once and applied
// concurrently by any number of requests. The zero value is the identity
// chain when Out is T; a zero chain whose types differ fails with
// ErrChainType when applied.
type Chain[T, In, Out any] struct {
	steps []step
}

// Create returns the identity chain for T.
func Create[T any]() Chain[T, T, T] {
	return Chain[T, T, T]{}
}

// Then appends f to c. Unlike the method of the same name, it may change the
// value type flowing through the chain.
func Then[T, In, Out, U any](c Chain[T, In, Out], f Filter[Out, U]) Chain[T, Out, U] {
	return Chain[T, Out, U]{steps: c.appendStep(step{run: eraseFilter(f)})}
}

// Then appends a filter that keeps the current value type.
func (c Chain[T, In, Out]) Then(f Filter[Out, Out]) Chain[T, Out, Out] {
	return Then(c, f)
}

// Error attaches a recovery policy to the last step. It is a no-op on a chain
// without steps. Policies of a step are consulted in attachment order.
func (c Chain[T, In, Out]) Error(p Policy[In, Out]) Chain[T, In, Out] {
	if p == nil || len(c.steps) == 0 {
		return c
	}
	steps := make([]step, len(c.steps))
	copy(steps, c.steps)
	last := len(steps) - 1
	steps[last] = steps[last].withPolicy(erasePolicy(p))
	return Chain[T, In, Out]{steps: steps}
}

// Retry re-runs the last step up to max more times when it fails.
func (c Chain[T, In, Out]) Retry(max int) Chain[T, In, Out] {
	return c.Error(func(_ context.Context, _ error, o Outcomes[In, Out]) Outcome[In, Out] {
		return o.Retry(max)
	})
}

// RetryBackoff is Retry with a wait between attempts.
func (c Chain[T, In, Out]) RetryBackoff(max int, b Backoff) Chain[T, In, Out] {
	return c.Error(func(_ context.Context, _ error, o Outcomes[In, Out]) Outcome[In, Out] {
		return o.RetryBackoff(max, b)
	})
}

// Fallback resolves a failure of the last step with v.
func (c Chain[T, In, Out]) Fallback(v Out) Chain[T, In, Out] {
	return c.Error(func(_ context.Context, _ error, o Outcomes[In, Out]) Outcome[In, Out] {
		return o.Fallback(v)
	})
}

// FallbackFilter resolves a failure of the last step by running f on the
// input the step received.
func (c Chain[T, In, Out]) FallbackFilter(f Filter[In, Out]) Chain[T, In, Out] {
	return c.Error(func(_ context.Context, _ error, o Outcomes[In, Out]) Outcome[In, Out] {
		return o.FallbackFilter(f)
	})
}

// Constraint appends a pass-through step that fails with err when pred
// rejects the current value. A nil err fails with ErrConstraint; a nil pred
// accepts every value.
func (c Chain[T, In, Out]) Constraint(pred func(Out) bool, err error) Chain[T, Out, Out] {
	if err == nil {
		err = ErrConstraint
	}
	if pred == nil {
		pred = func(Out) bool { return true }
	}
	return c.Then(func(_ context.Context, v Out) (Out, error) {
		if !pred(v) {
			var zero Out
			return zero, err
		}
		return v, nil
	})
}

// Len returns the number of steps.
func (c Chain[T, In, Out]) Len() int {
	return len(c.steps)
}

// Apply runs every step in order over input. onStep, if not nil, is called
// before each step. The first step that fails without recovering aborts the
// run; its error is returned unchanged.
func (c Chain[T, In, Out]) Apply(ctx context.Context, input T, onStep StepFunc) (Out, error) {
	var zero Out
	var v any = input
	total := len(c.steps)
	for i, s := range c.steps {
		if onStep != nil {
			onStep(i, total)
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := s.process(ctx, v)
		if err != nil {
			return zero, err
		}
		v = out
	}
	return cast[Out](v)
}

func (c Chain[T, In, Out]) appendStep(s step) []step {
	steps := make([]step, len(c.steps), len(c.steps)+1)
	copy(steps, c.steps)
	return append(steps, s)
}
