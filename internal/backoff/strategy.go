// Package backoff computes wait times between retry attempts of a filter step.
package backoff

import (
	"math/rand"
	"time"
)

// Params describes the delay curve of one retry policy.
type Params struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// Strategy turns a zero-based attempt number into a wait duration.
type Strategy interface {
	Delay(attempt int, p Params) time.Duration
}

// Exponential grows the delay by Multiplier per attempt and adds uniform jitter.
type Exponential struct{}

// Delay implements Strategy.
func (Exponential) Delay(attempt int, p Params) time.Duration {
	p = p.normalize()
	if attempt < 0 {
		attempt = 0
	}
	// 2^30 of anything is already past any sane cap
	if attempt > 30 {
		attempt = 30
	}

	d := time.Duration(float64(p.Initial) * pow(p.Multiplier, attempt))
	if d < 0 || d > p.Max {
		d = p.Max
	}

	if p.Jitter > 0 {
		extra := time.Duration(float64(d) * p.Jitter * rand.Float64())
		if d+extra > p.Max {
			return p.Max
		}
		d += extra
	}
	return d
}

// Decorrelated draws the delay uniformly from [Initial, min(Max, Initial*3^attempt)].
type Decorrelated struct{}

// Delay implements Strategy.
func (Decorrelated) Delay(attempt int, p Params) time.Duration {
	p = p.normalize()
	if attempt <= 0 {
		return p.Initial
	}
	if attempt > 10 {
		attempt = 10
	}

	base := float64(p.Initial)
	upper := base * pow(3.0, attempt)
	if upper > float64(p.Max) || upper < 0 {
		upper = float64(p.Max)
	}
	if upper < base {
		upper = base
	}

	d := time.Duration(base + rand.Float64()*(upper-base))
	if d < 0 || d > p.Max {
		d = p.Max
	}
	return d
}

// ByName resolves a strategy from its configuration name, defaulting to Exponential.
func ByName(name string) Strategy {
	switch name {
	case "decorrelated":
		return Decorrelated{}
	default:
		return Exponential{}
	}
}

func (p Params) normalize() Params {
	if p.Initial < 0 {
		p.Initial = 0
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	p.Jitter = clampJitter(p.Jitter)
	return p
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
