package jobs

import (
	"math"
	"time"
)

// Strategy computes the delay before retry attempt n (1-indexed).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant always waits the same interval.
type Constant struct {
	Interval time.Duration
}

func (c Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential waits Initial * 2^(attempt-1), capped at Max when Max is set.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// BackoffOptions is the serializable form of a Strategy.
type BackoffOptions struct {
	Type  BackoffType   `json:"type,omitempty"`
	Delay time.Duration `json:"delay,omitempty"`
}

// ExponentialBackoff is a shorthand for {type: exponential, delay: d}.
func ExponentialBackoff(d time.Duration) BackoffOptions {
	return BackoffOptions{Type: BackoffExponential, Delay: d}
}

func (b BackoffOptions) Strategy() Strategy {
	switch b.Type {
	case BackoffExponential:
		return Exponential{Initial: b.Delay, Max: time.Hour}
	default:
		return Constant{Interval: b.Delay}
	}
}
