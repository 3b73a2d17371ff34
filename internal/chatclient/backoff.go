package chatclient

import (
	"math/rand/v2"
	"time"
)

// Backoff returns how long to wait before reconnect attempt n (0-based).
type Backoff interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff doubles Base per attempt up to Max. With Jitter the
// delay is drawn uniformly from [0, d] so reconnecting clients spread out.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
}

func DefaultBackoff() ExponentialBackoff {
	return ExponentialBackoff{Base: time.Second, Max: 30 * time.Second, Jitter: true}
}

func (b ExponentialBackoff) Next(attempt int) time.Duration {
	base, ceiling := b.Base, b.Max
	if base <= 0 {
		base = time.Second
	}
	if ceiling < base {
		ceiling = base
	}

	d := base
	for i := 0; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		d = ceiling
	}

	if b.Jitter {
		return time.Duration(rand.Int64N(int64(d) + 1))
	}
	return d
}

// FixedBackoff waits the same delay before every attempt.
type FixedBackoff struct {
	Delay time.Duration
}

const defaultFixedDelay = 3 * time.Second

func (b FixedBackoff) Next(int) time.Duration {
	if b.Delay <= 0 {
		return defaultFixedDelay
	}
	return b.Delay
}
