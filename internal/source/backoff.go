package source

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig defines reopen backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Second,
		Jitter:       true,
	}
}

// Backoff tracks consecutive failed opens. Not safe for concurrent use.
type Backoff struct {
	cfg     BackoffConfig
	rng     *rand.Rand
	attempt int
}

func NewBackoff(cfg BackoffConfig, rng *rand.Rand) *Backoff {
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	return &Backoff{cfg: cfg, rng: rng}
}

// Next records a failure and returns how long to wait before retrying.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	return b.delay(b.attempt)
}

// Reset forgets prior failures after a successful open.
func (b *Backoff) Reset() {
	b.attempt = 0
}

func (b *Backoff) Attempt() int {
	return b.attempt
}

// Wait sleeps for the next delay or until ctx ends.
func (b *Backoff) Wait(ctx context.Context) error {
	timer := time.NewTimer(b.Next())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// delay for attempt n (1-based). Jitter scales the delay into [0.5x, 1.5x).
func (b *Backoff) delay(n int) time.Duration {
	if b.cfg.InitialDelay <= 0 {
		return 0
	}
	d := float64(b.cfg.InitialDelay)
	if n > 1 {
		d *= math.Pow(b.cfg.Multiplier, float64(n-1))
	}
	if b.cfg.MaxDelay > 0 && d > float64(b.cfg.MaxDelay) {
		d = float64(b.cfg.MaxDelay)
	}
	if b.cfg.Jitter {
		f := 0.5
		if b.rng != nil {
			f += b.rng.Float64()
		}
		d *= f
	}
	return time.Duration(d)
}
