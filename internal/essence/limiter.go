package essence

import (
	"context"
	"time"
)

// Limiter spaces calls at least one interval apart. It is not safe for
// concurrent use; enrichment runs sequentially.
type Limiter struct {
	interval time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	last     time.Time
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) { l.now = now }
}

// WithSleep replaces the context-aware sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) LimiterOption {
	return func(l *Limiter) { l.sleep = sleep }
}

// NewLimiter allows perMinute calls per minute. perMinute must be positive.
func NewLimiter(perMinute float64, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		interval: time.Duration(float64(time.Minute) / perMinute),
		now:      time.Now,
		sleep:    sleepContext,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Interval returns the minimum spacing between calls.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the next call is allowed, then records it as made.
func (l *Limiter) Wait(ctx context.Context) error {
	if !l.last.IsZero() {
		elapsed := l.now().Sub(l.last)
		if elapsed < l.interval {
			err := l.sleep(ctx, l.interval-elapsed)
			if err != nil {
				return err
			}
		}
	}

	l.last = l.now()

	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
