package ratelimit

import (
	"context"
	"time"
)

// Limiter enforces a minimum pause between the end of one call and the start of the next.
// Calls going through the same Limiter are serialized.
type Limiter struct {
	delay time.Duration
	lock  chan struct{}
	last  time.Time
	now   func() time.Time
}

func New(delay time.Duration) *Limiter {
	return &Limiter{
		delay: delay,
		lock:  make(chan struct{}, 1),
		now:   time.Now,
	}
}

func (l *Limiter) Delay() time.Duration {
	return l.delay
}

// Do waits for the limiter, runs fn and records the time fn returned.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	select {
	case l.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.lock }()

	if !l.last.IsZero() {
		if wait := l.delay - l.now().Sub(l.last); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	err := fn()
	l.last = l.now()

	return err
}
