package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces calls evenly: each Wait reserves the next allowed slot,
// so perMinute calls never cluster at the top of the minute.
type RateLimiter struct {
	mu   sync.Mutex
	next time.Time     // earliest time the next call may proceed
	step time.Duration // spacing between consecutive calls
}

// NewRateLimiter builds a limiter that admits perMinute calls per minute.
// The first call proceeds immediately.
func NewRateLimiter(perMinute int) *RateLimiter {
	step := time.Duration(0)
	if perMinute > 0 {
		step = time.Minute / time.Duration(perMinute)
	}
	return &RateLimiter{step: step}
}

// Wait blocks until this call's reserved slot arrives or the context is
// cancelled. A cancelled wait gives the slot up.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	now := time.Now()
	if rl.next.Before(now) {
		rl.next = now
	}
	wait := rl.next.Sub(now)
	rl.next = rl.next.Add(rl.step)
	rl.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
