package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter defines the interface for request pacing
type Limiter interface {
	// Wait blocks until the next request may proceed, or until the
	// context is cancelled
	Wait(ctx context.Context) error
	// Reset resets the limiter state
	Reset()
}

// sleep waits for d or until the context is cancelled
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PoliteDelay enforces a minimum gap between consecutive requests.
// A zero gap disables pacing.
type PoliteDelay struct {
	gap  time.Duration
	mu   sync.Mutex
	last time.Time
}

// NewPoliteDelay creates a limiter with the given minimum request gap
func NewPoliteDelay(gap time.Duration) *PoliteDelay {
	return &PoliteDelay{gap: gap}
}

// Wait blocks until the minimum gap since the previous request has passed
func (p *PoliteDelay) Wait(ctx context.Context) error {
	if p.gap <= 0 {
		return ctx.Err()
	}

	p.mu.Lock()
	now := time.Now()
	wait := p.gap - now.Sub(p.last)
	if wait < 0 {
		wait = 0
	}
	// Reserve the slot before sleeping so concurrent callers queue up
	// instead of all waking at once
	p.last = now.Add(wait)
	p.mu.Unlock()

	return sleep(ctx, wait)
}

// Reset forgets the previous request time
func (p *PoliteDelay) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = time.Time{}
}

// SlidingWindow caps the number of requests within a moving time window
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	mu          sync.Mutex
	requests    []time.Time
}

// NewSlidingWindow creates a sliding window limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
	}
}

// Wait blocks until a request slot is free within the window
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		sw.mu.Lock()
		now := time.Now()
		sw.cleanOldRequests(now)

		if len(sw.requests) < sw.maxRequests {
			sw.requests = append(sw.requests, now)
			sw.mu.Unlock()
			return ctx.Err()
		}

		wait := sw.windowSize - now.Sub(sw.requests[0])
		sw.mu.Unlock()

		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.requests = sw.requests[:0]
}

// cleanOldRequests removes requests outside the sliding window
func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.requests) && sw.requests[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}

// Combined chains limiters; a request proceeds only when every limiter
// in order has admitted it
type Combined struct {
	limiters []Limiter
}

// NewCombined builds a limiter from the given parts, skipping nils
func NewCombined(limiters ...Limiter) *Combined {
	c := &Combined{}
	for _, l := range limiters {
		if l != nil {
			c.limiters = append(c.limiters, l)
		}
	}
	return c
}

// Wait blocks on each underlying limiter in turn
func (c *Combined) Wait(ctx context.Context) error {
	for _, l := range c.limiters {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Reset resets every underlying limiter
func (c *Combined) Reset() {
	for _, l := range c.limiters {
		l.Reset()
	}
}
