// Package ratelimit bounds outbound calls to the classifier endpoint.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Limiter
// =============================================================================

// Limiter blocks until one more call fits in the rolling window.
// Acquire returns how long the caller was held back.
type Limiter interface {
	Acquire(ctx context.Context) time.Duration
}

// DefaultWindow is the rolling window the request budget applies to.
const DefaultWindow = time.Second

// DefaultRequestsPerWindow matches the classifier quota.
const DefaultRequestsPerWindow = 3

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// =============================================================================
// SlidingWindow - in-process limiter
// =============================================================================

// SlidingWindow keeps the timestamps of the calls issued inside the window.
type SlidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time

	now   func() time.Time
	sleep SleepFunc
}

// Option customizes a SlidingWindow.
type Option func(*SlidingWindow)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindow) { l.now = now }
}

// WithSleep replaces the suspend function.
func WithSleep(sleep SleepFunc) Option {
	return func(l *SlidingWindow) { l.sleep = sleep }
}

// WithWindow changes the window size.
func WithWindow(window time.Duration) Option {
	return func(l *SlidingWindow) {
		if window > 0 {
			l.window = window
		}
	}
}

// NewSlidingWindow creates a limiter admitting max calls per window.
func NewSlidingWindow(max int, opts ...Option) *SlidingWindow {
	if max <= 0 {
		max = DefaultRequestsPerWindow
	}
	l := &SlidingWindow{
		max:    max,
		window: DefaultWindow,
		stamps: make([]time.Time, 0, max),
		now:    time.Now,
		sleep:  contextSleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire records a call, first waiting for the oldest stamp to age out when the window is full.
// A cancelled context ends the wait early; the call is then admitted without being recorded.
func (l *SlidingWindow) Acquire(ctx context.Context) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	var waited time.Duration
	for {
		now := l.now()
		l.evict(now)

		if len(l.stamps) < l.max {
			l.stamps = append(l.stamps, now)
			return waited
		}

		wait := l.window - now.Sub(l.stamps[0])
		if wait <= 0 {
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return waited
		}
		waited += wait
	}
}

func (l *SlidingWindow) evict(now time.Time) {
	i := 0
	for i < len(l.stamps) && now.Sub(l.stamps[i]) >= l.window {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

// InFlight returns the number of calls still inside the window.
func (l *SlidingWindow) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.stamps)
}
