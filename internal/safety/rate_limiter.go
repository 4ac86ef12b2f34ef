package safety

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements token bucket rate limiting
type RateLimiter struct {
	capacity   int        // Maximum number of tokens
	tokens     int        // Current number of tokens
	refillRate int        // Tokens added per second
	lastRefill time.Time  // Last time tokens were added
	mutex      sync.Mutex // Protects token count
	name       string
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(name string, capacity, refillRate int) *RateLimiter {
	return &RateLimiter{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
		name:       name,
	}
}

// Allow checks if an operation is allowed under the rate limit
func (rl *RateLimiter) Allow() bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.refillTokens()
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.Allow() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.waitTime()):
		}
	}
}

// refillTokens adds tokens based on elapsed time
func (rl *RateLimiter) refillTokens() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	if elapsed < time.Second {
		return
	}

	tokensToAdd := int(elapsed.Seconds()) * rl.refillRate
	if tokensToAdd > 0 {
		rl.tokens += tokensToAdd
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
		rl.lastRefill = now
	}
}

func (rl *RateLimiter) waitTime() time.Duration {
	if rl.refillRate <= 0 {
		return time.Second
	}
	// Add small buffer to account for timing precision
	return time.Second/time.Duration(rl.refillRate) + 50*time.Millisecond
}

// SlidingWindow counts events per key over a trailing window.
// It is not safe for concurrent use; callers hold their own lock.
type SlidingWindow struct {
	window time.Duration
	events map[string][]time.Time
}

// NewSlidingWindow creates a sliding window counter
func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		window: window,
		events: make(map[string][]time.Time),
	}
}

// Count returns the number of events for key inside the window ending at now
func (sw *SlidingWindow) Count(key string, now time.Time) int {
	sw.prune(key, now)
	return len(sw.events[key])
}

// Allow reports whether another event fits under limit. limit <= 0 means unlimited.
func (sw *SlidingWindow) Allow(key string, limit int, now time.Time) bool {
	if limit <= 0 {
		return true
	}
	return sw.Count(key, now) < limit
}

// Record adds an event for key at now
func (sw *SlidingWindow) Record(key string, now time.Time) {
	sw.prune(key, now)
	sw.events[key] = append(sw.events[key], now)
}

func (sw *SlidingWindow) prune(key string, now time.Time) {
	events := sw.events[key]
	cutoff := now.Add(-sw.window)
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	if i == len(events) {
		delete(sw.events, key)
		return
	}
	if i > 0 {
		sw.events[key] = append(events[:0], events[i:]...)
	}
}
