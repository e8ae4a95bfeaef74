package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket represents a token bucket rate limiter.
// It allows a certain number of requests (tokens) per time window,
// with tokens refilling at a steady rate.
type TokenBucket struct {
	capacity   int        // Maximum tokens (burst capacity)
	refillRate float64    // Tokens per second
	tokens     float64    // Current tokens available
	lastRefill time.Time  // Last time tokens were refilled
	mu         sync.Mutex // Mutex for thread safety
}

// newTokenBucket creates a full token bucket with the specified capacity and refill rate.
func newTokenBucket(capacity int, refillRate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     float64(capacity),
		lastRefill: now,
	}
}

func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed > 0 {
		tb.tokens = min(float64(tb.capacity), tb.tokens+elapsed.Seconds()*tb.refillRate)
		tb.lastRefill = now
	}
}

// take consumes a token if one is available and reports the remaining
// tokens and a reset time: when the next token arrives if the bucket is
// empty, otherwise when it will be full again.
func (tb *TokenBucket) take(now time.Time) (bool, int, time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	allowed := tb.tokens >= 1.0
	if allowed {
		tb.tokens -= 1.0
	}

	missing := float64(tb.capacity) - tb.tokens
	if tb.tokens < 1.0 {
		missing = 1.0 - tb.tokens
	}
	reset := now
	if missing > 0 {
		reset = now.Add(time.Duration(missing / tb.refillRate * float64(time.Second)))
	}
	return allowed, int(tb.tokens), reset
}

// memoryCounter keeps one token bucket per key in process memory.
type memoryCounter struct {
	mu          sync.Mutex
	buckets     map[string]*TokenBucket
	lastAccess  map[string]time.Time
	now         func() time.Time
	idle        time.Duration
	ticker      *time.Ticker
	cleanupStop chan struct{}
	stopOnce    sync.Once
}

func newMemoryCounter(cleanupInterval time.Duration) *memoryCounter {
	c := &memoryCounter{
		buckets:    make(map[string]*TokenBucket),
		lastAccess: make(map[string]time.Time),
		now:        time.Now,
		idle:       time.Hour,
	}
	if cleanupInterval > 0 {
		c.ticker = time.NewTicker(cleanupInterval)
		c.cleanupStop = make(chan struct{})
		go c.cleanup()
	}
	return c
}

func (c *memoryCounter) Take(_ context.Context, key string, rule EndpointConfig) (bool, int, time.Time, error) {
	now := c.now()

	c.mu.Lock()
	bucket, ok := c.buckets[key]
	if !ok {
		capacity := rule.Burst
		if capacity <= 0 {
			capacity = rule.Limit
		}
		// Refill rate = limit / window duration in seconds
		bucket = newTokenBucket(capacity, float64(rule.Limit)/rule.Window.Seconds(), now)
		c.buckets[key] = bucket
	}
	c.lastAccess[key] = now
	c.mu.Unlock()

	allowed, remaining, reset := bucket.take(now)
	return allowed, remaining, reset, nil
}

func (c *memoryCounter) cleanup() {
	for {
		select {
		case <-c.ticker.C:
			c.evictIdle()
		case <-c.cleanupStop:
			return
		}
	}
}

// evictIdle removes buckets that have not been used for c.idle.
func (c *memoryCounter) evictIdle() {
	cutoff := c.now().Add(-c.idle)

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, last := range c.lastAccess {
		if last.Before(cutoff) {
			delete(c.buckets, key)
			delete(c.lastAccess, key)
		}
	}
}

func (c *memoryCounter) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}

// Stop stops the cleanup goroutine.
func (c *memoryCounter) Stop() {
	c.stopOnce.Do(func() {
		if c.ticker != nil {
			c.ticker.Stop()
		}
		if c.cleanupStop != nil {
			close(c.cleanupStop)
		}
	})
}
