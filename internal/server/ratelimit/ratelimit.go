// Package ratelimit provides per-client request limiting with an in-memory
// token bucket backend and a Redis fixed-window backend shared across instances.
package ratelimit

import (
	"context"
	"time"
)

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Counter consumes one request from the allowance identified by key.
type Counter interface {
	Take(ctx context.Context, key string, rule EndpointConfig) (allowed bool, remaining int, reset time.Time, err error)
	Stop()
}

// Limiter applies Config to requests, delegating the counting to a Counter.
type Limiter struct {
	config  *Config
	counter Counter
	now     func() time.Time
	// OnError is called when the counter fails; the request is let through.
	OnError func(err error)
}

// NewLimiter creates a rate limiter that counts in process memory.
func NewLimiter(config *Config) *Limiter {
	config = withDefaults(config)
	return &Limiter{
		config:  config,
		counter: newMemoryCounter(config.CleanupInterval),
		now:     time.Now,
	}
}

// NewLimiterWithCounter creates a rate limiter backed by counter.
func NewLimiterWithCounter(config *Config, counter Counter) *Limiter {
	return &Limiter{
		config:  withDefaults(config),
		counter: counter,
		now:     time.Now,
	}
}

func withDefaults(config *Config) *Config {
	if config == nil {
		return &Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
			Whitelist:       make(map[string]bool),
			Blacklist:       make(map[string]bool),
		}
	}
	return config
}

// Allow checks if a request from the given client is allowed for the specified endpoint.
// Returns true if allowed, false if rate limited, along with rate limit information.
func (l *Limiter) Allow(ctx context.Context, clientID string, endpoint string, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{Allowed: false}
	}

	rule := MatchEndpoint(endpoint, method, l.config.EndpointConfigs)
	if rule == nil {
		rule = &EndpointConfig{
			Path:   "*",
			Method: method,
			Limit:  l.config.DefaultLimit,
			Window: l.config.DefaultWindow,
			Burst:  l.config.DefaultLimit,
		}
	}

	// Unlimited endpoint (health check, metrics)
	if rule.Limit <= 0 {
		return true, Info{Allowed: true}
	}

	// Buckets are per matched rule, so /v1/postings/{id} shares one allowance
	key := clientID + ":" + rule.Method + ":" + rule.Path
	allowed, remaining, reset, err := l.counter.Take(ctx, key, *rule)
	if err != nil {
		if l.OnError != nil {
			l.OnError(err)
		}
		return true, Info{Allowed: true, Limit: rule.Limit}
	}

	var retryAfter time.Duration
	if !allowed {
		retryAfter = max(reset.Sub(l.now()), 0)
	}

	return allowed, Info{
		Allowed:    allowed,
		Limit:      rule.Limit,
		Remaining:  remaining,
		ResetTime:  reset,
		RetryAfter: retryAfter,
	}
}

// Stop releases the counter's background resources.
func (l *Limiter) Stop() {
	if l.counter != nil {
		l.counter.Stop()
	}
}
