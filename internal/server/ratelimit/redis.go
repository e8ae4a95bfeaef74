package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// KeyPrefix namespaces the Redis counters.
const KeyPrefix = "ratelimit:"

// fixedWindow increments the counter, starts the window on the first hit and
// returns the count with the milliseconds left in the window.
var fixedWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RedisCounter counts requests in fixed windows shared by every instance.
type RedisCounter struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisCounter creates a counter backed by client.
func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client, now: time.Now}
}

// Take implements Counter.
func (c *RedisCounter) Take(ctx context.Context, key string, rule EndpointConfig) (bool, int, time.Time, error) {
	window := rule.Window.Milliseconds()
	if window <= 0 {
		return true, rule.Limit, c.now(), nil
	}

	res, err := fixedWindow.Run(ctx, c.client, []string{KeyPrefix + key}, window).Result()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	count, ttl, err := parseWindow(res)
	if err != nil {
		return false, 0, time.Time{}, err
	}

	reset := c.now().Add(time.Duration(ttl) * time.Millisecond)
	remaining := max(rule.Limit-int(count), 0)
	return count <= int64(rule.Limit), remaining, reset, nil
}

func parseWindow(res any) (count, ttl int64, err error) {
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result %v", res)
	}
	count, ok1 := values[0].(int64)
	ttl, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result %v", res)
	}
	return count, ttl, nil
}

// Stop implements Counter. The client is owned by the caller.
func (c *RedisCounter) Stop() {}
