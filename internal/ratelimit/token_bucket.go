package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript refills a per-subject bucket and claims one token in a single
// redis round trip. Bucket state is a hash of the remaining tokens and the
// last refill time, so the limit holds across API replicas.
var allowScript = redis.NewScript(`
local bucket = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", bucket, "remaining", "refilled_at")
local remaining = tonumber(state[1]) or capacity
local refilled_at = tonumber(state[2]) or now

if now > refilled_at then
  remaining = math.min(capacity, remaining + (now - refilled_at) * refill_rate)
end

local granted = 0
local wait = 0
if remaining >= 1 then
  remaining = remaining - 1
  granted = 1
else
  wait = math.ceil((1 - remaining) / refill_rate)
end

redis.call("HMSET", bucket, "remaining", remaining, "refilled_at", now)
redis.call("PEXPIRE", bucket, ttl)

return {granted, math.floor(remaining), wait}
`)

// Decision reports whether a request may proceed and, when it may not, how
// long the caller should wait before trying again.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// RedisTokenBucket refills Capacity tokens evenly over each window.
type RedisTokenBucket struct {
	client     redis.UniversalClient
	capacity   int64
	refillRate float64
	stateTTL   time.Duration
	keyPrefix  string
	now        func() time.Time
}

func NewRedisTokenBucket(client redis.UniversalClient, capacity int, window time.Duration, keyPrefix string) (*RedisTokenBucket, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "vidflow:ratelimit"
	}

	windowMS := max(window.Milliseconds(), 1)

	return &RedisTokenBucket{
		client:     client,
		capacity:   int64(capacity),
		refillRate: float64(capacity) / float64(windowMS),
		// Idle buckets expire once a full refill has certainly happened.
		stateTTL:  2 * window,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}, nil
}

// Allow claims one token for the subject. A blank subject shares the
// anonymous bucket.
func (l *RedisTokenBucket) Allow(ctx context.Context, subject string) (Decision, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}

	raw, err := allowScript.Run(
		ctx,
		l.client,
		[]string{l.keyPrefix + ":" + subject},
		l.capacity,
		l.refillRate,
		l.now().UTC().UnixMilli(),
		l.stateTTL.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("run allow script: %w", err)
	}

	reply, err := replyInts(raw, 3)
	if err != nil {
		return Decision{}, fmt.Errorf("allow script reply: %w", err)
	}

	return Decision{
		Allowed:    reply[0] == 1,
		Remaining:  reply[1],
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}

// replyInts coerces a redis script reply into exactly n integers.
func replyInts(raw any, n int) ([]int64, error) {
	values, ok := raw.([]any)
	if !ok || len(values) != n {
		return nil, fmt.Errorf("expected %d values, got %T", n, raw)
	}

	out := make([]int64, n)
	for i, value := range values {
		switch v := value.(type) {
		case int64:
			out[i] = v
		case int:
			out[i] = int64(v)
		case float64:
			out[i] = int64(v)
		case string:
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("value %d: %w", i, err)
			}
			out[i] = parsed
		default:
			return nil, fmt.Errorf("value %d has unsupported type %T", i, value)
		}
	}
	return out, nil
}
