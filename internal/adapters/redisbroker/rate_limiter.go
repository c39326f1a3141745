package redisbroker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/target/sealbox/internal/core"
)

// Rate limit defaults applied when the options leave them zero.
const (
	DefaultRateLimit  = 100
	DefaultRateWindow = 15 * time.Minute
)

// slidingWindowScript trims the window, counts it, and conditionally records
// the new request in a single atomic round trip. Scores are unix
// milliseconds; members are unique so simultaneous requests never collapse
// into one entry. Reply is {allowed, remaining, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  return {1, limit - count - 1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local retry = 0
if oldest[2] then
  retry = tonumber(oldest[2]) + window - now
  if retry < 0 then retry = 0 end
end
return {0, 0, retry}
`)

// RateLimiter enforces a per-client sliding window over a Redis sorted set.
// One script call per check keeps the decision atomic across gateway replicas.
type RateLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
}

// RateLimiterOptions configures a RateLimiter.
type RateLimiterOptions struct {
	Client redis.UniversalClient
	Limit  int
	Window time.Duration
}

// NewRateLimiter creates a sliding-window rate limiter, applying defaults
// for a zero limit or window.
func NewRateLimiter(opts RateLimiterOptions) *RateLimiter {
	if opts.Limit <= 0 {
		opts.Limit = DefaultRateLimit
	}
	if opts.Window <= 0 {
		opts.Window = DefaultRateWindow
	}

	return &RateLimiter{
		client: opts.Client,
		limit:  opts.Limit,
		window: opts.Window,
	}
}

// Allow records one request for clientID if the window has room and reports
// the verdict. When denied, RetryAfter estimates when the oldest entry rolls
// out of the window.
func (l *RateLimiter) Allow(ctx context.Context, clientID string) (core.Verdict, error) {
	if clientID == "" {
		return core.Verdict{}, errors.New("client ID cannot be empty")
	}

	res, err := slidingWindowScript.Run(
		ctx,
		l.client,
		[]string{rateKeyPrefix + clientID},
		time.Now().UnixMilli(),
		l.window.Milliseconds(),
		l.limit,
		uuid.NewString(),
	).Result()
	if err != nil {
		return core.Verdict{}, fmt.Errorf("rate limit script: %w", err)
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) != 3 {
		return core.Verdict{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	allowed, err := replyInt(reply[0])
	if err != nil {
		return core.Verdict{}, err
	}
	remaining, err := replyInt(reply[1])
	if err != nil {
		return core.Verdict{}, err
	}
	retryMs, err := replyInt(reply[2])
	if err != nil {
		return core.Verdict{}, err
	}

	return core.Verdict{
		Allowed:    allowed == 1,
		Remaining:  remaining,
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}, nil
}

func replyInt(v interface{}) (int64, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("rate limit script: non-integer reply element %T", v)
	}
	return n, nil
}
