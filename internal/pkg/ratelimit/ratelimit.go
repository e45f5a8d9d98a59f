// Package ratelimit 基于 Redis 的令牌桶限流，多实例共享同一个桶。
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix 限流桶的默认键前缀。
const DefaultPrefix = "todoapp:ratelimit:"

const tokenBucketLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

if rate <= 0 or burst <= 0 then
  return {1, 0, burst}
end

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = burst
end
if ts == nil then
  ts = now
end

local delta = math.max(0, now - ts)
local refill = (delta * rate) / 1000.0
tokens = math.min(burst, tokens + refill)

local allowed = tokens >= requested
local wait_ms = 0
if allowed then
  tokens = tokens - requested
else
  wait_ms = math.ceil((requested - tokens) * 1000.0 / rate)
end

redis.call("HMSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, math.ceil((burst / rate) * 1000.0 * 2))

return {allowed and 1 or 0, wait_ms, tostring(tokens)}
`

// Limiter 按主体（如客户端 IP）分桶的限流器。
type Limiter struct {
	rdb    *redis.Client
	prefix string
	rate   float64
	burst  float64
	logger *slog.Logger
	script *redis.Script
	now    func() time.Time
}

// NewRedisLimiter 创建限流器。rate 或 burst 非正数时不限流。
func NewRedisLimiter(rdb *redis.Client, logger *slog.Logger, prefix string, rate, burst float64) *Limiter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Limiter{
		rdb:    rdb,
		prefix: prefix,
		rate:   rate,
		burst:  burst,
		logger: logger,
		script: redis.NewScript(tokenBucketLua),
		now:    time.Now,
	}
}

// Allow 尝试为 subject 取一个令牌，不阻塞。
// 拒绝时返回下一个令牌可用前需要等待的时间。
func (l *Limiter) Allow(ctx context.Context, subject string) (bool, time.Duration, error) {
	if l == nil || l.rate <= 0 || l.burst <= 0 {
		return true, 0, nil
	}

	res, err := l.script.Run(ctx, l.rdb, []string{l.key(subject)}, l.rate, l.burst, l.now().UnixMilli(), 1).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit eval: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return false, 0, fmt.Errorf("ratelimit invalid result")
	}

	allowed := toInt64(values[0]) == 1
	wait := time.Duration(toInt64(values[1])) * time.Millisecond
	if !allowed && l.logger != nil {
		l.logger.Debug("rate limited",
			slog.String("subject", subject),
			slog.Duration("retry_after", wait),
		)
	}
	return allowed, wait, nil
}

func (l *Limiter) key(subject string) string {
	return l.prefix + subject
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if t == "" {
			return 0
		}
		if parsed, err := strconv.ParseInt(t, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
