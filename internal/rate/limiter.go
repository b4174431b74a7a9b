package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	Window      time.Duration
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 15 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// incrWindowLua increments the counter and arms the window expiry in one
// round trip. Setting the TTL only on the first hit gives fixed-window
// semantics; doing it inside Lua removes the INCR/EXPIRE gap.
var incrWindowLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// Limiter counts attempts per key within a fixed window.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if prefix == "" {
		prefix = "arl"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg.withDefaults(),
	}
}

func (l *Limiter) key(k string) string {
	return l.prefix + ":" + k
}

// CheckAndIncrement counts one attempt for key and reports whether the
// post-increment count exceeds the window budget. The increment and the
// limit check are a single operation; there is no read-then-write race.
func (l *Limiter) CheckAndIncrement(ctx context.Context, key string) error {
	count, err := incrWindowLua.Run(ctx, l.redis,
		[]string{l.key(key)},
		l.config.Window.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count > int64(l.config.MaxAttempts) {
		return ErrLimited
	}
	return nil
}

// Attempts returns the current counter for key. Missing keys read as zero.
func (l *Limiter) Attempts(ctx context.Context, key string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
