// Package ratelimit enforces per-terminal request limits on the liveness
// and payment endpoints, so a misbehaving or compromised terminal can't
// hammer the identity matcher or payment path.
//
// Built around a fixed-window INCR+PEXPIRE Lua script; the scope set is
// narrowed to the two endpoints that matter here and IP hashing is
// dropped since terminals authenticate by token, not address.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRedisUnavailable = errors.New("redis unavailable")

type Scope string

const (
	ScopeLivenessFrame Scope = "liveness_frame"
	ScopePay           Scope = "pay"
)

type Decision struct {
	Scope      Scope
	Limit      int
	Remaining  int
	RetryAfter int
	Allowed    bool
}

type LimitConfig struct {
	Rate   int
	Window time.Duration
}

type Limiter struct {
	client *redis.Client
}

func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

var windowScript = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if tonumber(current) == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return current
`)

// Check increments the window counter for (scope, key) and reports whether
// the request is within config.Rate for the current window.
func (l *Limiter) Check(ctx context.Context, scope Scope, key string, config LimitConfig) (*Decision, error) {
	redisKey := "canteen:rl:" + string(scope) + ":" + key

	count, err := windowScript.Run(ctx, l.client, []string{redisKey}, config.Window.Milliseconds()).Int()
	if err != nil {
		return nil, ErrRedisUnavailable
	}

	remaining := config.Rate - count
	if remaining < 0 {
		remaining = 0
	}

	return &Decision{
		Scope:      scope,
		Limit:      config.Rate,
		Remaining:  remaining,
		RetryAfter: int(config.Window.Seconds()),
		Allowed:    count <= config.Rate,
	}, nil
}
