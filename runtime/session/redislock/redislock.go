// Package redislock implements session.Lock using Redis SETNX/EXPIRE,
// giving best-effort cross-process mutual exclusion on a session_key
// (spec.md §5). This replaces the teacher's Pulse-backed rmap cluster
// coordination (goa-ai's AdaptiveRateLimiter, features/model/middleware/
// ratelimit.go) with a direct Redis client, since Pulse is a
// registry-service-specific transport not otherwise used in this module
// (see DESIGN.md).
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/webpilot-ai/webpilot/runtime/session"
)

const keyPrefix = "webpilot:session-lock:"

// Lock implements session.Lock on top of a *redis.Client.
type Lock struct {
	rdb   *redis.Client
	owner string
}

// New returns a Lock backed by rdb. Each Lock instance uses a random
// owner token so Release only clears locks it actually holds, even if a
// previous holder's TTL already expired and someone else re-acquired it.
func New(rdb *redis.Client) *Lock {
	return &Lock{rdb: rdb, owner: uuid.NewString()}
}

// Acquire implements session.Lock.
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, keyPrefix+key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redislock: acquire %q: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	return true, nil
}

// Release implements session.Lock. It uses a compare-and-delete Lua
// script so a lock this process no longer owns (TTL expired, reacquired
// by another process) is left untouched.
func (l *Lock) Release(ctx context.Context, key string) error {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`
	if err := l.rdb.Eval(ctx, script, []string{keyPrefix + key}, l.owner).Err(); err != nil {
		return fmt.Errorf("redislock: release %q: %w", key, err)
	}
	return nil
}

var _ session.Lock = (*Lock)(nil)
