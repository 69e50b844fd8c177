// Package middleware provides reusable runtime/model.Client middlewares,
// chiefly an adaptive rate limiter that paces LLM calls across planner
// invocations and, optionally, across processes sharing a Redis instance
// (SPEC_FULL.md "Ambient stack: LLM call pacing"; grounded on
// features/model/middleware/ratelimit.go in the teacher).
package middleware

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/webpilot-ai/webpilot/runtime/model"
)

type (
	// AdaptiveRateLimiter applies an AIMD-style adaptive token bucket on
	// top of a model.Client. It estimates the token cost of each request,
	// blocks callers until capacity is available, and shrinks or grows its
	// effective tokens-per-minute budget in response to rate-limit signals
	// from the provider.
	AdaptiveRateLimiter struct {
		mu sync.Mutex

		limiter *rate.Limiter

		currentTPM float64
		minTPM     float64
		maxTPM     float64

		recoveryRate float64

		onBackoff func(newTPM float64)
		onProbe   func(newTPM float64)
	}

	limitedClient struct {
		next    model.Client
		limiter *AdaptiveRateLimiter
	}

	// clusterBudget is the subset of a shared budget store used by the
	// cluster-aware limiter, backed in production by Redis (replacing the
	// teacher's Pulse rmap; see DESIGN.md).
	clusterBudget interface {
		get(ctx context.Context) (float64, bool)
		setIfNotExists(ctx context.Context, value float64) (bool, error)
		compareAndSwap(ctx context.Context, old, new float64) (bool, error)
	}

	redisClusterBudget struct {
		rdb *redis.Client
		key string
	}
)

const budgetKeyPrefix = "webpilot:ratelimit-tpm:"

// NewAdaptiveRateLimiter constructs a process-local AdaptiveRateLimiter with
// a tokens-per-minute budget.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	return newAdaptiveRateLimiter(initialTPM, maxTPM)
}

// NewClusterAdaptiveRateLimiter constructs an AdaptiveRateLimiter that
// coordinates its tokens-per-minute budget with other processes sharing
// rdb, keyed by key. When rdb is nil it behaves exactly like
// NewAdaptiveRateLimiter.
func NewClusterAdaptiveRateLimiter(ctx context.Context, rdb *redis.Client, key string, initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	var cb clusterBudget
	if rdb != nil && key != "" {
		cb = &redisClusterBudget{rdb: rdb, key: budgetKeyPrefix + key}
	}
	return newClusterAdaptiveRateLimiter(ctx, cb, initialTPM, maxTPM)
}

func newAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	lim := rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM))

	return &AdaptiveRateLimiter{
		limiter:      lim,
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Middleware returns a model.Client middleware that enforces the adaptive
// tokens-per-minute limit for Invoke and InvokeWithImage calls.
func (l *AdaptiveRateLimiter) Middleware() func(model.Client) model.Client {
	return func(next model.Client) model.Client {
		if next == nil {
			return nil
		}
		return &limitedClient{next: next, limiter: l}
	}
}

// Invoke enforces the limiter before delegating to the underlying client.
func (c *limitedClient) Invoke(ctx context.Context, req model.Request) (model.Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return model.Response{}, err
	}
	resp, err := c.next.Invoke(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

// InvokeWithImage enforces the limiter before delegating to the underlying
// client.
func (c *limitedClient) InvokeWithImage(ctx context.Context, req model.Request) (model.Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return model.Response{}, err
	}
	resp, err := c.next.InvokeWithImage(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (l *AdaptiveRateLimiter) wait(ctx context.Context, req model.Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, model.ErrRateLimited) {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
	cb := l.onBackoff
	l.mu.Unlock()

	if cb != nil {
		cb(newTPM)
	}
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
	cb := l.onProbe
	l.mu.Unlock()

	if cb != nil {
		cb(newTPM)
	}
}

// estimateTokens computes a cheap heuristic for the number of tokens in the
// request: prompt and system text length converted at a fixed ratio, plus a
// fixed buffer for provider framing.
func estimateTokens(req model.Request) int {
	charCount := len(req.System) + len(req.Prompt)
	if charCount <= 0 {
		return 500
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}

func (l *AdaptiveRateLimiter) replaceTPM(tpm float64) {
	l.mu.Lock()
	if tpm < l.minTPM {
		tpm = l.minTPM
	}
	if tpm > l.maxTPM {
		tpm = l.maxTPM
	}
	if tpm == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
	l.mu.Unlock()
}

func (l *AdaptiveRateLimiter) setClusterCallbacks(onBackoff, onProbe func(newTPM float64)) {
	l.mu.Lock()
	l.onBackoff = onBackoff
	l.onProbe = onProbe
	l.mu.Unlock()
}

func (b *redisClusterBudget) get(ctx context.Context) (float64, bool) {
	s, err := b.rdb.Get(ctx, b.key).Result()
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (b *redisClusterBudget) setIfNotExists(ctx context.Context, value float64) (bool, error) {
	return b.rdb.SetNX(ctx, b.key, strconv.Itoa(int(value)), 0).Result()
}

// compareAndSwap sets the key to new only if its current value equals old,
// using a Lua script for atomicity (replacing the teacher's rmap
// TestAndSet).
func (b *redisClusterBudget) compareAndSwap(ctx context.Context, old, new float64) (bool, error) {
	const script = `
local cur = redis.call("GET", KEYS[1])
if cur == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[2])
  return 1
end
return 0`
	res, err := b.rdb.Eval(ctx, script, []string{b.key}, strconv.Itoa(int(old)), strconv.Itoa(int(new))).Result()
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func newClusterAdaptiveRateLimiter(ctx context.Context, cb clusterBudget, initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if cb == nil {
		return newAdaptiveRateLimiter(initialTPM, maxTPM)
	}

	if _, ok := cb.get(ctx); !ok {
		if _, err := cb.setIfNotExists(ctx, initialTPM); err != nil {
			return newAdaptiveRateLimiter(initialTPM, maxTPM)
		}
	}

	sharedTPM := initialTPM
	if v, ok := cb.get(ctx); ok && v > 0 {
		sharedTPM = v
	}

	l := newAdaptiveRateLimiter(sharedTPM, maxTPM)

	min, max, step := l.minTPM, l.maxTPM, l.recoveryRate
	l.setClusterCallbacks(
		func(_ float64) { go globalBackoff(context.Background(), cb, min) },
		func(_ float64) { go globalProbe(context.Background(), cb, step, max) },
	)

	go pollCluster(ctx, cb, l)

	return l
}

// pollCluster periodically reconciles the local limiter against the shared
// budget, standing in for the teacher's rmap change-subscription channel
// (Redis has no equivalent push API without pub/sub infrastructure this
// module does not otherwise need).
func pollCluster(ctx context.Context, cb clusterBudget, l *AdaptiveRateLimiter) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if v, ok := cb.get(ctx); ok && v > 0 {
				l.replaceTPM(v)
			}
		}
	}
}

func globalBackoff(ctx context.Context, cb clusterBudget, floor float64) {
	const maxAttempts = 3
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for i := 0; i < maxAttempts; i++ {
		cur, ok := cb.get(ctx)
		if !ok || cur <= 0 {
			return
		}
		next := cur * 0.5
		if next < floor {
			next = floor
		}
		ok, err := cb.compareAndSwap(ctx, cur, next)
		if err != nil || ok {
			return
		}
	}
}

func globalProbe(ctx context.Context, cb clusterBudget, step, ceiling float64) {
	const maxAttempts = 3
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for i := 0; i < maxAttempts; i++ {
		cur, ok := cb.get(ctx)
		if !ok || cur <= 0 || cur >= ceiling {
			return
		}
		next := cur + step
		if next > ceiling {
			next = ceiling
		}
		ok, err := cb.compareAndSwap(ctx, cur, next)
		if err != nil || ok {
			return
		}
	}
}

var _ model.Client = (*limitedClient)(nil)
