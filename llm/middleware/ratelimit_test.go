package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/runtime/model"
)

type countingClient struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingClient) Invoke(context.Context, model.Request) (model.Response, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return model.Response{}, c.err
	}
	return model.Response{Text: "ok"}, nil
}

func (c *countingClient) InvokeWithImage(ctx context.Context, req model.Request) (model.Response, error) {
	return c.Invoke(ctx, req)
}

func TestEstimateTokensFloorAndFramingBuffer(t *testing.T) {
	assert.Equal(t, 500, estimateTokens(model.Request{}))
	got := estimateTokens(model.Request{Prompt: "123456789"})
	assert.Equal(t, 503, got)
}

func TestNewAdaptiveRateLimiterAppliesDefaults(t *testing.T) {
	l := newAdaptiveRateLimiter(0, 0)
	assert.Equal(t, 60000.0, l.currentTPM)
	assert.Equal(t, 60000.0, l.maxTPM)
	assert.Equal(t, 6000.0, l.minTPM)
}

func TestMiddlewareDelegatesAndReturnsNilForNilNext(t *testing.T) {
	l := newAdaptiveRateLimiter(6_000_000, 6_000_000)
	mw := l.Middleware()
	assert.Nil(t, mw(nil))

	client := &countingClient{}
	wrapped := mw(client)
	_, err := wrapped.Invoke(context.Background(), model.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestObserveBacksOffOnRateLimitError(t *testing.T) {
	l := newAdaptiveRateLimiter(1000, 1000)
	before := l.currentTPM
	l.observe(model.ErrRateLimited)
	assert.Less(t, l.currentTPM, before)
}

func TestObserveIgnoresUnrelatedErrors(t *testing.T) {
	l := newAdaptiveRateLimiter(1000, 1000)
	before := l.currentTPM
	l.observe(errors.New("boom"))
	assert.Equal(t, before, l.currentTPM)
}

func TestProbeRecoversTowardMaxAfterBackoff(t *testing.T) {
	l := newAdaptiveRateLimiter(1000, 1000)
	l.backoff()
	afterBackoff := l.currentTPM
	l.probe()
	assert.Greater(t, l.currentTPM, afterBackoff)
}

func TestBackoffNeverGoesBelowMinTPM(t *testing.T) {
	l := newAdaptiveRateLimiter(100, 100)
	for i := 0; i < 20; i++ {
		l.backoff()
	}
	assert.Equal(t, l.minTPM, l.currentTPM)
}

func TestProbeNeverExceedsMaxTPM(t *testing.T) {
	l := newAdaptiveRateLimiter(100, 120)
	for i := 0; i < 20; i++ {
		l.probe()
	}
	assert.Equal(t, l.maxTPM, l.currentTPM)
}

// fakeClusterBudget is an in-memory clusterBudget, letting the cluster
// wiring tests run without a real Redis instance.
type fakeClusterBudget struct {
	mu    sync.Mutex
	value float64
	exist bool
}

func (b *fakeClusterBudget) get(context.Context) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.exist
}

func (b *fakeClusterBudget) setIfNotExists(_ context.Context, value float64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exist {
		return false, nil
	}
	b.value, b.exist = value, true
	return true, nil
}

func (b *fakeClusterBudget) compareAndSwap(_ context.Context, old, new float64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.value != old {
		return false, nil
	}
	b.value = new
	return true, nil
}

func TestNewClusterAdaptiveRateLimiterSeedsFromExistingBudget(t *testing.T) {
	cb := &fakeClusterBudget{value: 5000, exist: true}
	l := newClusterAdaptiveRateLimiter(context.Background(), cb, 1000, 10000)
	assert.Equal(t, 5000.0, l.currentTPM)
}

func TestNewClusterAdaptiveRateLimiterSeedsSharedBudgetWhenAbsent(t *testing.T) {
	cb := &fakeClusterBudget{}
	l := newClusterAdaptiveRateLimiter(context.Background(), cb, 1000, 10000)
	assert.Equal(t, 1000.0, l.currentTPM)
	v, ok := cb.get(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 1000.0, v)
}

func TestNewClusterAdaptiveRateLimiterWithNilBudgetBehavesLikeLocal(t *testing.T) {
	l := newClusterAdaptiveRateLimiter(context.Background(), nil, 2000, 8000)
	assert.Equal(t, 2000.0, l.currentTPM)
}
