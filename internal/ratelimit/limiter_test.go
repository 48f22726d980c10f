package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClient = "203.0.113.7|ua:1a2b3c4d"

func newTestLimiter(t *testing.T, opts ...Option) (*Limiter, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)
	l, err := NewLimiter(store, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return l, clock
}

func TestLimiter_WindowThenBlockThenFreshWindow(t *testing.T) {
	l, clock := newTestLimiter(t)
	ctx := context.Background()
	policy := l.PolicyFor(CategoryPaymentIntent)
	require.Equal(t, int64(10), policy.Requests)

	for i := int64(1); i <= 10; i++ {
		d := l.Check(ctx, CategoryPaymentIntent, testClient)
		require.True(t, d.Allowed, "request %d should be allowed", i)
		assert.Equal(t, i, d.Count)
		assert.Equal(t, 10-i, d.Remaining)
		assert.Equal(t, clock.Now().Add(5*time.Minute), d.ResetAt)
	}

	d := l.Check(ctx, CategoryPaymentIntent, testClient)
	assert.False(t, d.Allowed)
	assert.True(t, d.LimitExceeded)
	assert.Equal(t, int64(11), d.Count)
	assert.Equal(t, 15*time.Minute, d.RetryAfter)
	assert.Equal(t, clock.Now().Add(15*time.Minute), d.BlockedUntil)

	clock.Advance(10 * time.Minute)
	d = l.Check(ctx, CategoryPaymentIntent, testClient)
	assert.False(t, d.Allowed)
	assert.True(t, d.Blocked)
	assert.Equal(t, 5*time.Minute, d.RetryAfter, "retry-after is the time left on the block")

	clock.Advance(5 * time.Minute)
	d = l.Check(ctx, CategoryPaymentIntent, testClient)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestLimiter_CategoriesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.Check(ctx, CategoryPaymentConfirm, testClient)
	}
	assert.False(t, l.Check(ctx, CategoryPaymentConfirm, testClient).Allowed)
	assert.True(t, l.Check(ctx, CategoryPaymentIntent, testClient).Allowed)
	assert.True(t, l.Check(ctx, CategoryPaymentConfirm, "198.51.100.1").Allowed)
}

func TestLimiter_UnknownCategoryUsesPaymentIntentPolicy(t *testing.T) {
	l, _ := newTestLimiter(t)
	assert.Equal(t, l.PolicyFor(CategoryPaymentIntent), l.PolicyFor(Category("mystery")))

	d := l.Check(context.Background(), Category("mystery"), testClient)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(10), d.Limit)
	assert.Equal(t, 5*time.Minute, d.Window)
}

func TestLimiter_WhitelistBypassesBlock(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	client := "127.0.0.1|ua:1a2b3c4d"

	key := blockKey(CategoryPaymentIntent, client)
	require.NoError(t, l.store.Set(ctx, key, "99999999999999", time.Hour))

	for i := 0; i < 50; i++ {
		d := l.Check(ctx, CategoryPaymentIntent, client)
		require.True(t, d.Allowed)
		assert.True(t, d.Whitelisted)
	}

	_, ok, err := l.store.Get(ctx, countKey(CategoryPaymentIntent, client))
	require.NoError(t, err)
	assert.False(t, ok, "whitelisted requests are not counted")
}

func TestLimiter_FailsOpenOnStoreError(t *testing.T) {
	l, err := NewLimiter(&flakyStore{})
	require.NoError(t, err)
	d := l.Check(context.Background(), CategoryPaymentConfirm, testClient)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(5), d.Remaining)
}

func TestLimiter_ConcurrentCountsAreNotLost(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check(ctx, CategoryWebhook, testClient).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 40, allowed)
	c, err := l.store.Incr(ctx, countKey(CategoryWebhook, testClient), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(41), c.Value)
}

type recordingObserver struct {
	mu        sync.Mutex
	decisions []Decision
}

func (o *recordingObserver) Observe(d Decision, _ time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, d)
}

func TestLimiter_ReportsToObserverAndMetrics(t *testing.T) {
	obs := &recordingObserver{}
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	l, _ := newTestLimiter(t, WithObserver(obs), WithMetrics(m))

	l.Check(context.Background(), CategoryAnalytics, testClient)
	l.Check(context.Background(), CategoryAnalytics, "localhost")

	require.Len(t, obs.decisions, 2)
	assert.Equal(t, "allowed", obs.decisions[0].Outcome())
	assert.Equal(t, "whitelisted", obs.decisions[1].Outcome())
}

func TestDecision_Headers(t *testing.T) {
	reset := time.Date(2026, 5, 4, 10, 5, 0, 0, time.UTC)

	allowed := Decision{Allowed: true, Limit: 10, Remaining: 7, Window: 5 * time.Minute, ResetAt: reset}
	h := allowed.Headers()
	assert.Equal(t, "10", h.Get("X-RateLimit-Limit"))
	assert.Equal(t, "7", h.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "300", h.Get("X-RateLimit-Window"))
	assert.Equal(t, "2026-05-04T10:05:00Z", h.Get("X-RateLimit-Reset"))
	assert.Empty(t, h.Get("Retry-After"))

	blocked := Decision{Blocked: true, Limit: 10, Window: 5 * time.Minute, RetryAfter: 1500 * time.Millisecond}
	h = blocked.Headers()
	assert.Equal(t, "2", h.Get("Retry-After"))
	assert.Empty(t, h.Get("X-RateLimit-Reset"))

	assert.Empty(t, Decision{Allowed: true, Whitelisted: true}.Headers())
}

func TestPolicy_Validate(t *testing.T) {
	for c, p := range DefaultPolicies() {
		assert.NoError(t, p.Validate(), c)
	}
	assert.Error(t, Policy{Requests: 0, Window: time.Second, BlockDuration: time.Second}.Validate())
	assert.Error(t, Policy{Requests: 1, Window: 0, BlockDuration: time.Second}.Validate())
	assert.Error(t, Policy{Requests: 1, Window: time.Second}.Validate())
	assert.Error(t, Policy{Requests: 1, Window: time.Minute, BlockDuration: time.Second}.Validate(),
		"a block shorter than the window would let the same window continue")
	assert.NoError(t, Policy{Requests: 1, Window: time.Minute, BlockDuration: time.Minute}.Validate())
}

func TestNewLimiter_RejectsInvalidPolicies(t *testing.T) {
	tests := []struct {
		name     string
		policies map[Category]Policy
		expected string
	}{
		{
			"block shorter than window",
			map[Category]Policy{CategoryPaymentIntent: {Requests: 10, Window: 5 * time.Minute, BlockDuration: time.Minute}},
			"rate limit policy payment_intent",
		},
		{
			"zero requests",
			map[Category]Policy{
				CategoryPaymentIntent: {Requests: 10, Window: time.Minute, BlockDuration: time.Minute},
				CategoryWebhook:       {Requests: 0, Window: time.Minute, BlockDuration: time.Minute},
			},
			"rate limit policy webhook",
		},
		{
			"missing payment_intent fallback",
			map[Category]Policy{CategoryWebhook: {Requests: 1, Window: time.Minute, BlockDuration: time.Minute}},
			"payment_intent is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLimiter(NewMemoryStore(nil), WithPolicies(tt.policies))
			require.Error(t, err)
			assert.Nil(t, l)
			assert.Contains(t, err.Error(), tt.expected)
		})
	}
}

func TestLimiter_Categories(t *testing.T) {
	l, _ := newTestLimiter(t)
	assert.Equal(t, []Category{CategoryAnalytics, CategoryPaymentConfirm, CategoryPaymentIntent, CategoryWebhook}, l.Categories())
}
