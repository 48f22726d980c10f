package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/metrics"
)

// Decision is the result of one rate limit check.
type Decision struct {
	Category      Category      `json:"endpoint_type"`
	ClientID      string        `json:"client_id"`
	Allowed       bool          `json:"allowed"`
	Whitelisted   bool          `json:"whitelisted,omitempty"`
	Blocked       bool          `json:"blocked,omitempty"`
	LimitExceeded bool          `json:"limit_exceeded,omitempty"`
	Count         int64         `json:"requests_made"`
	Limit         int64         `json:"limit"`
	Remaining     int64         `json:"remaining"`
	Window        time.Duration `json:"-"`
	ResetAt       time.Time     `json:"reset_time"`
	BlockedUntil  time.Time     `json:"blocked_until"`
	RetryAfter    time.Duration `json:"-"`
}

// Outcome is the metrics label of the decision.
func (d Decision) Outcome() string {
	switch {
	case d.Whitelisted:
		return "whitelisted"
	case d.Blocked:
		return "blocked"
	case d.LimitExceeded:
		return "rejected"
	default:
		return "allowed"
	}
}

// RetryAfterSeconds rounds the retry delay up to whole seconds.
func (d Decision) RetryAfterSeconds() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int64((d.RetryAfter + time.Second - 1) / time.Second)
}

// Headers returns the X-RateLimit-* headers for the decision, plus
// Retry-After when the request was rejected.
func (d Decision) Headers() http.Header {
	h := make(http.Header)
	if d.Whitelisted {
		return h
	}
	h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	h.Set("X-RateLimit-Window", strconv.FormatInt(int64(d.Window/time.Second), 10))
	if !d.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))
	}
	if !d.Allowed {
		h.Set("Retry-After", strconv.FormatInt(d.RetryAfterSeconds(), 10))
	}
	return h
}

// Observer receives every decision, e.g. for monitoring.
type Observer interface {
	Observe(d Decision, at time.Time)
}

// Limiter applies per-category policies on top of a Store.
type Limiter struct {
	store    Store
	policies map[Category]Policy
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
	observer Observer
}

// Option configures a Limiter.
type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

func WithObserver(o Observer) Option {
	return func(l *Limiter) { l.observer = o }
}

// WithPolicies replaces the default policy table.
func WithPolicies(p map[Category]Policy) Option {
	return func(l *Limiter) { l.policies = p }
}

// NewLimiter creates a limiter over store with DefaultPolicies. Every policy
// must be valid and the payment_intent policy must exist, since unknown
// categories fall back to it.
func NewLimiter(store Store, opts ...Option) (*Limiter, error) {
	l := &Limiter{
		store:    store,
		policies: DefaultPolicies(),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}

	if _, ok := l.policies[CategoryPaymentIntent]; !ok {
		return nil, fmt.Errorf("rate limit policy for %s is required", CategoryPaymentIntent)
	}
	for c, p := range l.policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("rate limit policy %s: %w", c, err)
		}
	}
	return l, nil
}

// PolicyFor returns the category's policy, or the payment_intent policy for unknown categories.
func (l *Limiter) PolicyFor(c Category) Policy {
	if p, ok := l.policies[c]; ok {
		return p
	}
	return l.policies[CategoryPaymentIntent]
}

// Categories lists the configured categories in name order.
func (l *Limiter) Categories() []Category {
	out := make([]Category, 0, len(l.policies))
	for c := range l.policies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Policies returns a copy of the policy table.
func (l *Limiter) Policies() map[Category]Policy {
	out := make(map[Category]Policy, len(l.policies))
	for c, p := range l.policies {
		out[c] = p
	}
	return out
}

// Check counts one request from client against category. Store failures
// allow the request.
func (l *Limiter) Check(ctx context.Context, category Category, client string) Decision {
	now := l.now()
	d := l.check(ctx, category, client, now)

	l.metrics.RateLimitDecision(string(category), d.Outcome())
	if l.observer != nil {
		l.observer.Observe(d, now)
	}
	return d
}

func (l *Limiter) check(ctx context.Context, category Category, client string, now time.Time) Decision {
	d := Decision{Category: category, ClientID: client}
	if Whitelisted(client) {
		d.Allowed = true
		d.Whitelisted = true
		return d
	}

	policy := l.PolicyFor(category)
	d.Limit = policy.Requests
	d.Window = policy.Window

	bk := blockKey(category, client)
	raw, blocked, err := l.store.Get(ctx, bk)
	if err != nil {
		return l.failOpen(d, "get_block", err)
	}
	if blocked {
		until := now.Add(policy.BlockDuration)
		if ms, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			until = time.UnixMilli(ms)
		}
		if now.Before(until) {
			d.Blocked = true
			d.BlockedUntil = until
			d.RetryAfter = until.Sub(now)
			return d
		}
	}

	counter, err := l.store.Incr(ctx, countKey(category, client), policy.Window)
	if err != nil {
		return l.failOpen(d, "incr_count", err)
	}
	d.Count = counter.Value
	d.ResetAt = counter.ExpiresAt
	d.Remaining = max(0, policy.Requests-counter.Value)

	if counter.Value > policy.Requests {
		until := now.Add(policy.BlockDuration)
		if err := l.store.Set(ctx, bk, strconv.FormatInt(until.UnixMilli(), 10), policy.BlockDuration); err != nil {
			l.logger.Error("rate_limit_block_failed", "category", category, "client_id", client, "error", err)
		}
		d.LimitExceeded = true
		d.BlockedUntil = until
		d.RetryAfter = policy.BlockDuration
		l.logger.Warn("rate_limit_exceeded",
			"category", category,
			"client_id", client,
			"requests_made", counter.Value,
			"limit", policy.Requests,
			"blocked_until", until,
		)
		return d
	}

	d.Allowed = true
	return d
}

func (l *Limiter) failOpen(d Decision, op string, err error) Decision {
	l.logger.Error("rate_limit_store_error", "op", op, "category", d.Category, "error", err)
	d.Allowed = true
	d.Remaining = d.Limit
	return d
}
