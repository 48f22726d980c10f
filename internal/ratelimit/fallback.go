package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/metrics"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Pinger is implemented by remote stores that can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FallbackStore uses the remote store until its first error and the local
// store from then on. Demotion is permanent for the life of the process.
type FallbackStore struct {
	remote  Store
	local   *MemoryStore
	demoted atomic.Bool
	once    sync.Once
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewFallbackStore creates a store that prefers remote. A nil remote starts demoted.
func NewFallbackStore(remote Store, local *MemoryStore, logger *slog.Logger, m *metrics.Metrics) *FallbackStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FallbackStore{
		remote:  remote,
		local:   local,
		logger:  logger,
		metrics: m,
	}
	if remote == nil {
		s.demoted.Store(true)
	}
	return s
}

// Probe pings the remote store when it supports it and demotes on failure.
func (s *FallbackStore) Probe(ctx context.Context) {
	if s.demoted.Load() {
		return
	}
	p, ok := s.remote.(Pinger)
	if !ok {
		return
	}
	if err := p.Ping(ctx); err != nil {
		s.demote(err)
		return
	}
	s.logger.Info("rate_limit_store_ready", "backend", BackendRedis)
}

// Backend reports which store is serving requests.
func (s *FallbackStore) Backend() string {
	if s.demoted.Load() {
		return BackendMemory
	}
	return BackendRedis
}

// Local returns the in-memory store so it can be cleaned up.
func (s *FallbackStore) Local() *MemoryStore {
	return s.local
}

// callerGone reports errors caused by the caller's context rather than the
// remote store. They fail the call without demoting.
func callerGone(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

func (s *FallbackStore) demote(err error) {
	s.once.Do(func() {
		s.demoted.Store(true)
		s.metrics.StoreDemoted()
		s.logger.Warn("rate_limit_store_demoted",
			"from", BackendRedis,
			"to", BackendMemory,
			"error", err,
		)
	})
}

func (s *FallbackStore) Get(ctx context.Context, key string) (string, bool, error) {
	if !s.demoted.Load() {
		v, ok, err := s.remote.Get(ctx, key)
		if err == nil {
			return v, ok, nil
		}
		if callerGone(ctx, err) {
			return "", false, err
		}
		s.demote(err)
	}
	return s.local.Get(ctx, key)
}

func (s *FallbackStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if !s.demoted.Load() {
		err := s.remote.Set(ctx, key, value, ttl)
		if err == nil {
			return nil
		}
		if callerGone(ctx, err) {
			return err
		}
		s.demote(err)
	}
	return s.local.Set(ctx, key, value, ttl)
}

func (s *FallbackStore) Incr(ctx context.Context, key string, ttl time.Duration) (Counter, error) {
	if !s.demoted.Load() {
		c, err := s.remote.Incr(ctx, key, ttl)
		if err == nil {
			return c, nil
		}
		if callerGone(ctx, err) {
			return Counter{}, err
		}
		s.demote(err)
	}
	return s.local.Incr(ctx, key, ttl)
}
