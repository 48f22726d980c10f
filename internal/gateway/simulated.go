package gateway

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
)

// WeightedFailure is one failure the simulated gateway can return.
type WeightedFailure struct {
	Weight float64
	Error  model.GatewayError
}

// SimulatedConfig holds configuration for a simulated gateway.
type SimulatedConfig struct {
	GatewayName string
	SuccessRate float64
	Failures    []WeightedFailure
	MinLatency  time.Duration
	MaxLatency  time.Duration
	Seed        int64
}

// DefaultFailures is the failure mix seen on a typical card checkout.
var DefaultFailures = []WeightedFailure{
	{Weight: 0.30, Error: model.GatewayError{Code: "card_declined", Type: "card_error", DeclineCode: "insufficient_funds"}},
	{Weight: 0.15, Error: model.GatewayError{Code: "card_declined", Type: "card_error", DeclineCode: "generic_decline"}},
	{Weight: 0.10, Error: model.GatewayError{Code: "card_declined", Type: "card_error", DeclineCode: "expired_card"}},
	{Weight: 0.15, Error: model.GatewayError{Code: "processing_error", Type: "card_error"}},
	{Weight: 0.15, Error: model.GatewayError{Type: "api_connection_error"}},
	{Weight: 0.10, Error: model.GatewayError{Type: "rate_limit_error"}},
	{Weight: 0.05, Error: model.GatewayError{Code: "authentication_required", Type: "card_error"}},
}

// SimulatedGateway returns random outcomes for development and demos.
type SimulatedGateway struct {
	config SimulatedConfig
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewSimulatedGateway creates a simulated gateway. A zero seed uses the current time.
func NewSimulatedGateway(cfg SimulatedConfig) *SimulatedGateway {
	if cfg.GatewayName == "" {
		cfg.GatewayName = "simulated"
	}
	if cfg.Failures == nil {
		cfg.Failures = DefaultFailures
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedGateway{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (g *SimulatedGateway) Name() string {
	return g.config.GatewayName
}

func (g *SimulatedGateway) Confirm(ctx context.Context, paymentIntentID string) error {
	select {
	case <-time.After(g.simulateLatency()):
	case <-ctx.Done():
		return &model.GatewayError{Type: "api_connection_error"}
	}

	g.mu.Lock()
	roll := g.rng.Float64()
	g.mu.Unlock()

	if roll < g.config.SuccessRate {
		return nil
	}
	roll -= g.config.SuccessRate

	// Spread the remaining probability over the failures by weight.
	var total float64
	for _, f := range g.config.Failures {
		total += f.Weight
	}
	if total <= 0 {
		return &model.GatewayError{}
	}
	target := roll / (1 - g.config.SuccessRate) * total
	for _, f := range g.config.Failures {
		if target < f.Weight {
			e := f.Error
			return &e
		}
		target -= f.Weight
	}
	e := g.config.Failures[len(g.config.Failures)-1].Error
	return &e
}

func (g *SimulatedGateway) simulateLatency() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	lo := g.config.MinLatency
	hi := g.config.MaxLatency
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(g.rng.Int63n(int64(hi-lo)))
}
