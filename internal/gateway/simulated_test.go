package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedGateway_AlwaysSucceeds(t *testing.T) {
	g := NewSimulatedGateway(SimulatedConfig{SuccessRate: 1, Seed: 1})
	assert.Equal(t, "simulated", g.Name())
	for i := 0; i < 50; i++ {
		require.NoError(t, g.Confirm(context.Background(), "pi_ok"))
	}
}

func TestSimulatedGateway_AlwaysFails(t *testing.T) {
	want := model.GatewayError{Code: "processing_error"}
	g := NewSimulatedGateway(SimulatedConfig{
		GatewayName: "flaky",
		SuccessRate: 0,
		Failures:    []WeightedFailure{{Weight: 1, Error: want}},
		Seed:        7,
	})
	assert.Equal(t, "flaky", g.Name())
	for i := 0; i < 50; i++ {
		err := g.Confirm(context.Background(), "pi_bad")
		require.Error(t, err)
		assert.Equal(t, &want, FromError(err))
	}
}

func TestSimulatedGateway_OutcomeDistribution(t *testing.T) {
	g := NewSimulatedGateway(SimulatedConfig{SuccessRate: 0.7, Seed: 42})

	const n = 5000
	successes := 0
	for i := 0; i < n; i++ {
		if g.Confirm(context.Background(), "pi") == nil {
			successes++
		}
	}
	assert.InDelta(t, 0.7, float64(successes)/n, 0.05)
}

func TestSimulatedGateway_FailuresComeFromMix(t *testing.T) {
	g := NewSimulatedGateway(SimulatedConfig{SuccessRate: 0, Seed: 3})
	known := make(map[model.GatewayError]bool)
	for _, f := range DefaultFailures {
		known[f.Error] = true
	}
	for i := 0; i < 200; i++ {
		gerr := FromError(g.Confirm(context.Background(), "pi"))
		require.NotNil(t, gerr)
		assert.True(t, known[*gerr], "unexpected failure %+v", *gerr)
	}
}

func TestSimulatedGateway_ContextCancellation(t *testing.T) {
	g := NewSimulatedGateway(SimulatedConfig{SuccessRate: 1, MinLatency: time.Second, MaxLatency: 2 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := g.Confirm(ctx, "pi")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, &model.GatewayError{Type: "api_connection_error"}, FromError(err))
}
