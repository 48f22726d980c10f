package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

func newStripeGatewayForTest(t *testing.T, status int, body string) (*StripeGateway, *string) {
	t.Helper()
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.Method + " " + r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
	})
	return NewStripeGateway("sk_test_123", backend), &path
}

func TestStripeGateway_Confirm(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected model.FailureReason
		success  bool
	}{
		{
			name:    "succeeded",
			status:  http.StatusOK,
			body:    `{"id":"pi_1","object":"payment_intent","status":"succeeded"}`,
			success: true,
		},
		{
			name:    "processing counts as accepted",
			status:  http.StatusOK,
			body:    `{"id":"pi_1","object":"payment_intent","status":"processing"}`,
			success: true,
		},
		{
			name:     "card declined for funds",
			status:   http.StatusPaymentRequired,
			body:     `{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`,
			expected: model.InsufficientFunds,
		},
		{
			name:     "stripe rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{"error":{"type":"rate_limit_error","message":"Too many requests"}}`,
			expected: model.RateLimited,
		},
		{
			name:     "requires action",
			status:   http.StatusOK,
			body:     `{"id":"pi_1","object":"payment_intent","status":"requires_action"}`,
			expected: model.AuthenticationRequired,
		},
		{
			name:     "requires payment method with last error",
			status:   http.StatusOK,
			body:     `{"id":"pi_1","object":"payment_intent","status":"requires_payment_method","last_payment_error":{"type":"card_error","code":"card_declined","decline_code":"expired_card"}}`,
			expected: model.ExpiredCard,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, path := newStripeGatewayForTest(t, tt.status, tt.body)
			err := g.Confirm(context.Background(), "pi_1")

			assert.Equal(t, "POST /v1/payment_intents/pi_1/confirm", *path)
			if tt.success {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.expected, retry.Classify(FromError(err)))
		})
	}
}

func TestStripeGateway_ConfirmReportsCharge(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{
			name:   "declined request",
			status: http.StatusPaymentRequired,
			body:   `{"error":{"type":"card_error","code":"card_declined","decline_code":"generic_decline","charge":"ch_9"}}`,
		},
		{
			name:   "latest charge of intent",
			status: http.StatusOK,
			body:   `{"id":"pi_1","object":"payment_intent","status":"requires_payment_method","latest_charge":"ch_9","last_payment_error":{"type":"card_error","code":"card_declined"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newStripeGatewayForTest(t, tt.status, tt.body)
			err := g.Confirm(context.Background(), "pi_1")
			require.Error(t, err)
			assert.Equal(t, "ch_9", FromError(err).AttemptID)
		})
	}
}

func TestStripeGateway_Name(t *testing.T) {
	assert.Equal(t, "stripe", NewStripeGateway("sk_test", nil).Name())
}
