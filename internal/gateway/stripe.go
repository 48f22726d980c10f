package gateway

import (
	"context"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

// StripeGateway confirms payment intents through the Stripe API.
type StripeGateway struct {
	client paymentintent.Client
}

// NewStripeGateway creates a gateway using key. A nil backend means the default API backend.
func NewStripeGateway(key string, backend stripe.Backend) *StripeGateway {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &StripeGateway{client: paymentintent.Client{B: backend, Key: key}}
}

func (g *StripeGateway) Name() string {
	return "stripe"
}

func (g *StripeGateway) Confirm(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx

	pi, err := g.client.Confirm(paymentIntentID, params)
	if err != nil {
		return err
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		return nil
	case stripe.PaymentIntentStatusRequiresAction:
		return &model.GatewayError{Code: "authentication_required", Type: "card_error"}
	}
	if pi.LastPaymentError != nil {
		if pi.LastPaymentError.ChargeID == "" && pi.LatestCharge != nil {
			pi.LastPaymentError.ChargeID = pi.LatestCharge.ID
		}
		return pi.LastPaymentError
	}
	return &model.GatewayError{Code: string(pi.Status)}
}
