// Package gateway confirms payment intents against a payment provider and
// translates provider errors into model.GatewayError.
package gateway

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
	"github.com/stripe/stripe-go/v79"
)

// Gateway defines the interface for payment providers.
type Gateway interface {
	// Name returns the provider's identifier.
	Name() string
	// Confirm attempts the payment intent again. A nil error means it succeeded.
	Confirm(ctx context.Context, paymentIntentID string) error
}

// FromError extracts the classification fields of a provider error.
// It never returns nil for a non-nil err.
func FromError(err error) *model.GatewayError {
	if err == nil {
		return nil
	}

	var gerr *model.GatewayError
	if errors.As(err, &gerr) {
		return gerr
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &model.GatewayError{
			Code:        string(stripeErr.Code),
			Type:        string(stripeErr.Type),
			DeclineCode: string(stripeErr.DeclineCode),
			AttemptID:   stripeErr.ChargeID,
		}
	}

	if isConnectionError(err) {
		return &model.GatewayError{Type: "api_connection_error"}
	}
	return &model.GatewayError{}
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
