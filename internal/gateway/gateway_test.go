package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v79"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected *model.GatewayError
	}{
		{"nil", nil, nil},
		{
			"gateway error passes through",
			&model.GatewayError{Code: "processing_error"},
			&model.GatewayError{Code: "processing_error"},
		},
		{
			"wrapped gateway error",
			fmt.Errorf("confirm: %w", &model.GatewayError{Type: "rate_limit_error"}),
			&model.GatewayError{Type: "rate_limit_error"},
		},
		{
			"stripe card error",
			&stripe.Error{Code: stripe.ErrorCodeCardDeclined, Type: stripe.ErrorTypeCard, DeclineCode: stripe.DeclineCodeInsufficientFunds, HTTPStatusCode: 402},
			&model.GatewayError{Code: "card_declined", Type: "card_error", DeclineCode: "insufficient_funds"},
		},
		{
			"stripe decline carries charge",
			&stripe.Error{Code: stripe.ErrorCodeCardDeclined, Type: stripe.ErrorTypeCard, ChargeID: "ch_1"},
			&model.GatewayError{Code: "card_declined", Type: "card_error", AttemptID: "ch_1"},
		},
		{
			"stripe api error",
			fmt.Errorf("confirm: %w", &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: 500}),
			&model.GatewayError{Type: "api_error"},
		},
		{"network timeout", timeoutErr{}, &model.GatewayError{Type: "api_connection_error"}},
		{"deadline", context.DeadlineExceeded, &model.GatewayError{Type: "api_connection_error"}},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), &model.GatewayError{Type: "api_connection_error"}},
		{"anything else", errors.New("boom"), &model.GatewayError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FromError(tt.err))
		})
	}
}
