package retry

import (
	"testing"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      *model.GatewayError
		expected model.FailureReason
	}{
		{"nil error is unknown", nil, model.Unknown},
		{"empty error is unknown", &model.GatewayError{}, model.Unknown},
		{"plain card declined", &model.GatewayError{Code: "card_declined"}, model.CardDeclined},
		{"generic decline", &model.GatewayError{Code: "generic_decline"}, model.CardDeclined},
		{"declined with insufficient funds", &model.GatewayError{Code: "card_declined", DeclineCode: "insufficient_funds"}, model.InsufficientFunds},
		{"generic decline with insufficient funds", &model.GatewayError{Code: "generic_decline", DeclineCode: "insufficient_funds"}, model.InsufficientFunds},
		{"declined with expired card", &model.GatewayError{Code: "card_declined", DeclineCode: "expired_card"}, model.ExpiredCard},
		{"declined with incorrect cvc", &model.GatewayError{Code: "card_declined", DeclineCode: "incorrect_cvc"}, model.IncorrectCVC},
		{"declined with invalid cvc", &model.GatewayError{Code: "card_declined", DeclineCode: "invalid_cvc"}, model.IncorrectCVC},
		{"declined with unmapped decline code", &model.GatewayError{Code: "card_declined", DeclineCode: "fraudulent"}, model.CardDeclined},
		{"decline code outside declined branch is ignored", &model.GatewayError{Code: "processing_error", DeclineCode: "insufficient_funds"}, model.ProcessingError},
		{"expired_card code alone is not the declined branch", &model.GatewayError{Code: "expired_card"}, model.Unknown},
		{"authentication required", &model.GatewayError{Code: "authentication_required"}, model.AuthenticationRequired},
		{"processing error", &model.GatewayError{Code: "processing_error"}, model.ProcessingError},
		{"code wins over type", &model.GatewayError{Code: "processing_error", Type: "rate_limit_error"}, model.ProcessingError},
		{"rate limit type", &model.GatewayError{Type: "rate_limit_error"}, model.RateLimited},
		{"api connection type", &model.GatewayError{Type: "api_connection_error"}, model.NetworkError},
		{"api error type", &model.GatewayError{Type: "api_error"}, model.NetworkError},
		{"card error type alone", &model.GatewayError{Type: "card_error"}, model.Unknown},
		{"garbage", &model.GatewayError{Code: "\x00\xff", Type: "???", DeclineCode: "  "}, model.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestClassify_AlwaysReturnsKnownReason(t *testing.T) {
	known := make(map[model.FailureReason]bool, len(model.FailureReasons))
	for _, r := range model.FailureReasons {
		known[r] = true
	}

	codes := []string{"", "card_declined", "generic_decline", "authentication_required", "processing_error", "x"}
	types := []string{"", "rate_limit_error", "api_connection_error", "api_error", "card_error", "y"}
	declines := []string{"", "insufficient_funds", "expired_card", "incorrect_cvc", "invalid_cvc", "z"}

	for _, c := range codes {
		for _, ty := range types {
			for _, d := range declines {
				got := Classify(&model.GatewayError{Code: c, Type: ty, DeclineCode: d})
				assert.True(t, known[got], "unexpected reason %q for code=%q type=%q decline=%q", got, c, ty, d)
			}
		}
	}
}
