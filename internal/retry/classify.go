package retry

import "github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"

// Classify maps a gateway error onto exactly one failure reason. It never fails:
// a nil or unrecognised error is Unknown. Decline codes are only consulted inside the
// declined branch, so a decline code on any other error code is ignored.
func Classify(gerr *model.GatewayError) model.FailureReason {
	if gerr == nil {
		return model.Unknown
	}

	switch gerr.Code {
	case "card_declined", "generic_decline":
		switch gerr.DeclineCode {
		case "insufficient_funds":
			return model.InsufficientFunds
		case "expired_card":
			return model.ExpiredCard
		case "incorrect_cvc", "invalid_cvc":
			return model.IncorrectCVC
		default:
			return model.CardDeclined
		}
	case "authentication_required":
		return model.AuthenticationRequired
	case "processing_error":
		return model.ProcessingError
	}

	switch gerr.Type {
	case "rate_limit_error":
		return model.RateLimited
	case "api_connection_error", "api_error":
		return model.NetworkError
	}

	return model.Unknown
}
