package retry

import (
	"time"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
)

// maxBackoffShift keeps exponential delays inside time.Duration.
const maxBackoffShift = 20

// Policy is the static retry configuration of one failure reason.
type Policy struct {
	Strategy       model.RetryStrategy `json:"strategy"`
	MaxAttempts    int                 `json:"max_attempts"`
	NotifyCustomer bool                `json:"notify_customer"`
	Message        string              `json:"message"`
}

// Policies is the failure reason table. It is read-only.
var Policies = map[model.FailureReason]Policy{
	model.CardDeclined: {
		Strategy:       model.StrategyNone,
		MaxAttempts:    0,
		NotifyCustomer: true,
		Message:        "Your card was declined. Please try a different payment method.",
	},
	model.InsufficientFunds: {
		Strategy:       model.StrategyUserAction,
		MaxAttempts:    0,
		NotifyCustomer: true,
		Message:        "Insufficient funds. Please check your account balance or use a different card.",
	},
	model.ExpiredCard: {
		Strategy:       model.StrategyNone,
		MaxAttempts:    0,
		NotifyCustomer: true,
		Message:        "Your card has expired. Please update your payment information.",
	},
	model.IncorrectCVC: {
		Strategy:       model.StrategyNone,
		MaxAttempts:    0,
		NotifyCustomer: true,
		Message:        "Incorrect CVC code. Please check your card details and try again.",
	},
	model.ProcessingError: {
		Strategy:       model.StrategyExponential,
		MaxAttempts:    3,
		NotifyCustomer: false,
		Message:        "Payment processing error. We'll retry automatically.",
	},
	model.NetworkError: {
		Strategy:       model.StrategyExponential,
		MaxAttempts:    5,
		NotifyCustomer: false,
		Message:        "Network error. We'll retry automatically.",
	},
	model.AuthenticationRequired: {
		Strategy:       model.StrategyUserAction,
		MaxAttempts:    0,
		NotifyCustomer: true,
		Message:        "Additional authentication required. Please complete 3D Secure verification.",
	},
	model.RateLimited: {
		Strategy:       model.StrategyLinear,
		MaxAttempts:    3,
		NotifyCustomer: false,
		Message:        "Rate limited. We'll retry automatically.",
	},
	model.Unknown: {
		Strategy:       model.StrategyExponential,
		MaxAttempts:    2,
		NotifyCustomer: true,
		Message:        "Payment failed. We'll retry and notify you of the outcome.",
	},
}

// PolicyFor returns the policy for reason, falling back to the Unknown policy.
func PolicyFor(reason model.FailureReason) Policy {
	if p, ok := Policies[reason]; ok {
		return p
	}
	return Policies[model.Unknown]
}

// Delay returns how long to wait before the given 1-based attempt.
// Strategies that never retry return zero; callers must not schedule them.
func Delay(strategy model.RetryStrategy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch strategy {
	case model.StrategyLinear:
		return time.Duration(attempt) * time.Minute
	case model.StrategyExponential:
		shift := min(attempt-1, maxBackoffShift)
		return time.Duration(1<<shift) * time.Minute
	default:
		return 0
	}
}

// ShouldRetry reports whether another attempt is permitted after attemptsSoFar attempts.
func ShouldRetry(reason model.FailureReason, attemptsSoFar int) bool {
	p, ok := Policies[reason]
	if !ok || !p.Strategy.Retries() {
		return false
	}
	return attemptsSoFar < p.MaxAttempts
}
