package model

import (
	"fmt"
	"time"
)

// FailureReason is the classified cause of a failed payment attempt.
type FailureReason string

const (
	CardDeclined           FailureReason = "card_declined"
	InsufficientFunds      FailureReason = "insufficient_funds"
	ExpiredCard            FailureReason = "expired_card"
	IncorrectCVC           FailureReason = "incorrect_cvc"
	ProcessingError        FailureReason = "processing_error"
	AuthenticationRequired FailureReason = "authentication_required"
	NetworkError           FailureReason = "network_error"
	RateLimited            FailureReason = "rate_limited"
	Unknown                FailureReason = "unknown"
)

// FailureReasons lists every reason in a stable order.
var FailureReasons = []FailureReason{
	CardDeclined,
	InsufficientFunds,
	ExpiredCard,
	IncorrectCVC,
	ProcessingError,
	AuthenticationRequired,
	NetworkError,
	RateLimited,
	Unknown,
}

// RetryStrategy governs whether and when a failed payment is retried.
type RetryStrategy string

const (
	StrategyImmediate   RetryStrategy = "immediate"
	StrategyLinear      RetryStrategy = "linear"
	StrategyExponential RetryStrategy = "exponential"
	StrategyNone        RetryStrategy = "no_retry"
	StrategyUserAction  RetryStrategy = "user_action"
)

// Retries returns true if the strategy ever schedules an automatic retry.
func (s RetryStrategy) Retries() bool {
	switch s {
	case StrategyImmediate, StrategyLinear, StrategyExponential:
		return true
	default:
		return false
	}
}

// ActionRequired returns true if the customer has to do something before the payment can succeed.
func (s RetryStrategy) ActionRequired() bool {
	return !s.Retries()
}

// GatewayError is the subset of a payment gateway error used for classification.
// Any field may be empty. AttemptID identifies the gateway attempt, such as a
// Stripe charge, so the same failure reported twice counts once.
type GatewayError struct {
	Code        string `json:"code,omitempty"`
	Type        string `json:"type,omitempty"`
	DeclineCode string `json:"decline_code,omitempty"`
	AttemptID   string `json:"attempt_id,omitempty"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error: code=%q type=%q decline_code=%q", e.Code, e.Type, e.DeclineCode)
}

// RetryAttempt records a single payment attempt within a retry context.
type RetryAttempt struct {
	AttemptNumber     int        `json:"attempt_number"`
	Timestamp         time.Time  `json:"timestamp"`
	FailureReason     string     `json:"failure_reason"`
	GatewayErrorCode  string     `json:"gateway_error_code"`
	GatewayAttemptID  string     `json:"gateway_attempt_id,omitempty"`
	RetryAfterSeconds int        `json:"retry_after_seconds"`
	NextRetryTime     *time.Time `json:"next_retry_time,omitempty"`
	Success           bool       `json:"success"`
}

// RetryState is the derived lifecycle state of a retry context.
type RetryState string

const (
	StateActive        RetryState = "active"
	StateAwaitingRetry RetryState = "awaiting_retry"
	StateSucceeded     RetryState = "succeeded"
	StateExhausted     RetryState = "exhausted"
)

// IsTerminal returns true for states that no longer schedule retries.
func (s RetryState) IsTerminal() bool {
	return s == StateSucceeded || s == StateExhausted
}

// RetryContext tracks every attempt made for one payment intent.
type RetryContext struct {
	OrderID               int64          `json:"order_id"`
	PaymentIntentID       string         `json:"payment_intent_id"`
	OriginalFailureReason FailureReason  `json:"original_failure_reason"`
	RetryStrategy         RetryStrategy  `json:"retry_strategy"`
	MaxAttempts           int            `json:"max_attempts"`
	CurrentAttempts       int            `json:"current_attempts"`
	Attempts              []RetryAttempt `json:"attempts"`
	CreatedAt             time.Time      `json:"created_at"`
	LastRetryAt           *time.Time     `json:"last_retry_at,omitempty"`
	NextRetryAt           *time.Time     `json:"next_retry_at"`
	FinalFailure          bool           `json:"final_failure"`
	CustomerNotified      bool           `json:"customer_notified"`
}

// Succeeded returns true if any recorded attempt succeeded.
func (c RetryContext) Succeeded() bool {
	for _, a := range c.Attempts {
		if a.Success {
			return true
		}
	}
	return false
}

// HasGatewayAttempt returns true if an attempt with the gateway attempt ID was recorded.
func (c RetryContext) HasGatewayAttempt(id string) bool {
	if id == "" {
		return false
	}
	for _, a := range c.Attempts {
		if a.GatewayAttemptID == id {
			return true
		}
	}
	return false
}

// State derives the lifecycle state at the given instant.
func (c RetryContext) State(now time.Time) RetryState {
	switch {
	case c.Succeeded():
		return StateSucceeded
	case c.FinalFailure || c.NextRetryAt == nil:
		return StateExhausted
	case !now.Before(*c.NextRetryAt):
		return StateAwaitingRetry
	default:
		return StateActive
	}
}

// IsDue returns true if a retry is scheduled at or before now.
func (c RetryContext) IsDue(now time.Time) bool {
	return !c.FinalFailure && c.NextRetryAt != nil && !c.NextRetryAt.After(now)
}

// Clone returns a deep copy so callers never share attempt slices or time pointers.
func (c RetryContext) Clone() RetryContext {
	out := c
	out.Attempts = make([]RetryAttempt, len(c.Attempts))
	for i, a := range c.Attempts {
		a.NextRetryTime = cloneTime(a.NextRetryTime)
		out.Attempts[i] = a
	}
	out.LastRetryAt = cloneTime(c.LastRetryAt)
	out.NextRetryAt = cloneTime(c.NextRetryAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// OrderStatus mirrors the order lifecycle kept by the store front.
type OrderStatus string

const (
	OrderCreated        OrderStatus = "created"
	OrderPaymentPending OrderStatus = "payment_pending"
	OrderPaid           OrderStatus = "paid"
	OrderPaymentFailed  OrderStatus = "payment_failed"
)

// Order is the read model of an order needed by payment recovery.
type Order struct {
	ID           int64       `json:"id"`
	CustomerName string      `json:"customer_name"`
	Email        string      `json:"email"`
	AmountCents  int64       `json:"amount_cents"`
	Currency     string      `json:"currency"`
	Status       OrderStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
}
