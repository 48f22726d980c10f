package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/metrics"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
)

var (
	// ErrNotFound is returned when no retry context exists for a payment intent.
	ErrNotFound = errors.New("retry context not found")
	// ErrTerminal is returned when reporting an attempt on a context that already succeeded.
	ErrTerminal = errors.New("retry context already succeeded")
	// ErrDuplicateAttempt is returned when a failure carries a gateway attempt ID
	// that is already recorded on the context.
	ErrDuplicateAttempt = errors.New("gateway attempt already recorded")
	// ErrMissingPaymentIntent is returned when the payment intent ID is empty.
	ErrMissingPaymentIntent = errors.New("payment intent id is required")
)

// Tracker owns the retry context lifecycle of every payment intent.
type Tracker struct {
	store   Store
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// NewTracker creates a tracker backed by store.
func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CreateOrUpdate records one attempt for the payment intent. The first failure
// creates the context; later reports append to it. A success with no existing
// context returns ErrNotFound, and any report after a success returns ErrTerminal.
// A failure whose gateway attempt is already recorded returns the unchanged
// context with ErrDuplicateAttempt.
func (t *Tracker) CreateOrUpdate(ctx context.Context, orderID int64, paymentIntentID string, gerr *model.GatewayError, success bool) (model.RetryContext, error) {
	if paymentIntentID == "" {
		return model.RetryContext{}, ErrMissingPaymentIntent
	}

	now := t.now().UTC()
	var (
		created  bool
		outcome  string
		reason   model.FailureReason
		existing model.RetryContext
	)

	rc, err := t.store.Update(ctx, paymentIntentID, func(current *model.RetryContext) (*model.RetryContext, error) {
		if current == nil {
			if success {
				return nil, ErrNotFound
			}
			created = true
			next := newContext(orderID, paymentIntentID, gerr, now)
			reason = next.OriginalFailureReason
			outcome = attemptOutcome(next)
			return next, nil
		}
		if current.Succeeded() {
			return nil, ErrTerminal
		}
		if !success && gerr != nil && current.HasGatewayAttempt(gerr.AttemptID) {
			existing = *current
			return nil, ErrDuplicateAttempt
		}
		appendAttempt(current, gerr, success, now)
		reason = current.OriginalFailureReason
		outcome = attemptOutcome(current)
		return current, nil
	})
	if errors.Is(err, ErrDuplicateAttempt) {
		slog.Info("retry_attempt_duplicate",
			"payment_intent_id", paymentIntentID,
			"gateway_attempt_id", gerr.AttemptID,
			"attempt", existing.CurrentAttempts,
		)
		return existing, err
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTerminal) {
			return model.RetryContext{}, err
		}
		return model.RetryContext{}, fmt.Errorf("update retry context %s: %w", paymentIntentID, err)
	}

	t.metrics.RetryAttempt(string(reason), outcome)

	event := "retry_attempt_recorded"
	if created {
		event = "retry_context_created"
	}
	slog.Info(event,
		"payment_intent_id", paymentIntentID,
		"order_id", rc.OrderID,
		"reason", rc.OriginalFailureReason,
		"strategy", rc.RetryStrategy,
		"attempt", rc.CurrentAttempts,
		"max_attempts", rc.MaxAttempts,
		"outcome", outcome,
		"next_retry_at", rc.NextRetryAt,
	)
	return rc, nil
}

// RecordFailure reports a failed attempt.
func (t *Tracker) RecordFailure(ctx context.Context, orderID int64, paymentIntentID string, gerr *model.GatewayError) (model.RetryContext, error) {
	return t.CreateOrUpdate(ctx, orderID, paymentIntentID, gerr, false)
}

// RecordSuccess ends the retry cycle of an existing context.
func (t *Tracker) RecordSuccess(ctx context.Context, paymentIntentID string) (model.RetryContext, error) {
	return t.CreateOrUpdate(ctx, 0, paymentIntentID, nil, true)
}

// Get returns the context for the payment intent or ErrNotFound.
func (t *Tracker) Get(ctx context.Context, paymentIntentID string) (model.RetryContext, error) {
	rc, ok, err := t.store.Get(ctx, paymentIntentID)
	if err != nil {
		return model.RetryContext{}, fmt.Errorf("get retry context %s: %w", paymentIntentID, err)
	}
	if !ok {
		return model.RetryContext{}, ErrNotFound
	}
	return rc, nil
}

// ListDue returns contexts whose next retry is at or before now, earliest first.
// It never mutates state.
func (t *Tracker) ListDue(ctx context.Context, now time.Time) ([]model.RetryContext, error) {
	all, err := t.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list retry contexts: %w", err)
	}

	due := make([]model.RetryContext, 0)
	for _, rc := range all {
		if rc.IsDue(now) {
			due = append(due, rc)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextRetryAt.Before(*due[j].NextRetryAt)
	})
	return due, nil
}

// Transition applies fn to an existing context under its lock.
func (t *Tracker) Transition(ctx context.Context, paymentIntentID string, fn func(rc *model.RetryContext) error) (model.RetryContext, error) {
	return t.store.Update(ctx, paymentIntentID, func(current *model.RetryContext) (*model.RetryContext, error) {
		if current == nil {
			return nil, ErrNotFound
		}
		if err := fn(current); err != nil {
			return nil, err
		}
		return current, nil
	})
}

// Statistics summarises every tracked context.
type Statistics struct {
	TotalContexts          int            `json:"total_retry_contexts"`
	SuccessfulRetries      int            `json:"successful_retries"`
	FinalFailures          int            `json:"final_failures"`
	PendingRetries         int            `json:"pending_retries"`
	SuccessRate            float64        `json:"success_rate"`
	FailureReasonBreakdown map[string]int `json:"failure_reason_breakdown"`
	Timestamp              time.Time      `json:"timestamp"`
}

// Statistics computes retry statistics at the current time.
func (t *Tracker) Statistics(ctx context.Context) (Statistics, error) {
	all, err := t.store.List(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("list retry contexts: %w", err)
	}

	now := t.now().UTC()
	stats := Statistics{
		TotalContexts:          len(all),
		FailureReasonBreakdown: make(map[string]int),
		Timestamp:              now,
	}
	for _, rc := range all {
		if rc.Succeeded() {
			stats.SuccessfulRetries++
		}
		if rc.FinalFailure {
			stats.FinalFailures++
		}
		if rc.IsDue(now) {
			stats.PendingRetries++
		}
		stats.FailureReasonBreakdown[string(rc.OriginalFailureReason)]++
	}
	if stats.TotalContexts > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRetries) / float64(stats.TotalContexts) * 100
	}
	return stats, nil
}

func newContext(orderID int64, paymentIntentID string, gerr *model.GatewayError, now time.Time) *model.RetryContext {
	reason := Classify(gerr)
	policy := PolicyFor(reason)

	attempt := model.RetryAttempt{
		AttemptNumber:    1,
		Timestamp:        now,
		FailureReason:    string(reason),
		GatewayErrorCode: errorCode(gerr, "unknown"),
		GatewayAttemptID: attemptID(gerr),
	}

	rc := &model.RetryContext{
		OrderID:               orderID,
		PaymentIntentID:       paymentIntentID,
		OriginalFailureReason: reason,
		RetryStrategy:         policy.Strategy,
		MaxAttempts:           policy.MaxAttempts,
		CurrentAttempts:       1,
		CreatedAt:             now,
	}

	if ShouldRetry(reason, rc.CurrentAttempts) {
		schedule(rc, &attempt, now)
	} else {
		rc.FinalFailure = true
	}
	rc.Attempts = []model.RetryAttempt{attempt}
	return rc
}

func appendAttempt(rc *model.RetryContext, gerr *model.GatewayError, success bool, now time.Time) {
	rc.CurrentAttempts++
	attempt := model.RetryAttempt{
		AttemptNumber:    rc.CurrentAttempts,
		Timestamp:        now,
		Success:          success,
		GatewayAttemptID: attemptID(gerr),
	}

	switch {
	case success:
		attempt.FailureReason = "success"
		attempt.GatewayErrorCode = "none"
		rc.NextRetryAt = nil
		rc.FinalFailure = false
	case ShouldRetry(rc.OriginalFailureReason, rc.CurrentAttempts):
		attempt.FailureReason = string(Classify(gerr))
		attempt.GatewayErrorCode = errorCode(gerr, "none")
		schedule(rc, &attempt, now)
	default:
		attempt.FailureReason = string(Classify(gerr))
		attempt.GatewayErrorCode = errorCode(gerr, "none")
		rc.NextRetryAt = nil
		rc.FinalFailure = true
	}

	rc.Attempts = append(rc.Attempts, attempt)
	last := now
	rc.LastRetryAt = &last
}

func schedule(rc *model.RetryContext, attempt *model.RetryAttempt, now time.Time) {
	delay := Delay(rc.RetryStrategy, rc.CurrentAttempts)
	next := now.Add(delay)
	attempt.RetryAfterSeconds = int(delay / time.Second)
	attempt.NextRetryTime = &next
	nextCopy := next
	rc.NextRetryAt = &nextCopy
}

func attemptOutcome(rc *model.RetryContext) string {
	switch {
	case rc.Succeeded():
		return "succeeded"
	case rc.FinalFailure:
		return "exhausted"
	default:
		return "scheduled"
	}
}

func errorCode(gerr *model.GatewayError, fallback string) string {
	if gerr == nil || gerr.Code == "" {
		return fallback
	}
	return gerr.Code
}

func attemptID(gerr *model.GatewayError) string {
	if gerr == nil {
		return ""
	}
	return gerr.AttemptID
}
