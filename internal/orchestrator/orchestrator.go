package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/gateway"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/notify"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/retry"
)

// ErrOrderPaid is returned when a payment is started for an order that is already paid.
var ErrOrderPaid = errors.New("order already paid")

// Orders is the order storage the orchestrator needs.
type Orders interface {
	FindOrder(ctx context.Context, id int64) (model.Order, error)
	UpdateStatus(ctx context.Context, id int64, status model.OrderStatus) error
}

// Notifier tells customers about failed payments.
type Notifier interface {
	Notify(ctx context.Context, paymentIntentID string) notify.Outcome
}

// Result is the outcome of one reported payment attempt.
type Result struct {
	OrderID         int64               `json:"order_id"`
	PaymentIntentID string              `json:"payment_intent_id"`
	Succeeded       bool                `json:"succeeded"`
	OrderStatus     model.OrderStatus   `json:"order_status"`
	FailureReason   model.FailureReason `json:"failure_reason,omitempty"`
	Retry           *model.RetryContext `json:"retry_context,omitempty"`
	Notification    *notify.Outcome     `json:"notification,omitempty"`
	Duplicate       bool                `json:"duplicate,omitempty"`
}

// Orchestrator drives payment attempts through the gateway and reports every
// outcome to the retry tracker.
type Orchestrator struct {
	tracker  *retry.Tracker
	gateway  gateway.Gateway
	orders   Orders
	notifier Notifier
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source used to find due retries.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates a new Orchestrator.
func New(tracker *retry.Tracker, gw gateway.Gateway, orders Orders, notifier Notifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tracker:  tracker,
		gateway:  gw,
		orders:   orders,
		notifier: notifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Gateway returns the gateway payments are confirmed with.
func (o *Orchestrator) Gateway() gateway.Gateway {
	return o.gateway
}

// ProcessPayment confirms the payment intent of an order and records the result.
func (o *Orchestrator) ProcessPayment(ctx context.Context, orderID int64, paymentIntentID string) (Result, error) {
	if paymentIntentID == "" {
		return Result{}, retry.ErrMissingPaymentIntent
	}
	order, err := o.orders.FindOrder(ctx, orderID)
	if err != nil {
		return Result{}, fmt.Errorf("load order %d: %w", orderID, err)
	}
	if order.Status == model.OrderPaid {
		return Result{}, ErrOrderPaid
	}

	slog.Info("payment_attempt",
		"order_id", orderID,
		"payment_intent_id", paymentIntentID,
		"gateway", o.gateway.Name(),
	)
	confirmErr := o.gateway.Confirm(ctx, paymentIntentID)
	if confirmErr == nil {
		return o.RecordOutcome(ctx, orderID, paymentIntentID, nil, true)
	}
	return o.RecordOutcome(ctx, orderID, paymentIntentID, gateway.FromError(confirmErr), false)
}

// RecordOutcome reports an attempt made elsewhere, such as a gateway webhook,
// and moves the order to the matching status.
func (o *Orchestrator) RecordOutcome(ctx context.Context, orderID int64, paymentIntentID string, gerr *model.GatewayError, success bool) (Result, error) {
	if success {
		return o.recordSuccess(ctx, orderID, paymentIntentID)
	}
	return o.recordFailure(ctx, orderID, paymentIntentID, gerr)
}

func (o *Orchestrator) recordSuccess(ctx context.Context, orderID int64, paymentIntentID string) (Result, error) {
	result := Result{
		OrderID:         orderID,
		PaymentIntentID: paymentIntentID,
		Succeeded:       true,
		OrderStatus:     model.OrderPaid,
	}

	rc, err := o.tracker.RecordSuccess(ctx, paymentIntentID)
	switch {
	case errors.Is(err, retry.ErrNotFound):
		// First-try success: nothing was ever retried.
	case err != nil:
		return Result{}, err
	default:
		result.Retry = &rc
		if orderID == 0 {
			result.OrderID = rc.OrderID
		}
	}

	slog.Info("payment_approved",
		"order_id", result.OrderID,
		"payment_intent_id", paymentIntentID,
		"total_attempts", attemptsOf(result.Retry),
	)
	o.updateOrder(ctx, result.OrderID, model.OrderPaid)
	return result, nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, orderID int64, paymentIntentID string, gerr *model.GatewayError) (Result, error) {
	rc, err := o.tracker.RecordFailure(ctx, orderID, paymentIntentID, gerr)
	if errors.Is(err, retry.ErrDuplicateAttempt) {
		// The first report already notified the customer and updated the order.
		result := failureResult(paymentIntentID, rc)
		result.Duplicate = true
		return result, nil
	}
	if err != nil {
		return Result{}, err
	}

	result := failureResult(paymentIntentID, rc)
	if rc.FinalFailure {
		slog.Warn("retries_exhausted",
			"order_id", rc.OrderID,
			"payment_intent_id", paymentIntentID,
			"reason", rc.OriginalFailureReason,
			"total_attempts", rc.CurrentAttempts,
		)
	} else {
		slog.Warn("retriable_failure",
			"order_id", rc.OrderID,
			"payment_intent_id", paymentIntentID,
			"reason", rc.OriginalFailureReason,
			"attempt", rc.CurrentAttempts,
			"next_retry_at", rc.NextRetryAt,
		)
	}

	if o.notifier != nil {
		n := o.notifier.Notify(ctx, paymentIntentID)
		result.Notification = &n
	}
	o.updateOrder(ctx, rc.OrderID, result.OrderStatus)
	return result, nil
}

func failureResult(paymentIntentID string, rc model.RetryContext) Result {
	result := Result{
		OrderID:         rc.OrderID,
		PaymentIntentID: paymentIntentID,
		OrderStatus:     model.OrderPaymentPending,
		FailureReason:   rc.OriginalFailureReason,
		Retry:           &rc,
	}
	if rc.FinalFailure {
		result.OrderStatus = model.OrderPaymentFailed
	}
	return result
}

// RetryDue confirms every context whose next retry time has passed. Failures of
// single retries are logged and do not stop the batch.
func (o *Orchestrator) RetryDue(ctx context.Context) ([]Result, error) {
	due, err := o.tracker.ListDue(ctx, o.now())
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, nil
	}

	slog.Info("retry_batch_started", "due", len(due), "gateway", o.gateway.Name())
	results := make([]Result, 0, len(due))
	for _, rc := range due {
		if ctx.Err() != nil {
			break
		}
		slog.Info("payment_retry",
			"order_id", rc.OrderID,
			"payment_intent_id", rc.PaymentIntentID,
			"attempt", rc.CurrentAttempts+1,
			"max_attempts", rc.MaxAttempts,
		)

		var res Result
		if confirmErr := o.gateway.Confirm(ctx, rc.PaymentIntentID); confirmErr == nil {
			res, err = o.RecordOutcome(ctx, rc.OrderID, rc.PaymentIntentID, nil, true)
		} else {
			res, err = o.RecordOutcome(ctx, rc.OrderID, rc.PaymentIntentID, gateway.FromError(confirmErr), false)
		}
		if err != nil {
			slog.Error("payment_retry_failed",
				"payment_intent_id", rc.PaymentIntentID,
				"error", err,
			)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// Run calls RetryDue every interval until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.RetryDue(ctx); err != nil {
				slog.Error("retry_batch_failed", "error", err)
			}
		}
	}
}

func (o *Orchestrator) updateOrder(ctx context.Context, orderID int64, status model.OrderStatus) {
	if orderID == 0 {
		return
	}
	if err := o.orders.UpdateStatus(ctx, orderID, status); err != nil {
		slog.Warn("order_status_update_failed",
			"order_id", orderID,
			"status", status,
			"error", err,
		)
	}
}

func attemptsOf(rc *model.RetryContext) int {
	if rc == nil {
		return 1
	}
	return rc.CurrentAttempts
}
