// Package notify tells customers about failed payments, at most once per
// payment intent.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/metrics"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/retry"
)

// Status is the result of a notification attempt.
type Status string

const (
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome reports what Notify did.
type Outcome struct {
	Status         Status `json:"status"`
	Reason         string `json:"reason,omitempty"`
	ActionRequired bool   `json:"action_required"`
	Message        string `json:"message,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
}

// Decision is what the customer should be told for a retry context.
type Decision struct {
	Notify         bool
	ActionRequired bool
	Message        string
}

// Decide builds the customer message from the failure policy and the context's strategy.
func Decide(policy retry.Policy, strategy model.RetryStrategy) Decision {
	d := Decision{
		Notify:         policy.NotifyCustomer,
		ActionRequired: strategy.ActionRequired(),
	}
	if d.ActionRequired {
		d.Message = policy.Message + " Please update your payment method and try again."
	} else {
		d.Message = policy.Message + " We'll notify you when the payment is processed."
	}
	return d
}

var (
	errNotRequired     = errors.New("notification not required")
	errAlreadyNotified = errors.New("customer already notified")
)

// Notifier sends payment failure emails.
type Notifier struct {
	tracker *retry.Tracker
	orders  OrderLookup
	sender  Sender
	siteURL string
	logger  *slog.Logger
	metrics *metrics.Metrics
	newID   func() string
}

// Option configures a Notifier.
type Option func(*Notifier)

func WithSiteURL(url string) Option {
	return func(n *Notifier) { n.siteURL = url }
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) { n.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// NewNotifier creates a notifier.
func NewNotifier(tracker *retry.Tracker, orders OrderLookup, sender Sender, opts ...Option) *Notifier {
	n := &Notifier{
		tracker: tracker,
		orders:  orders,
		sender:  sender,
		siteURL: "http://localhost:8080",
		logger:  slog.Default(),
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	return n
}

// Notify emails the customer about the payment intent's failure when its
// original failure reason calls for it. The notified flag is set before
// sending, so a transport failure is not retried.
func (n *Notifier) Notify(ctx context.Context, paymentIntentID string) Outcome {
	out := n.notify(ctx, paymentIntentID)
	n.metrics.Notification(string(out.Status))
	return out
}

func (n *Notifier) notify(ctx context.Context, paymentIntentID string) Outcome {
	rc, err := n.tracker.Get(ctx, paymentIntentID)
	if err != nil {
		n.logger.Error("notification_context_lookup_failed", "payment_intent_id", paymentIntentID, "error", err)
		return Outcome{Status: StatusFailed, Reason: err.Error()}
	}

	d := Decide(retry.PolicyFor(rc.OriginalFailureReason), rc.RetryStrategy)
	out := Outcome{ActionRequired: d.ActionRequired, Message: d.Message}
	if !d.Notify {
		out.Status = StatusSkipped
		out.Reason = errNotRequired.Error()
		return out
	}
	if rc.CustomerNotified {
		out.Status = StatusSkipped
		out.Reason = errAlreadyNotified.Error()
		return out
	}

	order, err := n.orders.FindOrder(ctx, rc.OrderID)
	if err != nil {
		n.logger.Error("notification_order_lookup_failed",
			"payment_intent_id", paymentIntentID,
			"order_id", rc.OrderID,
			"error", err,
		)
		out.Status = StatusFailed
		out.Reason = fmt.Sprintf("order %d: %v", rc.OrderID, err)
		return out
	}

	subject, body, err := renderEmail(order, d, n.siteURL)
	if err != nil {
		out.Status = StatusFailed
		out.Reason = err.Error()
		return out
	}

	_, err = n.tracker.Transition(ctx, paymentIntentID, func(current *model.RetryContext) error {
		if !Decide(retry.PolicyFor(current.OriginalFailureReason), current.RetryStrategy).Notify {
			return errNotRequired
		}
		if current.CustomerNotified {
			return errAlreadyNotified
		}
		current.CustomerNotified = true
		return nil
	})
	switch {
	case errors.Is(err, errNotRequired), errors.Is(err, errAlreadyNotified):
		out.Status = StatusSkipped
		out.Reason = err.Error()
		return out
	case err != nil:
		out.Status = StatusFailed
		out.Reason = err.Error()
		return out
	}

	email := Email{
		NotificationID:  n.newID(),
		To:              order.Email,
		Subject:         subject,
		HTML:            body,
		OrderID:         order.ID,
		PaymentIntentID: paymentIntentID,
	}
	out.NotificationID = email.NotificationID

	if err := n.sender.Send(ctx, email); err != nil {
		n.logger.Error("notification_send_failed",
			"payment_intent_id", paymentIntentID,
			"order_id", order.ID,
			"notification_id", email.NotificationID,
			"error", err,
		)
		out.Status = StatusFailed
		out.Reason = err.Error()
		return out
	}

	n.logger.Info("notification_sent",
		"payment_intent_id", paymentIntentID,
		"order_id", order.ID,
		"notification_id", email.NotificationID,
		"action_required", d.ActionRequired,
		"subject", subject,
	)
	out.Status = StatusSent
	return out
}
