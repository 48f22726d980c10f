package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/gateway"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/retry"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const maxWebhookBody = 65536

// StripeWebhook handles POST /webhooks/stripe. Failed and succeeded payment
// intents are reported to the retry tracker; other events are acknowledged.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret == "" {
		writeError(w, http.StatusServiceUnavailable, "webhook secret not configured")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		slog.Warn("webhook_signature_invalid", "error", err)
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentSucceeded:
	default:
		slog.Info("webhook_event_ignored", "event_id", event.ID, "type", event.Type)
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	var pi stripe.PaymentIntent
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &pi) != nil || pi.ID == "" {
		writeError(w, http.StatusBadRequest, "invalid payment intent payload")
		return
	}
	orderID, _ := strconv.ParseInt(pi.Metadata["order_id"], 10, 64)

	success := event.Type == stripe.EventTypePaymentIntentSucceeded
	var gerr *model.GatewayError
	if !success {
		if orderID == 0 {
			writeError(w, http.StatusBadRequest, "payment intent metadata has no order_id")
			return
		}
		gerr = &model.GatewayError{}
		if pi.LastPaymentError != nil {
			gerr = gateway.FromError(pi.LastPaymentError)
		}
		if gerr.AttemptID == "" && pi.LatestCharge != nil {
			gerr.AttemptID = pi.LatestCharge.ID
		}
	}

	slog.Info("webhook_event_received",
		"event_id", event.ID,
		"type", event.Type,
		"payment_intent_id", pi.ID,
		"order_id", orderID,
	)
	result, err := h.orch.RecordOutcome(r.Context(), orderID, pi.ID, gerr, success)
	if errors.Is(err, retry.ErrTerminal) {
		// Redelivered events for a finished payment are acknowledged.
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
		return
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": result.Duplicate, "result": result})
}
