package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/health"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/orchestrator"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/order"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/ratelimit"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Orders is the order storage used by the HTTP API.
type Orders interface {
	Create(ctx context.Context, o model.Order) (model.Order, error)
	FindOrder(ctx context.Context, id int64) (model.Order, error)
}

// Deps holds HTTP handler dependencies.
type Deps struct {
	Orchestrator  *orchestrator.Orchestrator
	Tracker       *retry.Tracker
	Orders        Orders
	Limiter       *ratelimit.Limiter
	Monitor       *health.Monitor
	Store         ratelimit.Store
	Gatherer      prometheus.Gatherer
	WebhookSecret string
	Clock         func() time.Time
}

// Handler holds HTTP handler dependencies.
type Handler struct {
	orch          *orchestrator.Orchestrator
	tracker       *retry.Tracker
	orders        Orders
	limiter       *ratelimit.Limiter
	monitor       *health.Monitor
	store         ratelimit.Store
	gatherer      prometheus.Gatherer
	webhookSecret string
	now           func() time.Time
	validate      *validator.Validate
}

// New creates a new Handler.
func New(d Deps) *Handler {
	h := &Handler{
		orch:          d.Orchestrator,
		tracker:       d.Tracker,
		orders:        d.Orders,
		limiter:       d.Limiter,
		monitor:       d.Monitor,
		store:         d.Store,
		gatherer:      d.Gatherer,
		webhookSecret: d.WebhookSecret,
		now:           d.Clock,
		validate:      newValidator(),
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.gatherer == nil {
		h.gatherer = prometheus.DefaultGatherer
	}
	return h
}

// RegisterRoutes registers all API routes on the given mux. Every API route is
// wrapped by the rate limit of its endpoint category.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	h.route(mux, "POST /orders", ratelimit.CategoryPaymentIntent, h.CreateOrder)
	h.route(mux, "GET /orders/{id}", ratelimit.CategoryAnalytics, h.GetOrder)
	h.route(mux, "POST /payments", ratelimit.CategoryPaymentIntent, h.ProcessPayment)
	h.route(mux, "POST /payments/{id}/outcome", ratelimit.CategoryPaymentConfirm, h.ReportOutcome)
	h.route(mux, "GET /payments/{id}/retry", ratelimit.CategoryAnalytics, h.GetRetry)
	h.route(mux, "GET /retries/due", ratelimit.CategoryAnalytics, h.ListDueRetries)
	h.route(mux, "GET /retries/stats", ratelimit.CategoryAnalytics, h.RetryStats)
	h.route(mux, "GET /ratelimit/stats", ratelimit.CategoryAnalytics, h.RateLimitStats)
	h.route(mux, "GET /ratelimit/health", ratelimit.CategoryAnalytics, h.RateLimitHealth)
	h.route(mux, "POST /webhooks/stripe", ratelimit.CategoryWebhook, h.StripeWebhook)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

func (h *Handler) route(mux *http.ServeMux, pattern string, category ratelimit.Category, fn http.HandlerFunc) {
	if h.limiter == nil {
		mux.HandleFunc(pattern, fn)
		return
	}
	mux.Handle(pattern, h.limiter.Middleware(category, ratelimit.DefaultKey)(fn))
}

type createOrderRequest struct {
	CustomerName string `json:"customer_name" validate:"required,max=255"`
	Email        string `json:"email" validate:"required,email"`
	AmountCents  int64  `json:"amount_cents" validate:"required,min=1"`
	Currency     string `json:"currency" validate:"required,len=3,alpha"`
}

// CreateOrder handles POST /orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	o, err := h.orders.Create(r.Context(), model.Order{
		CustomerName: req.CustomerName,
		Email:        req.Email,
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
	})
	if err != nil {
		slog.Error("order_create_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create order")
		return
	}
	slog.Info("order_created", "order_id", o.ID, "amount_cents", o.AmountCents, "currency", o.Currency)
	writeJSON(w, http.StatusCreated, o)
}

// GetOrder handles GET /orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	o, err := h.orders.FindOrder(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type processPaymentRequest struct {
	OrderID         int64  `json:"order_id" validate:"required,min=1"`
	PaymentIntentID string `json:"payment_intent_id" validate:"required,max=255"`
}

// ProcessPayment handles POST /payments
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req processPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.orch.ProcessPayment(r.Context(), req.OrderID, req.PaymentIntentID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, resultStatus(result), result)
}

type gatewayErrorBody struct {
	Code        string `json:"code" validate:"max=100"`
	Type        string `json:"type" validate:"max=100"`
	DeclineCode string `json:"decline_code" validate:"max=100"`
	AttemptID   string `json:"attempt_id" validate:"max=255"`
}

type outcomeRequest struct {
	OrderID int64             `json:"order_id" validate:"omitempty,min=1"`
	Success bool              `json:"success"`
	Error   *gatewayErrorBody `json:"error"`
}

// ReportOutcome handles POST /payments/{id}/outcome
func (h *Handler) ReportOutcome(w http.ResponseWriter, r *http.Request) {
	intentID := r.PathValue("id")
	var req outcomeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.Success && req.OrderID == 0 {
		writeError(w, http.StatusBadRequest, "order_id is required for a failed attempt")
		return
	}

	var gerr *model.GatewayError
	if !req.Success && req.Error != nil {
		gerr = &model.GatewayError{
			Code:        req.Error.Code,
			Type:        req.Error.Type,
			DeclineCode: req.Error.DeclineCode,
			AttemptID:   req.Error.AttemptID,
		}
	}

	result, err := h.orch.RecordOutcome(r.Context(), req.OrderID, intentID, gerr, req.Success)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetRetry handles GET /payments/{id}/retry
func (h *Handler) GetRetry(w http.ResponseWriter, r *http.Request) {
	rc, err := h.tracker.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"retry_context": rc,
		"state":         rc.State(h.now()),
	})
}

// ListDueRetries handles GET /retries/due
func (h *Handler) ListDueRetries(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	due, err := h.tracker.ListDue(r.Context(), now)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"due":       due,
		"count":     len(due),
		"timestamp": now.UTC(),
	})
}

// RetryStats handles GET /retries/stats
func (h *Handler) RetryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tracker.Statistics(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// RateLimitStats handles GET /ratelimit/stats
func (h *Handler) RateLimitStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Stats())
}

// RateLimitHealth handles GET /ratelimit/health
func (h *Handler) RateLimitHealth(w http.ResponseWriter, r *http.Request) {
	report := h.monitor.Health(r.Context(), h.store)
	status := http.StatusOK
	if report.FunctionalityTest != "passed" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, retry.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, retry.ErrTerminal), errors.Is(err, orchestrator.ErrOrderPaid):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, retry.ErrMissingPaymentIntent):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func resultStatus(result orchestrator.Result) int {
	switch result.OrderStatus {
	case model.OrderPaid:
		return http.StatusOK
	case model.OrderPaymentPending:
		return http.StatusAccepted
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
