package notify

import (
	"context"
	"log/slog"
)

// LogSender writes emails to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, email Email) error {
	s.logger.InfoContext(ctx, "payment email issued",
		"notification_id", email.NotificationID,
		"to", email.To,
		"subject", email.Subject,
		"order_id", email.OrderID,
		"payment_intent_id", email.PaymentIntentID,
		"html_bytes", len(email.HTML),
	)
	return nil
}
