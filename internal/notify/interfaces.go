package notify

//go:generate mockgen -source=interfaces.go -destination=../mocks/mock_notify/mock_interfaces.go -package=mock_notify

import (
	"context"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
)

// Email is one rendered customer message.
type Email struct {
	NotificationID  string
	To              string
	Subject         string
	HTML            string
	OrderID         int64
	PaymentIntentID string
}

// Sender delivers rendered emails.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// OrderLookup finds the order a payment belongs to.
type OrderLookup interface {
	FindOrder(ctx context.Context, id int64) (model.Order, error)
}
