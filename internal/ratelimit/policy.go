package ratelimit

import (
	"fmt"
	"time"
)

// Category groups endpoints that share a limit.
type Category string

const (
	CategoryPaymentIntent  Category = "payment_intent"
	CategoryPaymentConfirm Category = "payment_confirm"
	CategoryWebhook        Category = "webhook"
	CategoryAnalytics      Category = "analytics"
)

// Policy is the ceiling of one category.
type Policy struct {
	Requests      int64         `json:"limit"`
	Window        time.Duration `json:"-"`
	BlockDuration time.Duration `json:"-"`
}

// DefaultPolicies returns the limits applied to every client.
func DefaultPolicies() map[Category]Policy {
	return map[Category]Policy{
		CategoryPaymentIntent:  {Requests: 10, Window: 5 * time.Minute, BlockDuration: 15 * time.Minute},
		CategoryPaymentConfirm: {Requests: 5, Window: 5 * time.Minute, BlockDuration: 30 * time.Minute},
		CategoryWebhook:        {Requests: 100, Window: time.Minute, BlockDuration: 5 * time.Minute},
		CategoryAnalytics:      {Requests: 50, Window: 5 * time.Minute, BlockDuration: 10 * time.Minute},
	}
}

// Validate rejects policies that could never allow or never reset. A block
// must last at least one window so the request after it starts a fresh window.
func (p Policy) Validate() error {
	if p.Requests <= 0 {
		return fmt.Errorf("requests must be positive, got %d", p.Requests)
	}
	if p.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", p.Window)
	}
	if p.BlockDuration <= 0 {
		return fmt.Errorf("block duration must be positive, got %s", p.BlockDuration)
	}
	if p.BlockDuration < p.Window {
		return fmt.Errorf("block duration %s is shorter than window %s", p.BlockDuration, p.Window)
	}
	return nil
}

func blockKey(c Category, client string) string {
	return "rate_limit:block:" + string(c) + ":" + client
}

func countKey(c Category, client string) string {
	return "rate_limit:count:" + string(c) + ":" + client
}
