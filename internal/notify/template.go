package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
)

var emailTemplate = template.Must(template.New("payment_update").Parse(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <div style="background: #f8f9fa; padding: 20px; border-radius: 8px; margin-bottom: 20px;">
      <h2 style="color: #007bff; margin: 0;">Payment Update Required</h2>
    </div>
    <p>Dear {{.CustomerName}},</p>
    <p>We encountered an issue processing your payment for Order #{{.OrderID}}.</p>
    {{if .ActionRequired}}<div style="background: #fff3cd; border: 1px solid #ffeaa7; border-radius: 5px; padding: 15px; margin: 20px 0;">
      <h4 style="margin: 0 0 10px 0; color: #856404;">Action Required</h4>{{else}}<div style="background: #d1ecf1; border: 1px solid #bee5eb; border-radius: 5px; padding: 15px; margin: 20px 0;">
      <h4 style="margin: 0 0 10px 0; color: #0c5460;">Automatic Retry in Progress</h4>{{end}}
      <p style="margin: 0;">{{.Message}}</p>
    </div>
    <div style="margin: 20px 0;">
      <h4>Order Details:</h4>
      <ul>
        <li><strong>Order ID:</strong> #{{.OrderID}}</li>
        <li><strong>Amount:</strong> {{.Amount}}</li>
        <li><strong>Date:</strong> {{.Date}}</li>
      </ul>
    </div>
    {{if .ActionRequired}}<div style="text-align: center; margin: 30px 0;">
      <a href="{{.UpdateURL}}" style="background: #007bff; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Update Payment Method</a>
    </div>{{end}}
    <p style="margin-top: 30px;">If you have any questions, please contact our support team.<br>Thank you for your business!</p>
    <div style="margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666;">
      FlashStudio - Professional Video Production Services
    </div>
  </div>
</body>
</html>
`))

type emailData struct {
	CustomerName   string
	OrderID        int64
	Amount         string
	Date           string
	Message        string
	ActionRequired bool
	UpdateURL      string
}

func renderEmail(order model.Order, d Decision, siteURL string) (subject, body string, err error) {
	data := emailData{
		CustomerName:   order.CustomerName,
		OrderID:        order.ID,
		Amount:         formatAmount(order.AmountCents, order.Currency),
		Date:           order.CreatedAt.UTC().Format("2006-01-02 15:04"),
		Message:        d.Message,
		ActionRequired: d.ActionRequired,
		UpdateURL:      fmt.Sprintf("%s/checkout?order_id=%d", strings.TrimRight(siteURL, "/"), order.ID),
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render payment email: %w", err)
	}
	return fmt.Sprintf("Payment Update - Order #%d", order.ID), buf.String(), nil
}

func formatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	amount := fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
	switch strings.ToLower(currency) {
	case "", "usd":
		return "$" + amount
	default:
		return amount + " " + strings.ToUpper(currency)
	}
}
