// internal/payments/service.go
package payments

import (
	"context"
)

// Service defines the interface for the payments service.
type Service interface {
	PayLateFee(ctx context.Context, patronID string, bookID int64) (*PaymentReceipt, error)
	// RefundPayment returns the gateway's confirmation message.
	RefundPayment(ctx context.Context, transactionID string, amount float64) (string, error)
}
