// internal/payments/domain.go
package payments

import (
	"context"

	"libradesk/internal/circulation"
	"libradesk/internal/store"
)

// TransactionPrefix starts every transaction id the gateway issues.
const TransactionPrefix = "txn_"

// Gateway is the external payment processor. A non-nil error is a transport
// fault; a declined charge or refund is a result with Success false.
type Gateway interface {
	ProcessPayment(ctx context.Context, patronID string, amount float64, description string) (PaymentResult, error)
	RefundPayment(ctx context.Context, transactionID string, amount float64) (RefundResult, error)
}

// PaymentResult is the gateway's answer to a charge.
type PaymentResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message"`
}

// RefundResult is the gateway's answer to a refund.
type RefundResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PaymentReceipt is a successful late fee payment.
type PaymentReceipt struct {
	Message       string  `json:"message"`
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
}

// FeeQuoter quotes the fee owed on a loan.
type FeeQuoter interface {
	CalculateLateFee(ctx context.Context, patronID string, bookID int64) (*circulation.FeeQuote, error)
}

// BookFinder looks up a catalog entry.
type BookFinder interface {
	GetBook(ctx context.Context, id int64) (*store.Book, error)
}

const (
	msgInvalidPatron     = "Invalid patron ID. Must be exactly 6 digits."
	msgFeeUnavailable    = "Unable to calculate late fees."
	msgNoFees            = "No late fees to pay for this book."
	msgInvalidTxn        = "Invalid transaction ID."
	msgRefundNotPositive = "Refund amount must be greater than 0."
	msgRefundTooLarge    = "Refund amount exceeds maximum late fee."
)
