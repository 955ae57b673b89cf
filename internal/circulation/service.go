// internal/circulation/service.go
package circulation

import (
	"context"
)

// Service defines the interface for the circulation service.
type Service interface {
	BorrowBook(ctx context.Context, patronID string, bookID int64) (*Checkout, error)
	// ReturnBook returns the confirmation message.
	ReturnBook(ctx context.Context, patronID string, bookID int64) (string, error)
	// CalculateLateFee reports business outcomes in the quote's status; only
	// storage failures are returned as errors.
	CalculateLateFee(ctx context.Context, patronID string, bookID int64) (*FeeQuote, error)
}
