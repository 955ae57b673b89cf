// internal/circulation/domain.go
package circulation

import (
	"libradesk/internal/store"
)

// Loan rules.
const (
	LoanPeriodDays = 14
	MaxOpenBorrows = 5
)

// Fee quote statuses for the non-overdue outcomes.
const (
	StatusInvalidPatron = "Invalid patron ID"
	StatusNotBorrowed   = "Book not currently borrowed by this patron"
	StatusNotOverdue    = "Book is not overdue"
)

// FeeQuote is an on-demand late fee estimate for one loan.
type FeeQuote struct {
	FeeAmount   float64 `json:"fee_amount"`
	DaysOverdue int     `json:"days_overdue"`
	Status      string  `json:"status"`
}

// Checkout is a successful borrow.
type Checkout struct {
	store.BorrowRecord
	Title   string `json:"title"`
	Message string `json:"message"`
}

const (
	msgInvalidPatron      = "Invalid patron ID. Must be exactly 6 digits."
	msgBookNotFound       = "Book not found."
	msgUnavailable        = "This book is currently not available."
	msgLimitReached       = "You have reached the maximum borrowing limit of 5 books."
	msgNotBorrowed        = "You do not have this book borrowed."
	msgLoadFailed         = "Database error occurred while loading borrow records."
	msgRecordFailed       = "Database error occurred while creating borrow record."
	msgReturnFailed       = "Database error occurred while updating return record."
	msgAvailabilityFailed = "Database error occurred while updating book availability."
)
