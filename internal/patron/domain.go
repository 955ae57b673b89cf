// internal/patron/domain.go
package patron

import (
	"time"
)

// IDLength is the number of digits on a library card.
const IDLength = 6

// Report statuses.
const (
	StatusInvalidID = "Invalid patron ID"
	StatusActive    = "Active"
	StatusNoBooks   = "No books currently borrowed"
)

// simpleFeeCentsPerDay is the flat rate used by the status report.
const simpleFeeCentsPerDay = 50

// ValidID reports whether id is exactly six ASCII digits.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

// SimpleLateFee is the status report's estimate: 0.50 per overdue day with no
// tiers and no cap. It is not the fee a patron is charged.
func SimpleLateFee(daysOverdue int) float64 {
	return centsToAmount(simpleFeeCents(daysOverdue))
}

func simpleFeeCents(daysOverdue int) int {
	if daysOverdue <= 0 {
		return 0
	}
	return daysOverdue * simpleFeeCentsPerDay
}

func centsToAmount(cents int) float64 {
	return float64(cents) / 100
}

// BorrowedBookStatus is one open loan in a status report.
type BorrowedBookStatus struct {
	BookID      int64     `json:"book_id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	BorrowDate  time.Time `json:"borrow_date"`
	DueDate     time.Time `json:"due_date"`
	IsOverdue   bool      `json:"is_overdue"`
	DaysOverdue int       `json:"days_overdue"`
	LateFee     float64   `json:"late_fee"`
}

// HistoryEntry is one loan, open or closed, in the patron's history.
type HistoryEntry struct {
	BookID     int64      `json:"book_id"`
	Title      string     `json:"title"`
	Author     string     `json:"author"`
	BorrowDate time.Time  `json:"borrow_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
}

// StatusReport summarises what a patron currently holds and owes.
type StatusReport struct {
	PatronID           string               `json:"patron_id"`
	BorrowedBooks      []BorrowedBookStatus `json:"borrowed_books"`
	TotalBooksBorrowed int                  `json:"total_books_borrowed"`
	TotalLateFees      float64              `json:"total_late_fees"`
	Status             string               `json:"status"`
	BorrowHistory      []HistoryEntry       `json:"borrow_history"`
}
