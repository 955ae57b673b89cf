// Package store defines the persistence contract the library services run
// against: a books catalog table and a borrow ledger table.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateISBN     = errors.New("duplicate isbn")
	ErrAvailabilityRange = errors.New("available copies out of range")
	ErrNoOpenRecord      = errors.New("no open borrow record")
)

// Book is a catalog row.
type Book struct {
	ID              int64  `json:"id" db:"id"`
	Title           string `json:"title" db:"title"`
	Author          string `json:"author" db:"author"`
	ISBN            string `json:"isbn" db:"isbn"`
	TotalCopies     int    `json:"total_copies" db:"total_copies"`
	AvailableCopies int    `json:"available_copies" db:"available_copies"`
}

// BorrowRecord is a borrow ledger row. A nil ReturnDate means the book is
// still out.
type BorrowRecord struct {
	ID         int64      `json:"id" db:"id"`
	PatronID   string     `json:"patron_id" db:"patron_id"`
	BookID     int64      `json:"book_id" db:"book_id"`
	BorrowDate time.Time  `json:"borrow_date" db:"borrow_date"`
	DueDate    time.Time  `json:"due_date" db:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty" db:"return_date"`
}

// Open reports whether the record has not been returned yet.
func (r BorrowRecord) Open() bool { return r.ReturnDate == nil }

// BorrowedBook is a borrow record joined with its book.
type BorrowedBook struct {
	BorrowRecord
	Title     string `json:"title" db:"title"`
	Author    string `json:"author" db:"author"`
	IsOverdue bool   `json:"is_overdue" db:"-"`
}

// Queries is the set of single-statement operations. Implementations return
// ErrNotFound for missing rows rather than nil values.
type Queries interface {
	GetBookByID(ctx context.Context, id int64) (*Book, error)
	GetBookByISBN(ctx context.Context, isbn string) (*Book, error)
	ListBooks(ctx context.Context) ([]*Book, error)
	// InsertBook returns the new id. A unique violation on isbn is
	// ErrDuplicateISBN.
	InsertBook(ctx context.Context, b *Book) (int64, error)
	// UpdateAvailability adds delta to available_copies. It fails with
	// ErrAvailabilityRange instead of leaving [0, total_copies].
	UpdateAvailability(ctx context.Context, bookID int64, delta int) error
	InsertBorrowRecord(ctx context.Context, patronID string, bookID int64, borrowDate, dueDate time.Time) (int64, error)
	// UpdateReturnDate closes the oldest open record for the pair, or returns
	// ErrNoOpenRecord.
	UpdateReturnDate(ctx context.Context, patronID string, bookID int64, returnDate time.Time) error
	CountOpenBorrows(ctx context.Context, patronID string) (int, error)
	// ListOpenBorrows returns the patron's open records with IsOverdue
	// computed against now.
	ListOpenBorrows(ctx context.Context, patronID string, now time.Time) ([]*BorrowedBook, error)
	// ListBorrowHistory returns every record of the patron, newest first.
	ListBorrowHistory(ctx context.Context, patronID string) ([]*BorrowedBook, error)
}

// Store is a Queries that can also scope several calls into one transaction.
type Store interface {
	Queries
	// WithinTx runs fn against a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(q Queries) error) error
	Migrate(ctx context.Context) error
	Close() error
}

// MarkOverdue sets IsOverdue on open records whose due date is before now.
func MarkOverdue(books []*BorrowedBook, now time.Time) {
	for _, b := range books {
		b.IsOverdue = b.Open() && now.After(b.DueDate)
	}
}

// DaysOverdue returns the number of whole days between due and now, or 0 when
// now is not past due.
func DaysOverdue(due, now time.Time) int {
	if !now.After(due) {
		return 0
	}
	return int(now.Sub(due) / (24 * time.Hour))
}
