package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"libradesk/internal/store"
)

// queries implements store.Queries against either the pool or a transaction.
type queries struct {
	db dbtx
}

const bookColumns = `id, title, author, isbn, total_copies, available_copies`

func scanBook(row interface{ Scan(...any) error }) (*store.Book, error) {
	var b store.Book
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.TotalCopies, &b.AvailableCopies); err != nil {
		return nil, err
	}
	return &b, nil
}

func (q queries) getBook(ctx context.Context, where string, arg any) (*store.Book, error) {
	b, err := scanBook(q.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

func (q queries) GetBookByID(ctx context.Context, id int64) (*store.Book, error) {
	return q.getBook(ctx, `id = ?`, id)
}

func (q queries) GetBookByISBN(ctx context.Context, isbn string) (*store.Book, error) {
	return q.getBook(ctx, `isbn = ?`, isbn)
}

func (q queries) ListBooks(ctx context.Context) ([]*store.Book, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []*store.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (q queries) InsertBook(ctx context.Context, b *store.Book) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO books(title, author, isbn, total_copies, available_copies) VALUES(?,?,?,?,?)`,
		b.Title, b.Author, b.ISBN, b.TotalCopies, b.AvailableCopies)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, store.ErrDuplicateISBN
		}
		return 0, fmt.Errorf("insert book: %w", err)
	}
	return res.LastInsertId()
}

func (q queries) UpdateAvailability(ctx context.Context, bookID int64, delta int) error {
	res, err := q.db.ExecContext(ctx, `
        UPDATE books SET available_copies = available_copies + ?
        WHERE id = ? AND available_copies + ? BETWEEN 0 AND total_copies`,
		delta, bookID, delta)
	if err != nil {
		return fmt.Errorf("update availability: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := q.GetBookByID(ctx, bookID); err != nil {
			return err
		}
		return store.ErrAvailabilityRange
	}
	return nil
}

func (q queries) InsertBorrowRecord(ctx context.Context, patronID string, bookID int64, borrowDate, dueDate time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO borrow_records(patron_id, book_id, borrow_date, due_date) VALUES(?,?,?,?)`,
		patronID, bookID, borrowDate.UTC(), dueDate.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert borrow record: %w", err)
	}
	return res.LastInsertId()
}

func (q queries) UpdateReturnDate(ctx context.Context, patronID string, bookID int64, returnDate time.Time) error {
	res, err := q.db.ExecContext(ctx, `
        UPDATE borrow_records SET return_date = ?
        WHERE id = (
            SELECT id FROM borrow_records
            WHERE patron_id = ? AND book_id = ? AND return_date IS NULL
            ORDER BY borrow_date, id LIMIT 1
        )`, returnDate.UTC(), patronID, bookID)
	if err != nil {
		return fmt.Errorf("update return date: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNoOpenRecord
	}
	return nil
}

func (q queries) CountOpenBorrows(ctx context.Context, patronID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM borrow_records WHERE patron_id = ? AND return_date IS NULL`, patronID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open borrows: %w", err)
	}
	return n, nil
}

func (q queries) ListOpenBorrows(ctx context.Context, patronID string, now time.Time) ([]*store.BorrowedBook, error) {
	books, err := q.listBorrowed(ctx, `
        SELECT r.id, r.patron_id, r.book_id, r.borrow_date, r.due_date, r.return_date, b.title, b.author
        FROM borrow_records r JOIN books b ON b.id = r.book_id
        WHERE r.patron_id = ? AND r.return_date IS NULL
        ORDER BY r.borrow_date, r.id`, patronID)
	if err != nil {
		return nil, err
	}
	store.MarkOverdue(books, now)
	return books, nil
}

func (q queries) ListBorrowHistory(ctx context.Context, patronID string) ([]*store.BorrowedBook, error) {
	return q.listBorrowed(ctx, `
        SELECT r.id, r.patron_id, r.book_id, r.borrow_date, r.due_date, r.return_date, b.title, b.author
        FROM borrow_records r JOIN books b ON b.id = r.book_id
        WHERE r.patron_id = ?
        ORDER BY r.borrow_date DESC, r.id DESC`, patronID)
}

func (q queries) listBorrowed(ctx context.Context, query, patronID string) ([]*store.BorrowedBook, error) {
	rows, err := q.db.QueryContext(ctx, query, patronID)
	if err != nil {
		return nil, fmt.Errorf("list borrow records: %w", err)
	}
	defer rows.Close()

	var books []*store.BorrowedBook
	for rows.Next() {
		var (
			b        store.BorrowedBook
			returned sql.NullTime
		)
		if err := rows.Scan(&b.ID, &b.PatronID, &b.BookID, &b.BorrowDate, &b.DueDate, &returned, &b.Title, &b.Author); err != nil {
			return nil, fmt.Errorf("scan borrow record: %w", err)
		}
		if returned.Valid {
			t := returned.Time
			b.ReturnDate = &t
		}
		books = append(books, &b)
	}
	return books, rows.Err()
}
