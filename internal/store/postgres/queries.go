package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libradesk/internal/store"
)

// queries implements store.Queries against either the pool or a transaction.
type queries struct {
	db     sqlx.ExtContext
	tracer trace.Tracer
}

var bookColumns = []any{"id", "title", "author", "isbn", "total_copies", "available_copies"}

var borrowedColumns = []any{
	goqu.I("r.id"), goqu.I("r.patron_id"), goqu.I("r.book_id"),
	goqu.I("r.borrow_date"), goqu.I("r.due_date"), goqu.I("r.return_date"),
	goqu.I("b.title"), goqu.I("b.author"),
}

func (q queries) getBook(ctx context.Context, name string, where goqu.Expression, attrs ...attribute.KeyValue) (*store.Book, error) {
	ctx, span := q.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	query, args, err := dialect.From(tableBooks).Select(bookColumns...).Where(where).Prepared(true).ToSQL()
	if err != nil {
		return nil, fail(span, fmt.Errorf("build query: %w", err))
	}

	var b store.Book
	if err := sqlx.GetContext(ctx, q.db, &b, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fail(span, fmt.Errorf("get book: %w", err))
	}
	return &b, nil
}

func (q queries) GetBookByID(ctx context.Context, id int64) (*store.Book, error) {
	return q.getBook(ctx, "store.get_book", goqu.C("id").Eq(id), attribute.Int64("book.id", id))
}

func (q queries) GetBookByISBN(ctx context.Context, isbn string) (*store.Book, error) {
	return q.getBook(ctx, "store.get_book_by_isbn", goqu.C("isbn").Eq(isbn), attribute.String("book.isbn", isbn))
}

func (q queries) ListBooks(ctx context.Context) ([]*store.Book, error) {
	ctx, span := q.tracer.Start(ctx, "store.list_books")
	defer span.End()

	query, args, err := dialect.From(tableBooks).Select(bookColumns...).Order(goqu.C("id").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, fail(span, fmt.Errorf("build query: %w", err))
	}

	var books []*store.Book
	if err := sqlx.SelectContext(ctx, q.db, &books, query, args...); err != nil {
		return nil, fail(span, fmt.Errorf("list books: %w", err))
	}
	span.SetAttributes(attribute.Int("books.loaded", len(books)))
	return books, nil
}

func (q queries) InsertBook(ctx context.Context, b *store.Book) (int64, error) {
	ctx, span := q.tracer.Start(ctx, "store.insert_book",
		trace.WithAttributes(attribute.String("book.isbn", b.ISBN)))
	defer span.End()

	query, args, err := dialect.Insert(tableBooks).Rows(goqu.Record{
		"title":            b.Title,
		"author":           b.Author,
		"isbn":             b.ISBN,
		"total_copies":     b.TotalCopies,
		"available_copies": b.AvailableCopies,
	}).Returning("id").Prepared(true).ToSQL()
	if err != nil {
		return 0, fail(span, fmt.Errorf("build query: %w", err))
	}

	var id int64
	if err := q.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		// Check for unique constraint violation (race on isbn)
		if isUniqueViolation(err) {
			return 0, store.ErrDuplicateISBN
		}
		return 0, fail(span, fmt.Errorf("insert book: %w", err))
	}
	span.SetAttributes(attribute.Int64("book.id", id))
	return id, nil
}

func (q queries) UpdateAvailability(ctx context.Context, bookID int64, delta int) error {
	ctx, span := q.tracer.Start(ctx, "store.update_availability",
		trace.WithAttributes(attribute.Int64("book.id", bookID), attribute.Int("delta", delta)))
	defer span.End()

	query, args, err := dialect.Update(tableBooks).
		Set(goqu.Record{"available_copies": goqu.L("available_copies + ?", delta)}).
		Where(
			goqu.C("id").Eq(bookID),
			goqu.L("available_copies + ? BETWEEN 0 AND total_copies", delta),
		).Prepared(true).ToSQL()
	if err != nil {
		return fail(span, fmt.Errorf("build query: %w", err))
	}

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fail(span, fmt.Errorf("update availability: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fail(span, err)
	}
	if n == 0 {
		if _, err := q.GetBookByID(ctx, bookID); err != nil {
			return err
		}
		span.SetAttributes(attribute.Bool("range.violation", true))
		return store.ErrAvailabilityRange
	}
	return nil
}

func (q queries) InsertBorrowRecord(ctx context.Context, patronID string, bookID int64, borrowDate, dueDate time.Time) (int64, error) {
	ctx, span := q.tracer.Start(ctx, "store.insert_borrow_record",
		trace.WithAttributes(attribute.String("patron.id", patronID), attribute.Int64("book.id", bookID)))
	defer span.End()

	query, args, err := dialect.Insert(tableBorrows).Rows(goqu.Record{
		"patron_id":   patronID,
		"book_id":     bookID,
		"borrow_date": borrowDate.UTC(),
		"due_date":    dueDate.UTC(),
	}).Returning("id").Prepared(true).ToSQL()
	if err != nil {
		return 0, fail(span, fmt.Errorf("build query: %w", err))
	}

	var id int64
	if err := q.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fail(span, fmt.Errorf("insert borrow record: %w", err))
	}
	return id, nil
}

func (q queries) UpdateReturnDate(ctx context.Context, patronID string, bookID int64, returnDate time.Time) error {
	ctx, span := q.tracer.Start(ctx, "store.update_return_date",
		trace.WithAttributes(attribute.String("patron.id", patronID), attribute.Int64("book.id", bookID)))
	defer span.End()

	oldestOpen := dialect.From(tableBorrows).Select("id").
		Where(
			goqu.C("patron_id").Eq(patronID),
			goqu.C("book_id").Eq(bookID),
			goqu.C("return_date").IsNull(),
		).
		Order(goqu.C("borrow_date").Asc(), goqu.C("id").Asc()).
		Limit(1)

	query, args, err := dialect.Update(tableBorrows).
		Set(goqu.Record{"return_date": returnDate.UTC()}).
		Where(goqu.C("id").In(oldestOpen)).
		Prepared(true).ToSQL()
	if err != nil {
		return fail(span, fmt.Errorf("build query: %w", err))
	}

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fail(span, fmt.Errorf("update return date: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fail(span, err)
	}
	if n == 0 {
		return store.ErrNoOpenRecord
	}
	return nil
}

func (q queries) CountOpenBorrows(ctx context.Context, patronID string) (int, error) {
	ctx, span := q.tracer.Start(ctx, "store.count_open_borrows",
		trace.WithAttributes(attribute.String("patron.id", patronID)))
	defer span.End()

	query, args, err := dialect.From(tableBorrows).Select(goqu.COUNT("*")).
		Where(goqu.C("patron_id").Eq(patronID), goqu.C("return_date").IsNull()).
		Prepared(true).ToSQL()
	if err != nil {
		return 0, fail(span, fmt.Errorf("build query: %w", err))
	}

	var n int
	if err := sqlx.GetContext(ctx, q.db, &n, query, args...); err != nil {
		return 0, fail(span, fmt.Errorf("count open borrows: %w", err))
	}
	span.SetAttributes(attribute.Int("borrows.open", n))
	return n, nil
}

func (q queries) ListOpenBorrows(ctx context.Context, patronID string, now time.Time) ([]*store.BorrowedBook, error) {
	ds := q.borrowedDataset(patronID).
		Where(goqu.I("r.return_date").IsNull()).
		Order(goqu.I("r.borrow_date").Asc(), goqu.I("r.id").Asc())

	books, err := q.listBorrowed(ctx, "store.list_open_borrows", patronID, ds)
	if err != nil {
		return nil, err
	}
	store.MarkOverdue(books, now)
	return books, nil
}

func (q queries) ListBorrowHistory(ctx context.Context, patronID string) ([]*store.BorrowedBook, error) {
	ds := q.borrowedDataset(patronID).
		Order(goqu.I("r.borrow_date").Desc(), goqu.I("r.id").Desc())
	return q.listBorrowed(ctx, "store.list_borrow_history", patronID, ds)
}

func (q queries) borrowedDataset(patronID string) *goqu.SelectDataset {
	return dialect.From(goqu.T(tableBorrows).As("r")).
		Join(goqu.T(tableBooks).As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("r.book_id")))).
		Select(borrowedColumns...).
		Where(goqu.I("r.patron_id").Eq(patronID))
}

func (q queries) listBorrowed(ctx context.Context, name, patronID string, ds *goqu.SelectDataset) ([]*store.BorrowedBook, error) {
	ctx, span := q.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("patron.id", patronID)))
	defer span.End()

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fail(span, fmt.Errorf("build query: %w", err))
	}

	var books []*store.BorrowedBook
	if err := sqlx.SelectContext(ctx, q.db, &books, query, args...); err != nil {
		return nil, fail(span, fmt.Errorf("list borrow records: %w", err))
	}
	span.SetAttributes(attribute.Int("records.loaded", len(books)))
	return books, nil
}
