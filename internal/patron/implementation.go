// internal/patron/implementation.go
package patron

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libradesk/internal/apperr"
	"libradesk/internal/store"
)

// service implements the Service interface.
type service struct {
	store  store.Queries
	now    func() time.Time
	log    logrus.FieldLogger
	tracer trace.Tracer
}

// Option configures a patron service.
type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *service) { s.log = log }
}

// NewService creates a new patron service instance.
func NewService(q store.Queries, opts ...Option) Service {
	s := &service{
		store:  q,
		now:    time.Now,
		log:    logrus.StandardLogger(),
		tracer: otel.Tracer("libradesk/patron"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status builds the patron's report from their open loans and history.
func (s *service) Status(ctx context.Context, patronID string) (*StatusReport, error) {
	ctx, span := s.tracer.Start(ctx, "patron.status",
		trace.WithAttributes(attribute.String("patron.id", patronID)))
	defer span.End()

	if !ValidID(patronID) {
		return &StatusReport{
			PatronID:      patronID,
			BorrowedBooks: []BorrowedBookStatus{},
			BorrowHistory: []HistoryEntry{},
			Status:        StatusInvalidID,
		}, nil
	}

	now := s.now()
	open, err := s.store.ListOpenBorrows(ctx, patronID, now)
	if err != nil {
		return nil, s.storageFailure(span, patronID, err)
	}
	history, err := s.store.ListBorrowHistory(ctx, patronID)
	if err != nil {
		return nil, s.storageFailure(span, patronID, err)
	}

	totalCents := 0
	books := lo.Map(open, func(b *store.BorrowedBook, _ int) BorrowedBookStatus {
		st := BorrowedBookStatus{
			BookID:     b.BookID,
			Title:      b.Title,
			Author:     b.Author,
			BorrowDate: b.BorrowDate,
			DueDate:    b.DueDate,
			IsOverdue:  b.IsOverdue,
		}
		if b.IsOverdue {
			st.DaysOverdue = store.DaysOverdue(b.DueDate, now)
			cents := simpleFeeCents(st.DaysOverdue)
			st.LateFee = centsToAmount(cents)
			totalCents += cents
		}
		return st
	})

	report := &StatusReport{
		PatronID:           patronID,
		BorrowedBooks:      books,
		TotalBooksBorrowed: len(books),
		TotalLateFees:      centsToAmount(totalCents),
		Status:             StatusNoBooks,
		BorrowHistory: lo.Map(history, func(b *store.BorrowedBook, _ int) HistoryEntry {
			return HistoryEntry{
				BookID:     b.BookID,
				Title:      b.Title,
				Author:     b.Author,
				BorrowDate: b.BorrowDate,
				DueDate:    b.DueDate,
				ReturnDate: b.ReturnDate,
			}
		}),
	}
	if report.TotalBooksBorrowed > 0 {
		report.Status = StatusActive
	}

	span.SetAttributes(
		attribute.Int("books.borrowed", report.TotalBooksBorrowed),
		attribute.Float64("fees.total", report.TotalLateFees),
	)
	return report, nil
}

func (s *service) storageFailure(span trace.Span, patronID string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.log.WithError(err).WithField("patron_id", patronID).Error("failed to load borrow records")
	return apperr.Wrap(apperr.ErrStorage, "Database error occurred while loading patron status.", err)
}
