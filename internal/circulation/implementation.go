// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"libradesk/internal/apperr"
	"libradesk/internal/patron"
	"libradesk/internal/store"
	"libradesk/internal/telemetry"
)

// service implements the Service interface.
type service struct {
	store  store.Store
	now    func() time.Time
	log    logrus.FieldLogger
	tracer trace.Tracer

	borrows  metric.Int64Counter
	returns  metric.Int64Counter
	rejected metric.Int64Counter
}

// Option configures a circulation service.
type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *service) { s.log = log }
}

// NewService creates a new circulation service instance.
func NewService(st store.Store, opts ...Option) Service {
	meter := otel.Meter("libradesk/circulation")
	s := &service{
		store:    st,
		now:      time.Now,
		log:      logrus.StandardLogger(),
		tracer:   otel.Tracer("libradesk/circulation"),
		borrows:  telemetry.Counter(meter, "libradesk.circulation.borrows", "Books borrowed."),
		returns:  telemetry.Counter(meter, "libradesk.circulation.returns", "Books returned."),
		rejected: telemetry.Counter(meter, "libradesk.circulation.rejected", "Borrow and return requests refused, by code."),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BorrowBook checks the patron, the book and the patron's limit, then records
// the loan and takes a copy off the shelf in one transaction.
func (s *service) BorrowBook(ctx context.Context, patronID string, bookID int64) (*Checkout, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.borrow_book", trace.WithAttributes(
		attribute.String("patron.id", patronID),
		attribute.Int64("book.id", bookID),
	))
	defer span.End()

	log := s.log.WithFields(logrus.Fields{"patron_id": patronID, "book_id": bookID})

	if !patron.ValidID(patronID) {
		return nil, s.reject(ctx, span, log, "borrow", apperr.New(apperr.ErrInvalidPatron, msgInvalidPatron))
	}

	borrowDate := s.now()
	dueDate := borrowDate.AddDate(0, 0, LoanPeriodDays)

	var checkout *Checkout
	err := s.store.WithinTx(ctx, func(q store.Queries) error {
		book, err := s.getBook(ctx, q, bookID)
		if err != nil {
			return err
		}
		if book.AvailableCopies <= 0 {
			return apperr.New(apperr.ErrUnavailable, msgUnavailable)
		}

		open, err := q.CountOpenBorrows(ctx, patronID)
		if err != nil {
			return apperr.Wrap(apperr.ErrStorage, msgLoadFailed, err)
		}
		if open >= MaxOpenBorrows {
			return apperr.New(apperr.ErrLimitReached, msgLimitReached)
		}

		id, err := q.InsertBorrowRecord(ctx, patronID, bookID, borrowDate, dueDate)
		if err != nil {
			return apperr.Wrap(apperr.ErrStorage, msgRecordFailed, err)
		}

		// The decrement is conditional, so a copy taken since the read above
		// surfaces here and rolls the record back.
		if err := q.UpdateAvailability(ctx, bookID, -1); err != nil {
			if errors.Is(err, store.ErrAvailabilityRange) {
				return apperr.New(apperr.ErrUnavailable, msgUnavailable)
			}
			return apperr.Wrap(apperr.ErrStorage, msgAvailabilityFailed, err)
		}

		checkout = &Checkout{
			BorrowRecord: store.BorrowRecord{
				ID:         id,
				PatronID:   patronID,
				BookID:     bookID,
				BorrowDate: borrowDate,
				DueDate:    dueDate,
			},
			Title:   book.Title,
			Message: fmt.Sprintf(`Successfully borrowed "%s". Due date: %s.`, book.Title, dueDate.Format(time.DateOnly)),
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, log, "borrow", msgRecordFailed, err)
	}

	s.borrows.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("borrow.id", checkout.ID))
	log.WithField("due_date", checkout.DueDate.Format(time.DateOnly)).Info("book borrowed")
	return checkout, nil
}

// ReturnBook closes the patron's open loan of the book and puts the copy back
// on the shelf in one transaction.
func (s *service) ReturnBook(ctx context.Context, patronID string, bookID int64) (string, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return_book", trace.WithAttributes(
		attribute.String("patron.id", patronID),
		attribute.Int64("book.id", bookID),
	))
	defer span.End()

	log := s.log.WithFields(logrus.Fields{"patron_id": patronID, "book_id": bookID})

	if !patron.ValidID(patronID) {
		return "", s.reject(ctx, span, log, "return", apperr.New(apperr.ErrInvalidPatron, msgInvalidPatron))
	}

	returnDate := s.now()

	var title string
	err := s.store.WithinTx(ctx, func(q store.Queries) error {
		book, err := s.getBook(ctx, q, bookID)
		if err != nil {
			return err
		}
		title = book.Title

		open, err := q.ListOpenBorrows(ctx, patronID, returnDate)
		if err != nil {
			return apperr.Wrap(apperr.ErrStorage, msgLoadFailed, err)
		}
		if !lo.ContainsBy(open, func(b *store.BorrowedBook) bool { return b.BookID == bookID }) {
			return apperr.New(apperr.ErrNotBorrowed, msgNotBorrowed)
		}

		if err := q.UpdateReturnDate(ctx, patronID, bookID, returnDate); err != nil {
			if errors.Is(err, store.ErrNoOpenRecord) {
				return apperr.New(apperr.ErrNotBorrowed, msgNotBorrowed)
			}
			return apperr.Wrap(apperr.ErrStorage, msgReturnFailed, err)
		}
		if err := q.UpdateAvailability(ctx, bookID, 1); err != nil {
			return apperr.Wrap(apperr.ErrStorage, msgAvailabilityFailed, err)
		}
		return nil
	})
	if err != nil {
		return "", s.fail(ctx, span, log, "return", msgReturnFailed, err)
	}

	s.returns.Add(ctx, 1)
	log.Info("book returned")
	return fmt.Sprintf(`Successfully returned "%s".`, title), nil
}

// CalculateLateFee quotes the tiered fee for the patron's open loan of the
// book. When the patron holds several, the oldest is quoted.
func (s *service) CalculateLateFee(ctx context.Context, patronID string, bookID int64) (*FeeQuote, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.calculate_late_fee", trace.WithAttributes(
		attribute.String("patron.id", patronID),
		attribute.Int64("book.id", bookID),
	))
	defer span.End()

	if !patron.ValidID(patronID) {
		return &FeeQuote{Status: StatusInvalidPatron}, nil
	}

	now := s.now()
	open, err := s.store.ListOpenBorrows(ctx, patronID, now)
	if err != nil {
		log := s.log.WithFields(logrus.Fields{"patron_id": patronID, "book_id": bookID})
		return nil, s.fail(ctx, span, log, "fee", msgLoadFailed, err)
	}

	loan, found := lo.Find(open, func(b *store.BorrowedBook) bool { return b.BookID == bookID })
	switch {
	case !found:
		return &FeeQuote{Status: StatusNotBorrowed}, nil
	case !loan.IsOverdue:
		return &FeeQuote{Status: StatusNotOverdue}, nil
	}

	days := store.DaysOverdue(loan.DueDate, now)
	quote := &FeeQuote{
		FeeAmount:   TieredLateFee(days),
		DaysOverdue: days,
		Status:      fmt.Sprintf("Overdue by %d day(s)", days),
	}
	span.SetAttributes(attribute.Int("fee.days_overdue", days), attribute.Float64("fee.amount", quote.FeeAmount))
	return quote, nil
}

func (s *service) getBook(ctx context.Context, q store.Queries, bookID int64) (*store.Book, error) {
	book, err := q.GetBookByID(ctx, bookID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.ErrNotFound, msgBookNotFound)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStorage, msgLoadFailed, err)
	}
	return book, nil
}

// reject records a refused request. Rule rejections are expected traffic and
// log at info.
func (s *service) reject(ctx context.Context, span trace.Span, log logrus.FieldLogger, op string, err *apperr.Error) error {
	s.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("code", err.Code),
	))
	span.SetAttributes(attribute.String("rejected", err.Code))
	log.WithField("code", err.Code).Info(err.Message)
	return err
}

// fail sorts a transaction error into a rejection or a storage failure. Errors
// outside the taxonomy, such as a failed commit, become storage errors with
// fallback as their message.
func (s *service) fail(ctx context.Context, span trace.Span, log logrus.FieldLogger, op, fallback string, err error) error {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Wrap(apperr.ErrStorage, fallback, err)
	}
	if appErr.Kind != apperr.KindStorage {
		return s.reject(ctx, span, log, op, appErr)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, appErr.Message)
	log.WithError(err).Error(appErr.Message)
	return appErr
}
