// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

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
	log    logrus.FieldLogger
	tracer trace.Tracer
}

// Option configures a catalog service.
type Option func(*service)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *service) { s.log = log }
}

// NewService creates a new catalog service instance.
func NewService(q store.Queries, opts ...Option) Service {
	s := &service{
		store:  q,
		log:    logrus.StandardLogger(),
		tracer: otel.Tracer("libradesk/catalog"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddBook validates a new title and adds it with every copy available.
func (s *service) AddBook(ctx context.Context, title, author, isbn string, totalCopies int) (*Admission, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.add_book",
		trace.WithAttributes(attribute.String("book.isbn", isbn), attribute.Int("book.total_copies", totalCopies)))
	defer span.End()

	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if err := validateAdmission(title, author, isbn, totalCopies); err != nil {
		span.SetAttributes(attribute.String("rejected", apperr.CodeOf(err)))
		return nil, err
	}

	log := s.log.WithField("isbn", isbn)

	_, err := s.store.GetBookByISBN(ctx, isbn)
	switch {
	case err == nil:
		log.Info("rejected duplicate isbn")
		return nil, apperr.New(apperr.ErrAlreadyExists, msgDuplicateISBN)
	case !errors.Is(err, store.ErrNotFound):
		return nil, s.storageFailure(span, log, msgAddFailed, err)
	}

	book := &store.Book{
		Title:           title,
		Author:          author,
		ISBN:            isbn,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
	}
	book.ID, err = s.store.InsertBook(ctx, book)
	if errors.Is(err, store.ErrDuplicateISBN) {
		log.Info("rejected duplicate isbn on insert")
		return nil, apperr.New(apperr.ErrAlreadyExists, msgDuplicateISBN)
	}
	if err != nil {
		return nil, s.storageFailure(span, log, msgAddFailed, err)
	}

	span.SetAttributes(attribute.Int64("book.id", book.ID))
	log.WithField("book_id", book.ID).Info("book added to catalog")
	return &Admission{
		Book:    book,
		Message: fmt.Sprintf(`Book "%s" has been successfully added to the catalog.`, title),
	}, nil
}

// validateAdmission applies the admission rules in order; the first failure
// wins. title and author are already trimmed.
func validateAdmission(title, author, isbn string, totalCopies int) error {
	switch {
	case title == "":
		return apperr.New(apperr.ErrInvalidInput, msgTitleRequired)
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return apperr.New(apperr.ErrInvalidInput, msgTitleTooLong)
	case author == "":
		return apperr.New(apperr.ErrInvalidInput, msgAuthorRequired)
	case utf8.RuneCountInString(author) > MaxAuthorLength:
		return apperr.New(apperr.ErrInvalidInput, msgAuthorTooLong)
	case utf8.RuneCountInString(isbn) != ISBNLength:
		return apperr.New(apperr.ErrInvalidInput, msgISBNLength)
	case totalCopies <= 0:
		return apperr.New(apperr.ErrInvalidInput, msgCopies)
	}
	return nil
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, id int64) (*store.Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.get_book", trace.WithAttributes(attribute.Int64("book.id", id)))
	defer span.End()

	return s.lookup(span, s.log.WithField("book_id", id), func() (*store.Book, error) {
		return s.store.GetBookByID(ctx, id)
	})
}

// GetBookByISBN retrieves a book by its ISBN.
func (s *service) GetBookByISBN(ctx context.Context, isbn string) (*store.Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.get_book_by_isbn", trace.WithAttributes(attribute.String("book.isbn", isbn)))
	defer span.End()

	return s.lookup(span, s.log.WithField("isbn", isbn), func() (*store.Book, error) {
		return s.store.GetBookByISBN(ctx, isbn)
	})
}

func (s *service) lookup(span trace.Span, log logrus.FieldLogger, get func() (*store.Book, error)) (*store.Book, error) {
	book, err := get()
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Wrap(apperr.ErrNotFound, msgBookNotFound, err)
	}
	if err != nil {
		return nil, s.storageFailure(span, log, msgLoadFailed, err)
	}
	return book, nil
}

// ListBooks returns the catalog in insertion order.
func (s *service) ListBooks(ctx context.Context) ([]*store.Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list_books")
	defer span.End()

	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, s.storageFailure(span, s.log, msgLoadFailed, err)
	}
	if books == nil {
		books = []*store.Book{}
	}
	return books, nil
}

// Search finds books in the catalog. Title and author match on a
// case-insensitive substring, isbn only on the exact value.
func (s *service) Search(ctx context.Context, term string, searchType SearchType) ([]*store.Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.search",
		trace.WithAttributes(attribute.String("search.type", string(searchType))))
	defer span.End()

	term = strings.TrimSpace(term)
	if term == "" || !searchType.Valid() {
		return []*store.Book{}, nil
	}

	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, s.storageFailure(span, s.log.WithField("search_type", searchType), msgLoadFailed, err)
	}

	needle := strings.ToLower(term)
	matches := lo.Filter(books, func(b *store.Book, _ int) bool {
		switch searchType {
		case SearchByTitle:
			return strings.Contains(strings.ToLower(b.Title), needle)
		case SearchByAuthor:
			return strings.Contains(strings.ToLower(b.Author), needle)
		default:
			return b.ISBN == term
		}
	})

	span.SetAttributes(attribute.Int("search.results", len(matches)))
	return matches, nil
}

func (s *service) storageFailure(span trace.Span, log logrus.FieldLogger, msg string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.WithError(err).Error(msg)
	return apperr.Wrap(apperr.ErrStorage, msg, err)
}
