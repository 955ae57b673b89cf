// internal/catalog/service.go
package catalog

import (
	"context"

	"libradesk/internal/store"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddBook(ctx context.Context, title, author, isbn string, totalCopies int) (*Admission, error)
	GetBook(ctx context.Context, id int64) (*store.Book, error)
	GetBookByISBN(ctx context.Context, isbn string) (*store.Book, error)
	ListBooks(ctx context.Context) ([]*store.Book, error)
	// Search returns an empty slice for a blank term or an unknown type.
	Search(ctx context.Context, term string, searchType SearchType) ([]*store.Book, error)
}
