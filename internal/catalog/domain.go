// internal/catalog/domain.go
package catalog

import (
	"libradesk/internal/store"
)

// Admission limits.
const (
	MaxTitleLength  = 200
	MaxAuthorLength = 100
	ISBNLength      = 13
)

// SearchType selects the field a search term is matched against.
type SearchType string

const (
	SearchByTitle  SearchType = "title"
	SearchByAuthor SearchType = "author"
	SearchByISBN   SearchType = "isbn"
)

// Valid reports whether t is one of the known search types.
func (t SearchType) Valid() bool {
	switch t {
	case SearchByTitle, SearchByAuthor, SearchByISBN:
		return true
	}
	return false
}

// Admission is the outcome of adding a book to the catalog.
type Admission struct {
	Book    *store.Book `json:"book"`
	Message string      `json:"message"`
}

const (
	msgTitleRequired  = "Title is required."
	msgTitleTooLong   = "Title must be less than 200 characters."
	msgAuthorRequired = "Author is required."
	msgAuthorTooLong  = "Author must be less than 100 characters."
	msgISBNLength     = "ISBN must be exactly 13 digits."
	msgCopies         = "Total copies must be a positive integer."
	msgDuplicateISBN  = "A book with this ISBN already exists."
	msgAddFailed      = "Database error occurred while adding the book."
	msgBookNotFound   = "Book not found."
	msgLoadFailed     = "Database error occurred while loading the catalog."
)
