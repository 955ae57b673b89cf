// Package storetest provides throwaway stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"libradesk/internal/store"
	"libradesk/internal/store/sqlite"
)

// NewSQLite returns a migrated SQLite store in a temp dir that is closed when
// the test ends.
func NewSQLite(t testing.TB) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

// MustAddBook inserts a book with all copies available and returns its id.
func MustAddBook(t testing.TB, st store.Queries, title, author, isbn string, copies int) int64 {
	t.Helper()
	id, err := st.InsertBook(context.Background(), &store.Book{
		Title:           title,
		Author:          author,
		ISBN:            isbn,
		TotalCopies:     copies,
		AvailableCopies: copies,
	})
	if err != nil {
		t.Fatalf("insert book: %v", err)
	}
	return id
}
