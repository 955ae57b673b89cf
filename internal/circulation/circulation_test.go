package circulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"libradesk/internal/apperr"
	"libradesk/internal/store"
	"libradesk/internal/store/storetest"
)

var t0 = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T) (Service, store.Store, *testClock) {
	t.Helper()
	st := storetest.NewSQLite(t)
	clock := &testClock{now: t0}
	return NewService(st, WithClock(clock.Now)), st, clock
}

func available(t *testing.T, st store.Queries, id int64) int {
	t.Helper()
	b, err := st.GetBookByID(context.Background(), id)
	require.NoError(t, err)
	return b.AvailableCopies
}

func TestTieredLateFee(t *testing.T) {
	tests := []struct {
		days int
		want float64
	}{
		{-1, 0},
		{0, 0},
		{1, 0.50},
		{5, 2.50},
		{7, 3.50},
		{8, 4.50},
		{10, 6.50},
		{18, 14.50},
		{19, 15.00},
		{30, 15.00},
		{365, 15.00},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TieredLateFee(tt.days), "TieredLateFee(%d)", tt.days)
	}
}

func TestTieredLateFeeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		days := rapid.IntRange(0, 10000).Draw(t, "days")
		fee := TieredLateFee(days)

		want := min(15.0, 0.5*float64(min(days, 7))+1.0*float64(max(days-7, 0)))
		if fee != want {
			t.Fatalf("TieredLateFee(%d) = %v, want %v", days, fee, want)
		}
		if fee < 0 || fee > MaxLateFee {
			t.Fatalf("TieredLateFee(%d) = %v out of range", days, fee)
		}
		if next := TieredLateFee(days + 1); next < fee {
			t.Fatalf("fee decreased from %v to %v at day %d", fee, next, days+1)
		}
	})
}

func TestBorrowAndReturnScenario(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	id := storetest.MustAddBook(t, st, "The Catcher in the Rye", "J.D. Salinger", "9780316769175", 3)

	checkout, err := svc.BorrowBook(ctx, "123456", id)
	require.NoError(t, err)
	assert.Equal(t, `Successfully borrowed "The Catcher in the Rye". Due date: 2025-06-15.`, checkout.Message)
	assert.Equal(t, t0.AddDate(0, 0, 14), checkout.DueDate)
	assert.Equal(t, 2, available(t, st, id))

	msg, err := svc.ReturnBook(ctx, "123456", id)
	require.NoError(t, err)
	assert.Equal(t, `Successfully returned "The Catcher in the Rye".`, msg)
	assert.Equal(t, 3, available(t, st, id))
}

func TestBorrowRejections(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	single := storetest.MustAddBook(t, st, "Single Copy", "Author", "1000000000001", 1)

	_, err := svc.BorrowBook(ctx, "12345", single)
	assert.ErrorIs(t, err, apperr.ErrInvalidPatron)
	assert.Equal(t, msgInvalidPatron, err.Error())

	_, err = svc.BorrowBook(ctx, "abcdef", single)
	assert.ErrorIs(t, err, apperr.ErrInvalidPatron)

	_, err = svc.BorrowBook(ctx, "123456", 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, msgBookNotFound, err.Error())

	_, err = svc.BorrowBook(ctx, "123456", single)
	require.NoError(t, err)

	_, err = svc.BorrowBook(ctx, "654321", single)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.Equal(t, msgUnavailable, err.Error())
	assert.Equal(t, 0, available(t, st, single))
}

func TestBorrowLimit(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	ids := make([]int64, 6)
	for i := range ids {
		ids[i] = storetest.MustAddBook(t, st, fmt.Sprintf("Book %d", i), "Author", fmt.Sprintf("10000000000%02d", i), 2)
	}

	for i := 0; i < 4; i++ {
		_, err := svc.BorrowBook(ctx, "123456", ids[i])
		require.NoError(t, err)
	}

	// With four open loans the fifth still succeeds.
	_, err := svc.BorrowBook(ctx, "123456", ids[4])
	require.NoError(t, err)

	_, err = svc.BorrowBook(ctx, "123456", ids[5])
	assert.ErrorIs(t, err, apperr.ErrLimitReached)
	assert.Equal(t, msgLimitReached, err.Error())
	assert.Equal(t, 2, available(t, st, ids[5]))

	// Returning one frees a slot.
	_, err = svc.ReturnBook(ctx, "123456", ids[0])
	require.NoError(t, err)
	_, err = svc.BorrowBook(ctx, "123456", ids[5])
	assert.NoError(t, err)
}

func TestReturnRejections(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	id := storetest.MustAddBook(t, st, "Book", "Author", "1000000000001", 2)

	_, err := svc.ReturnBook(ctx, "12a456", id)
	assert.ErrorIs(t, err, apperr.ErrInvalidPatron)

	_, err = svc.ReturnBook(ctx, "123456", 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.ReturnBook(ctx, "123456", id)
	assert.ErrorIs(t, err, apperr.ErrNotBorrowed)
	assert.Equal(t, msgNotBorrowed, err.Error())

	_, err = svc.BorrowBook(ctx, "123456", id)
	require.NoError(t, err)
	_, err = svc.ReturnBook(ctx, "123456", id)
	require.NoError(t, err)

	// The only record for the pair is closed now.
	_, err = svc.ReturnBook(ctx, "123456", id)
	assert.ErrorIs(t, err, apperr.ErrNotBorrowed)
	assert.Equal(t, 2, available(t, st, id))
}

func TestDuplicateOpenLoansCloseOldestFirst(t *testing.T) {
	svc, st, clock := newTestService(t)
	ctx := context.Background()
	id := storetest.MustAddBook(t, st, "Book", "Author", "1000000000001", 2)

	_, err := svc.BorrowBook(ctx, "123456", id)
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)
	_, err = svc.BorrowBook(ctx, "123456", id)
	require.NoError(t, err)
	assert.Equal(t, 0, available(t, st, id))

	// Twenty days after the first loan only that one is overdue.
	clock.now = t0.AddDate(0, 0, 20)
	quote, err := svc.CalculateLateFee(ctx, "123456", id)
	require.NoError(t, err)
	assert.Equal(t, 6, quote.DaysOverdue)

	_, err = svc.ReturnBook(ctx, "123456", id)
	require.NoError(t, err)

	quote, err = svc.CalculateLateFee(ctx, "123456", id)
	require.NoError(t, err)
	assert.Equal(t, 5, quote.DaysOverdue)
	assert.Equal(t, 1, available(t, st, id))
}

func TestCalculateLateFee(t *testing.T) {
	svc, st, clock := newTestService(t)
	ctx := context.Background()
	id := storetest.MustAddBook(t, st, "Book", "Author", "1000000000001", 1)
	other := storetest.MustAddBook(t, st, "Other", "Author", "1000000000002", 1)

	quote, err := svc.CalculateLateFee(ctx, "bad", id)
	require.NoError(t, err)
	assert.Equal(t, &FeeQuote{Status: StatusInvalidPatron}, quote)

	quote, err = svc.CalculateLateFee(ctx, "123456", id)
	require.NoError(t, err)
	assert.Equal(t, &FeeQuote{Status: StatusNotBorrowed}, quote)

	_, err = svc.BorrowBook(ctx, "123456", id)
	require.NoError(t, err)
	_, err = svc.BorrowBook(ctx, "123456", other)
	require.NoError(t, err)

	// Exactly at the due date the loan is not overdue yet.
	clock.now = t0.AddDate(0, 0, LoanPeriodDays)
	quote, err = svc.CalculateLateFee(ctx, "123456", id)
	require.NoError(t, err)
	assert.Equal(t, &FeeQuote{Status: StatusNotOverdue}, quote)

	due := t0.AddDate(0, 0, LoanPeriodDays)
	tests := []struct {
		after time.Duration
		days  int
		fee   float64
	}{
		{time.Hour, 0, 0},
		{5*24*time.Hour + time.Hour, 5, 2.50},
		{10*24*time.Hour + 23*time.Hour, 10, 6.50},
		{30 * 24 * time.Hour, 30, 15.00},
	}
	for _, tt := range tests {
		clock.now = due.Add(tt.after)
		quote, err := svc.CalculateLateFee(ctx, "123456", id)
		require.NoError(t, err)
		assert.Equal(t, tt.days, quote.DaysOverdue)
		assert.Equal(t, tt.fee, quote.FeeAmount)
		assert.Equal(t, fmt.Sprintf("Overdue by %d day(s)", tt.days), quote.Status)
	}

	// Another patron's loan does not count.
	quote, err = svc.CalculateLateFee(ctx, "654321", id)
	require.NoError(t, err)
	assert.Equal(t, StatusNotBorrowed, quote.Status)
}

// staleStore hands out book rows that still show every copy on the shelf,
// the view of a request that read the row before a concurrent borrow.
type staleStore struct{ store.Store }

func (s staleStore) WithinTx(ctx context.Context, fn func(store.Queries) error) error {
	return s.Store.WithinTx(ctx, func(q store.Queries) error { return fn(staleQueries{q}) })
}

type staleQueries struct{ store.Queries }

func (q staleQueries) GetBookByID(ctx context.Context, id int64) (*store.Book, error) {
	b, err := q.Queries.GetBookByID(ctx, id)
	if err == nil {
		b.AvailableCopies = b.TotalCopies
	}
	return b, err
}

func TestConcurrentBorrowsNeverOverbook(t *testing.T) {
	svc, st, _ := newTestService(t)
	id := storetest.MustAddBook(t, st, "Popular", "Author", "9780000000001", 3)

	const patrons = 20
	var (
		wg         sync.WaitGroup
		borrowed   atomic.Int32
		unexpected = make(chan error, patrons)
	)
	for i := 0; i < patrons; i++ {
		wg.Add(1)
		go func(patronID string) {
			defer wg.Done()
			_, err := svc.BorrowBook(context.Background(), patronID, id)
			switch {
			case err == nil:
				borrowed.Add(1)
			case !errors.Is(err, apperr.ErrUnavailable):
				unexpected <- err
			}
		}(fmt.Sprintf("%06d", 100000+i))
	}
	wg.Wait()
	close(unexpected)

	for err := range unexpected {
		t.Errorf("unexpected borrow error: %v", err)
	}
	assert.Equal(t, int32(3), borrowed.Load())
	assert.Equal(t, 0, available(t, st, id))
}

func TestBorrowLostRaceRollsBack(t *testing.T) {
	st := storetest.NewSQLite(t)
	ctx := context.Background()
	id := storetest.MustAddBook(t, st, "Last Copy", "Author", "1000000000001", 1)

	_, err := NewService(st).BorrowBook(ctx, "111111", id)
	require.NoError(t, err)

	_, err = NewService(staleStore{st}).BorrowBook(ctx, "222222", id)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	n, err := st.CountOpenBorrows(ctx, "222222")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, available(t, st, id))
}

type brokenStore struct{ store.Store }

func (s brokenStore) WithinTx(ctx context.Context, fn func(store.Queries) error) error {
	return s.Store.WithinTx(ctx, func(q store.Queries) error { return fn(brokenQueries{q}) })
}

func (s brokenStore) ListOpenBorrows(context.Context, string, time.Time) ([]*store.BorrowedBook, error) {
	return nil, errors.New("connection reset")
}

type brokenQueries struct{ store.Queries }

func (q brokenQueries) InsertBorrowRecord(context.Context, string, int64, time.Time, time.Time) (int64, error) {
	return 0, errors.New("disk I/O error")
}

func TestStorageFailures(t *testing.T) {
	st := storetest.NewSQLite(t)
	ctx := context.Background()
	id := storetest.MustAddBook(t, st, "Book", "Author", "1000000000001", 1)
	svc := NewService(brokenStore{st})

	_, err := svc.BorrowBook(ctx, "123456", id)
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.Equal(t, msgRecordFailed, err.Error())
	assert.Equal(t, 1, available(t, st, id))

	_, err = svc.CalculateLateFee(ctx, "123456", id)
	assert.ErrorIs(t, err, apperr.ErrStorage)
}
