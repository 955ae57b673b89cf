package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/patron"
	"libradesk/internal/payments"
	"libradesk/internal/store/storetest"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type stubGateway struct {
	mu      sync.Mutex
	charged []float64
}

func (g *stubGateway) charges() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]float64(nil), g.charged...)
}

func (g *stubGateway) ProcessPayment(_ context.Context, _ string, amount float64, _ string) (payments.PaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charged = append(g.charged, amount)
	return payments.PaymentResult{Success: true, TransactionID: "txn_123", Message: "Charged"}, nil
}

func (g *stubGateway) RefundPayment(_ context.Context, _ string, amount float64) (payments.RefundResult, error) {
	return payments.RefundResult{Success: true, Message: fmt.Sprintf("Refund of $%.2f processed successfully", amount)}, nil
}

type harness struct {
	t       *testing.T
	server  *httptest.Server
	mu      sync.Mutex
	now     time.Time
	gateway *stubGateway
	hook    *test.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, now: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC), gateway: &stubGateway{}}
	clock := func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	}

	log, hook := test.NewNullLogger()
	h.hook = hook
	st := storetest.NewSQLite(t)
	books := catalog.NewService(st, catalog.WithLogger(log))
	loans := circulation.NewService(st, circulation.WithClock(clock), circulation.WithLogger(log))

	h.server = httptest.NewServer(NewRouter(Services{
		Catalog:     books,
		Circulation: loans,
		Patrons:     patron.NewService(st, patron.WithClock(clock), patron.WithLogger(log)),
		Payments:    payments.NewService(loans, books, h.gateway, payments.WithLogger(log)),
	}, log))
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) do(method, path string, body any) (int, map[string]any) {
	h.t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, h.server.URL+path, &buf)
	require.NoError(h.t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	assert.Equal(h.t, "application/json", resp.Header.Get("Content-Type"))
	var out map[string]any
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestLibraryEndToEnd(t *testing.T) {
	h := newHarness(t)

	status, out := h.do(http.MethodPost, "/books", map[string]any{
		"title": "The Catcher in the Rye", "author": "J.D. Salinger", "isbn": "9780316769175", "total_copies": 3,
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, `Book "The Catcher in the Rye" has been successfully added to the catalog.`, out["message"])
	book := out["book"].(map[string]any)
	id := int64(book["id"].(float64))

	status, out = h.do(http.MethodPost, "/books", map[string]any{
		"title": "Another", "author": "Someone", "isbn": "9780316769175", "total_copies": 1,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "A book with this ISBN already exists.", out["message"])

	status, out = h.do(http.MethodGet, "/search?q=CATCHER", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, out["books"], 1)

	status, out = h.do(http.MethodGet, "/search?q=978031676917&type=isbn", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, out["books"])

	status, out = h.do(http.MethodPost, "/borrow", map[string]any{"patron_id": "123456", "book_id": id})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, `Successfully borrowed "The Catcher in the Rye". Due date: 2025-06-15.`, out["message"])

	_, out = h.do(http.MethodGet, fmt.Sprintf("/books/%d", id), nil)
	assert.Equal(t, 2.0, out["book"].(map[string]any)["available_copies"])

	// Ten days past the due date.
	h.advance(24 * 24 * time.Hour)

	status, out = h.do(http.MethodGet, fmt.Sprintf("/patrons/123456/fees/%d", id), nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 6.5, out["fee_amount"])
	assert.Equal(t, 10.0, out["days_overdue"])
	assert.Equal(t, "Overdue by 10 day(s)", out["status"])

	status, out = h.do(http.MethodGet, "/patrons/123456/status", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Active", out["status"])
	assert.Equal(t, 1.0, out["total_books_borrowed"])
	assert.Equal(t, 5.0, out["total_late_fees"])

	status, out = h.do(http.MethodPost, "/payments", map[string]any{"patron_id": "123456", "book_id": id})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Payment successful! Charged", out["message"])
	assert.Equal(t, "txn_123", out["transaction_id"])
	assert.Equal(t, []float64{6.5}, h.gateway.charges())

	status, out = h.do(http.MethodPost, "/return", map[string]any{"patron_id": "123456", "book_id": id})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `Successfully returned "The Catcher in the Rye".`, out["message"])

	_, out = h.do(http.MethodGet, fmt.Sprintf("/books/%d", id), nil)
	assert.Equal(t, 3.0, out["book"].(map[string]any)["available_copies"])

	status, out = h.do(http.MethodPost, "/payments", map[string]any{"patron_id": "123456", "book_id": id})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, out["message"], "No late fees to pay")
	assert.Len(t, h.gateway.charges(), 1)

	status, out = h.do(http.MethodPost, "/refunds", map[string]any{"transaction_id": "txn_123", "amount": 5})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Refund of $5.00 processed successfully", out["message"])
}

func TestRejections(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name    string
		method  string
		path    string
		body    any
		status  int
		message string
	}{
		{"bad body", http.MethodPost, "/borrow", "{", http.StatusBadRequest, "Invalid request body."},
		{"invalid patron", http.MethodPost, "/borrow", map[string]any{"patron_id": "12a456", "book_id": 1}, http.StatusBadRequest, "Invalid patron ID. Must be exactly 6 digits."},
		{"missing book", http.MethodPost, "/borrow", map[string]any{"patron_id": "123456", "book_id": 99}, http.StatusNotFound, "Book not found."},
		{"bad book id", http.MethodGet, "/books/abc", nil, http.StatusBadRequest, "Invalid book ID."},
		{"blank title", http.MethodPost, "/books", map[string]any{"title": " ", "author": "A", "isbn": "9780316769175", "total_copies": 1}, http.StatusBadRequest, "Title is required."},
		{"invalid status id", http.MethodGet, "/patrons/12/status", nil, http.StatusBadRequest, "Invalid patron ID"},
		{"bad refund", http.MethodPost, "/refunds", map[string]any{"transaction_id": "abc", "amount": 5}, http.StatusBadRequest, "Invalid transaction ID."},
		{"unknown route", http.MethodGet, "/nope", nil, http.StatusNotFound, "Page not found."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := h.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, tt.message, out["message"])
		})
	}
}

func TestHealthzAndRequestLog(t *testing.T) {
	h := newHarness(t)

	status, out := h.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["success"])

	// The line is written after the response is flushed.
	var entry *logrus.Entry
	require.Eventually(t, func() bool {
		entry = h.hook.LastEntry()
		return entry != nil && entry.Data["path"] == "/healthz"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "/healthz", entry.Data["path"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])
	assert.NotEmpty(t, entry.Data["request_id"])
}
