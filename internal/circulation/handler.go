// internal/circulation/handler.go
package circulation

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"libradesk/internal/httpjson"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type loanRequest struct {
	PatronID string `json:"patron_id"`
	BookID   int64  `json:"book_id"`
}

type checkoutResponse struct {
	httpjson.Result
	Checkout *Checkout `json:"checkout"`
}

type feeResponse struct {
	httpjson.Result
	*FeeQuote
}

// HandleBorrow serves the borrow form.
func (h *Handler) HandleBorrow(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.BadRequest(w, httpjson.MsgInvalidBody)
		return
	}

	checkout, err := h.service.BorrowBook(r.Context(), req.PatronID, req.BookID)
	if err != nil {
		httpjson.Fail(w, err)
		return
	}

	httpjson.Write(w, http.StatusCreated, checkoutResponse{
		Result:   httpjson.Result{Success: true, Message: checkout.Message},
		Checkout: checkout,
	})
}

// HandleReturn serves the return form.
func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.BadRequest(w, httpjson.MsgInvalidBody)
		return
	}

	msg, err := h.service.ReturnBook(r.Context(), req.PatronID, req.BookID)
	if err != nil {
		httpjson.Fail(w, err)
		return
	}

	httpjson.Write(w, http.StatusOK, httpjson.Result{Success: true, Message: msg})
}

// HandleLateFee serves GET /patrons/{id}/fees/{bookID}.
func (h *Handler) HandleLateFee(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		httpjson.BadRequest(w, httpjson.MsgInvalidBookID)
		return
	}

	quote, err := h.service.CalculateLateFee(r.Context(), chi.URLParam(r, "id"), bookID)
	if err != nil {
		httpjson.Fail(w, err)
		return
	}

	httpjson.Write(w, http.StatusOK, feeResponse{
		Result:   httpjson.Result{Success: quote.Status != StatusInvalidPatron, Message: quote.Status},
		FeeQuote: quote,
	})
}
