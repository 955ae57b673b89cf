// internal/payments/handler.go
package payments

import (
	"net/http"

	"libradesk/internal/httpjson"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type paymentResponse struct {
	httpjson.Result
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
}

// HandlePay serves POST /payments.
func (h *Handler) HandlePay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PatronID string `json:"patron_id"`
		BookID   int64  `json:"book_id"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.BadRequest(w, httpjson.MsgInvalidBody)
		return
	}

	receipt, err := h.service.PayLateFee(r.Context(), req.PatronID, req.BookID)
	if err != nil {
		httpjson.Fail(w, err)
		return
	}

	httpjson.Write(w, http.StatusOK, paymentResponse{
		Result:        httpjson.Result{Success: true, Message: receipt.Message},
		TransactionID: receipt.TransactionID,
		Amount:        receipt.Amount,
	})
}

// HandleRefund serves POST /refunds.
func (h *Handler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID string  `json:"transaction_id"`
		Amount        float64 `json:"amount"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.BadRequest(w, httpjson.MsgInvalidBody)
		return
	}

	msg, err := h.service.RefundPayment(r.Context(), req.TransactionID, req.Amount)
	if err != nil {
		httpjson.Fail(w, err)
		return
	}

	httpjson.Write(w, http.StatusOK, httpjson.Result{Success: true, Message: msg})
}
