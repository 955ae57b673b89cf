// internal/patron/handler.go
package patron

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"libradesk/internal/httpjson"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type statusResponse struct {
	httpjson.Result
	*StatusReport
}

// HandleStatus serves GET /patrons/{id}/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpjson.Fail(w, err)
		return
	}

	status := http.StatusOK
	if report.Status == StatusInvalidID {
		status = http.StatusBadRequest
	}
	httpjson.Write(w, status, statusResponse{
		Result:       httpjson.Result{Success: status == http.StatusOK, Message: report.Status},
		StatusReport: report,
	})
}
