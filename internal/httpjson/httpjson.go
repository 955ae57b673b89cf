// Package httpjson holds the request decoding and response rendering shared by
// the HTTP handlers.
package httpjson

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"libradesk/internal/apperr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Messages for requests rejected before reaching a service.
const (
	MsgInvalidBody   = "Invalid request body."
	MsgInvalidBookID = "Invalid book ID."
)

// Result is the envelope every response starts with.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// Write renders v with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Fail renders err as a failed Result. Errors outside the apperr taxonomy are
// reported without their text.
func Fail(w http.ResponseWriter, err error) {
	msg := err.Error()
	if apperr.KindOf(err) == 0 {
		msg = http.StatusText(http.StatusInternalServerError)
	}
	Write(w, apperr.HTTPStatus(err), Result{Success: false, Message: msg})
}

// BadRequest renders a failed Result with status 400.
func BadRequest(w http.ResponseWriter, msg string) {
	Write(w, http.StatusBadRequest, Result{Success: false, Message: msg})
}
