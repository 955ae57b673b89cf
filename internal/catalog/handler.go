// internal/catalog/handler.go
package catalog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"libradesk/internal/httpjson"
	"libradesk/internal/store"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type booksResponse struct {
	httpjson.Result
	Books []*store.Book `json:"books"`
}

type bookResponse struct {
	httpjson.Result
	Book *store.Book `json:"book"`
}

// HandleListBooks serves the catalog page.
func (h *Handler) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		httpjson.Fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, booksResponse{Result: httpjson.Result{Success: true}, Books: books})
}

// HandleAddBook serves the add-book form.
func (h *Handler) HandleAddBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Author      string `json:"author"`
		ISBN        string `json:"isbn"`
		TotalCopies int    `json:"total_copies"`
	}

	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.BadRequest(w, httpjson.MsgInvalidBody)
		return
	}

	admission, err := h.service.AddBook(r.Context(), req.Title, req.Author, req.ISBN, req.TotalCopies)
	if err != nil {
		httpjson.Fail(w, err)
		return
	}

	httpjson.Write(w, http.StatusCreated, bookResponse{
		Result: httpjson.Result{Success: true, Message: admission.Message},
		Book:   admission.Book,
	})
}

// HandleGetBook serves GET /books/{id}.
func (h *Handler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpjson.BadRequest(w, httpjson.MsgInvalidBookID)
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		httpjson.Fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, bookResponse{Result: httpjson.Result{Success: true}, Book: book})
}

// HandleSearch serves GET /search?q=&type=. The type defaults to title.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	searchType := SearchType(query.Get("type"))
	if searchType == "" {
		searchType = SearchByTitle
	}

	books, err := h.service.Search(r.Context(), query.Get("q"), searchType)
	if err != nil {
		httpjson.Fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, booksResponse{Result: httpjson.Result{Success: true}, Books: books})
}
