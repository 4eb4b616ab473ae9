// internal/catalog/handler.go
package catalog

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes mounts the catalog endpoints. Authentication is the caller's
// middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/init", h.HandleInit)
	r.Post("/add", h.HandleAdd)
	r.Get("/find/{clauses}", h.HandleFind)
	r.Get("/list", h.HandleList)
	r.Put("/borrow/{guid}", h.HandleBorrow)
	r.Put("/return/{guid}", h.HandleReturn)
	r.Get("/history/{guid}", h.HandleHistory)
}

func (h *Handler) HandleInit(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.Init(r.Context()); err != nil {
		h.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req Book
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid book body", http.StatusBadRequest)
		return
	}

	book, err := h.service.Add(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidBook) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, book)
}

func (h *Handler) HandleFind(w http.ResponseWriter, r *http.Request) {
	// chi matches on RawPath when the request carries one, so only then is
	// the parameter still escaped.
	expr := chi.URLParam(r, "clauses")
	if r.URL.RawPath != "" {
		var err error
		if expr, err = url.PathUnescape(expr); err != nil {
			http.Error(w, "invalid filter encoding", http.StatusBadRequest)
			return
		}
	}

	books, err := h.service.Find(r.Context(), SplitClauses(expr))
	if err != nil {
		var compileErr *CompileError
		if errors.As(err, &compileErr) {
			http.Error(w, compileErr.Error(), http.StatusBadRequest)
			return
		}
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, books)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.List(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *Handler) HandleBorrow(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}

	amount, err := h.service.Borrow(r.Context(), id)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "book not found", http.StatusNotFound)
	case errors.Is(err, ErrDepleted):
		w.WriteHeader(http.StatusNoContent)
	case err != nil:
		h.internalError(w, r, err)
	default:
		writeCount(w, amount)
	}
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}

	amount, err := h.service.Return(r.Context(), id)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "book not found", http.StatusNotFound)
	case err != nil:
		h.internalError(w, r, err)
	default:
		writeCount(w, amount)
	}
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}

	events, err := h.service.History(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "book not found", http.StatusNotFound)
			return
		}
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func bookID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "guid"))
	if err != nil {
		http.Error(w, "invalid book ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeCount(w http.ResponseWriter, n int) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(strconv.Itoa(n)))
}
