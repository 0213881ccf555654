package authority

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/models"
)

// Handler serves the sync protocol over HTTP.
type Handler struct {
	authority *Authority
	logger    *logger.Logger
}

func NewHandler(authority *Authority, log *logger.Logger) *Handler {
	return &Handler{authority: authority, logger: log}
}

func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(h.withLogging)

	router.Post("/api/sync/push", h.push)
	router.Get("/api/sync/pull", h.pull)

	return router
}

func (h *Handler) push(w http.ResponseWriter, r *http.Request) {
	var req models.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Err(err).Str("func", "*Handler.push").Msg("invalid push body")
		http.Error(w, "invalid push body", http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		http.Error(w, "empty push batch", http.StatusBadRequest)
		return
	}

	results := h.authority.ApplyPush(req.Items)
	writeJSON(w, models.PushResponse{Results: results})
}

func (h *Handler) pull(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		limit = 0
	}

	page := h.authority.ChangesSince(r.URL.Query().Get("cursor"), limit)
	writeJSON(w, page)
}

func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lw, r)

		h.logger.Info().
			Str("uri", r.RequestURI).
			Str("method", r.Method).
			Int("status", lw.status).
			Dur("duration", time.Since(start)).
			Int("size", lw.size).
			Send()
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
