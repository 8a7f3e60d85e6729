// Package api implementa a API HTTP de emails e rascunhos.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/carloslauriano/draftmail/draft"
	"github.com/carloslauriano/draftmail/storage"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Handler guarda as dependências dos handlers HTTP
type Handler struct {
	store     storage.Storage
	generator draft.Generator
	logger    *zap.Logger
}

// NewHandler cria um novo handler da API
func NewHandler(store storage.Storage, generator draft.Generator, logger *zap.Logger) *Handler {
	return &Handler{store: store, generator: generator, logger: logger}
}

// Routes monta as rotas de emails, rascunhos e health check
func (h *Handler) Routes(r chi.Router) {
	r.Get("/ping", h.Ping)

	r.Route("/emails", func(r chi.Router) {
		r.Get("/", h.ListEmails)
		r.Post("/", h.CreateEmail)
		r.Get("/{id}", h.GetEmail)
		r.Put("/{id}", h.UpdateEmail)
		r.Delete("/{id}", h.DeleteEmail)
	})

	r.Route("/ai", func(r chi.Router) {
		r.Post("/draft", h.Draft)
		r.Post("/generate-email", h.Draft)
		r.Get("/draft/stream", h.DraftStream)
	})
}

// NewRouter cria o roteador chi com o middleware comum e as rotas da API
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLog(h.logger))
	r.Use(chimw.Recoverer)
	r.Use(CORS(allowedOrigins))

	h.Routes(r)
	return r
}

// Ping responde ao health check
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("pong\n"))
}

// writeJSON escreve uma resposta JSON
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError escreve {"error": message}
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
