package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/carloslauriano/draftmail/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// emailID lê o parâmetro {id}; responde 400 e retorna false se inválido
func emailID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid email id")
		return 0, false
	}
	return id, true
}

// storeError converte erros do armazenamento em respostas HTTP
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *storage.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, storage.ErrEmailNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		h.logger.Error("store failure",
			zap.String("op", op),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

// ListEmails trata GET /emails
func (h *Handler) ListEmails(w http.ResponseWriter, r *http.Request) {
	emails, err := h.store.ListEmails(r.Context())
	if err != nil {
		h.storeError(w, r, "list emails", err)
		return
	}
	writeJSON(w, http.StatusOK, emails)
}

// GetEmail trata GET /emails/{id}
func (h *Handler) GetEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := emailID(w, r)
	if !ok {
		return
	}

	email, err := h.store.GetEmail(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "get email", err)
		return
	}
	writeJSON(w, http.StatusOK, email)
}

// CreateEmail trata POST /emails
func (h *Handler) CreateEmail(w http.ResponseWriter, r *http.Request) {
	var in storage.NewEmail
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	email, err := h.store.CreateEmail(r.Context(), in)
	if err != nil {
		h.storeError(w, r, "create email", err)
		return
	}
	writeJSON(w, http.StatusCreated, email)
}

// UpdateEmail trata PUT /emails/{id}; campos omitidos ficam como estão
func (h *Handler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := emailID(w, r)
	if !ok {
		return
	}

	var patch storage.EmailPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	email, err := h.store.UpdateEmail(r.Context(), id, patch)
	if err != nil {
		h.storeError(w, r, "update email", err)
		return
	}
	writeJSON(w, http.StatusOK, email)
}

// DeleteEmail trata DELETE /emails/{id}
func (h *Handler) DeleteEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := emailID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteEmail(r.Context(), id); err != nil {
		h.storeError(w, r, "delete email", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
