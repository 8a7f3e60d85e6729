package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/carloslauriano/draftmail/draft"
	"go.uber.org/zap"
)

// draftRequest é o corpo de POST /ai/draft
type draftRequest struct {
	Prompt  string        `json:"prompt"`
	Context draft.Context `json:"context"`
}

// generationError converte falhas do gerador em respostas HTTP
func (h *Handler) generationError(w http.ResponseWriter, err error) {
	var gerr *draft.GenerationError
	switch {
	case errors.Is(err, draft.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &gerr):
		h.logger.Warn("draft generation failed", zap.Error(err))
		// a causa fica só no log
		writeError(w, http.StatusInternalServerError, gerr.Reason)
	default:
		h.logger.Error("draft generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate email content")
	}
}

// Draft trata POST /ai/draft e POST /ai/generate-email
func (h *Handler) Draft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, draft.ErrEmptyPrompt.Error())
		return
	}

	d, err := h.generator.Generate(r.Context(), req.Prompt, req.Context)
	if err != nil {
		h.generationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DraftStream trata GET /ai/draft/stream, enviando o rascunho frase a frase via SSE
func (h *Handler) DraftStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prompt := q.Get("prompt")
	if strings.TrimSpace(prompt) == "" {
		writeError(w, http.StatusBadRequest, draft.ErrEmptyPrompt.Error())
		return
	}

	d, err := h.generator.Generate(r.Context(), prompt, draft.Context{
		Recipient: q.Get("recipient"),
		Business:  q.Get("business"),
	})
	if err != nil {
		h.generationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for _, ev := range draft.Events(d) {
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data); err != nil {
			h.logger.Debug("draft stream closed by client", zap.Error(err))
			return
		}
		rc.Flush()
	}
}
