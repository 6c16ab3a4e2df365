package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dealgate/dealgate/internal/ingest"
)

const maxInboundBodySize = 64 * 1024 // 64KB

type WebhookHandler struct {
	gateway *ingest.Gateway
}

func NewWebhookHandler(gateway *ingest.Gateway) *WebhookHandler {
	return &WebhookHandler{gateway: gateway}
}

// Ingest is the public lead-entry route. Responses carry exactly one error
// kind and no internal detail.
func (h *WebhookHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	secret := r.Header.Get("X-Webhook-Secret")

	r.Body = http.MaxBytesReader(w, r.Body, maxInboundBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large or unreadable")
		return
	}

	result, err := h.gateway.Ingest(r.Context(), sourceID, secret, body)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "unauthorized")
		case errors.Is(err, ingest.ErrMalformedPayload):
			writeError(w, http.StatusBadRequest, "malformed JSON payload")
		case errors.Is(err, ingest.ErrMissingContactIdentifier):
			writeError(w, http.StatusBadRequest, "payload must include email or phone")
		default:
			writeError(w, http.StatusInternalServerError, "deal creation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
