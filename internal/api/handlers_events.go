package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dealgate/dealgate/internal/dispatch"
	"github.com/dealgate/dealgate/internal/models"
)

type EventHandler struct {
	dispatcher *dispatch.Dispatcher
}

func NewEventHandler(disp *dispatch.Dispatcher) *EventHandler {
	return &EventHandler{dispatcher: disp}
}

type stageChangedRequest struct {
	DealTitle      string    `json:"deal_title"`
	BoardName      string    `json:"board_name"`
	FromStageLabel string    `json:"from_stage_label"`
	ToStageLabel   string    `json:"to_stage_label"`
	ContactName    string    `json:"contact_name"`
	ContactEmail   string    `json:"contact_email"`
	ContactPhone   string    `json:"contact_phone"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// StageChanged is the intake route the pipeline domain calls when a deal
// moves stage. Accepted means queued; delivery outcome is reported through
// the deliveries listing, never back to the caller.
func (h *EventHandler) StageChanged(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req stageChangedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DealTitle == "" {
		writeError(w, http.StatusBadRequest, "deal_title is required")
		return
	}

	err := h.dispatcher.StageChanged(r.Context(), orgID, models.StageChangeEvent{
		DealTitle:      req.DealTitle,
		BoardName:      req.BoardName,
		FromStageLabel: req.FromStageLabel,
		ToStageLabel:   req.ToStageLabel,
		ContactName:    req.ContactName,
		ContactEmail:   req.ContactEmail,
		ContactPhone:   req.ContactPhone,
		OccurredAt:     req.OccurredAt,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to queue event")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
