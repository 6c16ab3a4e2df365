package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dealgate/dealgate/internal/models"
	"github.com/dealgate/dealgate/internal/registry"
	"github.com/dealgate/dealgate/internal/storage"
)

type SourceHandler struct {
	registry *registry.Registry
	store    storage.Store
}

func NewSourceHandler(reg *registry.Registry, store storage.Store) *SourceHandler {
	return &SourceHandler{registry: reg, store: store}
}

func writeRegistryError(w http.ResponseWriter, err error) {
	var verr *registry.ValidationError
	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type sourceRequest struct {
	Name         string `json:"name"`
	EntryBoardID string `json:"entry_board_id"`
	EntryStageID string `json:"entry_stage_id"`
}

func (h *SourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	src, err := h.registry.CreateInboundSource(r.Context(), orgID, registry.SourceParams{
		Name:         req.Name,
		EntryBoardID: req.EntryBoardID,
		EntryStageID: req.EntryStageID,
	})
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	// The secret is shown once, on creation.
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"source": src,
		"url":    h.registry.InboundURL(src.ID),
	})
}

func (h *SourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	src, err := h.registry.GetInboundSource(r.Context(), orgID, id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	src.Secret = ""
	writeJSON(w, http.StatusOK, src)
}

func (h *SourceHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	sources, err := h.registry.ListInboundSources(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	for i := range sources {
		sources[i].Secret = ""
	}
	if sources == nil {
		sources = []models.InboundSource{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func (h *SourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	src, err := h.registry.UpdateInboundSource(r.Context(), orgID, id, registry.SourceParams{
		Name:         req.Name,
		EntryBoardID: req.EntryBoardID,
		EntryStageID: req.EntryStageID,
	})
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	src.Secret = ""
	writeJSON(w, http.StatusOK, src)
}

func (h *SourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	if err := h.registry.DeleteInboundSource(r.Context(), orgID, id); err != nil {
		writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SourceHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	src, err := h.registry.GetInboundSource(r.Context(), orgID, id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	src, err = h.registry.SetInboundSourceActive(r.Context(), orgID, id, !src.Active)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	src.Secret = ""
	writeJSON(w, http.StatusOK, src)
}

func (h *SourceHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	secret, err := h.registry.RotateInboundSecret(r.Context(), orgID, id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

func (h *SourceHandler) URL(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	if _, err := h.registry.GetInboundSource(r.Context(), orgID, id); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": h.registry.InboundURL(id)})
}

func (h *SourceHandler) Records(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	if _, err := h.registry.GetInboundSource(r.Context(), orgID, id); err != nil {
		writeRegistryError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.store.ListInboundRecords(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if records == nil {
		records = []models.InboundRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
