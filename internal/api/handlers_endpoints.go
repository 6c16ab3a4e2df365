package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dealgate/dealgate/internal/models"
	"github.com/dealgate/dealgate/internal/registry"
)

type EndpointHandler struct {
	registry *registry.Registry
}

func NewEndpointHandler(reg *registry.Registry) *EndpointHandler {
	return &EndpointHandler{registry: reg}
}

type endpointRequest struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

func (h *EndpointHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ep, err := h.registry.CreateOutboundEndpoint(r.Context(), orgID, registry.EndpointParams{
		Name:   req.Name,
		URL:    req.URL,
		Events: req.Events,
	})
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	// The secret is shown once, on creation.
	writeJSON(w, http.StatusCreated, ep)
}

func (h *EndpointHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	ep, err := h.registry.GetOutboundEndpoint(r.Context(), orgID, id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	ep.Secret = ""
	writeJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	eps, err := h.registry.ListOutboundEndpoints(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list endpoints")
		return
	}
	for i := range eps {
		eps[i].Secret = ""
	}
	if eps == nil {
		eps = []models.OutboundEndpoint{}
	}
	writeJSON(w, http.StatusOK, eps)
}

func (h *EndpointHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ep, err := h.registry.UpdateOutboundEndpoint(r.Context(), orgID, id, registry.EndpointParams{
		Name:   req.Name,
		URL:    req.URL,
		Events: req.Events,
	})
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	ep.Secret = ""
	writeJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	if err := h.registry.DeleteOutboundEndpoint(r.Context(), orgID, id); err != nil {
		writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EndpointHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	ep, err := h.registry.GetOutboundEndpoint(r.Context(), orgID, id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	ep, err = h.registry.SetOutboundEndpointActive(r.Context(), orgID, id, !ep.Active)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	ep.Secret = ""
	writeJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	secret, err := h.registry.RotateEndpointSecret(r.Context(), orgID, id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}
