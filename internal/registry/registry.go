// Package registry owns the webhook configuration entities: CRUD, activation
// lifecycle, and secret rotation, all scoped by organization. The gateway and
// dispatcher only ever read these rows.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dealgate/dealgate/internal/models"
	"github.com/dealgate/dealgate/internal/pipeline"
	"github.com/dealgate/dealgate/internal/secrets"
	"github.com/dealgate/dealgate/internal/storage"
)

// ErrNotFound covers both a missing id and an id owned by another
// organization. Callers cannot tell the two apart.
var ErrNotFound = errors.New("registry: not found")

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("registry: invalid %s: %s", e.Field, e.Reason)
}

type Registry struct {
	store   storage.Store
	boards  pipeline.Directory
	baseURL string
}

func New(store storage.Store, boards pipeline.Directory, baseURL string) *Registry {
	return &Registry{
		store:   store,
		boards:  boards,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// --- Inbound sources ---

type SourceParams struct {
	Name         string
	EntryBoardID string
	EntryStageID string
}

func (r *Registry) validateSourceParams(ctx context.Context, orgID string, p SourceParams) error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if p.EntryBoardID == "" || p.EntryStageID == "" {
		return &ValidationError{Field: "entry_stage_id", Reason: "board and stage are required"}
	}
	ok, err := r.boards.StageExists(ctx, orgID, p.EntryBoardID, p.EntryStageID)
	if err != nil {
		return fmt.Errorf("stage lookup failed: %w", err)
	}
	if !ok {
		return &ValidationError{Field: "entry_stage_id", Reason: "board or stage does not exist"}
	}
	return nil
}

func (r *Registry) CreateInboundSource(ctx context.Context, orgID string, p SourceParams) (*models.InboundSource, error) {
	if err := r.validateSourceParams(ctx, orgID, p); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	src := &models.InboundSource{
		ID:           models.NewID("src"),
		OrgID:        orgID,
		Name:         p.Name,
		EntryBoardID: p.EntryBoardID,
		EntryStageID: p.EntryStageID,
		Secret:       secrets.New(),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.store.CreateInboundSource(ctx, src); err != nil {
		return nil, err
	}
	return src, nil
}

func (r *Registry) getOwnedSource(ctx context.Context, orgID, id string) (*models.InboundSource, error) {
	src, err := r.store.GetInboundSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if src == nil || src.OrgID != orgID {
		return nil, ErrNotFound
	}
	return src, nil
}

func (r *Registry) GetInboundSource(ctx context.Context, orgID, id string) (*models.InboundSource, error) {
	return r.getOwnedSource(ctx, orgID, id)
}

func (r *Registry) ListInboundSources(ctx context.Context, orgID string) ([]models.InboundSource, error) {
	return r.store.ListInboundSources(ctx, orgID)
}

func (r *Registry) ActiveInboundSource(ctx context.Context, orgID string) (*models.InboundSource, error) {
	return r.store.GetActiveInboundSource(ctx, orgID)
}

func (r *Registry) UpdateInboundSource(ctx context.Context, orgID, id string, p SourceParams) (*models.InboundSource, error) {
	src, err := r.getOwnedSource(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := r.validateSourceParams(ctx, orgID, p); err != nil {
		return nil, err
	}

	src.Name = p.Name
	src.EntryBoardID = p.EntryBoardID
	src.EntryStageID = p.EntryStageID
	if err := r.store.UpdateInboundSource(ctx, src); err != nil {
		return nil, err
	}
	return src, nil
}

func (r *Registry) DeleteInboundSource(ctx context.Context, orgID, id string) error {
	if _, err := r.getOwnedSource(ctx, orgID, id); err != nil {
		return err
	}
	return r.store.DeleteInboundSource(ctx, id)
}

func (r *Registry) SetInboundSourceActive(ctx context.Context, orgID, id string, active bool) (*models.InboundSource, error) {
	src, err := r.getOwnedSource(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := r.store.SetInboundSourceActive(ctx, id, active); err != nil {
		return nil, err
	}
	src.Active = active
	return src, nil
}

// RotateInboundSecret replaces the source secret in one write. The old
// secret stops authenticating as soon as this returns.
func (r *Registry) RotateInboundSecret(ctx context.Context, orgID, id string) (string, error) {
	if _, err := r.getOwnedSource(ctx, orgID, id); err != nil {
		return "", err
	}
	next := secrets.New()
	if err := r.store.UpdateInboundSourceSecret(ctx, id, next); err != nil {
		return "", err
	}
	return next, nil
}

// InboundURL builds the public ingestion URL for a source. Pure formatting,
// no lookup.
func (r *Registry) InboundURL(sourceID string) string {
	return fmt.Sprintf("%s/webhook-in/%s", r.baseURL, sourceID)
}

// --- Outbound endpoints ---

type EndpointParams struct {
	Name   string
	URL    string
	Events []string
}

func validateEndpointURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "url", Reason: "must be an absolute HTTP or HTTPS URL"}
	}
	return nil
}

func (r *Registry) CreateOutboundEndpoint(ctx context.Context, orgID string, p EndpointParams) (*models.OutboundEndpoint, error) {
	if p.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if err := validateEndpointURL(p.URL); err != nil {
		return nil, err
	}
	events := p.Events
	if len(events) == 0 {
		events = []string{models.EventDealStageChanged}
	}

	now := time.Now().UTC()
	ep := &models.OutboundEndpoint{
		ID:        models.NewID("ep"),
		OrgID:     orgID,
		Name:      p.Name,
		URL:       p.URL,
		Secret:    secrets.New(),
		Events:    events,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.CreateOutboundEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

func (r *Registry) getOwnedEndpoint(ctx context.Context, orgID, id string) (*models.OutboundEndpoint, error) {
	ep, err := r.store.GetOutboundEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if ep == nil || ep.OrgID != orgID {
		return nil, ErrNotFound
	}
	return ep, nil
}

func (r *Registry) GetOutboundEndpoint(ctx context.Context, orgID, id string) (*models.OutboundEndpoint, error) {
	return r.getOwnedEndpoint(ctx, orgID, id)
}

func (r *Registry) ListOutboundEndpoints(ctx context.Context, orgID string) ([]models.OutboundEndpoint, error) {
	return r.store.ListOutboundEndpoints(ctx, orgID)
}

func (r *Registry) OutboundEndpointForOrg(ctx context.Context, orgID string) (*models.OutboundEndpoint, error) {
	return r.store.GetOutboundEndpointForOrg(ctx, orgID)
}

func (r *Registry) UpdateOutboundEndpoint(ctx context.Context, orgID, id string, p EndpointParams) (*models.OutboundEndpoint, error) {
	ep, err := r.getOwnedEndpoint(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if err := validateEndpointURL(p.URL); err != nil {
		return nil, err
	}

	ep.Name = p.Name
	ep.URL = p.URL
	if p.Events != nil {
		ep.Events = p.Events
	}
	if err := r.store.UpdateOutboundEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

func (r *Registry) DeleteOutboundEndpoint(ctx context.Context, orgID, id string) error {
	if _, err := r.getOwnedEndpoint(ctx, orgID, id); err != nil {
		return err
	}
	return r.store.DeleteOutboundEndpoint(ctx, id)
}

func (r *Registry) SetOutboundEndpointActive(ctx context.Context, orgID, id string, active bool) (*models.OutboundEndpoint, error) {
	ep, err := r.getOwnedEndpoint(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := r.store.SetOutboundEndpointActive(ctx, id, active); err != nil {
		return nil, err
	}
	ep.Active = active
	return ep, nil
}

func (r *Registry) RotateEndpointSecret(ctx context.Context, orgID, id string) (string, error) {
	if _, err := r.getOwnedEndpoint(ctx, orgID, id); err != nil {
		return "", err
	}
	next := secrets.New()
	if err := r.store.UpdateOutboundEndpointSecret(ctx, id, next); err != nil {
		return "", err
	}
	return next, nil
}
