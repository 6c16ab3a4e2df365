package storage

import (
	"context"
	"errors"

	"github.com/dealgate/dealgate/internal/models"
)

// ErrDuplicateEvent is returned by ClaimInboundEvent when another request
// already holds the (source_id, external_event_id) idempotency key.
var ErrDuplicateEvent = errors.New("storage: duplicate inbound event")

// Store is the single durable surface: webhook configuration rows plus the
// delivery ledger. Lookups return (nil, nil) when the row does not exist.
type Store interface {
	// Inbound sources
	CreateInboundSource(ctx context.Context, src *models.InboundSource) error
	GetInboundSource(ctx context.Context, id string) (*models.InboundSource, error)
	GetActiveInboundSource(ctx context.Context, orgID string) (*models.InboundSource, error)
	ListInboundSources(ctx context.Context, orgID string) ([]models.InboundSource, error)
	UpdateInboundSource(ctx context.Context, src *models.InboundSource) error
	DeleteInboundSource(ctx context.Context, id string) error
	SetInboundSourceActive(ctx context.Context, id string, active bool) error
	UpdateInboundSourceSecret(ctx context.Context, id, secret string) error

	// Outbound endpoints
	CreateOutboundEndpoint(ctx context.Context, ep *models.OutboundEndpoint) error
	GetOutboundEndpoint(ctx context.Context, id string) (*models.OutboundEndpoint, error)
	GetOutboundEndpointForOrg(ctx context.Context, orgID string) (*models.OutboundEndpoint, error)
	ListOutboundEndpoints(ctx context.Context, orgID string) ([]models.OutboundEndpoint, error)
	UpdateOutboundEndpoint(ctx context.Context, ep *models.OutboundEndpoint) error
	DeleteOutboundEndpoint(ctx context.Context, id string) error
	SetOutboundEndpointActive(ctx context.Context, id string, active bool) error
	UpdateOutboundEndpointSecret(ctx context.Context, id, secret string) error

	// Inbound ledger
	ClaimInboundEvent(ctx context.Context, rec *models.InboundRecord) error
	GetInboundRecord(ctx context.Context, sourceID, externalEventID string) (*models.InboundRecord, error)
	CompleteInboundRecord(ctx context.Context, id, dealID string) error
	ReleaseInboundClaim(ctx context.Context, id string) error
	RecordInboundRejection(ctx context.Context, rec *models.InboundRecord) error
	ListInboundRecords(ctx context.Context, sourceID string, limit, offset int) ([]models.InboundRecord, error)

	// Outbound ledger
	CreateOutboundEvent(ctx context.Context, ev *models.OutboundEvent) error
	GetOutboundEvent(ctx context.Context, id string) (*models.OutboundEvent, error)
	CreateDelivery(ctx context.Context, d *models.OutboundDelivery) error
	GetDelivery(ctx context.Context, id string) (*models.OutboundDelivery, error)
	UpdateDelivery(ctx context.Context, d *models.OutboundDelivery) error
	GetDueDeliveries(ctx context.Context, limit int) ([]models.OutboundDelivery, error)
	ListDeliveries(ctx context.Context, orgID string, limit, offset int) ([]models.OutboundDelivery, error)
	CreateAttempt(ctx context.Context, a *models.Attempt) error
	GetAttemptsByDelivery(ctx context.Context, deliveryID string) ([]models.Attempt, error)

	// Stats
	GetStats(ctx context.Context, orgID string) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

type Stats struct {
	InboundAccepted  int64   `json:"inbound_accepted"`
	InboundRejected  int64   `json:"inbound_rejected"`
	OutboundEvents   int64   `json:"outbound_events"`
	TotalDeliveries  int64   `json:"total_deliveries"`
	DeliveredCount   int64   `json:"delivered_count"`
	PendingCount     int64   `json:"pending_count"`
	ExhaustedCount   int64   `json:"exhausted_count"`
	DeliveryRate     float64 `json:"delivery_rate"`
	ActiveSources    int64   `json:"active_sources"`
	ActiveEndpoints  int64   `json:"active_endpoints"`
}
