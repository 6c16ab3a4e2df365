// Package dispatch delivers stage-change events to outbound endpoints with
// bounded retries. Enqueueing is synchronous and local; all network I/O
// happens on the worker pool.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dealgate/dealgate/internal/models"
	"github.com/dealgate/dealgate/internal/storage"
)

type Dispatcher struct {
	store storage.Store
	log   zerolog.Logger
}

func NewDispatcher(store storage.Store, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{store: store, log: log}
}

// StageChanged records a deal.stage_changed event for asynchronous delivery.
// It returns once the event and its pending delivery row are persisted; the
// pipeline operation that produced the event is never blocked on delivery.
func (d *Dispatcher) StageChanged(ctx context.Context, orgID string, ev models.StageChangeEvent) error {
	ep, err := d.store.GetOutboundEndpointForOrg(ctx, orgID)
	if err != nil {
		return fmt.Errorf("endpoint lookup failed: %w", err)
	}
	if ep == nil || !ep.Active || !ep.SubscribedTo(models.EventDealStageChanged) {
		d.log.Debug().Str("org_id", orgID).Msg("no active endpoint subscribed, dropping event")
		return nil
	}

	occurredAt := ev.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	eventID := models.NewID("evt")
	payload, err := json.Marshal(models.EventPayload{
		EventType:  models.EventDealStageChanged,
		EventID:    eventID,
		OccurredAt: occurredAt,
		Deal: models.PayloadDeal{
			Title:          ev.DealTitle,
			BoardName:      ev.BoardName,
			FromStageLabel: ev.FromStageLabel,
			ToStageLabel:   ev.ToStageLabel,
		},
		Contact: models.PayloadContact{
			Name:  ev.ContactName,
			Phone: ev.ContactPhone,
			Email: ev.ContactEmail,
		},
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	event := &models.OutboundEvent{
		ID:         eventID,
		OrgID:      orgID,
		EventType:  models.EventDealStageChanged,
		Payload:    payload,
		OccurredAt: occurredAt,
		CreatedAt:  now,
	}
	if err := d.store.CreateOutboundEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	delivery := &models.OutboundDelivery{
		ID:         models.NewID("dlv"),
		EventID:    eventID,
		EndpointID: ep.ID,
		Status:     models.DeliveryPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := d.store.CreateDelivery(ctx, delivery); err != nil {
		return fmt.Errorf("failed to enqueue delivery: %w", err)
	}

	d.log.Info().
		Str("org_id", orgID).
		Str("event_id", eventID).
		Str("endpoint_id", ep.ID).
		Msg("stage change queued for delivery")
	return nil
}
