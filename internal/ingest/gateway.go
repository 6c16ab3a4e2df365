// Package ingest authenticates inbound webhook requests and turns them into
// deal-creation commands, with (source_id, external_event_id) idempotency.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dealgate/dealgate/internal/models"
	"github.com/dealgate/dealgate/internal/pipeline"
	"github.com/dealgate/dealgate/internal/secrets"
	"github.com/dealgate/dealgate/internal/storage"
)

var (
	// ErrUnauthorized deliberately covers unknown source, inactive source
	// and bad secret, so responses never reveal which one it was.
	ErrUnauthorized             = errors.New("ingest: unauthorized")
	ErrMalformedPayload         = errors.New("ingest: malformed payload")
	ErrMissingContactIdentifier = errors.New("ingest: missing contact identifier")
)

const (
	reasonMalformedPayload  = "malformed_payload"
	reasonMissingIdentifier = "missing_contact_identifier"
)

type Payload struct {
	ExternalEventID string  `json:"external_event_id"`
	DealTitle       string  `json:"deal_title"`
	DealValue       float64 `json:"deal_value"`
	CompanyName     string  `json:"company_name"`
	ContactName     string  `json:"contact_name"`
	Email           string  `json:"email"`
	Phone           string  `json:"phone"`
	Source          string  `json:"source"`
}

type Result struct {
	DealID       string `json:"deal_id"`
	Deduplicated bool   `json:"deduplicated"`
}

type Gateway struct {
	store storage.Store
	deals pipeline.Creator
	log   zerolog.Logger
}

func NewGateway(store storage.Store, deals pipeline.Creator, log zerolog.Logger) *Gateway {
	return &Gateway{store: store, deals: deals, log: log}
}

// Ingest processes one inbound webhook request. The caller supplies the raw
// body and the presented secret; retries are the caller's job and are made
// safe by the idempotency key.
func (g *Gateway) Ingest(ctx context.Context, sourceID, presentedSecret string, rawBody []byte) (*Result, error) {
	src, err := g.store.GetInboundSource(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("source lookup failed: %w", err)
	}
	if src == nil || !src.Active {
		return nil, ErrUnauthorized
	}
	if !secrets.Equal(src.Secret, presentedSecret) {
		return nil, ErrUnauthorized
	}

	var p Payload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		g.recordRejection(ctx, src.ID, "", reasonMalformedPayload)
		return nil, ErrMalformedPayload
	}

	if p.Email == "" && p.Phone == "" {
		g.recordRejection(ctx, src.ID, p.ExternalEventID, reasonMissingIdentifier)
		return nil, ErrMissingContactIdentifier
	}

	// Claim the idempotency key before creating the deal so that concurrent
	// duplicates race on the unique index, not on deal creation.
	var claim *models.InboundRecord
	if p.ExternalEventID != "" {
		claim = &models.InboundRecord{
			ID:              models.NewID("in"),
			SourceID:        src.ID,
			ExternalEventID: p.ExternalEventID,
			ReceivedAt:      time.Now().UTC(),
		}
		winner, err := g.claim(ctx, claim)
		if err != nil {
			return nil, err
		}
		if winner != nil {
			g.log.Info().
				Str("source_id", src.ID).
				Str("external_event_id", p.ExternalEventID).
				Msg("duplicate inbound event deduplicated")
			return &Result{DealID: winner.DealID, Deduplicated: true}, nil
		}
	}

	dealID, err := g.deals.CreateDeal(ctx, pipeline.DealCommand{
		OrgID:     src.OrgID,
		BoardID:   src.EntryBoardID,
		StageID:   src.EntryStageID,
		Title:     dealTitle(p),
		Value:     p.DealValue,
		SourceTag: sourceTag(p),
		Contact: pipeline.Contact{
			Name:    p.ContactName,
			Email:   p.Email,
			Phone:   p.Phone,
			Company: p.CompanyName,
		},
	})
	if err != nil {
		// Release the claim so the caller's retry is not mistaken for a
		// duplicate of a deal that was never created.
		if claim != nil {
			if relErr := g.store.ReleaseInboundClaim(ctx, claim.ID); relErr != nil {
				g.log.Error().Err(relErr).Str("record_id", claim.ID).Msg("failed to release inbound claim")
			}
		}
		return nil, fmt.Errorf("deal creation failed: %w", err)
	}

	if claim != nil {
		if err := g.store.CompleteInboundRecord(ctx, claim.ID, dealID); err != nil {
			g.log.Error().Err(err).Str("record_id", claim.ID).Msg("failed to complete inbound record")
		}
	} else {
		rec := &models.InboundRecord{
			ID:         models.NewID("in"),
			SourceID:   src.ID,
			DealID:     dealID,
			ReceivedAt: time.Now().UTC(),
		}
		if err := g.store.ClaimInboundEvent(ctx, rec); err != nil {
			g.log.Error().Err(err).Str("source_id", src.ID).Msg("failed to record inbound event")
		}
	}

	g.log.Info().
		Str("source_id", src.ID).
		Str("deal_id", dealID).
		Str("external_event_id", p.ExternalEventID).
		Msg("inbound webhook accepted")

	return &Result{DealID: dealID}, nil
}

// claim inserts the dedup row. On conflict it returns the winner's record;
// if the winner released its claim in between (downstream failure), one
// retry takes over the key.
func (g *Gateway) claim(ctx context.Context, rec *models.InboundRecord) (*models.InboundRecord, error) {
	for i := 0; i < 2; i++ {
		err := g.store.ClaimInboundEvent(ctx, rec)
		if err == nil {
			return nil, nil
		}
		if !errors.Is(err, storage.ErrDuplicateEvent) {
			return nil, fmt.Errorf("idempotency claim failed: %w", err)
		}
		winner, err := g.store.GetInboundRecord(ctx, rec.SourceID, rec.ExternalEventID)
		if err != nil {
			return nil, fmt.Errorf("dedup lookup failed: %w", err)
		}
		if winner != nil {
			return winner, nil
		}
	}
	return nil, fmt.Errorf("idempotency claim failed: key contended")
}

func (g *Gateway) recordRejection(ctx context.Context, sourceID, externalEventID, reason string) {
	rec := &models.InboundRecord{
		ID:              models.NewID("in"),
		SourceID:        sourceID,
		ExternalEventID: externalEventID,
		RejectionReason: reason,
		ReceivedAt:      time.Now().UTC(),
	}
	if err := g.store.RecordInboundRejection(ctx, rec); err != nil {
		g.log.Error().Err(err).Str("source_id", sourceID).Msg("failed to record rejection")
	}
}

func dealTitle(p Payload) string {
	if p.DealTitle != "" {
		return p.DealTitle
	}
	switch {
	case p.ContactName != "":
		return "Lead — " + p.ContactName
	case p.Email != "":
		return "Lead — " + p.Email
	default:
		return "Lead — " + p.Phone
	}
}

func sourceTag(p Payload) string {
	if p.Source != "" {
		return p.Source
	}
	return "webhook"
}
