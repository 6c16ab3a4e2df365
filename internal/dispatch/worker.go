package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dealgate/dealgate/internal/models"
	"github.com/dealgate/dealgate/internal/storage"
)

type Worker struct {
	store       storage.Store
	sender      *Sender
	maxAttempts int
	backoff     Backoff
	log         zerolog.Logger
}

func NewWorker(store storage.Store, sender *Sender, maxAttempts int, backoff Backoff, log zerolog.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Worker{
		store:       store,
		sender:      sender,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		log:         log,
	}
}

// Process runs one delivery attempt. The endpoint is re-read every attempt,
// so a rotated secret or a deactivation takes effect on the next attempt
// without recalling anything already on the wire.
func (w *Worker) Process(ctx context.Context, d models.OutboundDelivery) {
	ev, err := w.store.GetOutboundEvent(ctx, d.EventID)
	if err != nil || ev == nil {
		w.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to load event for delivery")
		return
	}

	ep, err := w.store.GetOutboundEndpoint(ctx, d.EndpointID)
	if err != nil {
		w.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to load endpoint for delivery")
		return
	}
	if ep == nil {
		d.Status = models.DeliveryExhausted
		d.NextAttemptAt = nil
		d.LastError = "endpoint deleted"
		if err := w.store.UpdateDelivery(ctx, &d); err != nil {
			w.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to update delivery")
		}
		return
	}
	if !ep.Active {
		w.log.Info().Str("delivery_id", d.ID).Msg("skipping delivery to inactive endpoint")
		return
	}

	result := w.sender.Send(ctx, ep.URL, ep.Secret, ev.ID, ev.Payload)

	d.AttemptCount++
	now := time.Now().UTC()

	attempt := &models.Attempt{
		ID:            models.NewID("att"),
		DeliveryID:    d.ID,
		AttemptNumber: d.AttemptCount,
		StatusCode:    result.StatusCode,
		ResponseBody:  result.ResponseBody,
		LatencyMs:     result.LatencyMs,
		Error:         result.Error,
		CreatedAt:     now,
	}
	if err := w.store.CreateAttempt(ctx, attempt); err != nil {
		w.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to record attempt")
	}

	if result.Error == "" && IsSuccess(result.StatusCode) {
		d.Status = models.DeliveryDelivered
		d.NextAttemptAt = nil
		d.LastError = ""
		w.log.Info().
			Str("delivery_id", d.ID).
			Int("status_code", result.StatusCode).
			Int64("latency_ms", result.LatencyMs).
			Msg("delivery succeeded")
	} else {
		d.LastError = attemptError(result)
		if d.AttemptCount >= w.maxAttempts {
			d.Status = models.DeliveryExhausted
			d.NextAttemptAt = nil
			w.log.Warn().
				Str("delivery_id", d.ID).
				Int("attempts", d.AttemptCount).
				Str("error", d.LastError).
				Msg("delivery attempts exhausted")
		} else {
			d.Status = models.DeliveryFailed
			d.NextAttemptAt = NextAttemptTime(d.AttemptCount, w.maxAttempts, w.backoff)
			w.log.Info().
				Str("delivery_id", d.ID).
				Int("attempt", d.AttemptCount).
				Time("next_attempt", *d.NextAttemptAt).
				Msg("delivery scheduled for retry")
		}
	}

	if err := w.store.UpdateDelivery(ctx, &d); err != nil {
		w.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to update delivery")
	}
}

func attemptError(r *SendResult) string {
	if r.Error != "" {
		return r.Error
	}
	return fmt.Sprintf("endpoint returned status %d", r.StatusCode)
}
