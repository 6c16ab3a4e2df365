package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dealgate/dealgate/internal/models"
	"github.com/dealgate/dealgate/internal/storage"
)

func queueDelivery(t *testing.T, s storage.Store, ep *models.OutboundEndpoint) models.OutboundDelivery {
	t.Helper()
	d := NewDispatcher(s, zerolog.Nop())
	if err := d.StageChanged(context.Background(), ep.OrgID, stageEvent()); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	due, err := s.GetDueDeliveries(context.Background(), 1)
	if err != nil || len(due) != 1 {
		t.Fatalf("expected 1 due delivery, got %d (%v)", len(due), err)
	}
	return due[0]
}

func newTestWorker(s storage.Store, maxAttempts int) *Worker {
	backoff := Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond}
	return NewWorker(s, NewSender(2*time.Second), maxAttempts, backoff, zerolog.Nop())
}

func TestWorkerDeliversSigned(t *testing.T) {
	s := setupStore(t)

	type received struct {
		secret      string
		contentType string
		payload     models.EventPayload
	}
	var mu sync.Mutex
	var got []received

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p models.EventPayload
		json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		got = append(got, received{
			secret:      r.Header.Get("X-Webhook-Secret"),
			contentType: r.Header.Get("Content-Type"),
			payload:     p,
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := createEndpoint(t, s, "org-1", srv.URL, true, []string{models.EventDealStageChanged})
	d := queueDelivery(t, s, ep)

	w := newTestWorker(s, 5)
	w.Process(context.Background(), d)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 POST, got %d", len(got))
	}
	if got[0].secret != "ep-secret" {
		t.Errorf("wrong secret header: %q", got[0].secret)
	}
	if got[0].contentType != "application/json" {
		t.Errorf("wrong content type: %q", got[0].contentType)
	}
	if got[0].payload.Deal.FromStageLabel != "Novo" || got[0].payload.Deal.ToStageLabel != "Proposta" {
		t.Errorf("wrong payload: %+v", got[0].payload)
	}

	updated, _ := s.GetDelivery(context.Background(), d.ID)
	if updated.Status != models.DeliveryDelivered {
		t.Errorf("status = %q, want delivered", updated.Status)
	}
	if updated.AttemptCount != 1 {
		t.Errorf("attempt count = %d, want 1", updated.AttemptCount)
	}
}

func TestWorkerRetriesThenExhausts(t *testing.T) {
	s := setupStore(t)

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	const maxAttempts = 3
	ep := createEndpoint(t, s, "org-1", srv.URL, true, []string{models.EventDealStageChanged})
	d := queueDelivery(t, s, ep)

	w := newTestWorker(s, maxAttempts)
	ctx := context.Background()

	for i := 1; i <= maxAttempts; i++ {
		cur, _ := s.GetDelivery(ctx, d.ID)
		w.Process(ctx, *cur)

		cur, _ = s.GetDelivery(ctx, d.ID)
		if cur.AttemptCount != i {
			t.Fatalf("after attempt %d: count = %d", i, cur.AttemptCount)
		}
		if i < maxAttempts {
			if cur.Status != models.DeliveryFailed {
				t.Fatalf("after attempt %d: status = %q, want failed", i, cur.Status)
			}
			if cur.NextAttemptAt == nil {
				t.Fatalf("after attempt %d: expected a retry time", i)
			}
		}
	}

	final, _ := s.GetDelivery(ctx, d.ID)
	if final.Status != models.DeliveryExhausted {
		t.Fatalf("final status = %q, want exhausted", final.Status)
	}
	if final.NextAttemptAt != nil {
		t.Error("exhausted delivery must not schedule another attempt")
	}
	if requests != maxAttempts {
		t.Errorf("server saw %d requests, want %d", requests, maxAttempts)
	}

	// Exhausted deliveries never come back as due.
	due, _ := s.GetDueDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Errorf("exhausted delivery still due: %v", due)
	}

	attempts, err := s.GetAttemptsByDelivery(ctx, d.ID)
	if err != nil {
		t.Fatalf("attempts lookup failed: %v", err)
	}
	if len(attempts) != maxAttempts {
		t.Errorf("expected %d attempt rows, got %d", maxAttempts, len(attempts))
	}
	if attempts[0].StatusCode != http.StatusBadGateway {
		t.Errorf("attempt status code = %d", attempts[0].StatusCode)
	}
}

func TestWorkerSendsRotatedSecret(t *testing.T) {
	s := setupStore(t)

	var mu sync.Mutex
	var secrets []string
	fail := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		secrets = append(secrets, r.Header.Get("X-Webhook-Secret"))
		failNow := fail
		mu.Unlock()
		if failNow {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := createEndpoint(t, s, "org-1", srv.URL, true, []string{models.EventDealStageChanged})
	d := queueDelivery(t, s, ep)

	w := newTestWorker(s, 5)
	ctx := context.Background()

	w.Process(ctx, d)

	// Rotate between attempts. The next attempt must carry the new secret.
	if err := s.UpdateOutboundEndpointSecret(ctx, ep.ID, "rotated-secret"); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	mu.Lock()
	fail = false
	mu.Unlock()

	cur, _ := s.GetDelivery(ctx, d.ID)
	w.Process(ctx, *cur)

	mu.Lock()
	defer mu.Unlock()
	if len(secrets) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(secrets))
	}
	if secrets[0] != "ep-secret" {
		t.Errorf("first attempt secret = %q", secrets[0])
	}
	if secrets[1] != "rotated-secret" {
		t.Errorf("second attempt sent %q, want rotated secret", secrets[1])
	}
}

func TestWorkerSkipsInactiveEndpoint(t *testing.T) {
	s := setupStore(t)

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := createEndpoint(t, s, "org-1", srv.URL, true, []string{models.EventDealStageChanged})
	d := queueDelivery(t, s, ep)

	ctx := context.Background()
	if err := s.SetOutboundEndpointActive(ctx, ep.ID, false); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	w := newTestWorker(s, 5)
	w.Process(ctx, d)

	if requests != 0 {
		t.Errorf("inactive endpoint received %d requests", requests)
	}
	cur, _ := s.GetDelivery(ctx, d.ID)
	if cur.AttemptCount != 0 {
		t.Errorf("skip must not count as an attempt, got %d", cur.AttemptCount)
	}
}

func TestDeletedEndpointDrainsQueue(t *testing.T) {
	s := setupStore(t)

	ep := createEndpoint(t, s, "org-1", "https://example.com/hook", true, []string{models.EventDealStageChanged})
	d := queueDelivery(t, s, ep)

	ctx := context.Background()
	if err := s.DeleteOutboundEndpoint(ctx, ep.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	// The delivery rows go with the endpoint, so nothing is left to retry.
	if cur, _ := s.GetDelivery(ctx, d.ID); cur != nil {
		t.Errorf("delivery survived endpoint deletion: %+v", cur)
	}
	due, _ := s.GetDueDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Errorf("expected empty queue after endpoint deletion, got %d", len(due))
	}
}

func TestWorkerUnreachableHostSchedulesRetry(t *testing.T) {
	s := setupStore(t)

	// Reserved TEST-NET address, nothing listens there.
	ep := createEndpoint(t, s, "org-1", "http://192.0.2.1:9/hook", true, []string{models.EventDealStageChanged})
	d := queueDelivery(t, s, ep)

	w := NewWorker(s, NewSender(100*time.Millisecond), 5, Backoff{Base: time.Millisecond, Max: time.Millisecond}, zerolog.Nop())
	ctx := context.Background()
	w.Process(ctx, d)

	cur, _ := s.GetDelivery(ctx, d.ID)
	if cur.Status != models.DeliveryFailed {
		t.Errorf("status = %q, want failed", cur.Status)
	}
	if cur.LastError == "" {
		t.Error("expected last_error to be recorded")
	}
}
