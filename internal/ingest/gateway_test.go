package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dealgate/dealgate/internal/models"
	"github.com/dealgate/dealgate/internal/pipeline"
	"github.com/dealgate/dealgate/internal/storage"
)

type fakeCreator struct {
	mu       sync.Mutex
	calls    int32
	commands []pipeline.DealCommand
	fail     bool
}

func (f *fakeCreator) CreateDeal(ctx context.Context, cmd pipeline.DealCommand) (string, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.fail {
		return "", errors.New("crm unavailable")
	}
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
	return fmt.Sprintf("deal-%d", n), nil
}

func setupGateway(t *testing.T) (*Gateway, storage.Store, *models.InboundSource, *fakeCreator) {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	now := time.Now().UTC()
	src := &models.InboundSource{
		ID:           models.NewID("src"),
		OrgID:        "org-1",
		Name:         "Lead intake",
		EntryBoardID: "board-1",
		EntryStageID: "stage-1",
		Secret:       "sourcesecret",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateInboundSource(context.Background(), src); err != nil {
		t.Fatalf("failed to create source: %v", err)
	}

	creator := &fakeCreator{}
	gw := NewGateway(store, creator, zerolog.Nop())
	return gw, store, src, creator
}

func TestIngestCreatesDeal(t *testing.T) {
	gw, _, src, creator := setupGateway(t)

	body := []byte(`{"email":"a@b.com","deal_title":"Acme","deal_value":12000,"contact_name":"Ana"}`)
	result, err := gw.Ingest(context.Background(), src.ID, "sourcesecret", body)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if result.Deduplicated {
		t.Error("first ingest must not be deduplicated")
	}
	if result.DealID == "" {
		t.Error("expected a deal id")
	}

	if len(creator.commands) != 1 {
		t.Fatalf("expected 1 deal creation, got %d", len(creator.commands))
	}
	cmd := creator.commands[0]
	if cmd.Title != "Acme" || cmd.BoardID != "board-1" || cmd.StageID != "stage-1" {
		t.Errorf("wrong command: %+v", cmd)
	}
	if cmd.Value != 12000 || cmd.SourceTag != "webhook" || cmd.Contact.Email != "a@b.com" {
		t.Errorf("wrong command fields: %+v", cmd)
	}
}

func TestIngestDefaultTitle(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"from contact name", `{"email":"a@b.com","contact_name":"Ana"}`, "Lead — Ana"},
		{"from email", `{"email":"a@b.com"}`, "Lead — a@b.com"},
		{"from phone", `{"phone":"+5511999999999"}`, "Lead — +5511999999999"},
		{"explicit title wins", `{"email":"a@b.com","deal_title":"Big deal"}`, "Big deal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, _, src, creator := setupGateway(t)
			if _, err := gw.Ingest(context.Background(), src.ID, "sourcesecret", []byte(tt.body)); err != nil {
				t.Fatalf("ingest failed: %v", err)
			}
			if got := creator.commands[0].Title; got != tt.want {
				t.Errorf("title = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIngestUnauthorized(t *testing.T) {
	gw, store, src, creator := setupGateway(t)
	ctx := context.Background()
	body := []byte(`{"email":"a@b.com"}`)

	tests := []struct {
		name     string
		sourceID string
		secret   string
		prep     func()
	}{
		{"wrong secret", src.ID, "wrong", nil},
		{"missing secret", src.ID, "", nil},
		{"unknown source", "src_unknown", "sourcesecret", nil},
		{"inactive source", src.ID, "sourcesecret", func() {
			if err := store.SetInboundSourceActive(ctx, src.ID, false); err != nil {
				t.Fatalf("deactivate failed: %v", err)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.prep != nil {
				tt.prep()
			}
			_, err := gw.Ingest(ctx, tt.sourceID, tt.secret, body)
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})
	}

	if creator.calls != 0 {
		t.Errorf("unauthorized requests must not create deals, got %d", creator.calls)
	}
}

func TestIngestBadRequests(t *testing.T) {
	gw, _, src, creator := setupGateway(t)
	ctx := context.Background()

	if _, err := gw.Ingest(ctx, src.ID, "sourcesecret", []byte(`{not json`)); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}

	missing := []string{
		`{}`,
		`{"deal_title":"Acme","deal_value":100}`,
		`{"contact_name":"Ana","company_name":"Acme Ltd"}`,
	}
	for _, body := range missing {
		if _, err := gw.Ingest(ctx, src.ID, "sourcesecret", []byte(body)); !errors.Is(err, ErrMissingContactIdentifier) {
			t.Errorf("body %s: expected ErrMissingContactIdentifier, got %v", body, err)
		}
	}

	if creator.calls != 0 {
		t.Errorf("rejected payloads must not create deals, got %d", creator.calls)
	}
}

func TestIngestDeduplicates(t *testing.T) {
	gw, _, src, creator := setupGateway(t)
	ctx := context.Background()

	body := []byte(`{"external_event_id":"ev-1","email":"a@b.com","deal_title":"Acme"}`)

	first, err := gw.Ingest(ctx, src.ID, "sourcesecret", body)
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	second, err := gw.Ingest(ctx, src.ID, "sourcesecret", body)
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}

	if !second.Deduplicated {
		t.Error("second ingest should be deduplicated")
	}
	if second.DealID != first.DealID {
		t.Errorf("dedup returned %q, want winner's %q", second.DealID, first.DealID)
	}
	if creator.calls != 1 {
		t.Errorf("expected exactly 1 deal, got %d", creator.calls)
	}
}

func TestIngestWithoutEventIDNeverDeduplicates(t *testing.T) {
	gw, _, src, creator := setupGateway(t)
	ctx := context.Background()

	body := []byte(`{"email":"a@b.com"}`)
	for i := 0; i < 3; i++ {
		result, err := gw.Ingest(ctx, src.ID, "sourcesecret", body)
		if err != nil {
			t.Fatalf("ingest %d failed: %v", i, err)
		}
		if result.Deduplicated {
			t.Errorf("ingest %d unexpectedly deduplicated", i)
		}
	}
	if creator.calls != 3 {
		t.Errorf("expected 3 deals, got %d", creator.calls)
	}
}

func TestIngestDownstreamFailureReleasesClaim(t *testing.T) {
	gw, _, src, creator := setupGateway(t)
	ctx := context.Background()

	body := []byte(`{"external_event_id":"ev-1","email":"a@b.com"}`)

	creator.fail = true
	if _, err := gw.Ingest(ctx, src.ID, "sourcesecret", body); err == nil {
		t.Fatal("expected downstream failure")
	}

	// The caller retries the same event id; it must not be treated as a
	// duplicate of a deal that was never created.
	creator.fail = false
	result, err := gw.Ingest(ctx, src.ID, "sourcesecret", body)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.Deduplicated {
		t.Error("retry after failure must not be deduplicated")
	}
	if result.DealID == "" {
		t.Error("retry should create the deal")
	}
}

func TestIngestConcurrentDuplicates(t *testing.T) {
	gw, _, src, creator := setupGateway(t)
	ctx := context.Background()

	body := []byte(`{"external_event_id":"ev-race","email":"a@b.com"}`)

	const n = 10
	results := make([]*Result, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = gw.Ingest(ctx, src.ID, "sourcesecret", body)
		}(i)
	}
	wg.Wait()

	deduped := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d failed: %v", i, errs[i])
		}
		if results[i].Deduplicated {
			deduped++
		}
	}

	if creator.calls != 1 {
		t.Errorf("expected exactly 1 deal under concurrent duplicates, got %d", creator.calls)
	}
	if deduped != n-1 {
		t.Errorf("expected %d deduplicated responses, got %d", n-1, deduped)
	}
}

func TestIngestRecordsLedger(t *testing.T) {
	gw, store, src, _ := setupGateway(t)
	ctx := context.Background()

	body := []byte(`{"external_event_id":"ev-1","email":"a@b.com"}`)
	result, err := gw.Ingest(ctx, src.ID, "sourcesecret", body)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	rec, err := store.GetInboundRecord(ctx, src.ID, "ev-1")
	if err != nil {
		t.Fatalf("record lookup failed: %v", err)
	}
	if rec == nil || rec.DealID != result.DealID {
		t.Errorf("ledger record missing or wrong: %+v", rec)
	}
}
