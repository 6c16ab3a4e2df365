package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dealgate/dealgate/internal/storage"
)

type fakeDirectory struct {
	stages map[string]bool // orgID|boardID|stageID
}

func (f *fakeDirectory) StageExists(ctx context.Context, orgID, boardID, stageID string) (bool, error) {
	return f.stages[orgID+"|"+boardID+"|"+stageID], nil
}

func setupRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	boards := &fakeDirectory{stages: map[string]bool{
		"org-1|board-1|stage-1": true,
		"org-2|board-9|stage-9": true,
	}}
	return New(store, boards, "https://hooks.example.com/")
}

func TestCreateInboundSource(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	src, err := reg.CreateInboundSource(ctx, "org-1", SourceParams{
		Name:         "Lead intake",
		EntryBoardID: "board-1",
		EntryStageID: "stage-1",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(src.Secret) != 32 {
		t.Errorf("expected 32-char secret, got %d", len(src.Secret))
	}
	if !src.Active {
		t.Error("new source should be active")
	}
}

func TestCreateInboundSourceValidation(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params SourceParams
	}{
		{"missing name", SourceParams{EntryBoardID: "board-1", EntryStageID: "stage-1"}},
		{"missing stage", SourceParams{Name: "x", EntryBoardID: "board-1"}},
		{"unknown stage", SourceParams{Name: "x", EntryBoardID: "board-1", EntryStageID: "stage-404"}},
		{"stage from another org", SourceParams{Name: "x", EntryBoardID: "board-9", EntryStageID: "stage-9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.CreateInboundSource(ctx, "org-1", tt.params)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}

	sources, err := reg.ListInboundSources(ctx, "org-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sources) != 0 {
		t.Errorf("rejected writes must not partially apply, found %d sources", len(sources))
	}
}

func TestCrossTenantLookupIsNotFound(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	src, err := reg.CreateInboundSource(ctx, "org-1", SourceParams{
		Name: "Lead intake", EntryBoardID: "board-1", EntryStageID: "stage-1",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := reg.GetInboundSource(ctx, "org-2", src.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant get: expected ErrNotFound, got %v", err)
	}
	if _, err := reg.GetInboundSource(ctx, "org-1", "src_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id: expected ErrNotFound, got %v", err)
	}
	if _, err := reg.RotateInboundSecret(ctx, "org-2", src.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant rotate: expected ErrNotFound, got %v", err)
	}
	if err := reg.DeleteInboundSource(ctx, "org-2", src.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant delete: expected ErrNotFound, got %v", err)
	}
}

func TestRotateInboundSecret(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	src, err := reg.CreateInboundSource(ctx, "org-1", SourceParams{
		Name: "Lead intake", EntryBoardID: "board-1", EntryStageID: "stage-1",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	old := src.Secret

	next, err := reg.RotateInboundSecret(ctx, "org-1", src.ID)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if next == old {
		t.Error("rotation returned the old secret")
	}

	got, err := reg.GetInboundSource(ctx, "org-1", src.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Secret != next {
		t.Error("stored secret does not match rotated secret")
	}
}

func TestSetInboundSourceActive(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	src, err := reg.CreateInboundSource(ctx, "org-1", SourceParams{
		Name: "Lead intake", EntryBoardID: "board-1", EntryStageID: "stage-1",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := reg.SetInboundSourceActive(ctx, "org-1", src.ID, false); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	active, err := reg.ActiveInboundSource(ctx, "org-1")
	if err != nil {
		t.Fatalf("active lookup failed: %v", err)
	}
	if active != nil {
		t.Errorf("expected no active source, got %+v", active)
	}
}

func TestInboundURL(t *testing.T) {
	reg := setupRegistry(t)

	got := reg.InboundURL("src_123")
	want := "https://hooks.example.com/webhook-in/src_123"
	if got != want {
		t.Errorf("InboundURL() = %q, want %q", got, want)
	}
}

func TestCreateOutboundEndpoint(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	ep, err := reg.CreateOutboundEndpoint(ctx, "org-1", EndpointParams{
		Name: "Follow-up hook",
		URL:  "https://example.com/hook",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(ep.Secret) != 32 {
		t.Errorf("expected 32-char secret, got %d", len(ep.Secret))
	}
	if len(ep.Events) != 1 || ep.Events[0] != "deal.stage_changed" {
		t.Errorf("expected default deal.stage_changed subscription, got %v", ep.Events)
	}
}

func TestCreateOutboundEndpointURLValidation(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"relative", "/hook"},
		{"no host", "https://"},
		{"bad scheme", "ftp://example.com/hook"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.CreateOutboundEndpoint(ctx, "org-1", EndpointParams{Name: "x", URL: tt.url})
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError for %q, got %v", tt.url, err)
			}
		})
	}
}

func TestRotateEndpointSecret(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	ep, err := reg.CreateOutboundEndpoint(ctx, "org-1", EndpointParams{
		Name: "Follow-up hook", URL: "https://example.com/hook",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	next, err := reg.RotateEndpointSecret(ctx, "org-1", ep.ID)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if next == ep.Secret {
		t.Error("rotation returned the old secret")
	}

	got, err := reg.GetOutboundEndpoint(ctx, "org-1", ep.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Secret != next {
		t.Error("stored secret does not match rotated secret")
	}
}
