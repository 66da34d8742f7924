package sources

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"newsfeed/internal/model"
	"newsfeed/internal/storage"
)

func TestLoad(t *testing.T) {
	got, err := Load("../../testdata/sources.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := []model.Source{
		{
			Name: "Tech Wire", URL: "https://techwire.example.com", FeedURL: "https://techwire.example.com/rss",
			Type: model.SourceRSS, Categories: []string{"technology", "business"}, Reliability: 0.9,
			IsActive: true, CadenceMinutes: 360,
		},
		{
			Name: "Market API", FeedURL: "https://api.example.com/v1/articles",
			Type: model.SourceAPI, Categories: []string{"finance"}, Reliability: 0.5,
			IsActive: true, CadenceMinutes: 60,
		},
		{
			Name: "Story Board", FeedURL: "https://board.example.com/latest",
			Type: model.SourceScraper, Reliability: 0.5, CadenceMinutes: 120,
			Metadata: map[string]string{"item_selector": "li.story", "summary_selector": "p.teaser"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing feed url",
			yaml:    "sources:\n  - name: A\n",
			wantErr: "feed_url is required",
		},
		{
			name:    "unknown type",
			yaml:    "sources:\n  - name: A\n    feed_url: https://a\n    type: fax\n",
			wantErr: `unknown type "fax"`,
		},
		{
			name:    "negative cadence",
			yaml:    "sources:\n  - name: A\n    feed_url: https://a\n    cadence_minutes: -5\n",
			wantErr: "cadence_minutes must be positive",
		},
		{
			name:    "duplicate feed url",
			yaml:    "sources:\n  - name: A\n    feed_url: https://a\n  - name: B\n    feed_url: https://a\n",
			wantErr: "duplicate feed_url",
		},
		{
			name:    "reliability out of range",
			yaml:    "sources:\n  - name: A\n    feed_url: https://a\n    reliability: 1.5\n",
			wantErr: "reliability must be within",
		},
		{
			name:    "invalid yaml",
			yaml:    "sources: [",
			wantErr: "parse sources file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err)
			}
		})
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	srcs, err := Load("../../testdata/sources.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	first, _, err := Sync(ctx, store, srcs)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	srcs[0].CadenceMinutes = 30
	second, deactivated, err := Sync(ctx, store, srcs)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}

	if diff := cmp.Diff(0, len(deactivated)); diff != "" {
		t.Errorf("nothing should be deactivated (-want +got):\n%s", diff)
	}

	ids := func(ss []model.Source) []int64 {
		out := make([]int64, 0, len(ss))
		for _, s := range ss {
			out = append(out, s.ID)
		}
		return out
	}
	if diff := cmp.Diff(ids(first), ids(second)); diff != "" {
		t.Errorf("ids changed across syncs (-want +got):\n%s", diff)
	}

	stored, err := store.ListSources(ctx)
	if err != nil {
		t.Fatalf("list sources: %v", err)
	}
	if diff := cmp.Diff(second, stored, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("stored sources mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(30, stored[0].CadenceMinutes); diff != "" {
		t.Errorf("cadence not updated (-want +got):\n%s", diff)
	}
}

func TestSyncDeactivatesRemovedSources(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	srcs, err := Load("../../testdata/sources.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, _, err := Sync(ctx, store, srcs); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// Tech Wire is dropped from the registry.
	_, deactivated, err := Sync(ctx, store, srcs[1:])
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	names := func(ss []model.Source) []string {
		out := make([]string, 0, len(ss))
		for _, s := range ss {
			out = append(out, s.Name)
		}
		return out
	}
	if diff := cmp.Diff([]string{"Tech Wire"}, names(deactivated)); diff != "" {
		t.Errorf("deactivated mismatch (-want +got):\n%s", diff)
	}

	active, err := store.ListActiveSources(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if diff := cmp.Diff([]string{"Market API"}, names(active)); diff != "" {
		t.Errorf("active sources mismatch (-want +got):\n%s", diff)
	}

	// Listing it again reactivates it under the same ID.
	synced, deactivated, err := Sync(ctx, store, srcs)
	if err != nil {
		t.Fatalf("third sync: %v", err)
	}
	if diff := cmp.Diff(0, len(deactivated)); diff != "" {
		t.Errorf("nothing should be deactivated (-want +got):\n%s", diff)
	}
	if !synced[0].IsActive {
		t.Error("expected Tech Wire to be active again")
	}
}
