package digest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"newsfeed/internal/model"
	"newsfeed/internal/storage"
)

var now = time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newGenerator(store storage.Storage, at time.Time) *Generator {
	g := NewGenerator(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	g.now = func() time.Time { return at }
	return g
}

func seedSource(t *testing.T, store storage.Storage) int64 {
	t.Helper()
	src := model.Source{Name: "Wire", FeedURL: "https://wire.example.com/rss", Type: model.SourceRSS, IsActive: true, CadenceMinutes: 60}
	if err := store.UpsertSource(context.Background(), &src); err != nil {
		t.Fatalf("upsert source: %v", err)
	}
	return src.ID
}

func seedArticle(t *testing.T, store storage.Storage, sourceID int64, title string, age time.Duration, rel float64, cats []string, sentiment *float64) int64 {
	t.Helper()
	a := model.Article{
		SourceID:       sourceID,
		ExternalID:     title,
		Title:          title,
		URL:            "https://wire.example.com/" + title,
		PublishedAt:    now.Add(-age),
		Categories:     cats,
		Sentiment:      sentiment,
		RelevanceScore: rel,
	}
	if _, err := store.UpsertArticle(context.Background(), &a); err != nil {
		t.Fatalf("upsert article: %v", err)
	}
	return a.ID
}

func ptr(v float64) *float64 { return &v }

func TestGenerateDailyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedArticle(t, store, seedSource(t, store), "Morning brief", time.Hour, 0.5, []string{"technology"}, nil)

	first, err := newGenerator(store, now).GenerateDaily(ctx, 1)
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	if first == nil {
		t.Fatal("expected a digest on the first call")
	}

	second, err := newGenerator(store, now.Add(3*time.Hour)).GenerateDaily(ctx, 1)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if second != nil {
		t.Errorf("expected nil on the second call the same day, got digest %d", second.ID)
	}

	other, err := newGenerator(store, now).GenerateDaily(ctx, 2)
	if err != nil {
		t.Fatalf("other user generate: %v", err)
	}
	if other == nil {
		t.Error("expected a digest for a different user")
	}

	weekly, err := newGenerator(store, now).GenerateWeekly(ctx, 1)
	if err != nil {
		t.Fatalf("weekly generate: %v", err)
	}
	if weekly == nil {
		t.Error("expected a weekly digest alongside the daily one")
	}

	nextDay, err := newGenerator(store, now.Add(25*time.Hour)).GenerateDaily(ctx, 1)
	if err != nil {
		t.Fatalf("next day generate: %v", err)
	}
	if nextDay == nil {
		t.Error("expected a new digest once the period no longer overlaps")
	}
}

func TestGenerateDailyConcurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	g := newGenerator(store, now)

	var wg sync.WaitGroup
	results := make(chan *model.Digest, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := g.GenerateDaily(ctx, 1)
			if err != nil {
				t.Errorf("generate: %v", err)
			}
			results <- d
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for d := range results {
		if d != nil {
			created++
		}
	}
	if diff := cmp.Diff(1, created); diff != "" {
		t.Errorf("created count mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateDailyContent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	srcID := seedSource(t, store)

	var ids []int64
	for i := range 12 {
		rel := 0.9 - float64(i)*0.05
		cats := []string{"technology"}
		if i%3 == 0 {
			cats = append(cats, "finance")
		}
		ids = append(ids, seedArticle(t, store, srcID, fmt.Sprintf("Story %02d", i), time.Duration(i+1)*time.Hour, rel, cats, ptr(0.4)))
	}
	seedArticle(t, store, srcID, "Yesterday's news", 30*time.Hour, 1.0, []string{"technology"}, nil)

	saved := model.SavedArticle{UserID: 1, ArticleID: ids[11], ReminderAt: ptrTime(now.Add(-time.Hour))}
	if err := store.UpsertSavedArticle(ctx, &saved); err != nil {
		t.Fatalf("save article: %v", err)
	}

	d, err := newGenerator(store, now).GenerateDaily(ctx, 1)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if d == nil {
		t.Fatal("expected digest")
	}

	if diff := cmp.Diff(ids[:10], d.ArticleIDs); diff != "" {
		t.Errorf("article ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(now.Add(-24*time.Hour), d.PeriodStart); diff != "" {
		t.Errorf("period start mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("10 of 12 articles from the last 24 hours made your digest. Top story: Story 00.", d.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	wantTrends := []string{
		"technology (10 articles)",
		"finance (4 articles)",
		"Overall sentiment: positive (0.40)",
	}
	if diff := cmp.Diff(wantTrends, d.KeyTrends); diff != "" {
		t.Errorf("trends mismatch (-want +got):\n%s", diff)
	}
	wantActions := []string{
		"Read: Story 00",
		"Read: Story 01",
		"Read: Story 02",
		"Revisit saved article: Story 11",
	}
	if diff := cmp.Diff(wantActions, d.ActionItems); diff != "" {
		t.Errorf("action items mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 0.675, d.PersonalizationScore, 1e-9)
	assert.False(t, d.WasRead)
	assert.False(t, d.WasSent)

	stored, err := newGenerator(store, now).Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(d.ArticleIDs, stored.ArticleIDs); diff != "" {
		t.Errorf("stored ids mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateDailyAppliesPreferences(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	srcID := seedSource(t, store)

	tech := seedArticle(t, store, srcID, "Chip news", time.Hour, 0.5, []string{"technology"}, nil)
	seedArticle(t, store, srcID, "Bank news", time.Hour, 0.9, []string{"finance"}, nil)

	p := model.DefaultPreferences(1)
	p.Categories = []string{"technology"}
	if err := store.SavePreferences(ctx, &p); err != nil {
		t.Fatalf("save preferences: %v", err)
	}

	d, err := newGenerator(store, now).GenerateDaily(ctx, 1)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if diff := cmp.Diff([]int64{tech}, d.ArticleIDs); diff != "" {
		t.Errorf("article ids mismatch (-want +got):\n%s", diff)
	}
	// 0.5 neutral + 0.25 category + 0.1 recency
	assert.InDelta(t, 0.85, d.PersonalizationScore, 1e-9)
}

func TestGenerateDailyEmpty(t *testing.T) {
	d, err := newGenerator(newTestStore(t), now).GenerateDaily(context.Background(), 1)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if diff := cmp.Diff("No new articles matched your interests in the last 24 hours.", d.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, d.ArticleIDs)
	assert.Zero(t, d.PersonalizationScore)
}

func TestMarkReadIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	d, err := newGenerator(store, now).GenerateDaily(ctx, 1)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	changed, err := newGenerator(store, now.Add(time.Hour)).MarkRead(ctx, d.ID)
	if err != nil {
		t.Fatalf("first mark read: %v", err)
	}
	assert.True(t, changed)

	changed, err = newGenerator(store, now.Add(2*time.Hour)).MarkRead(ctx, d.ID)
	if err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	assert.False(t, changed)

	got, err := newGenerator(store, now).Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	assert.True(t, got.WasRead)
	if diff := cmp.Diff(ptrTime(now.Add(time.Hour)), got.ReadAt); diff != "" {
		t.Errorf("read at mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, got.WasSent)

	sent, err := newGenerator(store, now).MarkSent(ctx, d.ID)
	if err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	assert.True(t, sent)
}

func TestGetMissingDigest(t *testing.T) {
	got, err := newGenerator(newTestStore(t), now).Get(context.Background(), 404)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	assert.Nil(t, got)
}

func ptrTime(t time.Time) *time.Time { return &t }
