// Package digest builds periodic per-user summaries of relevant articles.
package digest

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"newsfeed/internal/model"
	"newsfeed/internal/relevance"
	"newsfeed/internal/storage"
)

const (
	maxArticles    = 10
	candidateLimit = 200
	historyLimit   = 200
	historyWindow  = 30 * 24 * time.Hour
	topCategories  = 3
	topReads       = 3
)

// Generator creates digests. Idempotency is enforced by storage, so any
// number of generators may run concurrently.
type Generator struct {
	store storage.Storage
	log   *slog.Logger
	now   func() time.Time
}

// NewGenerator creates a Generator writing to store.
func NewGenerator(store storage.Storage, log *slog.Logger) *Generator {
	return &Generator{store: store, log: log, now: time.Now}
}

// GenerateDaily creates the user's digest for the last 24 hours. It returns
// nil and no error when a daily digest already overlaps that period.
func (g *Generator) GenerateDaily(ctx context.Context, userID int64) (*model.Digest, error) {
	return g.generate(ctx, userID, model.DigestDaily, 24*time.Hour, "24 hours")
}

// GenerateWeekly creates the user's digest for the last 7 days. It returns
// nil and no error when a weekly digest already overlaps that period.
func (g *Generator) GenerateWeekly(ctx context.Context, userID int64) (*model.Digest, error) {
	return g.generate(ctx, userID, model.DigestWeekly, 7*24*time.Hour, "7 days")
}

// Get returns a digest by ID, or nil when it does not exist.
func (g *Generator) Get(ctx context.Context, id int64) (*model.Digest, error) {
	d, err := g.store.GetDigest(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get digest: %w", err)
	}
	return d, nil
}

// MarkRead flags the digest as read. It reports false when it already was.
func (g *Generator) MarkRead(ctx context.Context, id int64) (bool, error) {
	changed, err := g.store.MarkDigestRead(ctx, id, g.now())
	if err != nil {
		return false, fmt.Errorf("mark digest read: %w", err)
	}
	return changed, nil
}

// MarkSent flags the digest as delivered. It reports false when it already was.
func (g *Generator) MarkSent(ctx context.Context, id int64) (bool, error) {
	changed, err := g.store.MarkDigestSent(ctx, id, g.now())
	if err != nil {
		return false, fmt.Errorf("mark digest sent: %w", err)
	}
	return changed, nil
}

func (g *Generator) generate(ctx context.Context, userID int64, typ model.DigestType, period time.Duration, label string) (*model.Digest, error) {
	log := g.log.With("user_id", userID, "digest_type", typ)
	end := g.now().UTC().Truncate(time.Second)
	start := end.Add(-period)

	// CreateDigest is the authoritative guard.
	_, err := g.store.FindOverlappingDigest(ctx, userID, typ, start, end)
	switch {
	case err == nil:
		log.Debug("digest already exists for period")
		return nil, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("find digest: %w", err)
	}

	prefs, err := g.store.GetPreferences(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	q := storage.ArticleQuery{
		PublishedAfter:  start,
		PublishedBefore: end,
		Order:           storage.OrderRelevance,
		Limit:           candidateLimit,
	}
	if prefs != nil {
		q.AnyCategories = prefs.Categories
		q.ExcludeSources = prefs.ExcludedSources
		q.ExcludeTitleKeywords = prefs.ExcludedKeywords
	}
	candidates, err := g.store.QueryArticles(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query digest articles: %w", err)
	}

	var history []model.Signal
	if prefs != nil && prefs.PersonalizationEnabled {
		history, err = g.store.ListSignals(ctx, userID, end.Add(-historyWindow), historyLimit)
		if err != nil {
			log.Error("list interaction history", "error", err)
		}
	}

	type scored struct {
		article model.Article
		score   float64
	}
	ranked := lo.Map(candidates, func(a model.Article, _ int) scored {
		return scored{article: a, score: relevance.Score(a, prefs, history, end)}
	})
	slices.SortStableFunc(ranked, func(x, y scored) int { return cmp.Compare(y.score, x.score) })
	if len(ranked) > maxArticles {
		ranked = ranked[:maxArticles]
	}
	selected := lo.Map(ranked, func(s scored, _ int) model.Article { return s.article })

	reminders, err := g.store.ListDueReminders(ctx, userID, end)
	if err != nil {
		log.Error("list due reminders", "error", err)
	}

	d := &model.Digest{
		UserID:      userID,
		Type:        typ,
		PeriodStart: start,
		PeriodEnd:   end,
		ArticleIDs:  lo.Map(selected, func(a model.Article, _ int) int64 { return a.ID }),
		Summary:     summarize(selected, len(candidates), label),
		KeyTrends:   keyTrends(selected),
		ActionItems: actionItems(selected, reminders),
	}
	if len(ranked) > 0 {
		d.PersonalizationScore = stat.Mean(lo.Map(ranked, func(s scored, _ int) float64 { return s.score }), nil)
	}

	if err := g.store.CreateDigest(ctx, d); err != nil {
		if errors.Is(err, storage.ErrDigestExists) {
			log.Debug("digest created concurrently")
			return nil, nil
		}
		return nil, fmt.Errorf("create digest: %w", err)
	}

	log.Info("digest created", "digest_id", d.ID, "articles", len(d.ArticleIDs))
	return d, nil
}

func summarize(selected []model.Article, candidates int, label string) string {
	if len(selected) == 0 {
		return fmt.Sprintf("No new articles matched your interests in the last %s.", label)
	}
	return fmt.Sprintf("%d of %d articles from the last %s made your digest. Top story: %s.",
		len(selected), candidates, label, selected[0].Title)
}

func keyTrends(selected []model.Article) []string {
	counts := make(map[string]int)
	for _, a := range selected {
		for _, c := range a.Categories {
			counts[c]++
		}
	}
	cats := lo.Keys(counts)
	slices.SortFunc(cats, func(x, y string) int {
		if c := cmp.Compare(counts[y], counts[x]); c != 0 {
			return c
		}
		return cmp.Compare(x, y)
	})
	if len(cats) > topCategories {
		cats = cats[:topCategories]
	}

	trends := lo.Map(cats, func(c string, _ int) string {
		return fmt.Sprintf("%s (%d %s)", c, counts[c], plural(counts[c], "article"))
	})

	sentiments := lo.Map(selected, func(a model.Article, _ int) *float64 { return a.Sentiment })
	if avg, ok := relevance.AverageSentiment(sentiments); ok {
		trends = append(trends, fmt.Sprintf("Overall sentiment: %s (%.2f)", sentimentLabel(avg), avg))
	}
	return trends
}

func actionItems(selected []model.Article, reminders []model.SavedArticle) []string {
	items := make([]string, 0, topReads+len(reminders))
	for _, a := range lo.Slice(selected, 0, topReads) {
		items = append(items, "Read: "+a.Title)
	}
	for _, r := range reminders {
		if r.Article != nil {
			items = append(items, "Revisit saved article: "+r.Article.Title)
		}
	}
	return items
}

func sentimentLabel(v float64) string {
	switch {
	case v > 0.1:
		return "positive"
	case v < -0.1:
		return "negative"
	}
	return "neutral"
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
