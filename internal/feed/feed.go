// Package feed assembles personalized article feeds and search results.
package feed

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"newsfeed/internal/model"
	"newsfeed/internal/relevance"
	"newsfeed/internal/storage"
)

const (
	defaultLimit        = 20
	maxLimit            = 100
	recommendationLimit = 5
	historyLimit        = 200
	defaultHistoryDays  = 30
)

// Recommendations are auxiliary article lists shown next to the feed.
type Recommendations struct {
	Trending []model.Article
	Breaking []model.Article
	Industry []model.Article
	ForYou   []model.Article
}

// Feed is one page of a user's feed.
type Feed struct {
	Articles   []model.Article
	TotalCount int
	// RelevanceScores maps article ID to the score used for ranking.
	RelevanceScores map[int64]float64
	Recommendations Recommendations
}

// SearchFilter narrows an article search. Zero-valued fields do not constrain.
type SearchFilter struct {
	Query        string
	Categories   []string
	SourceIDs    []int64
	MinRelevance *float64
	From         time.Time
	To           time.Time
	Limit        int
	Offset       int
}

// SearchResult is one page of search hits.
type SearchResult struct {
	Articles   []model.Article
	TotalCount int
}

// Composer builds feeds from stored articles. It holds no mutable state
// and is safe for concurrent use.
type Composer struct {
	store storage.Storage
	log   *slog.Logger
	now   func() time.Time
}

// NewComposer creates a Composer reading from store.
func NewComposer(store storage.Storage, log *slog.Logger) *Composer {
	return &Composer{store: store, log: log, now: time.Now}
}

// Feed returns the page of the user's feed at offset. Articles are selected
// newest first through the user's filters; only the returned page is then
// re-ranked by relevance. Without preferences the feed is unfiltered and
// stays in newest-first order. Read failures yield an empty feed.
func (c *Composer) Feed(ctx context.Context, userID int64, limit, offset int) Feed {
	log := c.log.With("user_id", userID)
	now := c.now().UTC()
	out := emptyFeed()

	prefs, err := c.store.GetPreferences(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Error("get preferences", "error", err)
		return out
	}

	q := storage.ArticleQuery{Order: storage.OrderNewest, Limit: clampLimit(limit), Offset: max(offset, 0)}
	applyPreferences(&q, prefs)

	articles, err := c.store.QueryArticles(ctx, q)
	if err != nil {
		log.Error("query feed articles", "error", err)
		return out
	}
	total, err := c.store.CountArticles(ctx, q)
	if err != nil {
		log.Error("count feed articles", "error", err)
		return out
	}

	history := c.history(ctx, log, userID, prefs, now)
	for _, a := range articles {
		out.RelevanceScores[a.ID] = relevance.Score(a, prefs, history, now)
	}
	if prefs != nil {
		slices.SortStableFunc(articles, func(x, y model.Article) int {
			return cmp.Compare(out.RelevanceScores[y.ID], out.RelevanceScores[x.ID])
		})
	}

	out.Articles = nonNil(articles)
	out.TotalCount = total
	out.Recommendations = c.recommendations(ctx, log, prefs, now)
	return out
}

// Search returns articles matching f, newest first. Read failures yield an
// empty result.
func (c *Composer) Search(ctx context.Context, f SearchFilter) SearchResult {
	q := storage.ArticleQuery{
		Text:            f.Query,
		AnyCategories:   f.Categories,
		SourceIDs:       f.SourceIDs,
		MinRelevance:    f.MinRelevance,
		PublishedAfter:  f.From,
		PublishedBefore: f.To,
		Order:           storage.OrderNewest,
		Limit:           clampLimit(f.Limit),
		Offset:          max(f.Offset, 0),
	}

	articles, err := c.store.QueryArticles(ctx, q)
	if err != nil {
		c.log.Error("search articles", "query", f.Query, "error", err)
		return SearchResult{Articles: []model.Article{}}
	}
	total, err := c.store.CountArticles(ctx, q)
	if err != nil {
		c.log.Error("count search articles", "query", f.Query, "error", err)
		return SearchResult{Articles: []model.Article{}}
	}
	return SearchResult{Articles: nonNil(articles), TotalCount: total}
}

func (c *Composer) history(ctx context.Context, log *slog.Logger, userID int64, prefs *model.Preferences, now time.Time) []model.Signal {
	if prefs == nil || !prefs.PersonalizationEnabled {
		return nil
	}
	days := prefs.HistoryRetentionDays
	if days <= 0 {
		days = defaultHistoryDays
	}
	signals, err := c.store.ListSignals(ctx, userID, now.AddDate(0, 0, -days), historyLimit)
	if err != nil {
		log.Error("list interaction history", "error", err)
		return nil
	}
	return signals
}

func (c *Composer) recommendations(ctx context.Context, log *slog.Logger, prefs *model.Preferences, now time.Time) Recommendations {
	bucket := func(name string, q storage.ArticleQuery) []model.Article {
		q.Limit = recommendationLimit
		applyExclusions(&q, prefs)
		articles, err := c.store.QueryArticles(ctx, q)
		if err != nil {
			log.Error("query recommendations", "bucket", name, "error", err)
			return []model.Article{}
		}
		return nonNil(articles)
	}

	recs := Recommendations{
		Trending: bucket("trending", storage.ArticleQuery{
			PublishedAfter: now.Add(-24 * time.Hour),
			Order:          storage.OrderRelevance,
		}),
		Breaking: bucket("breaking", storage.ArticleQuery{
			PublishedAfter: now.Add(-6 * time.Hour),
			Order:          storage.OrderNewest,
		}),
		Industry: []model.Article{},
		ForYou:   []model.Article{},
	}
	if prefs != nil && len(prefs.Industries) > 0 {
		recs.Industry = bucket("industry", storage.ArticleQuery{
			AnyCategories:  prefs.Industries,
			PublishedAfter: now.Add(-24 * time.Hour),
			Order:          storage.OrderRelevance,
		})
	}
	return recs
}

func applyPreferences(q *storage.ArticleQuery, prefs *model.Preferences) {
	if prefs == nil {
		return
	}
	q.AnyCategories = prefs.Categories
	applyExclusions(q, prefs)
}

func applyExclusions(q *storage.ArticleQuery, prefs *model.Preferences) {
	if prefs == nil {
		return
	}
	q.ExcludeSources = prefs.ExcludedSources
	q.ExcludeTitleKeywords = prefs.ExcludedKeywords
}

func emptyFeed() Feed {
	return Feed{
		Articles:        []model.Article{},
		RelevanceScores: map[int64]float64{},
		Recommendations: Recommendations{
			Trending: []model.Article{},
			Breaking: []model.Article{},
			Industry: []model.Article{},
			ForYou:   []model.Article{},
		},
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}

func nonNil(articles []model.Article) []model.Article {
	if articles == nil {
		return []model.Article{}
	}
	return articles
}
