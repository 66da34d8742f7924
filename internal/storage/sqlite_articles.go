package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"

	"newsfeed/internal/model"
)

var articleColumns = []string{
	"id", "source_id", "external_id", "title", "summary", "content", "author", "published_at",
	"url", "image_url", "categories", "tags", "sentiment_score", "relevance_score",
	"view_count", "click_count", "save_count", "share_count", "ai_summary", "key_points",
	"metadata", "created_at", "updated_at",
}

func prefixed(prefix string, cols []string) []string {
	return lo.Map(cols, func(c string, _ int) string { return prefix + c })
}

// UpsertArticle inserts the article or updates the existing row keyed on
// (source_id, external_id). Identity, base relevance, engagement counters and
// AI enrichment of an existing row are left untouched.
func (s *SQLite) UpsertArticle(ctx context.Context, a *model.Article) (bool, error) {
	categories, err := encodeJSON(a.Categories)
	if err != nil {
		return false, err
	}
	tags, err := encodeJSON(a.Tags)
	if err != nil {
		return false, err
	}
	keyPoints, err := encodeJSON(a.KeyPoints)
	if err != nil {
		return false, err
	}
	metadata, err := encodeJSON(a.Metadata)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM articles WHERE source_id = ? AND external_id = ?`, a.SourceID, a.ExternalID,
	).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("lookup article: %w", err)
	}
	inserted := existing == 0

	// Undated items take the first-seen time on insert and keep the stored
	// time on refetch.
	now := formatTime(time.Now())
	published, dated := now, ""
	if !a.PublishedAt.IsZero() {
		published = formatTime(a.PublishedAt)
		dated = published
	}
	row := tx.QueryRowContext(ctx,
		`INSERT INTO articles (source_id, external_id, title, summary, content, author, published_at,
		   url, image_url, categories, tags, sentiment_score, relevance_score, ai_summary, key_points,
		   metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source_id, external_id) DO UPDATE SET
		   title = excluded.title,
		   summary = excluded.summary,
		   content = excluded.content,
		   author = excluded.author,
		   published_at = CASE WHEN ? = '' THEN articles.published_at ELSE excluded.published_at END,
		   url = excluded.url,
		   image_url = excluded.image_url,
		   categories = excluded.categories,
		   tags = excluded.tags,
		   sentiment_score = excluded.sentiment_score,
		   metadata = excluded.metadata,
		   updated_at = excluded.updated_at
		 RETURNING `+strings.Join(articleColumns, ", "),
		a.SourceID, a.ExternalID, a.Title, a.Summary, a.Content, a.Author, published,
		a.URL, a.ImageURL, categories, tags, a.Sentiment, a.RelevanceScore, a.AISummary, keyPoints,
		metadata, now, now, dated,
	)
	got, err := scanArticle(row)
	if err != nil {
		return false, fmt.Errorf("upsert article: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	*a = *got
	return inserted, nil
}

// GetArticle returns a single article by its ID.
func (s *SQLite) GetArticle(ctx context.Context, id int64) (*model.Article, error) {
	query, args, err := sq.Select(articleColumns...).From("articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return scanArticle(s.db.QueryRowContext(ctx, query, args...))
}

// QueryArticles returns the articles matching q.
func (s *SQLite) QueryArticles(ctx context.Context, q ArticleQuery) ([]model.Article, error) {
	b := sq.Select(articleColumns...).From("articles").Where(articleFilter(q))
	switch q.Order {
	case OrderRelevance:
		b = b.OrderBy("relevance_score DESC", "published_at DESC", "id DESC")
	default:
		b = b.OrderBy("published_at DESC", "id DESC")
	}
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		if q.Limit <= 0 {
			b = b.Limit(1<<62 - 1)
		}
		b = b.Offset(uint64(q.Offset))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

// CountArticles returns the number of articles matching q, ignoring pagination.
func (s *SQLite) CountArticles(ctx context.Context, q ArticleQuery) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From("articles").Where(articleFilter(q)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

func articleFilter(q ArticleQuery) sq.And {
	cond := sq.And{}
	if len(q.AnyCategories) > 0 {
		cats := lo.Map(q.AnyCategories, func(c string, _ int) any { return strings.ToLower(c) })
		cond = append(cond, sq.Expr(
			"EXISTS (SELECT 1 FROM json_each(articles.categories) WHERE json_each.value IN ("+sq.Placeholders(len(cats))+"))",
			cats...,
		))
	}
	if len(q.SourceIDs) > 0 {
		cond = append(cond, sq.Eq{"source_id": q.SourceIDs})
	}
	if len(q.ExcludeSources) > 0 {
		cond = append(cond, sq.NotEq{"source_id": q.ExcludeSources})
	}
	for _, kw := range q.ExcludeTitleKeywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			cond = append(cond, sq.Expr("instr("+foldFunc+"(title), ?) = 0", strings.ToLower(kw)))
		}
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		needle := strings.ToLower(text)
		cond = append(cond, sq.Or{
			sq.Expr("instr("+foldFunc+"(title), ?) > 0", needle),
			sq.Expr("instr("+foldFunc+"(summary), ?) > 0", needle),
		})
	}
	if q.MinRelevance != nil {
		cond = append(cond, sq.GtOrEq{"relevance_score": *q.MinRelevance})
	}
	if !q.PublishedAfter.IsZero() {
		cond = append(cond, sq.GtOrEq{"published_at": formatTime(q.PublishedAfter)})
	}
	if !q.PublishedBefore.IsZero() {
		cond = append(cond, sq.Lt{"published_at": formatTime(q.PublishedBefore)})
	}
	return cond
}

func scanArticle(row scannable) (*model.Article, error) {
	var a model.Article
	var published, categories, tags, keyPoints, metadata, created, updated string
	var sentiment sql.NullFloat64
	err := row.Scan(&a.ID, &a.SourceID, &a.ExternalID, &a.Title, &a.Summary, &a.Content, &a.Author,
		&published, &a.URL, &a.ImageURL, &categories, &tags, &sentiment, &a.RelevanceScore,
		&a.Engagement.Views, &a.Engagement.Clicks, &a.Engagement.Saves, &a.Engagement.Shares,
		&a.AISummary, &keyPoints, &metadata, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan article: %w", err)
	}
	a.PublishedAt = parseTime(published)
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	if sentiment.Valid {
		v := sentiment.Float64
		a.Sentiment = &v
	}
	decodeJSON(categories, &a.Categories)
	decodeJSON(tags, &a.Tags)
	decodeJSON(keyPoints, &a.KeyPoints)
	decodeJSON(metadata, &a.Metadata)
	return &a, nil
}
