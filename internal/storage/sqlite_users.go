package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"newsfeed/internal/model"
)

const preferencesColumns = `user_id, categories, keywords, companies, industries, excluded_sources,
	excluded_keywords, digest_enabled, digest_time, timezone, history_retention_days,
	personalization_enabled, created_at, updated_at`

// GetPreferences returns the preferences of a user, or ErrNotFound when the
// user never stored any.
func (s *SQLite) GetPreferences(ctx context.Context, userID int64) (*model.Preferences, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+preferencesColumns+` FROM user_news_preferences WHERE user_id = ?`, userID,
	)
	var p model.Preferences
	var categories, keywords, companies, industries, excludedSources, excludedKeywords string
	var digestEnabled, personalization int
	var created, updated string
	err := row.Scan(&p.UserID, &categories, &keywords, &companies, &industries, &excludedSources,
		&excludedKeywords, &digestEnabled, &p.Notifications.DigestTime, &p.Notifications.Timezone,
		&p.HistoryRetentionDays, &personalization, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan preferences: %w", err)
	}
	decodeJSON(categories, &p.Categories)
	decodeJSON(keywords, &p.Keywords)
	decodeJSON(companies, &p.Companies)
	decodeJSON(industries, &p.Industries)
	decodeJSON(excludedSources, &p.ExcludedSources)
	decodeJSON(excludedKeywords, &p.ExcludedKeywords)
	p.Notifications.DigestEnabled = digestEnabled == 1
	p.PersonalizationEnabled = personalization == 1
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

// SavePreferences creates or replaces the preferences row of p.UserID.
func (s *SQLite) SavePreferences(ctx context.Context, p *model.Preferences) error {
	lists := make([]any, 0, 6)
	for _, v := range []any{p.Categories, p.Keywords, p.Companies, p.Industries, p.ExcludedSources, p.ExcludedKeywords} {
		enc, err := encodeJSON(v)
		if err != nil {
			return err
		}
		lists = append(lists, enc)
	}
	now := formatTime(time.Now())
	args := append([]any{p.UserID}, lists...)
	args = append(args,
		boolToInt(p.Notifications.DigestEnabled), p.Notifications.DigestTime, p.Notifications.Timezone,
		p.HistoryRetentionDays, boolToInt(p.PersonalizationEnabled), now, now,
	)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_news_preferences (`+preferencesColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   categories = excluded.categories,
		   keywords = excluded.keywords,
		   companies = excluded.companies,
		   industries = excluded.industries,
		   excluded_sources = excluded.excluded_sources,
		   excluded_keywords = excluded.excluded_keywords,
		   digest_enabled = excluded.digest_enabled,
		   digest_time = excluded.digest_time,
		   timezone = excluded.timezone,
		   history_retention_days = excluded.history_retention_days,
		   personalization_enabled = excluded.personalization_enabled,
		   updated_at = excluded.updated_at`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

var engagementColumn = map[model.Action]string{
	model.ActionViewed:  "view_count",
	model.ActionClicked: "click_count",
	model.ActionSaved:   "save_count",
	model.ActionShared:  "share_count",
}

// UpsertInteraction stores the interaction keyed on (user_id, article_id, action).
// A repeated action updates the reading metrics in place. The article's
// engagement counter is bumped only for the first occurrence.
func (s *SQLite) UpsertInteraction(ctx context.Context, in *model.Interaction) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM news_interactions WHERE user_id = ? AND article_id = ? AND action = ?`,
		in.UserID, in.ArticleID, string(in.Action),
	).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("lookup interaction: %w", err)
	}
	inserted := existing == 0

	var created string
	err = tx.QueryRowContext(ctx,
		`INSERT INTO news_interactions (user_id, article_id, action, reading_time_seconds, scroll_depth, feedback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, article_id, action) DO UPDATE SET
		   reading_time_seconds = COALESCE(excluded.reading_time_seconds, reading_time_seconds),
		   scroll_depth = COALESCE(excluded.scroll_depth, scroll_depth),
		   feedback = CASE WHEN excluded.feedback = '' THEN feedback ELSE excluded.feedback END
		 RETURNING id, created_at`,
		in.UserID, in.ArticleID, string(in.Action), in.ReadingTimeSeconds, in.ScrollDepth, in.Feedback,
		formatTime(time.Now()),
	).Scan(&in.ID, &created)
	if err != nil {
		return false, fmt.Errorf("upsert interaction: %w", err)
	}
	in.CreatedAt = parseTime(created)

	if col, ok := engagementColumn[in.Action]; ok && inserted {
		if _, err := tx.ExecContext(ctx,
			`UPDATE articles SET `+col+` = `+col+` + 1 WHERE id = ?`, in.ArticleID,
		); err != nil {
			return false, fmt.Errorf("update engagement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// ListSignals returns the user's most recent interactions since the given
// time, joined with the categories and sentiment of the articles involved.
func (s *SQLite) ListSignals(ctx context.Context, userID int64, since time.Time, limit int) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.action, a.categories, a.sentiment_score, i.created_at
		 FROM news_interactions i
		 JOIN articles a ON a.id = i.article_id
		 WHERE i.user_id = ? AND i.created_at >= ?
		 ORDER BY i.created_at DESC, i.id DESC
		 LIMIT ?`,
		userID, formatTime(since), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var signals []model.Signal
	for rows.Next() {
		var sig model.Signal
		var action, categories, at string
		var sentiment sql.NullFloat64
		if err := rows.Scan(&action, &categories, &sentiment, &at); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.Action = model.Action(action)
		decodeJSON(categories, &sig.Categories)
		if sentiment.Valid {
			v := sentiment.Float64
			sig.Sentiment = &v
		}
		sig.At = parseTime(at)
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

const savedColumns = `s.id, s.user_id, s.article_id, s.folder, s.tags, s.notes, s.priority,
	s.is_archived, s.reminder_at, s.created_at`

// UpsertSavedArticle bookmarks an article for a user, or updates the
// existing bookmark of the same (user, article) pair.
func (s *SQLite) UpsertSavedArticle(ctx context.Context, sa *model.SavedArticle) error {
	if sa.Folder == "" {
		sa.Folder = "default"
	}
	tags, err := encodeJSON(sa.Tags)
	if err != nil {
		return err
	}
	var created string
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO saved_articles (user_id, article_id, folder, tags, notes, priority, is_archived, reminder_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, article_id) DO UPDATE SET
		   folder = excluded.folder,
		   tags = excluded.tags,
		   notes = excluded.notes,
		   priority = excluded.priority,
		   is_archived = excluded.is_archived,
		   reminder_at = excluded.reminder_at
		 RETURNING id, created_at`,
		sa.UserID, sa.ArticleID, sa.Folder, tags, sa.Notes, sa.Priority, boolToInt(sa.Archived),
		formatNullTime(sa.ReminderAt), formatTime(time.Now()),
	).Scan(&sa.ID, &created)
	if err != nil {
		return fmt.Errorf("upsert saved article: %w", err)
	}
	sa.CreatedAt = parseTime(created)
	return nil
}

// ListSavedArticles returns the user's non-archived bookmarks, newest first,
// with their articles attached. An empty folder matches all folders.
func (s *SQLite) ListSavedArticles(ctx context.Context, userID int64, folder string) ([]model.SavedArticle, error) {
	query := `SELECT ` + savedColumns + `, ` + strings.Join(prefixed("a.", articleColumns), ", ") + `
		FROM saved_articles s
		JOIN articles a ON a.id = s.article_id
		WHERE s.user_id = ? AND s.is_archived = 0`
	args := []any{userID}
	if folder != "" {
		query += ` AND s.folder = ?`
		args = append(args, folder)
	}
	query += ` ORDER BY s.priority DESC, s.created_at DESC, s.id DESC`
	return s.listSaved(ctx, query, args...)
}

// ListDueReminders returns the user's non-archived bookmarks whose reminder
// is set before the given time.
func (s *SQLite) ListDueReminders(ctx context.Context, userID int64, before time.Time) ([]model.SavedArticle, error) {
	query := `SELECT ` + savedColumns + `, ` + strings.Join(prefixed("a.", articleColumns), ", ") + `
		FROM saved_articles s
		JOIN articles a ON a.id = s.article_id
		WHERE s.user_id = ? AND s.is_archived = 0 AND s.reminder_at IS NOT NULL AND s.reminder_at < ?
		ORDER BY s.reminder_at`
	return s.listSaved(ctx, query, userID, formatTime(before))
}

func (s *SQLite) listSaved(ctx context.Context, query string, args ...any) ([]model.SavedArticle, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query saved articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var saved []model.SavedArticle
	for rows.Next() {
		sa, err := scanSavedArticle(rows)
		if err != nil {
			return nil, err
		}
		saved = append(saved, sa)
	}
	return saved, rows.Err()
}

// savedRow splits one joined row between the bookmark and its article.
type savedRow struct {
	dest    []any
	article scannable
}

func (r savedRow) Scan(dest ...any) error {
	return r.article.Scan(append(r.dest, dest...)...)
}

func scanSavedArticle(rows scannable) (model.SavedArticle, error) {
	var sa model.SavedArticle
	var tags, created string
	var archived int
	var reminder sql.NullString
	head := []any{&sa.ID, &sa.UserID, &sa.ArticleID, &sa.Folder, &tags, &sa.Notes, &sa.Priority,
		&archived, &reminder, &created}
	a, err := scanArticle(savedRow{dest: head, article: rows})
	if err != nil {
		return sa, fmt.Errorf("scan saved article: %w", err)
	}
	decodeJSON(tags, &sa.Tags)
	sa.Archived = archived == 1
	sa.ReminderAt = parseNullTime(reminder)
	sa.CreatedAt = parseTime(created)
	sa.Article = a
	return sa, nil
}
