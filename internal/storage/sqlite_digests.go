package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsfeed/internal/model"
)

const digestColumns = `id, user_id, digest_type, period_start, period_end, article_ids, summary,
	key_trends, action_items, personalization_score, was_sent, sent_at, was_read, read_at, created_at`

// FindOverlappingDigest returns a digest of the given type whose period
// overlaps [start, end), or ErrNotFound.
func (s *SQLite) FindOverlappingDigest(ctx context.Context, userID int64, typ model.DigestType, start, end time.Time) (*model.Digest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+digestColumns+` FROM news_digests
		 WHERE user_id = ? AND digest_type = ? AND period_start < ? AND period_end > ?
		 ORDER BY period_end DESC LIMIT 1`,
		userID, string(typ), formatTime(end), formatTime(start),
	)
	return scanDigest(row)
}

// CreateDigest inserts d unless a digest of the same user and type already
// overlaps its period. The existence check and the insert run as one
// statement, and the (user_id, digest_type, period_start) unique index
// rejects exact duplicates, so concurrent callers cannot both succeed.
func (s *SQLite) CreateDigest(ctx context.Context, d *model.Digest) error {
	articleIDs, err := encodeJSON(d.ArticleIDs)
	if err != nil {
		return err
	}
	trends, err := encodeJSON(d.KeyTrends)
	if err != nil {
		return err
	}
	actions, err := encodeJSON(d.ActionItems)
	if err != nil {
		return err
	}
	start, end := formatTime(d.PeriodStart), formatTime(d.PeriodEnd)
	now := formatTime(time.Now())

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO news_digests (user_id, digest_type, period_start, period_end, article_ids, summary,
		   key_trends, action_items, personalization_score, created_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (
		   SELECT 1 FROM news_digests
		   WHERE user_id = ? AND digest_type = ? AND period_start < ? AND period_end > ?
		 )`,
		d.UserID, string(d.Type), start, end, articleIDs, d.Summary, trends, actions,
		d.PersonalizationScore, now,
		d.UserID, string(d.Type), end, start,
	)
	if isUniqueViolation(err) {
		return ErrDigestExists
	}
	if err != nil {
		return fmt.Errorf("insert digest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrDigestExists
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	d.WasSent, d.SentAt = false, nil
	d.WasRead, d.ReadAt = false, nil
	d.CreatedAt = parseTime(now)
	return nil
}

// GetDigest returns a single digest by its ID.
func (s *SQLite) GetDigest(ctx context.Context, id int64) (*model.Digest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+digestColumns+` FROM news_digests WHERE id = ?`, id)
	return scanDigest(row)
}

// MarkDigestRead sets was_read and read_at once. It reports whether the
// digest changed state; an already-read digest keeps its original read_at.
func (s *SQLite) MarkDigestRead(ctx context.Context, id int64, at time.Time) (bool, error) {
	return s.markDigest(ctx, `UPDATE news_digests SET was_read = 1, read_at = ? WHERE id = ? AND was_read = 0`, id, at)
}

// MarkDigestSent sets was_sent and sent_at once.
func (s *SQLite) MarkDigestSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	return s.markDigest(ctx, `UPDATE news_digests SET was_sent = 1, sent_at = ? WHERE id = ? AND was_sent = 0`, id, at)
}

func (s *SQLite) markDigest(ctx context.Context, query string, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, formatTime(at), id)
	if err != nil {
		return false, fmt.Errorf("update digest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetDigest(ctx, id); err != nil {
			return false, err
		}
	}
	return n > 0, nil
}

func scanDigest(row scannable) (*model.Digest, error) {
	var d model.Digest
	var typ, start, end, articleIDs, trends, actions, created string
	var wasSent, wasRead int
	var sentAt, readAt sql.NullString
	err := row.Scan(&d.ID, &d.UserID, &typ, &start, &end, &articleIDs, &d.Summary, &trends, &actions,
		&d.PersonalizationScore, &wasSent, &sentAt, &wasRead, &readAt, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan digest: %w", err)
	}
	d.Type = model.DigestType(typ)
	d.PeriodStart = parseTime(start)
	d.PeriodEnd = parseTime(end)
	decodeJSON(articleIDs, &d.ArticleIDs)
	decodeJSON(trends, &d.KeyTrends)
	decodeJSON(actions, &d.ActionItems)
	d.WasSent = wasSent == 1
	d.SentAt = parseNullTime(sentAt)
	d.WasRead = wasRead == 1
	d.ReadAt = parseNullTime(readAt)
	d.CreatedAt = parseTime(created)
	return &d, nil
}
