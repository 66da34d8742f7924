package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"newsfeed/internal/model"
	"newsfeed/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// foldFunc names the SQL function lowering text the way strings.ToLower
// does. SQLite's LOWER only folds ASCII.
const foldFunc = "go_lower"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		if s, ok := args[0].(string); ok {
			return strings.ToLower(s), nil
		}
		return args[0], nil
	})
}

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases shared across goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

const sourceColumns = `id, name, url, feed_url, source_type, categories, reliability, is_active,
	last_fetched_at, fetch_cadence, metadata, created_at`

// UpsertSource inserts a source or updates the one with the same feed URL.
// The fetch history of an existing source is preserved.
func (s *SQLite) UpsertSource(ctx context.Context, src *model.Source) error {
	if src.CadenceMinutes <= 0 {
		return fmt.Errorf("upsert source %q: cadence must be positive", src.Name)
	}
	categories, err := encodeJSON(src.Categories)
	if err != nil {
		return err
	}
	metadata, err := encodeJSON(src.Metadata)
	if err != nil {
		return err
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO sources (name, url, feed_url, source_type, categories, reliability, is_active, fetch_cadence, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (feed_url) DO UPDATE SET
		   name = excluded.name,
		   url = excluded.url,
		   source_type = excluded.source_type,
		   categories = excluded.categories,
		   reliability = excluded.reliability,
		   is_active = excluded.is_active,
		   fetch_cadence = excluded.fetch_cadence,
		   metadata = excluded.metadata
		 RETURNING `+sourceColumns,
		src.Name, src.URL, src.FeedURL, string(src.Type), categories, src.Reliability,
		boolToInt(src.IsActive), src.CadenceMinutes, metadata,
	)
	got, err := scanSource(row)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	*src = *got
	return nil
}

// GetSource returns a single source by its ID.
func (s *SQLite) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	return scanSource(row)
}

// ListSources returns all sources ordered by ID.
func (s *SQLite) ListSources(ctx context.Context) ([]model.Source, error) {
	return s.listSources(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY id`)
}

// ListActiveSources returns all sources with the active flag set.
func (s *SQLite) ListActiveSources(ctx context.Context) ([]model.Source, error) {
	return s.listSources(ctx, `SELECT `+sourceColumns+` FROM sources WHERE is_active = 1 ORDER BY id`)
}

func (s *SQLite) listSources(ctx context.Context, query string) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// MarkSourceFetched records a successful fetch of the source.
func (s *SQLite) MarkSourceFetched(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET last_fetched_at = ? WHERE id = ?`, formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("mark source fetched: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := formatTime(*t)
	return &v
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	if string(b) == "null" {
		switch v.(type) {
		case map[string]string:
			return "{}", nil
		default:
			return "[]", nil
		}
	}
	return string(b), nil
}

func decodeJSON(raw string, dst any) {
	if raw == "" {
		return
	}
	_ = json.Unmarshal([]byte(raw), dst)
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	var typ, categories, metadata string
	var isActive int
	var lastFetched sql.NullString
	var created string
	err := row.Scan(&src.ID, &src.Name, &src.URL, &src.FeedURL, &typ, &categories, &src.Reliability,
		&isActive, &lastFetched, &src.CadenceMinutes, &metadata, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.Type = model.SourceType(typ)
	src.IsActive = isActive == 1
	src.LastFetchedAt = parseNullTime(lastFetched)
	src.CreatedAt = parseTime(created)
	decodeJSON(categories, &src.Categories)
	decodeJSON(metadata, &src.Metadata)
	return &src, nil
}
