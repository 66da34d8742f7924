// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"newsfeed/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDigestExists is returned when a digest of the same type already covers
// an overlapping period for the user.
var ErrDigestExists = errors.New("digest already exists for period")

// Order selects the sort order of an article query.
type Order int

// Supported article orders.
const (
	OrderNewest Order = iota
	OrderRelevance
)

// ArticleQuery describes a filtered, paginated article lookup.
// Zero-valued fields do not constrain the result.
type ArticleQuery struct {
	AnyCategories        []string
	SourceIDs            []int64
	ExcludeSources       []int64
	ExcludeTitleKeywords []string
	Text                 string
	MinRelevance         *float64
	PublishedAfter       time.Time
	PublishedBefore      time.Time
	Order                Order
	Limit                int
	Offset               int
}

// Storage is the interface for all persistence operations.
type Storage interface {
	UpsertSource(ctx context.Context, src *model.Source) error
	GetSource(ctx context.Context, id int64) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	ListActiveSources(ctx context.Context) ([]model.Source, error)
	MarkSourceFetched(ctx context.Context, id int64, at time.Time) error

	// UpsertArticle inserts the article or updates the existing row with the
	// same (source_id, external_id). It reports whether a new row was created.
	UpsertArticle(ctx context.Context, a *model.Article) (bool, error)
	GetArticle(ctx context.Context, id int64) (*model.Article, error)
	QueryArticles(ctx context.Context, q ArticleQuery) ([]model.Article, error)
	CountArticles(ctx context.Context, q ArticleQuery) (int, error)

	GetPreferences(ctx context.Context, userID int64) (*model.Preferences, error)
	SavePreferences(ctx context.Context, p *model.Preferences) error

	UpsertInteraction(ctx context.Context, in *model.Interaction) (bool, error)
	ListSignals(ctx context.Context, userID int64, since time.Time, limit int) ([]model.Signal, error)

	UpsertSavedArticle(ctx context.Context, sa *model.SavedArticle) error
	ListSavedArticles(ctx context.Context, userID int64, folder string) ([]model.SavedArticle, error)
	ListDueReminders(ctx context.Context, userID int64, before time.Time) ([]model.SavedArticle, error)

	FindOverlappingDigest(ctx context.Context, userID int64, typ model.DigestType, start, end time.Time) (*model.Digest, error)
	// CreateDigest inserts the digest unless one of the same type overlaps its
	// period, in which case ErrDigestExists is returned. The check and the
	// insert are a single statement.
	CreateDigest(ctx context.Context, d *model.Digest) error
	GetDigest(ctx context.Context, id int64) (*model.Digest, error)
	MarkDigestRead(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkDigestSent(ctx context.Context, id int64, at time.Time) (bool, error)

	Close() error
}
