// Package news exposes the aggregation and personalization operations used
// by the HTTP API and the Telegram bot.
package news

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"

	"newsfeed/internal/digest"
	"newsfeed/internal/feed"
	"newsfeed/internal/model"
	"newsfeed/internal/scheduler"
	"newsfeed/internal/sources"
	"newsfeed/internal/storage"
)

// ErrInvalidInput is returned for malformed caller input.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound is returned when a referenced article or digest does not
// exist or belongs to another user.
var ErrNotFound = errors.New("not found")

var digestTimeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Service is the entry point for outer layers. Methods take the acting
// user explicitly.
type Service struct {
	store       storage.Storage
	aggregator  *scheduler.Aggregator
	composer    *feed.Composer
	digests     *digest.Generator
	sourcesFile string
	log         *slog.Logger
}

// New creates a Service. sourcesFile is the YAML source registry; when
// empty, LoadSources only lists the stored sources.
func New(store storage.Storage, aggregator *scheduler.Aggregator, sourcesFile string, log *slog.Logger) *Service {
	return &Service{
		store:       store,
		aggregator:  aggregator,
		composer:    feed.NewComposer(store, log),
		digests:     digest.NewGenerator(store, log),
		sourcesFile: sourcesFile,
		log:         log,
	}
}

// InteractionOptions carries the optional metrics of an interaction.
type InteractionOptions struct {
	ReadingTimeSeconds *int
	ScrollDepth        *float64
	Feedback           string
}

// SaveOptions describes how an article is bookmarked.
type SaveOptions struct {
	Folder     string
	Tags       []string
	Notes      string
	Priority   int
	ReminderAt *time.Time
}

// LoadSources syncs the registry file into storage, when one is
// configured, and returns all stored sources. A missing registry file
// leaves storage as it is.
func (s *Service) LoadSources(ctx context.Context) ([]model.Source, error) {
	if s.sourcesFile != "" {
		if err := s.syncRegistry(ctx); err != nil {
			return nil, fmt.Errorf("load sources: %w", err)
		}
	}
	return s.ListSources(ctx)
}

// ListSources returns the stored sources without reading the registry.
// Read failures yield an empty list.
func (s *Service) ListSources(ctx context.Context) ([]model.Source, error) {
	list, err := s.store.ListSources(ctx)
	if err != nil {
		s.log.Error("list sources", "error", err)
		return []model.Source{}, nil
	}
	if list == nil {
		list = []model.Source{}
	}
	return list, nil
}

func (s *Service) syncRegistry(ctx context.Context) error {
	srcs, err := sources.Load(s.sourcesFile)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("sources file not found, using stored sources", "file", s.sourcesFile)
		return nil
	}
	if err != nil {
		return err
	}
	synced, deactivated, err := sources.Sync(ctx, s.store, srcs)
	if err != nil {
		return err
	}
	for _, src := range deactivated {
		s.log.Info("source deactivated", "source_id", src.ID, "name", src.Name, "feed_url", src.FeedURL)
	}
	s.log.Info("sources synced", "file", s.sourcesFile, "count", len(synced), "deactivated", len(deactivated))
	return nil
}

// AggregateNews runs one aggregation over the due sources.
func (s *Service) AggregateNews(ctx context.Context) scheduler.Result {
	return s.aggregator.Run(ctx)
}

// SearchArticles returns articles matching f.
func (s *Service) SearchArticles(ctx context.Context, f feed.SearchFilter) (feed.SearchResult, error) {
	if f.MinRelevance != nil && (*f.MinRelevance < 0 || *f.MinRelevance > 1) {
		return feed.SearchResult{}, fmt.Errorf("%w: min relevance must be within [0, 1]", ErrInvalidInput)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return feed.SearchResult{}, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidInput)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return feed.SearchResult{}, fmt.Errorf("%w: empty published range", ErrInvalidInput)
	}
	return s.composer.Search(ctx, f), nil
}

// GetPreferences returns the user's preferences, or nil when none are stored.
func (s *Service) GetPreferences(ctx context.Context, userID int64) *model.Preferences {
	p, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("get preferences", "user_id", userID, "error", err)
		}
		return nil
	}
	return p
}

// UpdatePreferences applies patch to the user's preferences, creating them
// with defaults on first write.
func (s *Service) UpdatePreferences(ctx context.Context, userID int64, patch model.PreferencesPatch) (*model.Preferences, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	p, err := s.store.GetPreferences(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		def := model.DefaultPreferences(userID)
		p = &def
	case err != nil:
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	p.Apply(patch)
	p.Categories = normalizeTerms(p.Categories)
	p.Industries = normalizeTerms(p.Industries)
	p.Keywords = trimTerms(p.Keywords)
	p.Companies = trimTerms(p.Companies)
	p.ExcludedKeywords = trimTerms(p.ExcludedKeywords)
	p.ExcludedSources = lo.Uniq(p.ExcludedSources)

	if err := s.store.SavePreferences(ctx, p); err != nil {
		return nil, fmt.Errorf("save preferences: %w", err)
	}
	saved, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reload preferences: %w", err)
	}
	return saved, nil
}

// GetPersonalizedFeed returns one page of the user's ranked feed.
func (s *Service) GetPersonalizedFeed(ctx context.Context, userID int64, limit, offset int) (feed.Feed, error) {
	if limit < 0 || offset < 0 {
		return feed.Feed{}, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidInput)
	}
	return s.composer.Feed(ctx, userID, limit, offset), nil
}

// RecordInteraction stores an action of the user on an article. Repeating
// an action updates the stored metrics instead of adding a record.
func (s *Service) RecordInteraction(ctx context.Context, userID, articleID int64, action model.Action, opts InteractionOptions) (*model.Interaction, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}
	if opts.ReadingTimeSeconds != nil && *opts.ReadingTimeSeconds < 0 {
		return nil, fmt.Errorf("%w: reading time must not be negative", ErrInvalidInput)
	}
	if opts.ScrollDepth != nil && (*opts.ScrollDepth < 0 || *opts.ScrollDepth > 1) {
		return nil, fmt.Errorf("%w: scroll depth must be within [0, 1]", ErrInvalidInput)
	}
	if err := s.requireArticle(ctx, articleID); err != nil {
		return nil, err
	}

	in := &model.Interaction{
		UserID:             userID,
		ArticleID:          articleID,
		Action:             action,
		ReadingTimeSeconds: opts.ReadingTimeSeconds,
		ScrollDepth:        opts.ScrollDepth,
		Feedback:           strings.TrimSpace(opts.Feedback),
	}
	if _, err := s.store.UpsertInteraction(ctx, in); err != nil {
		return nil, fmt.Errorf("record interaction: %w", err)
	}
	return in, nil
}

// SaveArticle bookmarks an article and records a saved interaction.
func (s *Service) SaveArticle(ctx context.Context, userID, articleID int64, opts SaveOptions) (*model.SavedArticle, error) {
	if opts.Priority < 0 {
		return nil, fmt.Errorf("%w: priority must not be negative", ErrInvalidInput)
	}
	if err := s.requireArticle(ctx, articleID); err != nil {
		return nil, err
	}

	sa := &model.SavedArticle{
		UserID:     userID,
		ArticleID:  articleID,
		Folder:     strings.TrimSpace(opts.Folder),
		Tags:       trimTerms(opts.Tags),
		Notes:      opts.Notes,
		Priority:   opts.Priority,
		ReminderAt: opts.ReminderAt,
	}
	if err := s.store.UpsertSavedArticle(ctx, sa); err != nil {
		return nil, fmt.Errorf("save article: %w", err)
	}
	if _, err := s.store.UpsertInteraction(ctx, &model.Interaction{
		UserID: userID, ArticleID: articleID, Action: model.ActionSaved,
	}); err != nil {
		s.log.Error("record saved interaction", "user_id", userID, "article_id", articleID, "error", err)
	}
	return sa, nil
}

// GetSavedArticles returns the user's bookmarks, optionally restricted to a folder.
func (s *Service) GetSavedArticles(ctx context.Context, userID int64, folder string) []model.SavedArticle {
	saved, err := s.store.ListSavedArticles(ctx, userID, strings.TrimSpace(folder))
	if err != nil {
		s.log.Error("list saved articles", "user_id", userID, "error", err)
		return []model.SavedArticle{}
	}
	if saved == nil {
		return []model.SavedArticle{}
	}
	return saved
}

// GenerateDailyDigest creates the user's digest for the last 24 hours, or
// returns nil when one already exists for that period.
func (s *Service) GenerateDailyDigest(ctx context.Context, userID int64) (*model.Digest, error) {
	return s.digests.GenerateDaily(ctx, userID)
}

// GenerateWeeklyDigest creates the user's digest for the last 7 days, or
// returns nil when one already exists for that period.
func (s *Service) GenerateWeeklyDigest(ctx context.Context, userID int64) (*model.Digest, error) {
	return s.digests.GenerateWeekly(ctx, userID)
}

// GetDigest returns one of the user's digests, or nil.
func (s *Service) GetDigest(ctx context.Context, userID, id int64) *model.Digest {
	d, err := s.digests.Get(ctx, id)
	if err != nil {
		s.log.Error("get digest", "user_id", userID, "digest_id", id, "error", err)
		return nil
	}
	if d == nil || d.UserID != userID {
		return nil
	}
	return d
}

// MarkDigestAsRead flags one of the user's digests as read. It reports
// false when the digest was already read.
func (s *Service) MarkDigestAsRead(ctx context.Context, userID, id int64) (bool, error) {
	if s.GetDigest(ctx, userID, id) == nil {
		return false, fmt.Errorf("digest %d: %w", id, ErrNotFound)
	}
	return s.digests.MarkRead(ctx, id)
}

// MarkDigestAsSent flags one of the user's digests as delivered.
func (s *Service) MarkDigestAsSent(ctx context.Context, userID, id int64) (bool, error) {
	if s.GetDigest(ctx, userID, id) == nil {
		return false, fmt.Errorf("digest %d: %w", id, ErrNotFound)
	}
	return s.digests.MarkSent(ctx, id)
}

func (s *Service) requireArticle(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid article id %d", ErrInvalidInput, id)
	}
	_, err := s.store.GetArticle(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get article: %w", err)
	}
	return nil
}

func validatePatch(patch model.PreferencesPatch) error {
	if patch.DigestTime != nil && !digestTimeRe.MatchString(*patch.DigestTime) {
		return fmt.Errorf("%w: digest time must be HH:MM, got %q", ErrInvalidInput, *patch.DigestTime)
	}
	if patch.Timezone != nil {
		if _, err := time.LoadLocation(*patch.Timezone); err != nil || *patch.Timezone == "" {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidInput, *patch.Timezone)
		}
	}
	if patch.HistoryRetentionDays != nil && *patch.HistoryRetentionDays <= 0 {
		return fmt.Errorf("%w: history retention must be positive", ErrInvalidInput)
	}
	return nil
}

// normalizeTerms lower-cases and deduplicates category-like values, which
// are matched case-insensitively.
func normalizeTerms(values []string) []string {
	return lo.Uniq(lo.Compact(lo.Map(values, func(v string, _ int) string {
		return strings.ToLower(strings.TrimSpace(v))
	})))
}

func trimTerms(values []string) []string {
	return lo.Uniq(lo.Compact(lo.Map(values, func(v string, _ int) string {
		return strings.TrimSpace(v)
	})))
}
