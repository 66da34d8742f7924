package api

import (
	"time"

	"github.com/samber/lo"

	"newsfeed/internal/feed"
	"newsfeed/internal/model"
	"newsfeed/internal/scheduler"
)

type sourceResponse struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	FeedURL        string            `json:"feed_url"`
	Type           string            `json:"source_type"`
	Categories     []string          `json:"categories"`
	Reliability    float64           `json:"reliability_score"`
	IsActive       bool              `json:"is_active"`
	LastFetchedAt  *time.Time        `json:"last_fetched_at"`
	CadenceMinutes int               `json:"fetch_frequency_minutes"`
	Metadata       map[string]string `json:"metadata"`
}

type engagementResponse struct {
	Views  int `json:"view_count"`
	Clicks int `json:"click_count"`
	Saves  int `json:"save_count"`
	Shares int `json:"share_count"`
}

type articleResponse struct {
	ID             int64              `json:"id"`
	SourceID       int64              `json:"source_id"`
	ExternalID     string             `json:"external_id"`
	Title          string             `json:"title"`
	Summary        string             `json:"summary"`
	Author         string             `json:"author,omitempty"`
	PublishedAt    time.Time          `json:"published_at"`
	URL            string             `json:"url"`
	ImageURL       string             `json:"image_url,omitempty"`
	Categories     []string           `json:"categories"`
	Tags           []string           `json:"tags"`
	Sentiment      *float64           `json:"sentiment_score"`
	RelevanceScore float64            `json:"relevance_score"`
	Engagement     engagementResponse `json:"engagement"`
}

type feedResponse struct {
	Articles        []articleResponse       `json:"articles"`
	TotalCount      int                     `json:"total_count"`
	RelevanceScores map[int64]float64       `json:"relevance_scores"`
	Recommendations recommendationsResponse `json:"recommendations"`
}

type recommendationsResponse struct {
	Trending []articleResponse `json:"trending"`
	Breaking []articleResponse `json:"breaking"`
	Industry []articleResponse `json:"industry"`
	ForYou   []articleResponse `json:"for_you"`
}

type searchResponse struct {
	Articles   []articleResponse `json:"articles"`
	TotalCount int               `json:"total_count"`
}

type notificationResponse struct {
	DigestEnabled bool   `json:"digest_enabled"`
	DigestTime    string `json:"digest_time"`
	Timezone      string `json:"timezone"`
}

type preferencesResponse struct {
	UserID                 int64                `json:"user_id"`
	Categories             []string             `json:"categories"`
	Keywords               []string             `json:"keywords"`
	Companies              []string             `json:"companies"`
	Industries             []string             `json:"industries"`
	ExcludedSources        []int64              `json:"excluded_sources"`
	ExcludedKeywords       []string             `json:"excluded_keywords"`
	Notifications          notificationResponse `json:"notification_settings"`
	HistoryRetentionDays   int                  `json:"history_retention_days"`
	PersonalizationEnabled bool                 `json:"personalization_enabled"`
}

type preferencesRequest struct {
	Categories             *[]string `json:"categories"`
	Keywords               *[]string `json:"keywords"`
	Companies              *[]string `json:"companies"`
	Industries             *[]string `json:"industries"`
	ExcludedSources        *[]int64  `json:"excluded_sources"`
	ExcludedKeywords       *[]string `json:"excluded_keywords"`
	DigestEnabled          *bool     `json:"digest_enabled"`
	DigestTime             *string   `json:"digest_time"`
	Timezone               *string   `json:"timezone"`
	HistoryRetentionDays   *int      `json:"history_retention_days"`
	PersonalizationEnabled *bool     `json:"personalization_enabled"`
}

type interactionRequest struct {
	ArticleID          int64    `json:"article_id" binding:"required"`
	Action             string   `json:"action" binding:"required"`
	ReadingTimeSeconds *int     `json:"reading_time_seconds"`
	ScrollDepth        *float64 `json:"scroll_depth"`
	Feedback           string   `json:"feedback"`
}

type interactionResponse struct {
	ID                 int64     `json:"id"`
	ArticleID          int64     `json:"article_id"`
	Action             string    `json:"action"`
	ReadingTimeSeconds *int      `json:"reading_time_seconds"`
	ScrollDepth        *float64  `json:"scroll_depth"`
	CreatedAt          time.Time `json:"created_at"`
}

type saveRequest struct {
	ArticleID  int64      `json:"article_id" binding:"required"`
	Folder     string     `json:"folder"`
	Tags       []string   `json:"tags"`
	Notes      string     `json:"notes"`
	Priority   int        `json:"priority"`
	ReminderAt *time.Time `json:"reminder_at"`
}

type savedResponse struct {
	ID         int64            `json:"id"`
	ArticleID  int64            `json:"article_id"`
	Folder     string           `json:"folder"`
	Tags       []string         `json:"tags"`
	Notes      string           `json:"notes"`
	Priority   int              `json:"priority"`
	ReminderAt *time.Time       `json:"reminder_at"`
	CreatedAt  time.Time        `json:"created_at"`
	Article    *articleResponse `json:"article,omitempty"`
}

type digestResponse struct {
	ID                   int64      `json:"id"`
	Type                 string     `json:"digest_type"`
	PeriodStart          time.Time  `json:"period_start"`
	PeriodEnd            time.Time  `json:"period_end"`
	ArticleIDs           []int64    `json:"article_ids"`
	Summary              string     `json:"summary"`
	KeyTrends            []string   `json:"key_trends"`
	ActionItems          []string   `json:"action_items"`
	PersonalizationScore float64    `json:"personalization_score"`
	WasSent              bool       `json:"was_sent"`
	SentAt               *time.Time `json:"sent_at"`
	WasRead              bool       `json:"was_read"`
	ReadAt               *time.Time `json:"read_at"`
}

type aggregateResponse struct {
	RunID   string   `json:"run_id,omitempty"`
	Fetched int      `json:"fetched"`
	New     int      `json:"new"`
	Errors  []string `json:"errors"`
}

func toSource(s model.Source) sourceResponse {
	return sourceResponse{
		ID:             s.ID,
		Name:           s.Name,
		URL:            s.URL,
		FeedURL:        s.FeedURL,
		Type:           string(s.Type),
		Categories:     orEmpty(s.Categories),
		Reliability:    s.Reliability,
		IsActive:       s.IsActive,
		LastFetchedAt:  s.LastFetchedAt,
		CadenceMinutes: s.CadenceMinutes,
		Metadata:       s.Metadata,
	}
}

func toArticle(a model.Article) articleResponse {
	return articleResponse{
		ID:             a.ID,
		SourceID:       a.SourceID,
		ExternalID:     a.ExternalID,
		Title:          a.Title,
		Summary:        a.Summary,
		Author:         a.Author,
		PublishedAt:    a.PublishedAt,
		URL:            a.URL,
		ImageURL:       a.ImageURL,
		Categories:     orEmpty(a.Categories),
		Tags:           orEmpty(a.Tags),
		Sentiment:      a.Sentiment,
		RelevanceScore: a.RelevanceScore,
		Engagement: engagementResponse{
			Views:  a.Engagement.Views,
			Clicks: a.Engagement.Clicks,
			Saves:  a.Engagement.Saves,
			Shares: a.Engagement.Shares,
		},
	}
}

func toArticles(articles []model.Article) []articleResponse {
	return lo.Map(articles, func(a model.Article, _ int) articleResponse { return toArticle(a) })
}

func toFeed(f feed.Feed) feedResponse {
	return feedResponse{
		Articles:        toArticles(f.Articles),
		TotalCount:      f.TotalCount,
		RelevanceScores: f.RelevanceScores,
		Recommendations: recommendationsResponse{
			Trending: toArticles(f.Recommendations.Trending),
			Breaking: toArticles(f.Recommendations.Breaking),
			Industry: toArticles(f.Recommendations.Industry),
			ForYou:   toArticles(f.Recommendations.ForYou),
		},
	}
}

func toPreferences(p *model.Preferences) *preferencesResponse {
	if p == nil {
		return nil
	}
	return &preferencesResponse{
		UserID:           p.UserID,
		Categories:       orEmpty(p.Categories),
		Keywords:         orEmpty(p.Keywords),
		Companies:        orEmpty(p.Companies),
		Industries:       orEmpty(p.Industries),
		ExcludedSources:  orEmpty(p.ExcludedSources),
		ExcludedKeywords: orEmpty(p.ExcludedKeywords),
		Notifications: notificationResponse{
			DigestEnabled: p.Notifications.DigestEnabled,
			DigestTime:    p.Notifications.DigestTime,
			Timezone:      p.Notifications.Timezone,
		},
		HistoryRetentionDays:   p.HistoryRetentionDays,
		PersonalizationEnabled: p.PersonalizationEnabled,
	}
}

func (r preferencesRequest) patch() model.PreferencesPatch {
	return model.PreferencesPatch{
		Categories:             r.Categories,
		Keywords:               r.Keywords,
		Companies:              r.Companies,
		Industries:             r.Industries,
		ExcludedSources:        r.ExcludedSources,
		ExcludedKeywords:       r.ExcludedKeywords,
		DigestEnabled:          r.DigestEnabled,
		DigestTime:             r.DigestTime,
		Timezone:               r.Timezone,
		HistoryRetentionDays:   r.HistoryRetentionDays,
		PersonalizationEnabled: r.PersonalizationEnabled,
	}
}

func toInteraction(in *model.Interaction) interactionResponse {
	return interactionResponse{
		ID:                 in.ID,
		ArticleID:          in.ArticleID,
		Action:             string(in.Action),
		ReadingTimeSeconds: in.ReadingTimeSeconds,
		ScrollDepth:        in.ScrollDepth,
		CreatedAt:          in.CreatedAt,
	}
}

func toSaved(sa model.SavedArticle) savedResponse {
	out := savedResponse{
		ID:         sa.ID,
		ArticleID:  sa.ArticleID,
		Folder:     sa.Folder,
		Tags:       orEmpty(sa.Tags),
		Notes:      sa.Notes,
		Priority:   sa.Priority,
		ReminderAt: sa.ReminderAt,
		CreatedAt:  sa.CreatedAt,
	}
	if sa.Article != nil {
		a := toArticle(*sa.Article)
		out.Article = &a
	}
	return out
}

func toDigest(d *model.Digest) *digestResponse {
	if d == nil {
		return nil
	}
	return &digestResponse{
		ID:                   d.ID,
		Type:                 string(d.Type),
		PeriodStart:          d.PeriodStart,
		PeriodEnd:            d.PeriodEnd,
		ArticleIDs:           orEmpty(d.ArticleIDs),
		Summary:              d.Summary,
		KeyTrends:            orEmpty(d.KeyTrends),
		ActionItems:          orEmpty(d.ActionItems),
		PersonalizationScore: d.PersonalizationScore,
		WasSent:              d.WasSent,
		SentAt:               d.SentAt,
		WasRead:              d.WasRead,
		ReadAt:               d.ReadAt,
	}
}

func toAggregate(r scheduler.Result) aggregateResponse {
	return aggregateResponse{RunID: r.RunID, Fetched: r.Fetched, New: r.New, Errors: orEmpty(r.Errors)}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
