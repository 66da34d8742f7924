// Package model defines the domain types used across the application.
package model

import "time"

// SourceType selects the parser used for a source.
type SourceType string

// Supported source types.
const (
	SourceRSS        SourceType = "rss"
	SourceAPI        SourceType = "api"
	SourceScraper    SourceType = "scraper"
	SourceNewsletter SourceType = "newsletter"
)

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceRSS, SourceAPI, SourceScraper, SourceNewsletter:
		return true
	}
	return false
}

// Source is an operator-managed external feed polled by the pipeline.
type Source struct {
	ID             int64
	Name           string
	URL            string
	FeedURL        string
	Type           SourceType
	Categories     []string
	Reliability    float64
	IsActive       bool
	LastFetchedAt  *time.Time
	CadenceMinutes int
	Metadata       map[string]string
	CreatedAt      time.Time
}

// Due reports whether the source should be fetched at now.
// A source that was never fetched is always due.
func (s Source) Due(now time.Time) bool {
	if s.LastFetchedAt == nil {
		return true
	}
	return now.Sub(*s.LastFetchedAt) >= time.Duration(s.CadenceMinutes)*time.Minute
}

// ParsedArticle is a candidate article extracted from raw feed content.
type ParsedArticle struct {
	GUID        string
	Title       string
	Summary     string
	Content     string
	Author      string
	PublishedAt time.Time
	URL         string
	ImageURL    string
	Categories  []string
	Tags        []string
}

// Engagement holds aggregate interaction counters of an article.
type Engagement struct {
	Views  int
	Clicks int
	Saves  int
	Shares int
}

// Article is the canonical, normalized form of a fetched item.
type Article struct {
	ID             int64
	SourceID       int64
	ExternalID     string
	Title          string
	Summary        string
	Content        string
	Author         string
	PublishedAt    time.Time
	URL            string
	ImageURL       string
	Categories     []string
	Tags           []string
	Sentiment      *float64
	RelevanceScore float64
	Engagement     Engagement
	AISummary      string
	KeyPoints      []string
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NotificationSettings controls digest delivery for a user.
type NotificationSettings struct {
	DigestEnabled bool
	DigestTime    string
	Timezone      string
}

// Preferences holds a user's declared interests and exclusions.
type Preferences struct {
	UserID                 int64
	Categories             []string
	Keywords               []string
	Companies              []string
	Industries             []string
	ExcludedSources        []int64
	ExcludedKeywords       []string
	Notifications          NotificationSettings
	HistoryRetentionDays   int
	PersonalizationEnabled bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// PreferencesPatch is a partial update of Preferences. Nil fields are left unchanged.
type PreferencesPatch struct {
	Categories             *[]string
	Keywords               *[]string
	Companies              *[]string
	Industries             *[]string
	ExcludedSources        *[]int64
	ExcludedKeywords       *[]string
	DigestEnabled          *bool
	DigestTime             *string
	Timezone               *string
	HistoryRetentionDays   *int
	PersonalizationEnabled *bool
}

// DefaultPreferences returns the preferences a user starts with on first write.
func DefaultPreferences(userID int64) Preferences {
	return Preferences{
		UserID: userID,
		Notifications: NotificationSettings{
			DigestEnabled: true,
			DigestTime:    "08:00",
			Timezone:      "UTC",
		},
		HistoryRetentionDays:   90,
		PersonalizationEnabled: true,
	}
}

// Apply copies the set fields of patch into p.
func (p *Preferences) Apply(patch PreferencesPatch) {
	if patch.Categories != nil {
		p.Categories = *patch.Categories
	}
	if patch.Keywords != nil {
		p.Keywords = *patch.Keywords
	}
	if patch.Companies != nil {
		p.Companies = *patch.Companies
	}
	if patch.Industries != nil {
		p.Industries = *patch.Industries
	}
	if patch.ExcludedSources != nil {
		p.ExcludedSources = *patch.ExcludedSources
	}
	if patch.ExcludedKeywords != nil {
		p.ExcludedKeywords = *patch.ExcludedKeywords
	}
	if patch.DigestEnabled != nil {
		p.Notifications.DigestEnabled = *patch.DigestEnabled
	}
	if patch.DigestTime != nil {
		p.Notifications.DigestTime = *patch.DigestTime
	}
	if patch.Timezone != nil {
		p.Notifications.Timezone = *patch.Timezone
	}
	if patch.HistoryRetentionDays != nil {
		p.HistoryRetentionDays = *patch.HistoryRetentionDays
	}
	if patch.PersonalizationEnabled != nil {
		p.PersonalizationEnabled = *patch.PersonalizationEnabled
	}
}

// Action is the kind of a user interaction with an article.
type Action string

// Supported interaction actions.
const (
	ActionViewed   Action = "viewed"
	ActionClicked  Action = "clicked"
	ActionSaved    Action = "saved"
	ActionShared   Action = "shared"
	ActionHidden   Action = "hidden"
	ActionReported Action = "reported"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionViewed, ActionClicked, ActionSaved, ActionShared, ActionHidden, ActionReported:
		return true
	}
	return false
}

// Negative reports whether the action signals disinterest.
func (a Action) Negative() bool {
	return a == ActionHidden || a == ActionReported
}

// Interaction records one action of a user on an article.
// The same action is stored once per (user, article).
type Interaction struct {
	ID                 int64
	UserID             int64
	ArticleID          int64
	Action             Action
	ReadingTimeSeconds *int
	ScrollDepth        *float64
	Feedback           string
	CreatedAt          time.Time
}

// Signal is an interaction joined with the article attributes the scorer needs.
type Signal struct {
	Action     Action
	Categories []string
	Sentiment  *float64
	At         time.Time
}

// SavedArticle is a bookmark of an article by a user.
type SavedArticle struct {
	ID         int64
	UserID     int64
	ArticleID  int64
	Folder     string
	Tags       []string
	Notes      string
	Priority   int
	Archived   bool
	ReminderAt *time.Time
	CreatedAt  time.Time
	Article    *Article
}

// DigestType is the periodicity of a digest.
type DigestType string

// Supported digest types.
const (
	DigestDaily   DigestType = "daily"
	DigestWeekly  DigestType = "weekly"
	DigestMonthly DigestType = "monthly"
	DigestCustom  DigestType = "custom"
)

// Digest is a periodic summary of a user's relevant articles.
type Digest struct {
	ID                   int64
	UserID               int64
	Type                 DigestType
	PeriodStart          time.Time
	PeriodEnd            time.Time
	ArticleIDs           []int64
	Summary              string
	KeyTrends            []string
	ActionItems          []string
	PersonalizationScore float64
	WasSent              bool
	SentAt               *time.Time
	WasRead              bool
	ReadAt               *time.Time
	CreatedAt            time.Time
}
