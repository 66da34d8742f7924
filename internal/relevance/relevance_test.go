package relevance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"newsfeed/internal/model"
)

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func prefs() *model.Preferences {
	p := model.DefaultPreferences(1)
	return &p
}

func TestScoreWithoutPreferences(t *testing.T) {
	a := model.Article{RelevanceScore: 0.7, Categories: []string{"technology"}}

	assert.InDelta(t, 0.7, Score(a, nil, nil, now), 1e-9)

	disabled := prefs()
	disabled.Categories = []string{"technology"}
	disabled.PersonalizationEnabled = false
	assert.InDelta(t, 0.7, Score(a, disabled, nil, now), 1e-9)

	a.RelevanceScore = 1.4
	assert.InDelta(t, 1.0, Score(a, nil, nil, now), 1e-9)
}

func TestScoreContributions(t *testing.T) {
	old := now.Add(-30 * 24 * time.Hour)

	tests := []struct {
		name    string
		article model.Article
		prefs   func(p *model.Preferences)
		history []model.Signal
		want    float64
	}{
		{
			name:    "neutral start",
			article: model.Article{Title: "Quiet day", PublishedAt: old},
			want:    0.5,
		},
		{
			name:    "category match",
			article: model.Article{Title: "Chip news", Categories: []string{"technology"}, PublishedAt: old},
			prefs:   func(p *model.Preferences) { p.Categories = []string{"Technology"} },
			want:    0.75,
		},
		{
			name:    "keywords capped at 0.3",
			article: model.Article{Title: "go rust zig", Summary: "elixir", PublishedAt: old},
			prefs:   func(p *model.Preferences) { p.Keywords = []string{"go", "rust", "zig", "elixir"} },
			want:    0.8,
		},
		{
			name:    "companies and industries capped at 0.2 each",
			article: model.Article{Title: "Acme and Globex and Initech", Summary: "fintech biotech energy", PublishedAt: old},
			prefs: func(p *model.Preferences) {
				p.Companies = []string{"acme", "globex", "initech"}
				p.Industries = []string{"fintech", "biotech", "energy"}
			},
			want: 0.9,
		},
		{
			name:    "recent under 24h",
			article: model.Article{Title: "Fresh", PublishedAt: now.Add(-2 * time.Hour)},
			want:    0.6,
		},
		{
			name:    "recent under 72h",
			article: model.Article{Title: "Fresh-ish", PublishedAt: now.Add(-48 * time.Hour)},
			want:    0.55,
		},
		{
			name:    "history affinity",
			article: model.Article{Title: "Markets", Categories: []string{"finance"}, PublishedAt: old},
			history: []model.Signal{
				{Action: model.ActionClicked, Categories: []string{"finance"}},
			},
			want: 0.65,
		},
		{
			name:    "hidden history cancels affinity",
			article: model.Article{Title: "Markets", Categories: []string{"finance"}, PublishedAt: old},
			history: []model.Signal{
				{Action: model.ActionClicked, Categories: []string{"finance"}},
				{Action: model.ActionHidden, Categories: []string{"finance"}},
			},
			want: 0.5,
		},
		{
			name:    "sentiment matches preferred",
			article: model.Article{Title: "Upbeat", Sentiment: ptr(0.6), PublishedAt: old},
			history: []model.Signal{{Action: model.ActionViewed, Sentiment: ptr(0.6)}},
			want:    0.6,
		},
		{
			name:    "sentiment opposite of preferred",
			article: model.Article{Title: "Gloomy", Sentiment: ptr(-1), PublishedAt: old},
			history: []model.Signal{{Action: model.ActionViewed, Sentiment: ptr(1)}},
			want:    0.4,
		},
		{
			name: "clamped to one",
			article: model.Article{
				Title:       "go rust zig acme globex fintech biotech",
				Categories:  []string{"technology"},
				Sentiment:   ptr(0.2),
				PublishedAt: now.Add(-time.Hour),
			},
			prefs: func(p *model.Preferences) {
				p.Categories = []string{"technology"}
				p.Keywords = []string{"go", "rust", "zig"}
				p.Companies = []string{"acme", "globex"}
				p.Industries = []string{"fintech", "biotech"}
			},
			history: []model.Signal{{Action: model.ActionSaved, Categories: []string{"technology"}, Sentiment: ptr(0.2)}},
			want:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := prefs()
			if tt.prefs != nil {
				tt.prefs(p)
			}
			got := Score(tt.article, p, tt.history, now)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestAverageSentiment(t *testing.T) {
	avg, ok := AverageSentiment([]*float64{ptr(0.8), ptr(-0.2), ptr(0.5), nil})
	assert.True(t, ok)
	assert.InDelta(t, 0.3667, avg, 0.001)

	_, ok = AverageSentiment([]*float64{nil, nil})
	assert.False(t, ok)
}

func TestPreferredSentimentIgnoresNegativeActions(t *testing.T) {
	history := []model.Signal{
		{Action: model.ActionClicked, Sentiment: ptr(0.4)},
		{Action: model.ActionReported, Sentiment: ptr(-0.9)},
		{Action: model.ActionShared, Sentiment: ptr(0.2)},
	}
	got, ok := PreferredSentiment(history)
	assert.True(t, ok)
	assert.InDelta(t, 0.3, got, 1e-9)
}
