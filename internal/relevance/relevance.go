// Package relevance scores articles against a user's preferences and
// interaction history. Everything here is pure: no storage, no clock.
package relevance

import (
	"math"
	"strings"
	"time"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"newsfeed/internal/model"
)

// Score weights.
const (
	neutral         = 0.5
	categoryMatch   = 0.25
	perKeyword      = 0.1
	keywordCap      = 0.3
	perEntity       = 0.1
	entityCap       = 0.2
	historyAffinity = 0.15
	recencyFull     = 0.1
	recencyHalf     = 0.05
	sentimentRange  = 0.1
)

// Score returns the relevance of a for the user described by prefs and
// their recent history, in [0, 1]. Without preferences, or with
// personalization disabled, the article's base relevance is returned.
func Score(a model.Article, prefs *model.Preferences, history []model.Signal, now time.Time) float64 {
	if prefs == nil || !prefs.PersonalizationEnabled {
		return clamp(a.RelevanceScore)
	}

	score := neutral
	cats := lowerSet(a.Categories)

	if lo.SomeBy(prefs.Categories, func(c string) bool { return cats[strings.ToLower(c)] }) {
		score += categoryMatch
	}

	text := strings.ToLower(a.Title + " " + a.Summary)
	score += capped(countHits(text, prefs.Keywords), perKeyword, keywordCap)
	score += capped(countHits(text, prefs.Companies), perEntity, entityCap)
	score += capped(countHits(text, prefs.Industries), perEntity, entityCap)

	if hasAffinity(cats, history) {
		score += historyAffinity
	}

	score += recency(a.PublishedAt, now)

	if a.Sentiment != nil {
		if preferred, ok := PreferredSentiment(history); ok {
			closeness := 1 - math.Abs(*a.Sentiment-preferred)/2
			score += (closeness - 0.5) * 2 * sentimentRange
		}
	}

	return clamp(score)
}

// AverageSentiment returns the mean of the defined values. ok is false when
// none is defined.
func AverageSentiment(values []*float64) (avg float64, ok bool) {
	defined := lo.Compact(values)
	if len(defined) == 0 {
		return 0, false
	}
	return stat.Mean(lo.Map(defined, func(v *float64, _ int) float64 { return *v }), nil), true
}

// PreferredSentiment is the average sentiment of articles the user engaged
// with positively.
func PreferredSentiment(history []model.Signal) (float64, bool) {
	values := lo.FilterMap(history, func(s model.Signal, _ int) (*float64, bool) {
		return s.Sentiment, !s.Action.Negative()
	})
	return AverageSentiment(values)
}

// hasAffinity reports whether the net interactions on any of the article's
// categories are positive. Hidden and reported articles count against.
func hasAffinity(cats map[string]bool, history []model.Signal) bool {
	if len(cats) == 0 || len(history) == 0 {
		return false
	}
	weight := make(map[string]int)
	for _, s := range history {
		delta := 1
		if s.Action.Negative() {
			delta = -1
		}
		for _, c := range s.Categories {
			weight[strings.ToLower(c)] += delta
		}
	}
	for c := range cats {
		if weight[c] > 0 {
			return true
		}
	}
	return false
}

func recency(published, now time.Time) float64 {
	if published.IsZero() {
		return 0
	}
	age := now.Sub(published)
	switch {
	case age < 24*time.Hour:
		return recencyFull
	case age < 72*time.Hour:
		return recencyHalf
	}
	return 0
}

func countHits(text string, terms []string) int {
	return lo.CountBy(terms, func(t string) bool {
		t = strings.ToLower(strings.TrimSpace(t))
		return t != "" && strings.Contains(text, t)
	})
}

func capped(hits int, per, limit float64) float64 {
	return math.Min(float64(hits)*per, limit)
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
