// Package normalize turns parsed feed items into canonical articles.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"newsfeed/internal/model"
)

// BaseRelevance is the neutral relevance an article starts with.
const BaseRelevance = 0.5

const (
	summaryLength  = 200
	sentimentStep  = 0.2
	externalIDSize = 16
)

// TagVocabulary lists the domain terms added as tags when they occur in an
// article's text.
var TagVocabulary = []string{
	"ai", "machine learning", "startup", "funding", "acquisition", "ipo",
	"layoffs", "hiring", "remote", "crypto", "blockchain", "cloud",
	"security", "regulation", "earnings",
}

// PositiveWords and NegativeWords drive the sentiment heuristic.
var (
	PositiveWords = []string{
		"growth", "success", "profit", "gain", "launch", "innovation",
		"breakthrough", "record", "win", "expand",
	}
	NegativeWords = []string{
		"loss", "decline", "layoff", "fail", "crash", "lawsuit",
		"breach", "cut", "risk", "fraud",
	}
)

// Normalizer enriches parsed articles.
type Normalizer struct{}

// New returns a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Process builds the canonical article for an item of src. The returned
// article has no ID; storage assigns it on upsert. Undated items keep a zero
// PublishedAt so storage can record when the item was first seen.
func (n *Normalizer) Process(src model.Source, p model.ParsedArticle) model.Article {
	content := StripHTML(p.Content)
	summary := StripHTML(p.Summary)
	if summary == "" {
		summary = Truncate(content, summaryLength)
	}

	text := strings.ToLower(p.Title + " " + summary + " " + content)

	return model.Article{
		SourceID:       src.ID,
		ExternalID:     ExternalID(p),
		Title:          strings.TrimSpace(p.Title),
		Summary:        summary,
		Content:        p.Content,
		Author:         p.Author,
		PublishedAt:    p.PublishedAt.UTC(),
		URL:            p.URL,
		ImageURL:       p.ImageURL,
		Categories:     MergeSet(src.Categories, p.Categories),
		Tags:           MergeSet(p.Tags, ExtractTags(text)),
		Sentiment:      Sentiment(text),
		RelevanceScore: BaseRelevance,
	}
}

// ExternalID derives the deduplication key of an item from its canonical
// URL, falling back to the GUID and then the title when no URL is known.
func ExternalID(p model.ParsedArticle) string {
	key := strings.TrimSpace(p.URL)
	if key == "" {
		key = p.GUID
	}
	if key == "" {
		key = p.Title
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:externalIDSize])
}

// ExtractTags returns the vocabulary terms contained in the lower-cased text.
func ExtractTags(text string) []string {
	return lo.Filter(TagVocabulary, func(term string, _ int) bool {
		return strings.Contains(text, term)
	})
}

// Sentiment scores the lower-cased text by counting vocabulary hits:
// +0.2 per positive word, -0.2 per negative word, clamped to [-1, 1].
// Empty text has no sentiment.
func Sentiment(text string) *float64 {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	score := 0.0
	for _, w := range PositiveWords {
		if strings.Contains(text, w) {
			score += sentimentStep
		}
	}
	for _, w := range NegativeWords {
		if strings.Contains(text, w) {
			score -= sentimentStep
		}
	}
	score = math.Max(-1, math.Min(1, math.Round(score*100)/100))
	return &score
}

// MergeSet returns the sorted union of the lower-cased, trimmed values.
func MergeSet(sets ...[]string) []string {
	all := lo.Flatten(sets)
	all = lo.Map(all, func(s string, _ int) string { return strings.ToLower(strings.TrimSpace(s)) })
	out := lo.Uniq(lo.Compact(all))
	sort.Strings(out)
	return out
}

// StripHTML returns the visible text of an HTML fragment with whitespace collapsed.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}
