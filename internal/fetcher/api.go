package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/samber/lo"

	"newsfeed/internal/model"
)

// apiArticle is one entry of a JSON article list, in the shape used by
// common news APIs.
type apiArticle struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	URL         string   `json:"url"`
	ImageURL    string   `json:"urlToImage"`
	Author      string   `json:"author"`
	PublishedAt string   `json:"publishedAt"`
	Category    string   `json:"category"`
	Categories  []string `json:"categories"`
	Tags        []string `json:"tags"`
}

type apiResponse struct {
	Articles []apiArticle `json:"articles"`
}

// APIParser parses JSON article lists served by HTTP APIs. Both an object
// with an "articles" array and a bare array are accepted.
type APIParser struct {
	fetcher *Fetcher
	log     *slog.Logger
}

// NewAPIParser creates an APIParser that downloads documents with f.
func NewAPIParser(f *Fetcher, log *slog.Logger) *APIParser {
	return &APIParser{fetcher: f, log: log}
}

// Parse downloads the source's feed URL and decodes its articles.
func (p *APIParser) Parse(ctx context.Context, src model.Source) ([]model.ParsedArticle, error) {
	body, err := p.fetcher.Fetch(ctx, src.FeedURL)
	if err != nil {
		return nil, err
	}

	var items []apiArticle
	trimmed := bytes.TrimSpace(body)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		err = json.Unmarshal(trimmed, &items)
	} else {
		var resp apiResponse
		err = json.Unmarshal(trimmed, &resp)
		items = resp.Articles
	}
	if err != nil {
		p.log.Warn("malformed api response", "source_id", src.ID, "url", src.FeedURL, "error", err)
		return nil, nil
	}

	return lo.FilterMap(items, func(it apiArticle, _ int) (model.ParsedArticle, bool) {
		if it.Title == "" && it.URL == "" {
			return model.ParsedArticle{}, false
		}
		pa := model.ParsedArticle{
			GUID:       ItemGUID(it.ID, it.Title, it.URL),
			Title:      strings.TrimSpace(it.Title),
			Summary:    strings.TrimSpace(it.Description),
			Content:    it.Content,
			Author:     it.Author,
			URL:        it.URL,
			ImageURL:   it.ImageURL,
			Categories: it.Categories,
			Tags:       it.Tags,
		}
		if it.Category != "" {
			pa.Categories = append(pa.Categories, it.Category)
		}
		if t, err := dateparse.ParseAny(it.PublishedAt); err == nil {
			pa.PublishedAt = t.UTC()
		}
		return pa, true
	}), nil
}
