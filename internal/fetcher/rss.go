package fetcher

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"

	"newsfeed/internal/model"
)

// RSSParser parses RSS, Atom and JSON Feed documents.
type RSSParser struct {
	fetcher *Fetcher
	log     *slog.Logger
}

// NewRSSParser creates an RSSParser that downloads feeds with f.
func NewRSSParser(f *Fetcher, log *slog.Logger) *RSSParser {
	return &RSSParser{fetcher: f, log: log}
}

// Parse downloads the source's feed URL and extracts one candidate per item.
func (p *RSSParser) Parse(ctx context.Context, src model.Source) ([]model.ParsedArticle, error) {
	body, err := p.fetcher.Fetch(ctx, src.FeedURL)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		p.log.Warn("malformed feed", "source_id", src.ID, "url", src.FeedURL, "error", err)
		return nil, nil
	}

	articles := make([]model.ParsedArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		articles = append(articles, convertItem(item))
	}
	return articles, nil
}

func convertItem(item *gofeed.Item) model.ParsedArticle {
	link := item.Link
	if link == "" && len(item.Links) > 0 {
		link = item.Links[0]
	}
	return model.ParsedArticle{
		GUID:        ItemGUID(item.GUID, item.Title, link),
		Title:       strings.TrimSpace(item.Title),
		Summary:     strings.TrimSpace(item.Description),
		Content:     item.Content,
		Author:      itemAuthor(item),
		PublishedAt: itemPublished(item),
		URL:         link,
		ImageURL:    itemImage(item),
		Categories:  item.Categories,
	}
}

func itemAuthor(item *gofeed.Item) string {
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

// itemPublished prefers the dates gofeed already parsed and falls back to
// lenient parsing of the raw strings. Items without any date stay zero.
func itemPublished(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	for _, raw := range []string{item.Published, item.Updated} {
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func itemImage(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	if item.Image != nil {
		return item.Image.URL
	}
	return ""
}
