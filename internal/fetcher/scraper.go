package fetcher

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"newsfeed/internal/model"
)

// Source metadata keys understood by the scraper.
const (
	MetaItemSelector    = "item_selector"
	MetaTitleSelector   = "title_selector"
	MetaLinkSelector    = "link_selector"
	MetaSummarySelector = "summary_selector"
)

// ScraperParser extracts articles from an HTML listing page using CSS
// selectors stored in the source metadata.
type ScraperParser struct {
	fetcher *Fetcher
	log     *slog.Logger
}

// NewScraperParser creates a ScraperParser that downloads pages with f.
func NewScraperParser(f *Fetcher, log *slog.Logger) *ScraperParser {
	return &ScraperParser{fetcher: f, log: log}
}

// Parse downloads the listing page and returns one candidate per item
// selector match. A source without an item selector yields nothing.
func (p *ScraperParser) Parse(ctx context.Context, src model.Source) ([]model.ParsedArticle, error) {
	itemSel := src.Metadata[MetaItemSelector]
	if itemSel == "" {
		p.log.Warn("scraper source has no item selector", "source_id", src.ID)
		return nil, nil
	}

	body, err := p.fetcher.Fetch(ctx, src.FeedURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		p.log.Warn("malformed html", "source_id", src.ID, "url", src.FeedURL, "error", err)
		return nil, nil
	}

	titleSel := metaOr(src.Metadata, MetaTitleSelector, "a")
	linkSel := metaOr(src.Metadata, MetaLinkSelector, "a")
	summarySel := src.Metadata[MetaSummarySelector]
	base, _ := url.Parse(src.FeedURL)

	var articles []model.ParsedArticle
	doc.Find(itemSel).Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find(titleSel).First().Text())
		href, _ := s.Find(linkSel).First().Attr("href")
		if title == "" || href == "" {
			return
		}
		link := resolveLink(base, href)
		pa := model.ParsedArticle{
			GUID:  ItemGUID("", title, link),
			Title: title,
			URL:   link,
		}
		if summarySel != "" {
			pa.Summary = strings.TrimSpace(s.Find(summarySel).First().Text())
		}
		articles = append(articles, pa)
	})
	return articles, nil
}

func metaOr(meta map[string]string, key, def string) string {
	if v := meta[key]; v != "" {
		return v
	}
	return def
}

func resolveLink(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
