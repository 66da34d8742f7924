package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	"newsfeed/internal/model"
)

// Parser turns the content of one source into candidate articles.
// Network failures are returned as errors; content that cannot be parsed
// yields zero articles and a nil error.
type Parser interface {
	Parse(ctx context.Context, src model.Source) ([]model.ParsedArticle, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(ctx context.Context, src model.Source) ([]model.ParsedArticle, error)

// Parse calls f(ctx, src).
func (f ParserFunc) Parse(ctx context.Context, src model.Source) ([]model.ParsedArticle, error) {
	return f(ctx, src)
}

// Registry dispatches parsing by source type.
type Registry struct {
	parsers map[model.SourceType]Parser
	log     *slog.Logger
}

// NewRegistry returns a registry with the parsers for every built-in source type.
func NewRegistry(f *Fetcher, log *slog.Logger) *Registry {
	r := &Registry{parsers: make(map[model.SourceType]Parser), log: log}
	r.Register(model.SourceRSS, NewRSSParser(f, log))
	r.Register(model.SourceAPI, NewAPIParser(f, log))
	r.Register(model.SourceScraper, NewScraperParser(f, log))
	r.Register(model.SourceNewsletter, ParserFunc(func(context.Context, model.Source) ([]model.ParsedArticle, error) {
		return nil, nil
	}))
	return r
}

// Register sets the parser used for sources of type t.
func (r *Registry) Register(t model.SourceType, p Parser) {
	r.parsers[t] = p
}

// Parse runs the parser registered for the source's type. Sources of an
// unknown type produce no articles.
func (r *Registry) Parse(ctx context.Context, src model.Source) ([]model.ParsedArticle, error) {
	p, ok := r.parsers[src.Type]
	if !ok {
		r.log.Warn("no parser for source type", "source_id", src.ID, "type", src.Type)
		return nil, nil
	}
	return p.Parse(ctx, src)
}

// ItemGUID returns a stable identity for an item without a GUID:
// a SHA-256 hash of title+link.
func ItemGUID(guid, title, link string) string {
	if guid != "" {
		return guid
	}
	h := sha256.Sum256([]byte(title + "|" + link))
	return fmt.Sprintf("sha256:%x", h[:16])
}
