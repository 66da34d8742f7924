// Package sources loads the operator-managed source registry from a YAML
// file and keeps storage in sync with it.
package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"newsfeed/internal/model"
)

const (
	defaultCadence     = 60
	defaultReliability = 0.5
)

// File is the on-disk layout of the registry.
type File struct {
	Sources []Entry `yaml:"sources"`
}

// Entry describes one source in the registry file.
type Entry struct {
	Name           string            `yaml:"name"`
	URL            string            `yaml:"url"`
	FeedURL        string            `yaml:"feed_url"`
	Type           string            `yaml:"type"`
	Categories     []string          `yaml:"categories"`
	Reliability    *float64          `yaml:"reliability"`
	CadenceMinutes int               `yaml:"cadence_minutes"`
	Active         *bool             `yaml:"active"`
	Metadata       map[string]string `yaml:"metadata"`
}

// Store is the subset of storage used to sync the registry.
type Store interface {
	UpsertSource(ctx context.Context, src *model.Source) error
	ListSources(ctx context.Context) ([]model.Source, error)
}

// Load reads and validates the registry file at path.
func Load(path string) ([]model.Source, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes registry YAML and applies defaults: type rss, cadence 60
// minutes, reliability 0.5 and active.
func Parse(raw []byte) ([]model.Source, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	seen := make(map[string]bool, len(f.Sources))
	out := make([]model.Source, 0, len(f.Sources))
	var errs []error
	for i, e := range f.Sources {
		src, err := e.toSource()
		if err != nil {
			errs = append(errs, fmt.Errorf("source %d (%s): %w", i+1, e.Name, err))
			continue
		}
		if seen[src.FeedURL] {
			errs = append(errs, fmt.Errorf("source %d (%s): duplicate feed_url %s", i+1, e.Name, src.FeedURL))
			continue
		}
		seen[src.FeedURL] = true
		out = append(out, src)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Sync upserts every source into the store, keyed by feed URL, and
// deactivates stored sources the registry no longer lists. It returns the
// synced sources with their IDs and the deactivated ones.
func Sync(ctx context.Context, store Store, srcs []model.Source) (synced, deactivated []model.Source, err error) {
	listed := make(map[string]bool, len(srcs))
	synced = make([]model.Source, 0, len(srcs))
	for _, src := range srcs {
		if err := store.UpsertSource(ctx, &src); err != nil {
			return synced, nil, fmt.Errorf("sync source %s: %w", src.Name, err)
		}
		listed[src.FeedURL] = true
		synced = append(synced, src)
	}

	stored, err := store.ListSources(ctx)
	if err != nil {
		return synced, nil, fmt.Errorf("list sources: %w", err)
	}
	for _, src := range stored {
		if !src.IsActive || listed[src.FeedURL] {
			continue
		}
		src.IsActive = false
		if err := store.UpsertSource(ctx, &src); err != nil {
			return synced, deactivated, fmt.Errorf("deactivate source %s: %w", src.Name, err)
		}
		deactivated = append(deactivated, src)
	}
	return synced, deactivated, nil
}

func (e Entry) toSource() (model.Source, error) {
	name := strings.TrimSpace(e.Name)
	feedURL := strings.TrimSpace(e.FeedURL)
	if name == "" {
		return model.Source{}, errors.New("name is required")
	}
	if feedURL == "" {
		return model.Source{}, errors.New("feed_url is required")
	}

	typ := model.SourceType(strings.ToLower(strings.TrimSpace(e.Type)))
	if typ == "" {
		typ = model.SourceRSS
	}
	if !typ.Valid() {
		return model.Source{}, fmt.Errorf("unknown type %q", e.Type)
	}

	cadence := e.CadenceMinutes
	switch {
	case cadence < 0:
		return model.Source{}, fmt.Errorf("cadence_minutes must be positive, got %d", cadence)
	case cadence == 0:
		cadence = defaultCadence
	}

	reliability := defaultReliability
	if e.Reliability != nil {
		reliability = *e.Reliability
	}
	if reliability < 0 || reliability > 1 {
		return model.Source{}, fmt.Errorf("reliability must be within [0, 1], got %v", reliability)
	}

	active := true
	if e.Active != nil {
		active = *e.Active
	}

	return model.Source{
		Name:           name,
		URL:            strings.TrimSpace(e.URL),
		FeedURL:        feedURL,
		Type:           typ,
		Categories:     e.Categories,
		Reliability:    reliability,
		IsActive:       active,
		CadenceMinutes: cadence,
		Metadata:       e.Metadata,
	}, nil
}
