// Package scheduler runs aggregation: it fetches every due source, then
// normalizes and stores the articles it yields.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"newsfeed/internal/fetcher"
	"newsfeed/internal/model"
	"newsfeed/internal/normalize"
	"newsfeed/internal/storage"
)

// ErrInProgress is the error entry reported when a run is requested while
// another one is executing.
const ErrInProgress = "Aggregation already in progress"

const (
	defaultTimeout      = 30 * time.Second
	defaultConcurrency  = 4
	defaultStoreTimeout = 30 * time.Second
)

// Result summarizes one aggregation run.
type Result struct {
	RunID string
	// Fetched is the number of articles stored, new or updated.
	Fetched int
	// New is the number of articles stored for the first time.
	New    int
	Errors []string
}

// Aggregator fetches due sources. At most one run executes at a time.
type Aggregator struct {
	store      storage.Storage
	parser     fetcher.Parser
	normalizer *normalize.Normalizer
	log        *slog.Logger
	timeout    time.Duration
	// storeTimeout bounds the writes of one source.
	storeTimeout time.Duration
	concurrency  int
	now          func() time.Time

	running atomic.Bool
}

// New creates an Aggregator that parses sources with parser.
func New(store storage.Storage, parser fetcher.Parser, log *slog.Logger) *Aggregator {
	return &Aggregator{
		store:        store,
		parser:       parser,
		normalizer:   normalize.New(),
		log:          log,
		timeout:      defaultTimeout,
		storeTimeout: defaultStoreTimeout,
		concurrency:  defaultConcurrency,
		now:          time.Now,
	}
}

// SetTimeout overrides the per-source fetch timeout.
func (a *Aggregator) SetTimeout(d time.Duration) {
	if d > 0 {
		a.timeout = d
	}
}

// SetConcurrency overrides the number of sources fetched in parallel.
func (a *Aggregator) SetConcurrency(n int) {
	if n > 0 {
		a.concurrency = n
	}
}

// Run fetches every active source that is due. Failures of individual
// sources are reported in Result.Errors and never abort the run. A call
// made while another run is executing returns immediately.
func (a *Aggregator) Run(ctx context.Context) Result {
	if !a.running.CompareAndSwap(false, true) {
		return Result{Errors: []string{ErrInProgress}}
	}
	defer a.running.Store(false)

	res := Result{RunID: uuid.NewString()}
	log := a.log.With("run_id", res.RunID)
	now := a.now().UTC()

	sources, err := a.store.ListActiveSources(ctx)
	if err != nil {
		log.Error("list active sources", "error", err)
		res.Errors = append(res.Errors, fmt.Sprintf("Failed to load sources: %v", err))
		return res
	}

	due := lo.Filter(sources, func(s model.Source, _ int) bool { return s.Due(now) })
	log.Info("aggregation started", "sources", len(sources), "due", len(due))

	errs := make([]string, len(due))
	var fetched, created atomic.Int64

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, src := range due {
		g.Go(func() error {
			stored, inserted, err := a.processSource(ctx, log, src, now)
			fetched.Add(int64(stored))
			created.Add(int64(inserted))
			if err != nil {
				log.Error("fetch source", "source_id", src.ID, "name", src.Name, "error", err)
				errs[i] = fmt.Sprintf("Failed to fetch from %s: %v", src.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Fetched = int(fetched.Load())
	res.New = int(created.Load())
	res.Errors = lo.Compact(errs)

	log.Info("aggregation finished", "fetched", res.Fetched, "new", res.New, "errors", len(res.Errors))
	return res
}

// Loop runs aggregation immediately and then every interval until ctx is cancelled.
func (a *Aggregator) Loop(ctx context.Context, every time.Duration) {
	a.Run(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Run(ctx)
		}
	}
}

func (a *Aggregator) processSource(ctx context.Context, log *slog.Logger, src model.Source, now time.Time) (stored, inserted int, err error) {
	log.Debug("fetching source", "source_id", src.ID, "name", src.Name)

	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	items, err := a.parser.Parse(fetchCtx, src)
	if err != nil {
		return 0, 0, err
	}

	storeCtx, cancelStore := context.WithTimeout(ctx, a.storeTimeout)
	defer cancelStore()

	for _, item := range items {
		art := a.normalizer.Process(src, item)
		isNew, err := a.store.UpsertArticle(storeCtx, &art)
		if err != nil {
			log.Error("save article", "source_id", src.ID, "url", art.URL, "error", err)
			continue
		}
		stored++
		if isNew {
			inserted++
		}
	}

	if err := a.store.MarkSourceFetched(storeCtx, src.ID, now); err != nil {
		log.Error("mark source fetched", "source_id", src.ID, "error", err)
	}
	if inserted > 0 {
		log.Info("stored new articles", "source_id", src.ID, "name", src.Name, "count", inserted)
	}
	return stored, inserted, nil
}
