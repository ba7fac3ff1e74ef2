package acdcsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/acdc"
	"bitbucket.org/mmdatafocus/stocksync_backend/catalog"
	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Engine drives one full reconcile run: catalog snapshot, then per entry
// search -> match -> read -> aggregate -> evaluate -> upsert, with every
// per-entry failure isolated into the summary.
type Engine struct {
	store     catalog.Store
	source    acdc.Source
	reader    *ListingReader
	strategy  KeyStrategy
	threshold float64
	workers   int
	logger    *logrus.Logger
	locks     keyedLocks
}

type EngineOptions struct {
	Store     catalog.Store
	Source    acdc.Source
	Reader    *ListingReader
	Strategy  KeyStrategy
	Threshold float64
	Workers   int
	Logger    *logrus.Logger
}

func NewEngine(opts EngineOptions) *Engine {
	strategy := opts.Strategy
	if strategy == nil {
		strategy, _ = StrategyByName(utils.StringFromEnv("RECONCILE_MATCH_STRATEGY", "title"))
	}
	threshold := opts.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = utils.FloatFromEnv("RECONCILE_MATCH_THRESHOLD", DefaultMatchThreshold)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = utils.IntFromEnv("RECONCILE_WORKERS", 4)
	}
	reader := opts.Reader
	if reader == nil {
		reader = NewListingReader(opts.Source)
	}
	logger := opts.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Engine{
		store:     opts.Store,
		source:    opts.Source,
		reader:    reader,
		strategy:  strategy,
		threshold: threshold,
		workers:   workers,
		logger:    logger,
	}
}

// SetStore wires the catalog store after construction. The service binds the
// store once the backing database (or workbook) is reachable.
func (e *Engine) SetStore(store catalog.Store) {
	e.store = store
}

// RunConfig overrides the engine defaults for a single run.
type RunConfig struct {
	Strategy  KeyStrategy
	Threshold float64
}

func (e *Engine) Run(ctx context.Context) (RunSummary, error) {
	return e.RunWith(ctx, RunConfig{})
}

// RunWith executes one run. Only a catalog fetch failure (or a configuration
// error surfaced before the run) propagates; everything per-entry lands in
// the summary and the diagnostics rows.
func (e *Engine) RunWith(ctx context.Context, cfg RunConfig) (RunSummary, error) {
	strategy := cfg.Strategy
	if strategy == nil {
		strategy = e.strategy
	}
	threshold := cfg.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = e.threshold
	}

	if e.store == nil {
		return RunSummary{}, errors.New("catalog store is not configured")
	}

	recorder := beginRun(ctx)
	if id := recorder.runId(); id != 0 {
		ctx = utils.SetRunIdInContext(ctx, id)
	}

	entries, err := e.store.ListEntries(ctx)
	if err != nil {
		recorder.fail(ctx, err)
		return RunSummary{}, err
	}

	e.logger.WithFields(logrus.Fields{
		"module":   "acdcsync",
		"run_id":   recorder.runId(),
		"entries":  len(entries),
		"strategy": strategy.Name(),
	}).Info("reconcile run started")

	var (
		mu      sync.Mutex
		summary RunSummary
	)
	addOutcome := func(update func(*RunSummary)) {
		mu.Lock()
		update(&summary)
		mu.Unlock()
	}

	var group errgroup.Group
	group.SetLimit(e.workers)

	for _, entry := range entries {
		// Cooperative cancellation between entries; an in-flight pipeline
		// stage is never aborted once started.
		if ctx.Err() != nil {
			break
		}
		entry := entry
		group.Go(func() error {
			e.processEntry(ctx, recorder, strategy, threshold, entry, addOutcome)
			return nil
		})
	}
	_ = group.Wait()

	status := models.RunStatusSuccess
	if summary.Failed > 0 {
		status = models.RunStatusPartial
		if summary.Failed >= summary.Processed {
			status = models.RunStatusFailed
		}
	}
	recorder.finish(ctx, summary, status)

	e.logger.WithFields(logrus.Fields{
		"module":        "acdcsync",
		"run_id":        recorder.runId(),
		"processed":     summary.Processed,
		"matched":       summary.Matched,
		"unmatched":     summary.Unmatched,
		"failed":        summary.Failed,
		"discrepancies": summary.Discrepancies,
		"status":        status,
	}).Info("reconcile run finished")

	return summary, nil
}

func (e *Engine) processEntry(ctx context.Context, recorder *runRecorder, strategy KeyStrategy, threshold float64, entry catalog.Entry, addOutcome func(func(*RunSummary))) {
	defer func() {
		if r := recover(); r != nil {
			addOutcome(func(s *RunSummary) { s.Processed++; s.Failed++ })
			recorder.recordEntryError(ctx, entry.Sku, StageFailed, "panic", fmt.Sprint(r), false)
			config.LogError(e.logger, "engine.go", "processEntry", "panic recovered", entry.Sku, fmt.Errorf("%v", r))
		}
	}()

	query := strategy.QueryFor(entry)

	rawCandidates, err := e.source.Search(ctx, query)
	if err != nil {
		addOutcome(func(s *RunSummary) { s.Processed++; s.Failed++ })
		recorder.recordEntryError(ctx, entry.Sku, StageSearching, errorCode(err), err.Error(), true)
		config.LogError(e.logger, "engine.go", "processEntry", "search", entry.Sku, err)
		return
	}

	candidates := make([]ListingCandidate, 0, len(rawCandidates))
	for _, c := range rawCandidates {
		candidates = append(candidates, ListingCandidate{Label: c.Label, Ref: c.Ref})
	}

	match := Match(query, candidates, threshold)
	if !match.Matched {
		// Deliberate: no upsert on NoMatch, the previous value stays
		// untouched rather than being overwritten by a failed lookup.
		addOutcome(func(s *RunSummary) { s.Processed++; s.Unmatched++ })
		e.logger.WithFields(logrus.Fields{
			"module": "acdcsync",
			"sku":    entry.Sku,
			"query":  query,
		}).Debug("no supplier listing matched")
		return
	}

	readings, listing, err := e.reader.Read(ctx, match.Candidate.Ref)
	if err != nil {
		addOutcome(func(s *RunSummary) { s.Processed++; s.Failed++ })
		recorder.recordEntryError(ctx, entry.Sku, StageRead, errorCode(err), err.Error(), true)
		config.LogError(e.logger, "engine.go", "processEntry", "read listing", entry.Sku, err)
		return
	}

	agg := Aggregate(readings)
	rec := Evaluate(entry, agg, time.Now())

	fields := catalog.UpsertFields{
		Title:          entry.Title,
		Stock:          rec.NewValue,
		ActionRequired: rec.ActionRequired,
		ReconciledAt:   rec.ObservedAt,
	}

	// Upserts are serialized per SKU; different SKUs may write concurrently.
	unlock := e.locks.lock(entry.Sku)
	_, err = e.store.Upsert(ctx, entry.Sku, fields)
	unlock()
	if err != nil {
		addOutcome(func(s *RunSummary) { s.Processed++; s.Failed++ })
		recorder.recordEntryError(ctx, entry.Sku, StageUpserted, errorCode(err), err.Error(), true)
		config.LogError(e.logger, "engine.go", "processEntry", "upsert", entry.Sku, err)
		return
	}

	addOutcome(func(s *RunSummary) {
		s.Processed++
		s.Matched++
		if rec.Changed {
			s.Discrepancies++
		}
	})

	logFields := logrus.Fields{
		"module":       "acdcsync",
		"sku":          entry.Sku,
		"run_id":       runIdField(ctx),
		"score":        match.Score,
		"total":        agg.Total,
		"fully_absent": agg.FullyAbsent,
		"changed":      rec.Changed,
	}
	if price, ok := listing.Price(); ok {
		logFields["supplier_price"] = price.String()
	}
	if listing.StockStatus != "" {
		logFields["stock_status"] = listing.StockStatus
	}
	e.logger.WithFields(logFields).Info("entry reconciled")
}

func runIdField(ctx context.Context) uint {
	id, _ := utils.GetRunIdFromContext(ctx)
	return id
}

func errorCode(err error) string {
	var unavailable *acdc.UnavailableError
	if errors.As(err, &unavailable) {
		return "source_unavailable"
	}
	var extraction *ExtractionError
	if errors.As(err, &extraction) {
		return "extraction_failed"
	}
	var write *catalog.WriteError
	if errors.As(err, &write) {
		return "catalog_write_failed"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "sync_failed"
}

// keyedLocks hands out one mutex per SKU.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
