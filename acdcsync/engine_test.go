package acdcsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/acdc"
	"bitbucket.org/mmdatafocus/stocksync_backend/catalog"
)

type fakeStore struct {
	mu      sync.Mutex
	entries []catalog.Entry
	listErr error
	upErr   map[string]error
	upserts []catalog.UpsertFields
	upSkus  []string
}

func (s *fakeStore) ListEntries(ctx context.Context) ([]catalog.Entry, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.entries, nil
}

func (s *fakeStore) FindByKey(ctx context.Context, sku string) (*catalog.Entry, error) {
	for i := range s.entries {
		if s.entries[i].Sku == sku {
			return &s.entries[i], nil
		}
	}
	return nil, nil
}

func (s *fakeStore) Upsert(ctx context.Context, sku string, fields catalog.UpsertFields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.upErr[sku]; err != nil {
		return false, err
	}
	s.upSkus = append(s.upSkus, sku)
	s.upserts = append(s.upserts, fields)
	return true, nil
}

type fakeSource struct {
	mu        sync.Mutex
	results   map[string][]acdc.Candidate
	listings  map[string]*acdc.Listing
	searchErr map[string]error
}

func (s *fakeSource) Search(ctx context.Context, query string) ([]acdc.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.searchErr[query]; err != nil {
		return nil, err
	}
	return s.results[query], nil
}

func (s *fakeSource) Fetch(ctx context.Context, ref string) (*acdc.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.listings[ref]
	if !ok {
		return nil, &acdc.UnavailableError{Op: "fetch", Err: errors.New("unknown ref")}
	}
	return listing, nil
}

func testEngine(store *fakeStore, source *fakeSource) *Engine {
	strategy, _ := StrategyByName("title")
	return NewEngine(EngineOptions{
		Store:     store,
		Source:    source,
		Reader:    &ListingReader{fetcher: source, wait: time.Second, poll: time.Millisecond},
		Strategy:  strategy,
		Threshold: DefaultMatchThreshold,
		Workers:   1,
	})
}

func TestRun_MixedOutcomesAreIsolated(t *testing.T) {
	prevA, prevB := int64(5), int64(9)
	store := &fakeStore{entries: []catalog.Entry{
		{Sku: "A1", Title: "Widget", LastKnownStock: &prevA},
		{Sku: "SKU-B", Title: "Sprocket", LastKnownStock: &prevB},
		{Sku: "SKU-C", Title: "Gadget"},
	}}
	source := &fakeSource{
		results: map[string][]acdc.Candidate{
			"Widget":   {{Label: "Widget", Ref: "p1"}},
			"Sprocket": {{Label: "Completely Unrelated Item", Ref: "p9"}},
		},
		listings: map[string]*acdc.Listing{
			"p1": {Ref: "p1", StockTable: []acdc.BranchStock{
				{Branch: "Edenvale", Qty: "3"},
				{Branch: "Germiston", Qty: "-"},
			}},
		},
		searchErr: map[string]error{
			"Gadget": &acdc.UnavailableError{Op: "search", Err: errors.New("boom")},
		},
	}

	summary, err := testEngine(store, source).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	expected := RunSummary{Processed: 3, Matched: 1, Unmatched: 1, Failed: 1, Discrepancies: 1}
	if summary != expected {
		t.Fatalf("expected summary %+v, got %+v", expected, summary)
	}

	if len(store.upSkus) != 1 || store.upSkus[0] != "A1" {
		t.Fatalf("only A1 should be written, got %v", store.upSkus)
	}
	fields := store.upserts[0]
	if fields.Stock != 3 {
		t.Fatalf("unparseable branch must not contribute; expected stock 3, got %d", fields.Stock)
	}
	if fields.ActionRequired != ActionReviewDiscrepancy {
		t.Fatalf("5 -> 3 is a discrepancy; got action %q", fields.ActionRequired)
	}
}

func TestRun_NoMatchLeavesPreviousValueUntouched(t *testing.T) {
	prev := int64(5)
	store := &fakeStore{entries: []catalog.Entry{
		{Sku: "SKU-B", Title: "Sprocket", LastKnownStock: &prev},
	}}
	source := &fakeSource{results: map[string][]acdc.Candidate{
		"Sprocket": {{Label: "Angle Grinder", Ref: "p9"}},
	}}

	summary, err := testEngine(store, source).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Unmatched != 1 || summary.Matched != 0 {
		t.Fatalf("expected one unmatched entry, got %+v", summary)
	}
	if len(store.upserts) != 0 {
		t.Fatalf("no-match must not write; got %v", store.upserts)
	}
}

func TestRun_UnchangedStockIsNoDiscrepancy(t *testing.T) {
	prev := int64(3)
	store := &fakeStore{entries: []catalog.Entry{
		{Sku: "SKU-A", Title: "Widget", LastKnownStock: &prev},
	}}
	source := &fakeSource{
		results: map[string][]acdc.Candidate{
			"Widget": {{Label: "Widget", Ref: "p1"}},
		},
		listings: map[string]*acdc.Listing{
			"p1": {Ref: "p1", StockTable: []acdc.BranchStock{{Branch: "Edenvale", Qty: "3"}}},
		},
	}

	summary, err := testEngine(store, source).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Discrepancies != 0 || summary.Matched != 1 {
		t.Fatalf("expected matched with no discrepancy, got %+v", summary)
	}
	if store.upserts[0].ActionRequired != "" {
		t.Fatalf("unchanged stock must clear the action flag, got %q", store.upserts[0].ActionRequired)
	}
}

func TestRun_CatalogFetchFailureAborts(t *testing.T) {
	store := &fakeStore{listErr: &catalog.FetchError{Err: errors.New("workbook missing")}}
	_, err := testEngine(store, &fakeSource{}).Run(context.Background())
	var fetchErr *catalog.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("catalog fetch failure must abort the run, got %v", err)
	}
}

func TestRun_WriteFailureScopedToEntry(t *testing.T) {
	store := &fakeStore{
		entries: []catalog.Entry{
			{Sku: "SKU-A", Title: "Widget"},
			{Sku: "SKU-B", Title: "Sprocket"},
		},
		upErr: map[string]error{
			"SKU-A": &catalog.WriteError{Sku: "SKU-A", Err: errors.New("row locked")},
		},
	}
	source := &fakeSource{
		results: map[string][]acdc.Candidate{
			"Widget":   {{Label: "Widget", Ref: "p1"}},
			"Sprocket": {{Label: "Sprocket", Ref: "p2"}},
		},
		listings: map[string]*acdc.Listing{
			"p1": {Ref: "p1", StockTable: []acdc.BranchStock{{Branch: "Edenvale", Qty: "1"}}},
			"p2": {Ref: "p2", StockTable: []acdc.BranchStock{{Branch: "Edenvale", Qty: "2"}}},
		},
	}

	summary, err := testEngine(store, source).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Processed != 2 || summary.Failed != 1 || summary.Matched != 1 {
		t.Fatalf("write failure must only fail its own entry, got %+v", summary)
	}
	if len(store.upSkus) != 1 || store.upSkus[0] != "SKU-B" {
		t.Fatalf("expected only SKU-B written, got %v", store.upSkus)
	}
}

func TestRun_FullyAbsentWritesZero(t *testing.T) {
	store := &fakeStore{entries: []catalog.Entry{{Sku: "SKU-A", Title: "Widget"}}}
	source := &fakeSource{
		results: map[string][]acdc.Candidate{
			"Widget": {{Label: "Widget", Ref: "p1"}},
		},
		listings: map[string]*acdc.Listing{
			"p1": {Ref: "p1", StockTable: []acdc.BranchStock{
				{Branch: "Edenvale", Qty: "out of stock"},
			}},
		},
	}

	summary, err := testEngine(store, source).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Matched != 1 {
		t.Fatalf("expected a match, got %+v", summary)
	}
	if store.upserts[0].Stock != 0 {
		t.Fatalf("fully absent aggregates to 0, got %d", store.upserts[0].Stock)
	}
}

func TestRun_NoStoreConfigured(t *testing.T) {
	engine := testEngine(&fakeStore{}, &fakeSource{})
	engine.SetStore(nil)
	if _, err := engine.Run(context.Background()); err == nil {
		t.Fatal("expected configuration error with no store")
	}
}
