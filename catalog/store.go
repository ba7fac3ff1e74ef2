// Package catalog abstracts the merchant catalog store. Two implementations
// exist: the MySQL-backed DBStore and the spreadsheet-backed SheetStore. The
// store is the single source of truth for "last known stock"; the sync core
// never caches it across runs.
package catalog

import (
	"context"
	"fmt"
	"time"
)

// Entry is a catalog row as seen by the sync core. LastKnownStock nil means
// the stock has never been reconciled ("unknown", not zero).
type Entry struct {
	Sku              string
	Title            string
	LastKnownStock   *int64
	ActionRequired   string
	LastReconciledAt *time.Time
}

func (e Entry) StockKnown() bool {
	return e.LastKnownStock != nil
}

// UpsertFields is the stock-related field set written by an upsert. Title is
// only used when the upsert appends a new row; existing titles are not
// overwritten.
type UpsertFields struct {
	Title          string
	Stock          int64
	ActionRequired string
	ReconciledAt   time.Time
}

// Store lists and writes catalog rows. Upsert has find-or-append semantics:
// update the stock fields of the row keyed by sku if it exists, append a full
// row otherwise. The returned bool is true when a row was appended. Calling
// Upsert twice with identical fields must leave the store in the same
// observable state as calling it once.
type Store interface {
	ListEntries(ctx context.Context) ([]Entry, error)
	FindByKey(ctx context.Context, sku string) (*Entry, error)
	Upsert(ctx context.Context, sku string, fields UpsertFields) (bool, error)
}

// FetchError means the catalog snapshot could not be read at all. It is fatal
// to a reconcile run.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("catalog fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError means one upsert failed. It is scoped to a single entry and must
// not abort the run.
type WriteError struct {
	Sku string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("catalog write failed for sku %s: %v", e.Sku, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
