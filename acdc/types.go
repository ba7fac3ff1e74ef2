// Package acdc is the client for the supplier's rendered-listing service. The
// service fronts the supplier website (rendering/browser automation lives
// there, not here) and exposes a small JSON API: a search endpoint returning
// candidate listings and a listing endpoint returning the rendered page data.
package acdc

import (
	"fmt"

	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"github.com/shopspring/decimal"
)

// Candidate is one supplier listing surfaced by a search: the display label
// used for matching and the opaque reference used to fetch the listing.
type Candidate struct {
	Label string `json:"label"`
	Ref   string `json:"ref"`
}

// BranchStock is one row of a listing's per-branch stock table, quantities
// still as raw cell text.
type BranchStock struct {
	Branch string `json:"branch"`
	Qty    string `json:"qty"`
}

// Listing is the rendered listing data. Pending means the render service has
// not finished materializing the page; StockTable nil (as opposed to empty)
// means the stock table marker never appeared.
type Listing struct {
	Ref         string        `json:"ref"`
	Title       string        `json:"title"`
	Pending     bool          `json:"pending"`
	StockStatus string        `json:"stock_status"`
	PriceText   string        `json:"price"`
	StockTable  []BranchStock `json:"stock_table"`
}

// HasStockTable reports whether the stock table marker was present, even if
// it held no rows.
func (l *Listing) HasStockTable() bool {
	return l.StockTable != nil
}

// HasPriceBlock reports whether the price block marker was present.
func (l *Listing) HasPriceBlock() bool {
	return l.PriceText != ""
}

// Price parses the listing's price block. Diagnostic only; prices are never
// written to the catalog.
func (l *Listing) Price() (decimal.Decimal, bool) {
	return utils.ParsePriceText(l.PriceText)
}

// UnavailableError is the transient source-wide failure condition: the render
// service (or the supplier site behind it) could not be reached. Callers
// treat it like an extraction failure at the per-entry level.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("acdc source unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
