package acdcsync

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/acdc"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
)

// Fetcher is the slice of the supplier source the reader needs.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*acdc.Listing, error)
}

// ListingReader turns a matched listing into location readings. The render
// service materializes page content asynchronously, so the reader polls the
// fetch until the structural markers (stock table / price block) appear,
// bounded by wait. It never retries transport failures; those go straight up.
type ListingReader struct {
	fetcher Fetcher
	wait    time.Duration
	poll    time.Duration
}

func NewListingReader(fetcher Fetcher) *ListingReader {
	return &ListingReader{
		fetcher: fetcher,
		wait:    utils.DurationFromEnv("ACDC_CONTENT_WAIT", 10*time.Second),
		poll:    utils.DurationFromEnv("ACDC_CONTENT_POLL", 500*time.Millisecond),
	}
}

// Read fetches the listing and extracts every (location, quantity) pair it
// exposes. Returns ExtractionError when the markers never appear within the
// bounded wait; a location simply not being mentioned is not an error.
func (r *ListingReader) Read(ctx context.Context, ref string) ([]LocationReading, *acdc.Listing, error) {
	deadline := time.Now().Add(r.wait)
	for {
		listing, err := r.fetcher.Fetch(ctx, ref)
		if err != nil {
			return nil, nil, err
		}

		if listingReady(listing) {
			return readingsFromListing(listing), listing, nil
		}

		if time.Now().After(deadline) {
			return nil, nil, &ExtractionError{
				Ref:    ref,
				Reason: "stock table and price block did not appear within bounded wait",
			}
		}

		select {
		case <-time.After(r.poll):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

func listingReady(listing *acdc.Listing) bool {
	if listing == nil || listing.Pending {
		return false
	}
	return listing.HasStockTable() || listing.HasPriceBlock()
}

// readingsFromListing keeps at most one reading per distinct location name,
// last-seen wins when the table repeats a branch.
func readingsFromListing(listing *acdc.Listing) []LocationReading {
	readings := make([]LocationReading, 0, len(listing.StockTable))
	index := make(map[string]int, len(listing.StockTable))

	for _, row := range listing.StockTable {
		location := strings.ToLower(strings.TrimSpace(row.Branch))
		if location == "" {
			continue
		}

		qty, known := utils.ParseQuantityText(row.Qty)
		reading := LocationReading{Location: location, Quantity: qty, Known: known}
		if !known {
			reading.Quantity = 0
		}

		if i, seen := index[location]; seen {
			readings[i] = reading
			continue
		}
		index[location] = len(readings)
		readings = append(readings, reading)
	}
	return readings
}
