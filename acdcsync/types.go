// Package acdcsync reconciles the merchant catalog against stock levels
// published on the ACDC supplier site: match each catalog entry to a supplier
// listing, read its per-branch stock table, aggregate to one figure, compare
// against the last known value and upsert the result. Runs happen on a cron
// cadence and on operator request, one at a time.
package acdcsync

import (
	"fmt"
	"time"
)

// DefaultMatchThreshold is the minimum similarity ratio for a listing to be
// accepted as the entry's supplier counterpart.
const DefaultMatchThreshold = 0.8

// ActionReviewDiscrepancy is written to the catalog row whenever the newly
// observed stock differs from the last known value.
const ActionReviewDiscrepancy = "review stock discrepancy"

// ListingCandidate is one supplier listing considered during matching. Owned
// by a single Match call; never stored.
type ListingCandidate struct {
	Label string
	Ref   string
}

// MatchResult is the outcome of matching one catalog entry. When Matched is
// true, Score is guaranteed to be >= the threshold the match ran with.
type MatchResult struct {
	Matched   bool
	Candidate ListingCandidate
	Score     float64
}

// LocationReading is one (branch, quantity) pair read off a listing. Known is
// false when the quantity cell held no digits; such readings are "absent",
// never zero-with-confidence.
type LocationReading struct {
	Location string
	Quantity int64
	Known    bool
}

// AggregateStock is the canonical stock figure for one listing. FullyAbsent
// distinguishes "no branch reported anything" from "branches confirmed zero";
// both aggregate to Total 0.
type AggregateStock struct {
	Total       int64
	KnownCount  int
	AbsentCount int
	FullyAbsent bool
}

// DiscrepancyRecord captures one comparison of new against previous stock.
// Created once per processed entry per run and consumed immediately by the
// upsert step.
type DiscrepancyRecord struct {
	EntryKey       string
	PreviousKnown  bool
	PreviousValue  int64
	NewValue       int64
	Changed        bool
	ObservedAt     time.Time
	ActionRequired string
}

// RunSummary accumulates per-entry outcomes of one reconcile run.
type RunSummary struct {
	Processed     int `json:"processed"`
	Matched       int `json:"matched"`
	Unmatched     int `json:"unmatched"`
	Failed        int `json:"failed"`
	Discrepancies int `json:"discrepancies"`
}

// Per-entry pipeline states, used in diagnostics rows.
const (
	StagePending    = "pending"
	StageSearching  = "searching"
	StageMatched    = "matched"
	StageUnmatched  = "unmatched"
	StageRead       = "read"
	StageAggregated = "aggregated"
	StageEvaluated  = "evaluated"
	StageUpserted   = "upserted"
	StageFailed     = "failed"
)

// ExtractionError means a matched listing could not be read: its structural
// markers (stock table / price block) never materialized within the bounded
// wait. A branch merely not being mentioned is not an extraction error.
type ExtractionError struct {
	Ref    string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed for listing %s: %s: %v", e.Ref, e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed for listing %s: %s", e.Ref, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
