package acdcsync

import (
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/catalog"
)

// Aggregate reduces a listing's readings to one canonical figure. Absent
// readings contribute 0 to the sum but are counted separately; an empty
// reading set yields Total 0 with FullyAbsent set so "nothing found" stays
// distinguishable from "confirmed out of stock everywhere". Order-independent.
func Aggregate(readings []LocationReading) AggregateStock {
	agg := AggregateStock{}
	for _, reading := range readings {
		if !reading.Known {
			agg.AbsentCount++
			continue
		}
		agg.KnownCount++
		agg.Total += reading.Quantity
	}
	agg.FullyAbsent = agg.KnownCount == 0
	return agg
}

// Evaluate compares the aggregate against the entry's last known stock. An
// unknown previous value always counts as changed; observedAt is stamped by
// the caller so timestamps are non-decreasing across one run.
func Evaluate(entry catalog.Entry, agg AggregateStock, observedAt time.Time) DiscrepancyRecord {
	rec := DiscrepancyRecord{
		EntryKey:   entry.Sku,
		NewValue:   agg.Total,
		ObservedAt: observedAt,
	}
	if entry.StockKnown() {
		rec.PreviousKnown = true
		rec.PreviousValue = *entry.LastKnownStock
		rec.Changed = agg.Total != rec.PreviousValue
	} else {
		rec.Changed = true
	}
	if rec.Changed {
		rec.ActionRequired = ActionReviewDiscrepancy
	}
	return rec
}
