package models

import "time"

// CatalogEntry is the merchant-side product record kept in sync with the
// supplier. LastKnownStock is nil until the first successful reconcile
// ("unknown" is distinct from zero). Rows are never deleted by the sync
// service; removal is a catalog concern.
type CatalogEntry struct {
	ID               uint       `gorm:"primary_key" json:"id"`
	Sku              string     `gorm:"uniqueIndex;size:128;not null" json:"sku"`
	Title            string     `gorm:"size:255" json:"title"`
	LastKnownStock   *int64     `json:"last_known_stock"`
	ActionRequired   string     `gorm:"size:64" json:"action_required"`
	LastReconciledAt *time.Time `json:"last_reconciled_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *CatalogEntry) StockKnown() bool {
	return e != nil && e.LastKnownStock != nil
}
