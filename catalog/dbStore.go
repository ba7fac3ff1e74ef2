package catalog

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"gorm.io/gorm"
)

// DBStore keeps the catalog in the catalog_entries MySQL table.
type DBStore struct {
	db *gorm.DB
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) ListEntries(ctx context.Context) ([]Entry, error) {
	var rows []models.CatalogEntry
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, &FetchError{Err: err}
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entryFromModel(row))
	}
	return entries, nil
}

func (s *DBStore) FindByKey(ctx context.Context, sku string) (*Entry, error) {
	var row models.CatalogEntry
	err := s.db.WithContext(ctx).Where("sku = ?", sku).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, &FetchError{Err: err}
	}
	entry := entryFromModel(row)
	return &entry, nil
}

func (s *DBStore) Upsert(ctx context.Context, sku string, fields UpsertFields) (bool, error) {
	db := s.db.WithContext(ctx)

	var row models.CatalogEntry
	err := db.Where("sku = ?", sku).Take(&row).Error
	if err == nil {
		update := map[string]interface{}{
			"last_known_stock":   fields.Stock,
			"action_required":    fields.ActionRequired,
			"last_reconciled_at": fields.ReconciledAt,
		}
		if err := db.Model(&row).Updates(update).Error; err != nil {
			return false, &WriteError{Sku: sku, Err: err}
		}
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, &WriteError{Sku: sku, Err: err}
	}

	stock := fields.Stock
	reconciledAt := fields.ReconciledAt
	row = models.CatalogEntry{
		Sku:              sku,
		Title:            fields.Title,
		LastKnownStock:   &stock,
		ActionRequired:   fields.ActionRequired,
		LastReconciledAt: &reconciledAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return false, &WriteError{Sku: sku, Err: err}
	}
	return true, nil
}

func entryFromModel(row models.CatalogEntry) Entry {
	return Entry{
		Sku:              row.Sku,
		Title:            row.Title,
		LastKnownStock:   row.LastKnownStock,
		ActionRequired:   row.ActionRequired,
		LastReconciledAt: row.LastReconciledAt,
	}
}
