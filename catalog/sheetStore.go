package catalog

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	sheetName      = "Catalog"
	sheetHeaderRow = 1
)

var sheetHeaders = []string{"SKU", "Title", "Stock", "ActionRequired", "LastReconciledAt"}

// SheetStore keeps the catalog in a single-sheet .xlsx workbook. One row per
// SKU; an empty Stock cell means "unknown". All operations run under one
// mutex since excelize files are not safe for concurrent use.
type SheetStore struct {
	path string
	mu   sync.Mutex
}

func NewSheetStore(path string) (*SheetStore, error) {
	s := &SheetStore{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.createWorkbook(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *SheetStore) createWorkbook() error {
	f := excelize.NewFile()
	defer f.Close()
	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}
	if idx, err := f.GetSheetIndex("Sheet1"); err == nil && idx >= 0 {
		_ = f.DeleteSheet("Sheet1")
	}
	for i, header := range sheetHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, sheetHeaderRow)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return err
		}
	}
	return f.SaveAs(s.path)
}

func (s *SheetStore) ListEntries(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, &FetchError{Err: err}
	}

	var entries []Entry
	for i, row := range rows {
		if i+1 <= sheetHeaderRow {
			continue
		}
		entry, ok := entryFromRow(row)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *SheetStore) FindByKey(ctx context.Context, sku string) (*Entry, error) {
	entries, err := s.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Sku == sku {
			return &entries[i], nil
		}
	}
	return nil, nil
}

func (s *SheetStore) Upsert(ctx context.Context, sku string, fields UpsertFields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return false, &WriteError{Sku: sku, Err: err}
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return false, &WriteError{Sku: sku, Err: err}
	}

	rowNo := 0
	for i, row := range rows {
		if i+1 <= sheetHeaderRow {
			continue
		}
		if len(row) > 0 && row[0] == sku {
			rowNo = i + 1
			break
		}
	}

	created := false
	if rowNo == 0 {
		// Append a full new row after the last one.
		rowNo = len(rows) + 1
		created = true
		if err := f.SetCellValue(sheetName, "A"+strconv.Itoa(rowNo), sku); err != nil {
			return false, &WriteError{Sku: sku, Err: err}
		}
		if err := f.SetCellValue(sheetName, "B"+strconv.Itoa(rowNo), fields.Title); err != nil {
			return false, &WriteError{Sku: sku, Err: err}
		}
	}

	f.SetCellValue(sheetName, "C"+strconv.Itoa(rowNo), fields.Stock)
	f.SetCellValue(sheetName, "D"+strconv.Itoa(rowNo), fields.ActionRequired)
	f.SetCellValue(sheetName, "E"+strconv.Itoa(rowNo), fields.ReconciledAt.Format(time.RFC3339))

	if err := f.Save(); err != nil {
		return created, &WriteError{Sku: sku, Err: err}
	}
	return created, nil
}

func entryFromRow(row []string) (Entry, bool) {
	if len(row) == 0 || row[0] == "" {
		return Entry{}, false
	}
	entry := Entry{Sku: row[0]}
	if len(row) > 1 {
		entry.Title = row[1]
	}
	if len(row) > 2 && row[2] != "" {
		if n, err := strconv.ParseInt(row[2], 10, 64); err == nil {
			entry.LastKnownStock = &n
		}
	}
	if len(row) > 3 {
		entry.ActionRequired = row[3]
	}
	if len(row) > 4 && row[4] != "" {
		if t, err := time.Parse(time.RFC3339, row[4]); err == nil {
			entry.LastReconciledAt = &t
		}
	}
	return entry, true
}

func (s *SheetStore) String() string {
	return fmt.Sprintf("sheet store at %s", s.path)
}
