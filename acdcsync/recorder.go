package acdcsync

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"gorm.io/gorm"
)

// runRecorder persists run history and per-entry diagnostics rows. Nil-safe:
// when no database is connected (sheet-store deployments without MySQL) all
// methods degrade to no-ops and the run only exists in logs.
type runRecorder struct {
	db        *gorm.DB
	run       *models.ReconcileRun
	startedAt time.Time
}

func beginRun(ctx context.Context) *runRecorder {
	triggeredBy, _ := utils.GetTriggeredByFromContext(ctx)
	if triggeredBy == "" {
		triggeredBy = models.TriggeredManual
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	rec := &runRecorder{startedAt: time.Now()}
	db := config.GetDB()
	if db == nil {
		return rec
	}

	run := &models.ReconcileRun{
		Status:        models.RunStatusRunning,
		TriggeredBy:   triggeredBy,
		CorrelationId: correlationId,
		StartedAt:     &rec.startedAt,
	}
	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		config.LogError(config.GetLogger(), "recorder.go", "beginRun", "create run row", nil, err)
		return rec
	}
	rec.db = db
	rec.run = run
	return rec
}

func (r *runRecorder) runId() uint {
	if r.run == nil {
		return 0
	}
	return r.run.ID
}

func (r *runRecorder) recordEntryError(ctx context.Context, sku string, stage string, code string, message string, retryable bool) {
	if r.db == nil || r.run == nil {
		return
	}
	row := models.ReconcileEntryError{
		RunId:     r.run.ID,
		Sku:       sku,
		Stage:     stage,
		ErrorCode: code,
		Message:   message,
		Retryable: retryable,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		config.LogError(config.GetLogger(), "recorder.go", "recordEntryError", "create error row", sku, err)
	}
}

func (r *runRecorder) finish(ctx context.Context, summary RunSummary, status string) {
	if r.db == nil || r.run == nil {
		return
	}
	finishedAt := time.Now()
	statsJSON, _ := json.Marshal(summary)
	update := map[string]interface{}{
		"status":      status,
		"finished_at": finishedAt,
		"duration_ms": finishedAt.Sub(r.startedAt).Milliseconds(),
		"stats_json":  statsJSON,
		"processed":   summary.Processed,
		"error_count": summary.Failed,
	}
	if err := r.db.WithContext(ctx).Model(r.run).Updates(update).Error; err != nil {
		config.LogError(config.GetLogger(), "recorder.go", "finish", "update run row", nil, err)
	}
}

func (r *runRecorder) fail(ctx context.Context, cause error) {
	if r.db == nil || r.run == nil {
		return
	}
	finishedAt := time.Now()
	update := map[string]interface{}{
		"status":      models.RunStatusFailed,
		"finished_at": finishedAt,
		"duration_ms": finishedAt.Sub(r.startedAt).Milliseconds(),
	}
	if err := r.db.WithContext(ctx).Model(r.run).Updates(update).Error; err != nil {
		config.LogError(config.GetLogger(), "recorder.go", "fail", "update run row", cause, err)
	}
}
