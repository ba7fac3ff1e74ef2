package acdcsync

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// TriggerRequest is the optional body of a manual trigger. Both fields
// override the engine defaults for that run only.
type TriggerRequest struct {
	Strategy  string  `json:"strategy" binding:"omitempty,oneof=title sku"`
	Threshold float64 `json:"threshold" binding:"omitempty,gt=0,lte=1"`
}

type RunResponse struct {
	ID          uint    `json:"id"`
	Status      string  `json:"status"`
	TriggeredBy string  `json:"triggeredBy"`
	StartedAt   *string `json:"startedAt"`
	FinishedAt  *string `json:"finishedAt"`
	DurationMs  int64   `json:"durationMs"`
	Processed   int     `json:"processed"`
	ErrorCount  int     `json:"errorCount"`
}

type RunDetailResponse struct {
	RunResponse
	Errors []EntryErrorResponse `json:"errors"`
}

type EntryErrorResponse struct {
	ID        uint   `json:"id"`
	Sku       string `json:"sku"`
	Stage     string `json:"stage"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func StatusHandler(s *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Status())
	}
}

// TriggerHandler starts a run synchronously and reports its summary. A run
// already in progress yields 409; only a catalog-level failure yields 5xx.
// Per-entry failures are part of a successful response.
func TriggerHandler(s *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}

		cfg := RunConfig{Threshold: req.Threshold}
		if req.Strategy != "" {
			strategy, err := StrategyByName(req.Strategy)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			cfg.Strategy = strategy
		}

		summary, err := s.TriggerRun(c.Request.Context(), models.TriggeredManual, cfg)
		if err != nil {
			if errors.Is(err, ErrRunInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": "already in progress"})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"summary": summary})
	}
}

func RunHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history requires a database"})
			return
		}

		limit := 20
		if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		var runs []models.ReconcileRun
		if err := db.WithContext(c.Request.Context()).Order("id desc").Limit(limit).Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]RunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

func RunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history requires a database"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		var run models.ReconcileRun
		if err := db.WithContext(c.Request.Context()).Where("id = ?", id).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var errs []models.ReconcileEntryError
		if err := db.WithContext(c.Request.Context()).Where("run_id = ?", run.ID).Order("id desc").Find(&errs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, RunDetailResponse{
			RunResponse: mapRunToResponse(run),
			Errors:      mapEntryErrors(errs),
		})
	}
}

// ConfigCheckHandler reports which required connection parameters are set,
// without echoing their values.
func ConfigCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"acdc_base_url_set": strings.TrimSpace(os.Getenv("ACDC_BASE_URL")) != "",
			"db_host_set":       strings.TrimSpace(os.Getenv("DB_HOST")) != "",
			"redis_address_set": strings.TrimSpace(os.Getenv("REDIS_ADDRESS")) != "",
			"redis_connected":   config.GetRedisDB() != nil,
			"catalog_store":     strings.TrimSpace(os.Getenv("CATALOG_STORE")),
		})
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.ReconcileRun) RunResponse {
	return RunResponse{
		ID:          run.ID,
		Status:      run.Status,
		TriggeredBy: run.TriggeredBy,
		StartedAt:   formatTime(run.StartedAt),
		FinishedAt:  formatTime(run.FinishedAt),
		DurationMs:  run.DurationMs,
		Processed:   run.Processed,
		ErrorCount:  run.ErrorCount,
	}
}

func mapEntryErrors(errorsList []models.ReconcileEntryError) []EntryErrorResponse {
	out := make([]EntryErrorResponse, 0, len(errorsList))
	for _, errItem := range errorsList {
		out = append(out, EntryErrorResponse{
			ID:        errItem.ID,
			Sku:       errItem.Sku,
			Stage:     errItem.Stage,
			ErrorCode: errItem.ErrorCode,
			Message:   errItem.Message,
			Retryable: errItem.Retryable,
		})
	}
	return out
}
