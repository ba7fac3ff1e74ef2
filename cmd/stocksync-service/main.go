package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/acdc"
	"bitbucket.org/mmdatafocus/stocksync_backend/acdcsync"
	"bitbucket.org/mmdatafocus/stocksync_backend/catalog"
	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/middlewares"
	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("STOCKSYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	source, err := acdc.NewClient()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "config"}).Fatal(err)
	}

	engine := acdcsync.NewEngine(acdcsync.EngineOptions{
		Source: source,
		Logger: logger,
	})
	scheduler := acdcsync.NewScheduler(engine)

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(middlewares.TokenMiddleware())
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "online",
			"endpoints": gin.H{
				"/healthz":                    "check service health",
				"/api/stocksync/status":       "scheduler and last run status",
				"/api/stocksync/trigger":      "manually trigger a reconcile run",
				"/api/stocksync/runs":         "run history",
				"/api/stocksync/config-check": "verify configuration",
			},
		})
	})

	// API endpoints (ACDC stock sync)
	r.GET("/api/stocksync/status", acdcsync.StatusHandler(scheduler))
	r.POST("/api/stocksync/trigger", acdcsync.TriggerHandler(scheduler))
	r.GET("/api/stocksync/runs", acdcsync.RunHistoryHandler())
	r.GET("/api/stocksync/runs/:id", acdcsync.RunDetailHandler())
	r.GET("/api/stocksync/config-check", acdcsync.ConfigCheckHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	storeKind := strings.ToLower(utils.StringFromEnv("CATALOG_STORE", "db"))
	var store catalog.Store
	switch storeKind {
	case "sheet":
		sheetPath := strings.TrimSpace(os.Getenv("CATALOG_SHEET_PATH"))
		if sheetPath == "" {
			logger.WithFields(logrus.Fields{"field": "config"}).Fatal("CATALOG_SHEET_PATH is required when CATALOG_STORE=sheet")
		}
		sheetStore, err := catalog.NewSheetStore(sheetPath)
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "config"}).Fatal(err)
		}
		store = sheetStore
		// History rows still need MySQL; connect when configured.
		if strings.TrimSpace(os.Getenv("DB_HOST")) != "" {
			config.ConnectDatabaseWithRetry()
		}
	default:
		config.ConnectDatabaseWithRetry()
		store = catalog.NewDBStore(config.GetDB())
	}
	config.ConnectRedisWithRetry()

	if db := config.GetDB(); db != nil {
		sqlDB, _ := db.DB()
		defer func() {
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		}()
		if !utils.BoolFromEnv("SKIP_MIGRATIONS", false) {
			models.MigrateTable()
		} else {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
		}
	}

	engine.SetStore(store)

	if err := scheduler.Start(); err != nil {
		logger.WithFields(logrus.Fields{"field": "scheduler"}).Fatal(err)
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		scheduler.Stop(shutdownCtx)
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
