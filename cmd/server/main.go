package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platformbuilds/vigil-core/internal/config"
	"github.com/platformbuilds/vigil-core/internal/engine"
	"github.com/platformbuilds/vigil-core/internal/models"
	"github.com/platformbuilds/vigil-core/internal/services"
	"github.com/platformbuilds/vigil-core/pkg/cache"
	"github.com/platformbuilds/vigil-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.LogLevel)
	logger.Info("Starting VIGIL-CORE", "environment", cfg.Environment)

	store, err := cache.New(cfg.Cache.Node, cfg.Cache.DB, cfg.Cache.Password,
		time.Duration(cfg.Cache.TTL)*time.Second)
	if err != nil {
		logger.Fatal("Failed to initialize cache", "error", err)
	}

	notifier := services.NewNotificationService(cfg.Integrations, store, logger)
	source := engine.NewMemorySource(0)
	eng := engine.New(cfg.Alerting, source, notifier, store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Alerting.RulesPath != "" {
		loadRules(eng, cfg.Alerting.RulesPath, logger)
		if err := config.WatchRulesFile(ctx, cfg.Alerting.RulesPath, logger, eng.ReplaceRules); err != nil {
			logger.Error("Rules file watcher failed to start", "error", err)
		}
	}

	eng.Start()

	router := newRouter(cfg, eng, source)
	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: router,
	}
	go func() {
		logger.Info("HTTP server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	cancel()
	eng.Stop()

	logger.Info("VIGIL-CORE shutdown complete")
}

func loadRules(eng *engine.Engine, path string, log logger.Logger) {
	conditions, problems := config.LoadRulesFile(path)
	for _, p := range problems {
		log.Warn("Skipping malformed alert rule", "error", p)
	}
	for _, cond := range conditions {
		if err := eng.AddRule(cond); err != nil {
			log.Warn("Rejected alert rule", "rule_id", cond.ID, "error", err)
		}
	}
	log.Info("Loaded alert rules", "path", path, "rules", len(conditions))
}

// newRouter builds the ops surface: health probes, Prometheus metrics and
// the sample ingest endpoint feeding the engine.
func newRouter(cfg *config.Config, eng *engine.Engine, source *engine.MemorySource) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if cfg.Monitoring.Enabled {
		path := cfg.Monitoring.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.Handler()))
	}

	router.POST("/api/v1/samples", func(c *gin.Context) {
		var samples []models.MetricSample
		if err := c.ShouldBindJSON(&samples); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		accepted := 0
		for _, sample := range samples {
			if sample.Name == "" {
				continue
			}
			if sample.Timestamp.IsZero() {
				sample.Timestamp = time.Now()
			}
			source.Add(sample)
			eng.Evaluate(sample)
			accepted++
		}
		c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
	})

	return router
}
