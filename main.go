package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"creative-studio-server/config"
	"creative-studio-server/internal/emotionanalyzer"
	"creative-studio-server/internal/jobs"
	"creative-studio-server/internal/objectdetector"
	"creative-studio-server/internal/selector"
	"creative-studio-server/internal/visionenricher"
	"creative-studio-server/middleware"
	"creative-studio-server/pkg/cache"
	"creative-studio-server/pkg/database"
	"creative-studio-server/pkg/logger"
	"creative-studio-server/pkg/queue"
	"creative-studio-server/pkg/videoengine"
	"creative-studio-server/routes"
)

// @title Highlight Pipeline Job API
// @version 1.0
// @description Thin HTTP surface for creating and polling background
// highlight-assembly jobs. The assemble/conform pipeline itself is the
// product; this API exists only because the Job Registry needs a caller.

// @host localhost:8080
// @BasePath /api/v1

var jobRegistry *jobs.Registry

func main() {
	if err := config.LoadConfig(); err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	cfg := config.AppConfig

	logger.InitLogger(cfg)
	logger.Info("Starting highlight pipeline server...")

	if err := database.InitDatabase(cfg); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to auto-migrate models: %v", err)
	}

	if err := cache.InitRedis(cfg); err != nil {
		logger.Fatalf("Failed to initialize Redis: %v", err)
	}

	if err := queue.InitRabbitMQ(cfg); err != nil {
		logger.Fatalf("Failed to initialize RabbitMQ: %v", err)
	}

	registry, vision, err := buildJobRegistry(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize video tooling: %v", err)
	}
	jobRegistry = registry
	startBackgroundWorkers(jobRegistry)

	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())

	routes.SetupRoutes(r, jobRegistry, vision)

	srv := &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	cleanup()

	logger.Info("Server stopped")
}

// buildJobRegistry wires the Content Selector's analyzer stack (object
// detector, emotion analyzer, optional vision enricher, Redis-backed
// result cache) behind the Job Registry, with Redis snapshot persistence
// and a gorm audit trail layered on top.
func buildJobRegistry(cfg *config.Config) (*jobs.Registry, *visionenricher.Enricher, error) {
	gw, err := videoengine.CheckAvailability(context.Background(), cfg)
	if err != nil {
		return nil, nil, err
	}

	objects := objectdetector.New(gw)
	emotions := emotionanalyzer.New(gw, cfg.Pipeline.TempRoot)
	vision := visionenricher.New(cfg.Vision, logger.Logger.WithField("component", "vision_enricher"))

	selCache := selector.NewRedisCache(cache.Cache.Client(), 0)
	sel := selector.New(objects, emotions, vision, gw, selCache, cfg.Pipeline.TempRoot)

	registry := jobs.New(sel,
		jobs.WithSnapshotStore(jobs.NewRedisSnapshotStore(cache.Cache.Client())),
		jobs.WithAuditStore(jobs.NewGormAuditStore(database.DB)),
	)
	return registry, vision, nil
}

func startBackgroundWorkers(registry *jobs.Registry) {
	logger.Info("Starting background workers...")

	go func() {
		handler := func(task *queue.Task) error {
			jobID, _ := task.Payload["job_id"].(string)
			if jobID == "" {
				return fmt.Errorf("assemble task missing job_id")
			}
			return registry.Start(context.Background(), jobID)
		}
		if err := queue.Queue.ConsumeTask(queue.QueueAssemble, handler, 2); err != nil {
			logger.Errorf("Failed to start assemble job workers: %v", err)
		}
	}()

	go cleanupLoop(registry)

	logger.Info("Background workers started")
}

// cleanupLoop periodically evicts terminal jobs older than 24h from the
// live Registry; their audit rows and Redis snapshots remain queryable.
func cleanupLoop(registry *jobs.Registry) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		if removed := registry.Cleanup(24 * time.Hour); removed > 0 {
			logger.Infof("cleaned up %d stale jobs", removed)
		}
	}
}

func cleanup() {
	logger.Info("Cleaning up resources...")

	if err := queue.Queue.Close(); err != nil {
		logger.Errorf("Failed to close RabbitMQ connection: %v", err)
	}
	if err := cache.Cache.Close(); err != nil {
		logger.Errorf("Failed to close Redis connection: %v", err)
	}

	logger.Info("Cleanup completed")
}
