package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"attendance-insights-api/analytics"
	"attendance-insights-api/config"
	"attendance-insights-api/handlers"
	"attendance-insights-api/insights"
	"attendance-insights-api/loader"
	"attendance-insights-api/metrics"
	"attendance-insights-api/middleware"
	"attendance-insights-api/modelcache"
	"attendance-insights-api/pipeline"
	"attendance-insights-api/services"
	"attendance-insights-api/store"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, closeSource, err := openSource(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open dataset source: %v", err)
	}
	defer closeSource()

	models, err := openModelCache(cfg)
	if err != nil {
		log.Fatalf("Failed to open model cache: %v", err)
	}

	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		log.Printf("warning: response cache disabled: %v", err)
	}
	defer cache.Close()

	st := store.New()
	svc := analytics.NewService(st, insights.Options{
		UnexcusedPercentile: cfg.Insights.UnexcusedPercentile,
		ResourceTopN:        cfg.Insights.ResourceTopN,
		TierBoundaryMargin:  cfg.Insights.TierBoundaryMargin,
	})

	p := &pipeline.Pipeline{
		Source:       source,
		Options:      loader.Options{CurrentSchoolYear: cfg.Dataset.CurrentSchoolYear},
		Store:        st,
		TrainTimeout: cfg.Training.Timeout(),
		Cache:        models,
		Events:       cache,
		Channel:      services.SnapshotChannel,
	}
	// The API serves 503 until the first cycle publishes.
	go func() {
		if err := p.Run(ctx); err != nil {
			log.Printf("initial load failed: %v", err)
		}
	}()

	go func() {
		if err := metrics.Serve(cfg.Server.MetricsAddr); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	router := gin.Default()
	router.Use(middleware.SetupCORS(cfg.CORS))

	router.GET("/health", func(c *gin.Context) {
		status := svc.Status()
		c.JSON(http.StatusOK, gin.H{
			"status": "UP",
			"state":  status.State,
			"ready":  status.Ready,
		})
	})

	alerts := router.Group("/api/alerts")
	handlers.NewAlertsHandler(svc, cache, cfg.Redis.CacheTTL()).Register(alerts)
	alerts.GET("/status/ws", handlers.StatusWebSocket(svc, cfg.WebSocket.PollInterval()))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: server shutdown: %v", err)
	}
}

// openSource builds the dataset source. The file source falls back to the
// spreadsheet and converts it to CSV for later runs.
func openSource(ctx context.Context, cfg *config.Config) (loader.Source, func(), error) {
	switch cfg.Dataset.Source {
	case config.SourcePostgres:
		pool, err := pgxpool.New(ctx, cfg.Database.GetURL())
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return &loader.PostgresSource{DB: pool, Table: cfg.Dataset.Table}, pool.Close, nil
	default:
		src := &loader.FallbackSource{
			Primary:   &loader.CSVSource{Path: cfg.Dataset.Path},
			Secondary: &loader.SpreadsheetSource{Path: cfg.Dataset.SpreadsheetPath},
			ConvertTo: cfg.Dataset.Path,
		}
		return src, func() {}, nil
	}
}

func openModelCache(cfg *config.Config) (modelcache.Cache, error) {
	switch cfg.ModelCache.Backend {
	case config.CachePostgres:
		db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db handle: %w", err)
		}
		if err := sqlDB.Ping(); err != nil {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return modelcache.NewPostgres(db)
	default:
		return modelcache.NewDir(cfg.ModelCache.Dir)
	}
}
