package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-andersen/ebay-card-scraper/internal/api"
	"github.com/noah-andersen/ebay-card-scraper/internal/api/handlers"
	"github.com/noah-andersen/ebay-card-scraper/internal/config"
	"github.com/noah-andersen/ebay-card-scraper/internal/database"
	"github.com/noah-andersen/ebay-card-scraper/internal/logging"
	"github.com/noah-andersen/ebay-card-scraper/internal/services"
)

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, json, toml, env)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.Must(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	// Initialize database
	if err := database.Initialize(cfg.DBPath, logger); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	// Initialize services
	extractor := services.NewGradeExtractor(cfg.ExtractionCache, logger)
	canon := services.NewURLCanonicalizer()
	store := services.NewDatasetStore(database.GetDB(), logger)

	// Seed dedup from the catalog so restarts never re-accept stored listings
	dedup := services.NewDeduplicator()
	keys, err := store.Keys()
	if err != nil {
		logger.Fatal("failed to load catalog keys", zap.Error(err))
	}
	dedup.SeedKeys(keys)
	logger.Info("catalog loaded", zap.Int("listings", len(keys)))

	filterOpts := services.FilterOptions{
		BannedTerms:  cfg.Filter.BannedTerms,
		MinImages:    cfg.Filter.MinImages,
		UseBackfill:  cfg.Filter.UseBackfill,
		DeleteAssets: cfg.Filter.DeleteAssets,
	}
	// Evaluation over HTTP never deletes anything
	filter := services.NewQualityFilter(filterOpts, extractor, nil, logger)

	normalizer := services.NewNormalizer(extractor, canon, dedup, logger)
	curator := services.NewCurator(cfg.AssetsDir, extractor, logger)
	if cfg.Fetch.DownloadImages {
		fetcher := services.NewHTTPImageFetcher(cfg.Fetch.Timeout, cfg.Fetch.RatePerSecond, cfg.Fetch.Burst)
		imageStorage := services.NewImageStorageService(cfg.AssetsDir, logger)
		normalizer.WithImageDownloads(fetcher, imageStorage)
		curator.WithImageDownloads(fetcher, imageStorage)
	}

	listingHandler := handlers.NewListingHandler(extractor, canon, filter, normalizer, store, cfg.ReportTopN, logger)
	datasetHandler := handlers.NewDatasetHandler(curator, cfg.DataDir, filterOpts, cfg.ReportTopN, logger)

	// Setup router
	router := api.SetupRouter(listingHandler, datasetHandler, cfg.CORSAllowedOrigins)

	// Create HTTP server for graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give outstanding requests a deadline to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
