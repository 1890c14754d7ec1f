package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tokenlens/mint-indexer/internal/adapter"
	"github.com/tokenlens/mint-indexer/internal/config"
	"github.com/tokenlens/mint-indexer/internal/credentials"
	"github.com/tokenlens/mint-indexer/internal/dedupe"
	"github.com/tokenlens/mint-indexer/internal/enrich"
	"github.com/tokenlens/mint-indexer/internal/feed"
	"github.com/tokenlens/mint-indexer/internal/logger"
	"github.com/tokenlens/mint-indexer/internal/persist"
	"github.com/tokenlens/mint-indexer/internal/providers/jetstream"
	"github.com/tokenlens/mint-indexer/internal/store"
	"github.com/tokenlens/mint-indexer/internal/uri"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadIngestorConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "ingestor",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Ingestor")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}
	if err := store.ConfigureConnectionPool(db,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database")

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize adapters
	clockAdapter := adapter.NewClock()
	natsJS := adapter.NewNatsJetStream()
	httpClient := adapter.NewHTTPClient(cfg.Enrichment.FetchTimeout)
	socketDialer := adapter.NewSocketDialer()

	// Load the credentials pool
	credentialPool := credentials.NewPool(dataStore)
	if err := credentialPool.Load(ctx); err != nil {
		logger.FatalCtx(ctx, "Failed to load credentials", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Loaded credentials", zap.Int("count", credentialPool.Size()))

	// Initialize NATS publisher
	natsPublisher, err := jetstream.NewPublisher(
		ctx,
		jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		}, natsJS)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create NATS publisher", zap.Error(err), zap.String("url", cfg.NATS.URL))
	}
	defer natsPublisher.Close()
	logger.InfoCtx(ctx, "Connected to NATS JetStream")

	// Assemble the processing pipeline: fetch -> classify -> persist
	fetcher := uri.NewFetcher(httpClient, &uri.Config{
		Gateways:   cfg.Enrichment.Gateways,
		RetryCount: cfg.Enrichment.RetryCount,
		RetryDelay: cfg.Enrichment.RetryDelay,
	})
	detector := dedupe.NewDetector(dataStore, clockAdapter, dedupe.DetectorConfig{
		Window: cfg.Dedupe.Window,
	})
	persister := persist.NewPersister(dataStore, natsPublisher, persist.Config{
		NotifyLimit: cfg.Notify.LatestLimit,
	})
	worker := enrich.NewWorker(ctx, enrich.Config{
		Concurrency: cfg.Enrichment.Concurrency,
		QueueSize:   cfg.Enrichment.QueueSize,
	}, fetcher, detector, persister)
	defer worker.Stop()

	// Buffer batches raw events before handing them to the worker pool
	buffer := feed.NewIngestBuffer(feed.BufferConfig{
		BatchSize:     cfg.Buffer.BatchSize,
		FlushInterval: cfg.Buffer.FlushInterval,
	}, clockAdapter, worker.ProcessBatch)
	go buffer.Run(ctx)

	// Feed connection drives the whole pipeline
	connection := feed.NewConnection(feed.ConnectionConfig{
		URL:                  cfg.Feed.URL,
		Query:                cfg.Feed.Query,
		MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
		ReconnectDelay:       cfg.Feed.ReconnectDelay,
		AckTimeout:           cfg.Feed.AckTimeout,
		ExhaustedRetryDelay:  cfg.Feed.ExhaustedRetryDelay,
	}, socketDialer, credentialPool, buffer, clockAdapter)

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel for connection errors
	errCh := make(chan error, 1)

	// Start the feed connection
	go func() {
		if err := connection.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "feed"))
		cancel()
	}

	// Give some time for graceful shutdown
	time.Sleep(time.Second)

	// Use non-context logger for final shutdown message since context is already canceled
	logger.Info("Ingestor stopped")
}
