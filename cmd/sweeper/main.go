package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tokenlens/mint-indexer/internal/adapter"
	"github.com/tokenlens/mint-indexer/internal/config"
	"github.com/tokenlens/mint-indexer/internal/logger"
	"github.com/tokenlens/mint-indexer/internal/store"
	"github.com/tokenlens/mint-indexer/internal/sweeper"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadSweeperConfig(*configFile, *envPath)
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
			"service": "sweeper",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Sweeper")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize clock adapter
	clock := adapter.NewClock()

	// Initialize sweepers
	retentionSweeper := sweeper.NewRetentionSweeper(sweeper.RetentionSweeperConfig{
		Interval:     cfg.Maintenance.RetentionInterval,
		RetentionAge: cfg.Maintenance.RetentionAge,
	}, dataStore, clock)

	groupSweeper := sweeper.NewGroupSweeper(sweeper.GroupSweeperConfig{
		RunHourUTC:       cfg.Maintenance.RunHourUTC,
		GroupResetAge:    cfg.Maintenance.GroupResetAge,
		OversizedCeiling: cfg.Maintenance.OversizedCeiling,
	}, dataStore, clock)

	sweepers := []sweeper.Sweeper{retentionSweeper, groupSweeper}

	logger.InfoCtx(ctx, "Initialized sweepers",
		zap.Duration("retention_interval", cfg.Maintenance.RetentionInterval),
		zap.Duration("retention_age", cfg.Maintenance.RetentionAge),
		zap.Int("group_run_hour_utc", cfg.Maintenance.RunHourUTC),
	)

	// Start all sweepers; the first failure takes down the group
	group, groupCtx := errgroup.WithContext(ctx)
	for _, sw := range sweepers {
		sw := sw
		group.Go(func() error {
			if err := sw.Start(groupCtx); err != nil {
				return fmt.Errorf("sweeper %s: %w", sw.Name(), err)
			}
			return nil
		})
	}

	// Wait for interrupt signal or error
	errChan := make(chan error, 1)
	go func() {
		errChan <- group.Wait()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			logger.ErrorCtx(ctx, err)
		}
	}

	// Cancel context to stop the sweepers
	cancel()

	// Give the sweepers time to shut down gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()

	for _, sw := range sweepers {
		if err := sw.Stop(shutdownCtx); err != nil {
			logger.ErrorCtx(shutdownCtx, err)
		}
	}

	logger.InfoCtx(shutdownCtx, "Sweeper stopped")
}
