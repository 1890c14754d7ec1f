package sweeper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tokenlens/mint-indexer/internal/adapter"
	"github.com/tokenlens/mint-indexer/internal/logger"
	"github.com/tokenlens/mint-indexer/internal/store"
)

// RetentionSweeperConfig holds configuration for the retention sweeper
type RetentionSweeperConfig struct {
	// Interval is the time between runs
	Interval time.Duration
	// RetentionAge is how old an ungrouped record may get before deletion
	RetentionAge time.Duration
}

// retentionSweeper deletes retention-expired ungrouped records on a fixed
// interval. It runs independently of the ingestion path.
type retentionSweeper struct {
	config    RetentionSweeperConfig
	store     store.Store
	clock     adapter.Clock
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewRetentionSweeper creates a new retention sweeper
func NewRetentionSweeper(config RetentionSweeperConfig, st store.Store, clock adapter.Clock) Sweeper {
	return &retentionSweeper{
		config:    config,
		store:     st,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the sweeper's name
func (s *retentionSweeper) Name() string {
	return "retention-sweeper"
}

// Start begins the sweeper's main loop
func (s *retentionSweeper) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already running")
	}
	defer func() {
		s.running.Store(false)
		close(s.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting retention sweeper",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("retention_age", s.config.RetentionAge))

	ticker := s.clock.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Retention sweeper stopping due to context cancellation")
			return nil
		case <-s.stopChan:
			logger.InfoCtx(ctx, "Retention sweeper stop requested")
			return nil
		case <-ticker.Chan():
			s.runOnce(ctx)
		}
	}
}

// runOnce executes one retention pass
func (s *retentionSweeper) runOnce(ctx context.Context) {
	cutoff := s.clock.Now().Add(-s.config.RetentionAge)
	runJob(ctx, s.store, s.clock, s.Name(), []task{
		{
			name: "retention_purge",
			run: func(ctx context.Context) (int64, error) {
				return s.store.PurgeExpiredRecords(ctx, cutoff)
			},
		},
	})
}

// Stop gracefully stops the sweeper
func (s *retentionSweeper) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	close(s.stopChan)

	select {
	case <-s.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
