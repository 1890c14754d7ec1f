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

// GroupSweeperConfig holds configuration for the group hygiene sweeper
type GroupSweeperConfig struct {
	// RunHourUTC is the fixed UTC hour of the daily run
	RunHourUTC int
	// GroupResetAge is how old records must be before their anomalous group
	// is reset
	GroupResetAge time.Duration
	// OversizedCeiling is the member count above which a group is anomalous
	OversizedCeiling int
}

// groupSweeper runs the daily deep cleanup: singleton pruning, anomalous
// group reset and orphan purge. It enforces the invariant that a persisted
// group has either two or more members or no identifier at all.
type groupSweeper struct {
	config    GroupSweeperConfig
	store     store.Store
	clock     adapter.Clock
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewGroupSweeper creates a new group hygiene sweeper
func NewGroupSweeper(config GroupSweeperConfig, st store.Store, clock adapter.Clock) Sweeper {
	return &groupSweeper{
		config:    config,
		store:     st,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the sweeper's name
func (s *groupSweeper) Name() string {
	return "group-sweeper"
}

// Start begins the sweeper's main loop
func (s *groupSweeper) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already running")
	}
	defer func() {
		s.running.Store(false)
		close(s.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting group sweeper",
		zap.Int("run_hour_utc", s.config.RunHourUTC),
		zap.Duration("group_reset_age", s.config.GroupResetAge),
		zap.Int("oversized_ceiling", s.config.OversizedCeiling))

	for {
		wait := s.untilNextRun()
		logger.InfoCtx(ctx, "Group sweeper waiting for next run", zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Group sweeper stopping due to context cancellation")
			return nil
		case <-s.stopChan:
			logger.InfoCtx(ctx, "Group sweeper stop requested")
			return nil
		case <-s.clock.After(wait):
			s.runOnce(ctx)
		}
	}
}

// untilNextRun computes the wait until the next daily run hour in UTC
func (s *groupSweeper) untilNextRun() time.Duration {
	now := s.clock.Now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.config.RunHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

// runOnce executes one deep cleanup pass. Sub-task order matters: anomalous
// groups are reset first so the singleton prune sees the final member counts.
func (s *groupSweeper) runOnce(ctx context.Context) {
	resetCutoff := s.clock.Now().Add(-s.config.GroupResetAge)
	runJob(ctx, s.store, s.clock, s.Name(), []task{
		{
			name: "anomalous_group_reset",
			run: func(ctx context.Context) (int64, error) {
				return s.store.ResetAnomalousGroups(ctx, resetCutoff, s.config.OversizedCeiling)
			},
		},
		{
			name: "singleton_prune",
			run: func(ctx context.Context) (int64, error) {
				return s.store.ClearSingletonGroups(ctx)
			},
		},
		{
			name: "orphan_purge",
			run: func(ctx context.Context) (int64, error) {
				return s.store.PurgeOrphanRecords(ctx)
			},
		},
	})
}

// Stop gracefully stops the sweeper
func (s *groupSweeper) Stop(ctx context.Context) error {
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
