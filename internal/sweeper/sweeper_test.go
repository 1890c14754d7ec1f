package sweeper_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenlens/mint-indexer/internal/logger"
	"github.com/tokenlens/mint-indexer/internal/mocks"
	"github.com/tokenlens/mint-indexer/internal/store/schema"
	"github.com/tokenlens/mint-indexer/internal/sweeper"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

// jobRecorder tracks maintenance job bookkeeping on a mock store
type jobRecorder struct {
	mu        sync.Mutex
	created   []schema.MaintenanceJob
	finalized []finalizedJob
}

type finalizedJob struct {
	id      string
	status  schema.MaintenanceJobStatus
	summary map[string]int64
	errMsg  string
}

func (r *jobRecorder) attach(st *mocks.Store) {
	st.CreateMaintenanceJobFn = func(ctx context.Context, job *schema.MaintenanceJob) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.created = append(r.created, *job)
		return nil
	}
	st.FinalizeMaintenanceJobFn = func(ctx context.Context, id string, status schema.MaintenanceJobStatus, result []byte, errorMessage string) error {
		summary := map[string]int64{}
		_ = json.Unmarshal(result, &summary)
		r.mu.Lock()
		defer r.mu.Unlock()
		r.finalized = append(r.finalized, finalizedJob{id: id, status: status, summary: summary, errMsg: errorMessage})
		return nil
	}
}

func (r *jobRecorder) finalizedJobs() []finalizedJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]finalizedJob(nil), r.finalized...)
}

func (r *jobRecorder) createdJobs() []schema.MaintenanceJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.MaintenanceJob(nil), r.created...)
}

var sweepNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func startSweeper(t *testing.T, sw sweeper.Sweeper) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Start(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("sweeper did not stop")
		}
	}
}

func TestRetentionSweeper_PurgesOnTick(t *testing.T) {
	var purgeCutoffs []time.Time
	var mu sync.Mutex
	st := &mocks.Store{
		PurgeExpiredRecordsFn: func(ctx context.Context, olderThan time.Time) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			purgeCutoffs = append(purgeCutoffs, olderThan)
			return 4, nil
		},
	}
	recorder := &jobRecorder{}
	recorder.attach(st)

	clock := mocks.NewClock(sweepNow)
	sw := sweeper.NewRetentionSweeper(sweeper.RetentionSweeperConfig{
		Interval:     time.Hour,
		RetentionAge: 720 * time.Hour,
	}, st, clock)

	stop := startSweeper(t, sw)

	clock.Tick()
	require.Eventually(t, func() bool {
		return len(recorder.finalizedJobs()) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Len(t, purgeCutoffs, 1)
	assert.Equal(t, sweepNow.Add(-720*time.Hour), purgeCutoffs[0])
	mu.Unlock()

	jobs := recorder.createdJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "retention-sweeper", jobs[0].Name)
	assert.Equal(t, schema.MaintenanceJobStatusRunning, jobs[0].Status)

	final := recorder.finalizedJobs()[0]
	assert.Equal(t, jobs[0].ID, final.id)
	assert.Equal(t, schema.MaintenanceJobStatusCompleted, final.status)
	assert.Equal(t, int64(4), final.summary["retention_purge"])
	assert.Empty(t, final.errMsg)

	stop()
}

func TestRetentionSweeper_DoubleStartRejected(t *testing.T) {
	st := &mocks.Store{}
	clock := mocks.NewClock(sweepNow)
	sw := sweeper.NewRetentionSweeper(sweeper.RetentionSweeperConfig{
		Interval:     time.Hour,
		RetentionAge: time.Hour,
	}, st, clock)

	stop := startSweeper(t, sw)
	defer stop()

	// Give the first Start a moment to claim the running flag
	require.Eventually(t, func() bool {
		return sw.Start(context.Background()) != nil
	}, time.Second, 10*time.Millisecond)
}

func TestGroupSweeper_RunsTasksInOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	var resetCutoff time.Time
	var resetCeiling int

	st := &mocks.Store{
		ResetAnomalousGroupsFn: func(ctx context.Context, olderThan time.Time, ceiling int) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, "reset")
			resetCutoff = olderThan
			resetCeiling = ceiling
			return 2, nil
		},
		ClearSingletonGroupsFn: func(ctx context.Context) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, "prune")
			return 3, nil
		},
		PurgeOrphanRecordsFn: func(ctx context.Context) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, "orphans")
			return 1, nil
		},
	}
	recorder := &jobRecorder{}
	recorder.attach(st)

	clock := mocks.NewClock(sweepNow)
	sw := sweeper.NewGroupSweeper(sweeper.GroupSweeperConfig{
		RunHourUTC:       3,
		GroupResetAge:    168 * time.Hour,
		OversizedCeiling: 200,
	}, st, clock)

	stop := startSweeper(t, sw)

	clock.FireAfter()
	require.Eventually(t, func() bool {
		return len(recorder.finalizedJobs()) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"reset", "prune", "orphans"}, order)
	assert.Equal(t, sweepNow.Add(-168*time.Hour), resetCutoff)
	assert.Equal(t, 200, resetCeiling)
	mu.Unlock()

	final := recorder.finalizedJobs()[0]
	assert.Equal(t, schema.MaintenanceJobStatusCompleted, final.status)
	assert.Equal(t, int64(2), final.summary["anomalous_group_reset"])
	assert.Equal(t, int64(3), final.summary["singleton_prune"])
	assert.Equal(t, int64(1), final.summary["orphan_purge"])

	stop()
}

func TestGroupSweeper_FailedTaskMarksJobFailedButContinues(t *testing.T) {
	var mu sync.Mutex
	orphansRan := false

	st := &mocks.Store{
		ResetAnomalousGroupsFn: func(ctx context.Context, olderThan time.Time, ceiling int) (int64, error) {
			return 0, errors.New("connection refused")
		},
		PurgeOrphanRecordsFn: func(ctx context.Context) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			orphansRan = true
			return 5, nil
		},
	}
	recorder := &jobRecorder{}
	recorder.attach(st)

	clock := mocks.NewClock(sweepNow)
	sw := sweeper.NewGroupSweeper(sweeper.GroupSweeperConfig{
		RunHourUTC:       3,
		GroupResetAge:    168 * time.Hour,
		OversizedCeiling: 200,
	}, st, clock)

	stop := startSweeper(t, sw)

	clock.FireAfter()
	require.Eventually(t, func() bool {
		return len(recorder.finalizedJobs()) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.True(t, orphansRan)
	mu.Unlock()

	final := recorder.finalizedJobs()[0]
	assert.Equal(t, schema.MaintenanceJobStatusFailed, final.status)
	assert.Contains(t, final.errMsg, "anomalous_group_reset")
	// Successful tasks still report their counts
	assert.Equal(t, int64(5), final.summary["orphan_purge"])
	_, hasReset := final.summary["anomalous_group_reset"]
	assert.False(t, hasReset)

	stop()
}

func TestRetentionSweeper_JobBookkeepingFailureStillPurges(t *testing.T) {
	var mu sync.Mutex
	purged := false

	st := &mocks.Store{
		CreateMaintenanceJobFn: func(ctx context.Context, job *schema.MaintenanceJob) error {
			return errors.New("connection refused")
		},
		FinalizeMaintenanceJobFn: func(ctx context.Context, id string, status schema.MaintenanceJobStatus, result []byte, errorMessage string) error {
			t.Error("job without a created row must not be finalized")
			return nil
		},
		PurgeExpiredRecordsFn: func(ctx context.Context, olderThan time.Time) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			purged = true
			return 0, nil
		},
	}

	clock := mocks.NewClock(sweepNow)
	sw := sweeper.NewRetentionSweeper(sweeper.RetentionSweeperConfig{
		Interval:     time.Hour,
		RetentionAge: time.Hour,
	}, st, clock)

	stop := startSweeper(t, sw)

	clock.Tick()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return purged
	}, time.Second, 10*time.Millisecond)

	stop()
}

func TestSweeper_StopUnblocksStart(t *testing.T) {
	st := &mocks.Store{}
	clock := mocks.NewClock(sweepNow)
	sw := sweeper.NewRetentionSweeper(sweeper.RetentionSweeperConfig{
		Interval:     time.Hour,
		RetentionAge: time.Hour,
	}, st, clock)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- sw.Start(ctx) }()

	// Wait until the loop owns the running flag
	require.Eventually(t, func() bool {
		return sw.Start(ctx) != nil
	}, time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sw.Stop(stopCtx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
