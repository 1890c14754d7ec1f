package sweeper

import (
	"context"
	"encoding/json"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/tokenlens/mint-indexer/internal/adapter"
	"github.com/tokenlens/mint-indexer/internal/logger"
	"github.com/tokenlens/mint-indexer/internal/store"
	"github.com/tokenlens/mint-indexer/internal/store/schema"
)

// task is one sub-task of a maintenance job. It returns the number of
// records it touched.
type task struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

// runJob executes the tasks of one maintenance run and records the outcome
// as a maintenance_jobs row. A failing sub-task does not stop the remaining
// tasks and the job record is always finalized, with failed status and the
// first error message when anything went wrong.
func runJob(ctx context.Context, st store.Store, clock adapter.Clock, name string, tasks []task) {
	job := &schema.MaintenanceJob{
		ID:        ulid.Make().String(),
		Name:      name,
		Status:    schema.MaintenanceJobStatusRunning,
		StartedAt: clock.Now(),
	}
	if err := st.CreateMaintenanceJob(ctx, job); err != nil {
		// The job still runs; only its bookkeeping is lost
		logger.ErrorCtx(ctx, err, zap.String("job", name))
		job = nil
	}

	summary := make(map[string]int64, len(tasks))
	status := schema.MaintenanceJobStatusCompleted
	var errMsg string

	for _, t := range tasks {
		affected, err := t.run(ctx)
		if err != nil {
			logger.ErrorCtx(ctx, err, zap.String("job", name), zap.String("task", t.name))
			status = schema.MaintenanceJobStatusFailed
			if errMsg == "" {
				errMsg = t.name + ": " + err.Error()
			}
			continue
		}
		summary[t.name] = affected
		logger.InfoCtx(ctx, "Maintenance task finished",
			zap.String("job", name),
			zap.String("task", t.name),
			zap.Int64("affected", affected))
	}

	if job == nil {
		return
	}

	result, err := json.Marshal(summary)
	if err != nil {
		result = []byte("{}")
	}
	if err := st.FinalizeMaintenanceJob(ctx, job.ID, status, result, errMsg); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("job", name))
	}
}
