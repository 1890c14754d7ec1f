package schema

import (
	"time"

	"gorm.io/datatypes"
)

// MaintenanceJobStatus represents the status of a maintenance job run
type MaintenanceJobStatus string

const (
	// MaintenanceJobStatusRunning is the status of an in-progress job
	MaintenanceJobStatusRunning MaintenanceJobStatus = "running"
	// MaintenanceJobStatusCompleted is the status of a successfully finished job
	MaintenanceJobStatusCompleted MaintenanceJobStatus = "completed"
	// MaintenanceJobStatusFailed is the status of a job that hit an error
	MaintenanceJobStatusFailed MaintenanceJobStatus = "failed"
)

// MaintenanceJob represents the maintenance_jobs table - one row per sweeper run
type MaintenanceJob struct {
	// ID is a ULID assigned at job start
	ID string `gorm:"column:id;primaryKey;type:text"`
	// Name identifies the sweeper that ran (e.g. "retention-sweeper")
	Name string `gorm:"column:name;not null;type:text;index"`
	// Status is the job status
	Status MaintenanceJobStatus `gorm:"column:status;not null;type:text"`
	// StartedAt is the timestamp when the job started
	StartedAt time.Time `gorm:"column:started_at;not null"`
	// FinishedAt is the timestamp when the job was finalized
	FinishedAt *time.Time `gorm:"column:finished_at"`
	// Result is a structured summary of the job's sub-task outcomes
	Result datatypes.JSON `gorm:"column:result;type:jsonb"`
	// ErrorMessage captures the first sub-task error when Status is failed
	ErrorMessage string `gorm:"column:error_message;type:text"`
}

// TableName specifies the table name for the MaintenanceJob model
func (MaintenanceJob) TableName() string {
	return "maintenance_jobs"
}
