package store

import (
	"context"
	"time"

	"github.com/tokenlens/mint-indexer/internal/domain"
	"github.com/tokenlens/mint-indexer/internal/store/schema"
)

// MatchField identifies a token_records column used for duplicate matching
type MatchField string

const (
	// MatchFieldTwitter matches on the twitter link
	MatchFieldTwitter MatchField = "twitter_url"
	// MatchFieldSymbol matches on the token symbol
	MatchFieldSymbol MatchField = "symbol"
	// MatchFieldName matches on the token name
	MatchFieldName MatchField = "name"
)

// Store defines the interface for database operations.
// It is the single shared mutable resource of the pipeline; all writers go
// through upsert or conditional-update operations.
type Store interface {
	// GetRecordByMint retrieves a record by its mint address, nil when absent
	GetRecordByMint(ctx context.Context, mint string) (*schema.TokenRecord, error)
	// UpsertRecord inserts or updates a record keyed by mint
	UpsertRecord(ctx context.Context, record *schema.TokenRecord) error
	// FindMatching returns records whose field matches value case-insensitively,
	// excluding excludeMint, with timestamps strictly after since
	FindMatching(ctx context.Context, field MatchField, value string, excludeMint string, since time.Time) ([]*schema.TokenRecord, error)
	// LatestRecords returns the most recent limit records by timestamp
	LatestRecords(ctx context.Context, limit int) ([]*schema.TokenRecord, error)

	// CountByGroup returns the number of records in a duplicate group
	CountByGroup(ctx context.Context, group int64) (int64, error)
	// MaxGroupNumber returns the highest assigned duplicate group number (0 when none)
	MaxGroupNumber(ctx context.Context) (int64, error)
	// NextGroupNumber allocates the next duplicate group number, race-safe
	// against concurrent allocation
	NextGroupNumber(ctx context.Context) (int64, error)
	// AssignGroup rewrites the group fields of every record whose field matches
	// value case-insensitively with timestamps strictly after since
	AssignGroup(ctx context.Context, field MatchField, value string, since time.Time, group int64, dupType domain.DuplicateType) (int64, error)

	// ClearSingletonGroups clears the group fields of records whose group has
	// exactly one member, returning the number of records cleared
	ClearSingletonGroups(ctx context.Context) (int64, error)
	// ResetAnomalousGroups clears the group fields of records older than olderThan
	// belonging to groups with fewer than 2 or more than ceiling members
	ResetAnomalousGroups(ctx context.Context, olderThan time.Time, ceiling int) (int64, error)
	// PurgeExpiredRecords deletes ungrouped records older than olderThan
	PurgeExpiredRecords(ctx context.Context, olderThan time.Time) (int64, error)
	// PurgeOrphanRecords deletes records missing name, symbol or metadata
	PurgeOrphanRecords(ctx context.Context) (int64, error)

	// GetActiveCredentials returns all active feed credentials
	GetActiveCredentials(ctx context.Context) ([]schema.Credential, error)
	// DisableCredential permanently deactivates a credential
	DisableCredential(ctx context.Context, token string) error
	// TouchCredential bumps a credential's usage counter and last-used time
	TouchCredential(ctx context.Context, token string) error

	// CreateMaintenanceJob inserts a job record in running state
	CreateMaintenanceJob(ctx context.Context, job *schema.MaintenanceJob) error
	// FinalizeMaintenanceJob marks a job completed or failed with its summary
	FinalizeMaintenanceJob(ctx context.Context, id string, status schema.MaintenanceJobStatus, result []byte, errorMessage string) error

	// GetValue retrieves a value from the key-value store ("" when absent)
	GetValue(ctx context.Context, key string) (string, error)
	// SetValue stores a value in the key-value store
	SetValue(ctx context.Context, key string, value string) error
}
