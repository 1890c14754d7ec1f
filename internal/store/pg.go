package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tokenlens/mint-indexer/internal/domain"
	"github.com/tokenlens/mint-indexer/internal/store/schema"
)

// groupCounterKey is the key_value_store row backing duplicate group allocation
const groupCounterKey = "duplicate_group_counter"

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to defaults.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// column maps a match field to its token_records column.
// MatchField is a closed enum so interpolating it into SQL is safe.
func column(field MatchField) string {
	return string(field)
}

// GetRecordByMint retrieves a record by its mint address
func (s *pgStore) GetRecordByMint(ctx context.Context, mint string) (*schema.TokenRecord, error) {
	var record schema.TokenRecord
	err := s.db.WithContext(ctx).Where("mint = ?", mint).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &record, nil
}

// UpsertRecord inserts or updates a record keyed by mint
func (s *pgStore) UpsertRecord(ctx context.Context, record *schema.TokenRecord) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "mint"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"signer", "timestamp", "name", "symbol", "metadata_uri",
			"description", "image", "twitter_url", "telegram_url", "website_url",
			"duplicate_group", "duplicate_type", "updated_at",
		}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// FindMatching returns records whose field matches value case-insensitively
// within the trailing window, excluding the record being classified
func (s *pgStore) FindMatching(ctx context.Context, field MatchField, value string, excludeMint string, since time.Time) ([]*schema.TokenRecord, error) {
	var records []*schema.TokenRecord
	err := s.db.WithContext(ctx).
		Where(fmt.Sprintf("LOWER(%s) = LOWER(?)", column(field)), value).
		Where("mint <> ?", excludeMint).
		Where("timestamp > ?", since).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find matching records: %w", err)
	}
	return records, nil
}

// LatestRecords returns the most recent limit records by timestamp
func (s *pgStore) LatestRecords(ctx context.Context, limit int) ([]*schema.TokenRecord, error) {
	var records []*schema.TokenRecord
	err := s.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get latest records: %w", err)
	}
	return records, nil
}

// CountByGroup returns the number of records in a duplicate group
func (s *pgStore) CountByGroup(ctx context.Context, group int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.TokenRecord{}).
		Where("duplicate_group = ?", group).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count group members: %w", err)
	}
	return count, nil
}

// MaxGroupNumber returns the highest assigned duplicate group number
func (s *pgStore) MaxGroupNumber(ctx context.Context) (int64, error) {
	var maxGroup int64
	err := s.db.WithContext(ctx).
		Model(&schema.TokenRecord{}).
		Select("COALESCE(MAX(duplicate_group), 0)").
		Scan(&maxGroup).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get max group number: %w", err)
	}
	return maxGroup, nil
}

// NextGroupNumber allocates the next duplicate group number. The counter lives
// in key_value_store and is advanced in a single upsert statement, so two
// concurrent allocations can never observe the same value. The counter is
// seeded from the current maximum assigned group number on first use.
func (s *pgStore) NextGroupNumber(ctx context.Context) (int64, error) {
	var next int64
	err := s.db.WithContext(ctx).Raw(`
		INSERT INTO key_value_store (key, value, created_at, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(duplicate_group), 0) + 1 FROM token_records)::text, now(), now())
		ON CONFLICT (key) DO UPDATE
		SET value = ((key_value_store.value)::bigint + 1)::text, updated_at = now()
		RETURNING (value)::bigint`, groupCounterKey).
		Scan(&next).Error
	if err != nil {
		return 0, fmt.Errorf("failed to allocate group number: %w", err)
	}
	return next, nil
}

// AssignGroup rewrites the group fields of every record matching the field
// value within the window
func (s *pgStore) AssignGroup(ctx context.Context, field MatchField, value string, since time.Time, group int64, dupType domain.DuplicateType) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&schema.TokenRecord{}).
		Where(fmt.Sprintf("LOWER(%s) = LOWER(?)", column(field)), value).
		Where("timestamp > ?", since).
		Updates(map[string]interface{}{
			"duplicate_group": group,
			"duplicate_type":  dupType,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to assign group: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ClearSingletonGroups clears the group fields of single-member groups
func (s *pgStore) ClearSingletonGroups(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Exec(`
		UPDATE token_records
		SET duplicate_group = NULL, duplicate_type = NULL, updated_at = now()
		WHERE duplicate_group IN (
			SELECT duplicate_group FROM token_records
			WHERE duplicate_group IS NOT NULL
			GROUP BY duplicate_group
			HAVING COUNT(*) = 1
		)`)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear singleton groups: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ResetAnomalousGroups clears the group fields of old records in groups whose
// member count fell below 2 or exceeded the ceiling
func (s *pgStore) ResetAnomalousGroups(ctx context.Context, olderThan time.Time, ceiling int) (int64, error) {
	res := s.db.WithContext(ctx).Exec(`
		UPDATE token_records
		SET duplicate_group = NULL, duplicate_type = NULL, updated_at = now()
		WHERE timestamp < ?
		AND duplicate_group IN (
			SELECT duplicate_group FROM token_records
			WHERE duplicate_group IS NOT NULL
			GROUP BY duplicate_group
			HAVING COUNT(*) < 2 OR COUNT(*) > ?
		)`, olderThan, ceiling)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reset anomalous groups: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeExpiredRecords deletes ungrouped records older than olderThan
func (s *pgStore) PurgeExpiredRecords(ctx context.Context, olderThan time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("timestamp < ? AND duplicate_group IS NULL", olderThan).
		Delete(&schema.TokenRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge expired records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeOrphanRecords deletes records missing required descriptive fields
func (s *pgStore) PurgeOrphanRecords(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("COALESCE(name, '') = '' OR COALESCE(symbol, '') = '' OR COALESCE(metadata_uri, '') = ''").
		Delete(&schema.TokenRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge orphan records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// GetActiveCredentials returns all active feed credentials
func (s *pgStore) GetActiveCredentials(ctx context.Context) ([]schema.Credential, error) {
	var creds []schema.Credential
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at ASC").
		Find(&creds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get active credentials: %w", err)
	}
	return creds, nil
}

// DisableCredential permanently deactivates a credential
func (s *pgStore) DisableCredential(ctx context.Context, token string) error {
	err := s.db.WithContext(ctx).
		Model(&schema.Credential{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{
			"active":     false,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to disable credential: %w", err)
	}
	return nil
}

// TouchCredential bumps a credential's usage counter and last-used time
func (s *pgStore) TouchCredential(ctx context.Context, token string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).
		Model(&schema.Credential{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{
			"usage_count": gorm.Expr("usage_count + 1"),
			"last_used":   now,
			"updated_at":  now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to touch credential: %w", err)
	}
	return nil
}

// CreateMaintenanceJob inserts a job record in running state
func (s *pgStore) CreateMaintenanceJob(ctx context.Context, job *schema.MaintenanceJob) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create maintenance job: %w", err)
	}
	return nil
}

// FinalizeMaintenanceJob marks a job completed or failed with its summary
func (s *pgStore) FinalizeMaintenanceJob(ctx context.Context, id string, status schema.MaintenanceJobStatus, result []byte, errorMessage string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).
		Model(&schema.MaintenanceJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"finished_at":   now,
			"result":        datatypes.JSON(result),
			"error_message": errorMessage,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to finalize maintenance job: %w", err)
	}
	return nil
}

// GetValue retrieves a value from the key-value store
func (s *pgStore) GetValue(ctx context.Context, key string) (string, error) {
	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get value: %w", err)
	}
	return kv.Value, nil
}

// SetValue stores a value in the key-value store
func (s *pgStore) SetValue(ctx context.Context, key string, value string) error {
	kv := schema.KeyValueStore{
		Key:   key,
		Value: value,
	}
	if err := s.db.WithContext(ctx).Save(&kv).Error; err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}
	return nil
}
