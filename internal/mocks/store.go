// Package mocks provides hand-written test doubles for the interfaces of the
// pipeline. Each double exposes one function field per method; a nil field
// means the method succeeds with zero values.
package mocks

import (
	"context"
	"time"

	"github.com/tokenlens/mint-indexer/internal/domain"
	"github.com/tokenlens/mint-indexer/internal/store"
	"github.com/tokenlens/mint-indexer/internal/store/schema"
)

// Store is a configurable store.Store double
type Store struct {
	GetRecordByMintFn        func(ctx context.Context, mint string) (*schema.TokenRecord, error)
	UpsertRecordFn           func(ctx context.Context, record *schema.TokenRecord) error
	FindMatchingFn           func(ctx context.Context, field store.MatchField, value string, excludeMint string, since time.Time) ([]*schema.TokenRecord, error)
	LatestRecordsFn          func(ctx context.Context, limit int) ([]*schema.TokenRecord, error)
	CountByGroupFn           func(ctx context.Context, group int64) (int64, error)
	MaxGroupNumberFn         func(ctx context.Context) (int64, error)
	NextGroupNumberFn        func(ctx context.Context) (int64, error)
	AssignGroupFn            func(ctx context.Context, field store.MatchField, value string, since time.Time, group int64, dupType domain.DuplicateType) (int64, error)
	ClearSingletonGroupsFn   func(ctx context.Context) (int64, error)
	ResetAnomalousGroupsFn   func(ctx context.Context, olderThan time.Time, ceiling int) (int64, error)
	PurgeExpiredRecordsFn    func(ctx context.Context, olderThan time.Time) (int64, error)
	PurgeOrphanRecordsFn     func(ctx context.Context) (int64, error)
	GetActiveCredentialsFn   func(ctx context.Context) ([]schema.Credential, error)
	DisableCredentialFn      func(ctx context.Context, token string) error
	TouchCredentialFn        func(ctx context.Context, token string) error
	CreateMaintenanceJobFn   func(ctx context.Context, job *schema.MaintenanceJob) error
	FinalizeMaintenanceJobFn func(ctx context.Context, id string, status schema.MaintenanceJobStatus, result []byte, errorMessage string) error
	GetValueFn               func(ctx context.Context, key string) (string, error)
	SetValueFn               func(ctx context.Context, key string, value string) error
}

var _ store.Store = (*Store)(nil)

func (s *Store) GetRecordByMint(ctx context.Context, mint string) (*schema.TokenRecord, error) {
	if s.GetRecordByMintFn != nil {
		return s.GetRecordByMintFn(ctx, mint)
	}
	return nil, nil
}

func (s *Store) UpsertRecord(ctx context.Context, record *schema.TokenRecord) error {
	if s.UpsertRecordFn != nil {
		return s.UpsertRecordFn(ctx, record)
	}
	return nil
}

func (s *Store) FindMatching(ctx context.Context, field store.MatchField, value string, excludeMint string, since time.Time) ([]*schema.TokenRecord, error) {
	if s.FindMatchingFn != nil {
		return s.FindMatchingFn(ctx, field, value, excludeMint, since)
	}
	return nil, nil
}

func (s *Store) LatestRecords(ctx context.Context, limit int) ([]*schema.TokenRecord, error) {
	if s.LatestRecordsFn != nil {
		return s.LatestRecordsFn(ctx, limit)
	}
	return nil, nil
}

func (s *Store) CountByGroup(ctx context.Context, group int64) (int64, error) {
	if s.CountByGroupFn != nil {
		return s.CountByGroupFn(ctx, group)
	}
	return 0, nil
}

func (s *Store) MaxGroupNumber(ctx context.Context) (int64, error) {
	if s.MaxGroupNumberFn != nil {
		return s.MaxGroupNumberFn(ctx)
	}
	return 0, nil
}

func (s *Store) NextGroupNumber(ctx context.Context) (int64, error) {
	if s.NextGroupNumberFn != nil {
		return s.NextGroupNumberFn(ctx)
	}
	return 0, nil
}

func (s *Store) AssignGroup(ctx context.Context, field store.MatchField, value string, since time.Time, group int64, dupType domain.DuplicateType) (int64, error) {
	if s.AssignGroupFn != nil {
		return s.AssignGroupFn(ctx, field, value, since, group, dupType)
	}
	return 0, nil
}

func (s *Store) ClearSingletonGroups(ctx context.Context) (int64, error) {
	if s.ClearSingletonGroupsFn != nil {
		return s.ClearSingletonGroupsFn(ctx)
	}
	return 0, nil
}

func (s *Store) ResetAnomalousGroups(ctx context.Context, olderThan time.Time, ceiling int) (int64, error) {
	if s.ResetAnomalousGroupsFn != nil {
		return s.ResetAnomalousGroupsFn(ctx, olderThan, ceiling)
	}
	return 0, nil
}

func (s *Store) PurgeExpiredRecords(ctx context.Context, olderThan time.Time) (int64, error) {
	if s.PurgeExpiredRecordsFn != nil {
		return s.PurgeExpiredRecordsFn(ctx, olderThan)
	}
	return 0, nil
}

func (s *Store) PurgeOrphanRecords(ctx context.Context) (int64, error) {
	if s.PurgeOrphanRecordsFn != nil {
		return s.PurgeOrphanRecordsFn(ctx)
	}
	return 0, nil
}

func (s *Store) GetActiveCredentials(ctx context.Context) ([]schema.Credential, error) {
	if s.GetActiveCredentialsFn != nil {
		return s.GetActiveCredentialsFn(ctx)
	}
	return nil, nil
}

func (s *Store) DisableCredential(ctx context.Context, token string) error {
	if s.DisableCredentialFn != nil {
		return s.DisableCredentialFn(ctx, token)
	}
	return nil
}

func (s *Store) TouchCredential(ctx context.Context, token string) error {
	if s.TouchCredentialFn != nil {
		return s.TouchCredentialFn(ctx, token)
	}
	return nil
}

func (s *Store) CreateMaintenanceJob(ctx context.Context, job *schema.MaintenanceJob) error {
	if s.CreateMaintenanceJobFn != nil {
		return s.CreateMaintenanceJobFn(ctx, job)
	}
	return nil
}

func (s *Store) FinalizeMaintenanceJob(ctx context.Context, id string, status schema.MaintenanceJobStatus, result []byte, errorMessage string) error {
	if s.FinalizeMaintenanceJobFn != nil {
		return s.FinalizeMaintenanceJobFn(ctx, id, status, result, errorMessage)
	}
	return nil
}

func (s *Store) GetValue(ctx context.Context, key string) (string, error) {
	if s.GetValueFn != nil {
		return s.GetValueFn(ctx, key)
	}
	return "", nil
}

func (s *Store) SetValue(ctx context.Context, key string, value string) error {
	if s.SetValueFn != nil {
		return s.SetValueFn(ctx, key, value)
	}
	return nil
}
