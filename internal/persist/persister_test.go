package persist_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenlens/mint-indexer/internal/logger"
	"github.com/tokenlens/mint-indexer/internal/mocks"
	"github.com/tokenlens/mint-indexer/internal/persist"
	"github.com/tokenlens/mint-indexer/internal/store/schema"
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

// fakePublisher records published snapshots
type fakePublisher struct {
	published [][]*schema.TokenRecord
	err       error
}

func (p *fakePublisher) PublishRecordsUpdate(ctx context.Context, records []*schema.TokenRecord) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, records)
	return nil
}

func (p *fakePublisher) Close() {}

func TestPersister_UpsertsAndNotifies(t *testing.T) {
	var upserted []*schema.TokenRecord
	latest := []*schema.TokenRecord{{Mint: "mint-1"}, {Mint: "mint-2"}}
	var limitSeen int

	st := &mocks.Store{
		UpsertRecordFn: func(ctx context.Context, record *schema.TokenRecord) error {
			upserted = append(upserted, record)
			return nil
		},
		LatestRecordsFn: func(ctx context.Context, limit int) ([]*schema.TokenRecord, error) {
			limitSeen = limit
			return latest, nil
		},
	}
	publisher := &fakePublisher{}

	persister := persist.NewPersister(st, publisher, persist.Config{NotifyLimit: 50})
	require.NoError(t, persister.Persist(context.Background(), &schema.TokenRecord{Mint: "mint-1"}))

	require.Len(t, upserted, 1)
	assert.Equal(t, 50, limitSeen)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, latest, publisher.published[0])
}

func TestPersister_UpsertFailurePropagatesWithoutNotify(t *testing.T) {
	st := &mocks.Store{
		UpsertRecordFn: func(ctx context.Context, record *schema.TokenRecord) error {
			return errors.New("connection refused")
		},
	}
	publisher := &fakePublisher{}

	persister := persist.NewPersister(st, publisher, persist.Config{NotifyLimit: 50})
	err := persister.Persist(context.Background(), &schema.TokenRecord{Mint: "mint-1"})

	assert.ErrorContains(t, err, "failed to persist mint-1")
	assert.Empty(t, publisher.published)
}

func TestPersister_PublishFailureDoesNotFailRecord(t *testing.T) {
	st := &mocks.Store{}
	publisher := &fakePublisher{err: errors.New("nats down")}

	persister := persist.NewPersister(st, publisher, persist.Config{NotifyLimit: 50})
	assert.NoError(t, persister.Persist(context.Background(), &schema.TokenRecord{Mint: "mint-1"}))
}

func TestPersister_NilPublisherSkipsNotify(t *testing.T) {
	st := &mocks.Store{
		LatestRecordsFn: func(ctx context.Context, limit int) ([]*schema.TokenRecord, error) {
			t.Fatal("latest records must not be queried without a publisher")
			return nil, nil
		},
	}

	persister := persist.NewPersister(st, nil, persist.Config{NotifyLimit: 50})
	assert.NoError(t, persister.Persist(context.Background(), &schema.TokenRecord{Mint: "mint-1"}))
}
