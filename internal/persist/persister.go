package persist

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tokenlens/mint-indexer/internal/logger"
	"github.com/tokenlens/mint-indexer/internal/messaging"
	"github.com/tokenlens/mint-indexer/internal/store"
	"github.com/tokenlens/mint-indexer/internal/store/schema"
)

// Config holds configuration for the persister
type Config struct {
	// NotifyLimit is how many latest records each notification carries
	NotifyLimit int
}

// Persister upserts finished records and publishes a latest-N snapshot to
// downstream subscribers after every write. Notification delivery is
// fire-and-forget: a publish failure never fails the record.
type Persister struct {
	store     store.Store
	publisher messaging.Publisher
	config    Config
}

// NewPersister creates a persister
func NewPersister(st store.Store, publisher messaging.Publisher, config Config) *Persister {
	return &Persister{
		store:     st,
		publisher: publisher,
		config:    config,
	}
}

// Persist upserts the record and notifies subscribers
func (p *Persister) Persist(ctx context.Context, record *schema.TokenRecord) error {
	if err := p.store.UpsertRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to persist %s: %w", record.Mint, err)
	}

	p.notify(ctx)
	return nil
}

// notify publishes the latest records snapshot, logging failures only
func (p *Persister) notify(ctx context.Context) {
	if p.publisher == nil {
		return
	}

	records, err := p.store.LatestRecords(ctx, p.config.NotifyLimit)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to load latest records for notification", zap.Error(err))
		return
	}

	if err := p.publisher.PublishRecordsUpdate(ctx, records); err != nil {
		logger.WarnCtx(ctx, "Failed to publish records update", zap.Error(err))
	}
}
