package messaging

import (
	"context"

	"github.com/tokenlens/mint-indexer/internal/store/schema"
)

// Publisher defines the interface for pushing record updates to downstream
// subscribers (the dashboard push channel). Delivery is fire-and-forget.
type Publisher interface {
	// PublishRecordsUpdate publishes the latest records snapshot
	PublishRecordsUpdate(ctx context.Context, records []*schema.TokenRecord) error
	// Close closes the connection
	Close()
}
