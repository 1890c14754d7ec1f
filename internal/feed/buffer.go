package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tokenlens/mint-indexer/internal/adapter"
	"github.com/tokenlens/mint-indexer/internal/domain"
	"github.com/tokenlens/mint-indexer/internal/logger"
)

// BatchHandler receives a drained batch of raw events
type BatchHandler func(ctx context.Context, events []domain.TokenCreationEvent)

// BufferConfig holds configuration for the ingest buffer
type BufferConfig struct {
	// BatchSize is the maximum number of events flushed per tick
	BatchSize int
	// FlushInterval is the fixed drain interval
	FlushInterval time.Duration
}

// IngestBuffer converts bursty individual feed messages into fixed-size,
// rate-shaped batches. Events are appended in arrival order; a periodic timer
// drains up to BatchSize events per tick and leaves the remainder for the
// next tick. No event is dropped for capacity reasons.
type IngestBuffer struct {
	mu      sync.Mutex
	events  []domain.TokenCreationEvent
	closed  bool
	config  BufferConfig
	handler BatchHandler
	clock   adapter.Clock
}

// NewIngestBuffer creates an ingest buffer that hands batches to handler
func NewIngestBuffer(config BufferConfig, clock adapter.Clock, handler BatchHandler) *IngestBuffer {
	return &IngestBuffer{
		config:  config,
		handler: handler,
		clock:   clock,
	}
}

// Push appends a raw event to the buffer
func (b *IngestBuffer) Push(event domain.TokenCreationEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return domain.ErrBufferClosed
	}
	b.events = append(b.events, event)
	return nil
}

// Len returns the number of buffered events
func (b *IngestBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Run drains the buffer on the flush interval until ctx is done.
// The flush timer stops with the context, so closing the owning connection
// stops batching as well.
func (b *IngestBuffer) Run(ctx context.Context) {
	ticker := b.clock.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	logger.InfoCtx(ctx, "Ingest buffer started",
		zap.Int("batch_size", b.config.BatchSize),
		zap.Duration("flush_interval", b.config.FlushInterval))

	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.closed = true
			remaining := len(b.events)
			b.mu.Unlock()
			logger.InfoCtx(ctx, "Ingest buffer stopped", zap.Int("remaining", remaining))
			return
		case <-ticker.Chan():
			if batch := b.drain(); len(batch) > 0 {
				b.handler(ctx, batch)
			}
		}
	}
}

// drain removes and returns up to BatchSize events from the head of the buffer
func (b *IngestBuffer) drain() []domain.TokenCreationEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return nil
	}

	n := b.config.BatchSize
	if n > len(b.events) {
		n = len(b.events)
	}

	batch := make([]domain.TokenCreationEvent, n)
	copy(batch, b.events[:n])
	b.events = b.events[n:]
	return batch
}
