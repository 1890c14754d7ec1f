package jetstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	natsjs "github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/tokenlens/mint-indexer/internal/adapter"
	"github.com/tokenlens/mint-indexer/internal/logger"
	"github.com/tokenlens/mint-indexer/internal/messaging"
	"github.com/tokenlens/mint-indexer/internal/store/schema"
)

// recordsUpdateSubject is the subject the dashboard push channel consumes
const recordsUpdateSubject = "records.update"

// Config holds the configuration for NATS JetStream connection
type Config struct {
	URL            string
	StreamName     string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
}

type publisher struct {
	nc adapter.NatsConn
	js adapter.JetStream
}

// recordsUpdateMessage is the notification envelope
type recordsUpdateMessage struct {
	Type string                `json:"type"`
	Data []*schema.TokenRecord `json:"data"`
}

// NewPublisher creates a new NATS JetStream publisher
func NewPublisher(ctx context.Context, cfg Config, natsJS adapter.NatsJetStream) (messaging.Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	// Make sure the notification stream exists
	if _, err := js.CreateOrUpdateStream(ctx, natsjs.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{recordsUpdateSubject},
		// Subscribers only care about the most recent snapshot
		MaxMsgsPerSubject: 1,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.StreamName, err)
	}

	return &publisher{nc: nc, js: js}, nil
}

// PublishRecordsUpdate publishes the latest records snapshot
func (p *publisher) PublishRecordsUpdate(ctx context.Context, records []*schema.TokenRecord) error {
	msg := recordsUpdateMessage{
		Type: "recordsUpdate",
		Data: records,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal records update: %w", err)
	}

	if _, err := p.js.Publish(ctx, recordsUpdateSubject, data); err != nil {
		return fmt.Errorf("failed to publish records update: %w", err)
	}

	return nil
}

// Close closes the connection
func (p *publisher) Close() {
	p.nc.Close()
}
