package enrich

import (
	"context"
	"strings"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/tokenlens/mint-indexer/internal/domain"
	"github.com/tokenlens/mint-indexer/internal/logger"
	"github.com/tokenlens/mint-indexer/internal/store/schema"
	"github.com/tokenlens/mint-indexer/internal/uri"
)

const (
	DEFAULT_CONCURRENCY = 10
	DEFAULT_QUEUE_SIZE  = 2048
)

// Classifier assigns duplicate groups to enriched records
type Classifier interface {
	Classify(ctx context.Context, record *schema.TokenRecord) error
}

// Sink receives finished records for persistence
type Sink interface {
	Persist(ctx context.Context, record *schema.TokenRecord) error
}

// Config holds configuration for the enrichment worker
type Config struct {
	// Concurrency bounds how many events are enriched in parallel
	Concurrency int
	// QueueSize is the size of the worker task queue
	QueueSize int
}

// Worker resolves off-chain metadata for raw events and pushes the finished
// records through classification into the store. Events within a batch are
// enriched concurrently with no ordering guarantee between them.
type Worker struct {
	fetcher    uri.Fetcher
	classifier Classifier
	sink       Sink
	pool       pond.Pool
}

// NewWorker creates an enrichment worker with a bounded pool
func NewWorker(ctx context.Context, config Config, fetcher uri.Fetcher, classifier Classifier, sink Sink) *Worker {
	concurrency := config.Concurrency
	if concurrency == 0 {
		concurrency = DEFAULT_CONCURRENCY
	}
	queueSize := config.QueueSize
	if queueSize == 0 {
		queueSize = DEFAULT_QUEUE_SIZE
	}

	return &Worker{
		fetcher:    fetcher,
		classifier: classifier,
		sink:       sink,
		pool: pond.NewPool(
			concurrency,
			pond.WithQueueSize(queueSize),
			pond.WithContext(ctx),
		),
	}
}

// ProcessBatch submits every event of a batch to the pool
func (w *Worker) ProcessBatch(ctx context.Context, events []domain.TokenCreationEvent) {
	for _, event := range events {
		ev := event
		w.pool.SubmitErr(func() error {
			return w.process(ctx, ev)
		})
	}
}

// Stop drains the pool and waits for in-flight enrichments
func (w *Worker) Stop() {
	logger.Info("Stopping enrichment worker",
		zap.Uint64("submitted", w.pool.SubmittedTasks()),
		zap.Uint64("waiting", w.pool.WaitingTasks()),
		zap.Uint64("failed", w.pool.FailedTasks()))
	w.pool.StopAndWait()
}

// process enriches a single event and persists the resulting record.
// A record is never dropped over a failed metadata fetch; it proceeds with
// the enrichment fields empty.
func (w *Worker) process(ctx context.Context, event domain.TokenCreationEvent) error {
	record := w.enrich(ctx, event)

	if err := w.classifier.Classify(ctx, record); err != nil {
		// The record still gets persisted, just ungrouped
		logger.ErrorCtx(ctx, err, zap.String("mint", record.Mint))
	}

	if err := w.sink.Persist(ctx, record); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("mint", record.Mint))
		return err
	}

	return nil
}

// enrich builds the record and resolves its off-chain metadata
func (w *Worker) enrich(ctx context.Context, event domain.TokenCreationEvent) *schema.TokenRecord {
	record := &schema.TokenRecord{
		Mint:        event.MintAddress,
		Signer:      event.SignerAddress,
		Timestamp:   event.BlockTime,
		Name:        strings.TrimSpace(event.Name),
		Symbol:      strings.TrimSpace(event.Symbol),
		MetadataURI: event.MetadataURI,
	}

	cid, ok := uri.ContentPath(event.MetadataURI)
	if !ok {
		if event.MetadataURI != "" {
			logger.DebugCtx(ctx, "Metadata URI is not content-addressed, skipping fetch",
				zap.String("mint", record.Mint),
				zap.String("uri", event.MetadataURI))
		}
		return record
	}

	doc, err := w.fetcher.FetchJSON(ctx, cid)
	if err != nil {
		logger.WarnCtx(ctx, "Metadata fetch failed, persisting partial record",
			zap.String("mint", record.Mint),
			zap.Error(err))
		return record
	}

	w.applyMetadata(ctx, record, normalizeMetadata(event.MetadataURI, doc))
	return record
}

// normalizeMetadata maps the raw metadata document into its domain form
func normalizeMetadata(rawURI string, doc map[string]interface{}) domain.TokenMetadata {
	return domain.TokenMetadata{
		URI:         rawURI,
		Description: stringField(doc, "description"),
		Image:       stringField(doc, "image"),
		Social: domain.SocialLinks{
			Twitter:  stringField(doc, "twitter"),
			Telegram: stringField(doc, "telegram"),
			Website:  stringField(doc, "website"),
		},
	}
}

// applyMetadata copies the normalized metadata fields onto the record
func (w *Worker) applyMetadata(ctx context.Context, record *schema.TokenRecord, meta domain.TokenMetadata) {
	record.Description = meta.Description
	record.TwitterURL = meta.Social.Twitter
	record.TelegramURL = meta.Social.Telegram
	record.WebsiteURL = meta.Social.Website

	if meta.Image == "" {
		return
	}
	record.Image = meta.Image

	// Best-effort existence check; on success the image URL is rewritten to
	// the canonical gateway. Failure never fails the enrichment.
	cid, ok := uri.ContentPath(meta.Image)
	if !ok {
		return
	}
	canonical, err := w.fetcher.CheckExists(ctx, cid)
	if err != nil {
		logger.DebugCtx(ctx, "Image existence check failed, keeping original URL",
			zap.String("mint", record.Mint),
			zap.Error(err))
		return
	}
	record.Image = canonical
}

func stringField(doc map[string]interface{}, key string) string {
	if v, ok := doc[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
