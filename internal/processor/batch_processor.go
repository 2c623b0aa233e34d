package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"athensenergy/server/config"
	"athensenergy/server/internal/database"
	"athensenergy/server/internal/models"
	"athensenergy/server/internal/observability"
	"athensenergy/server/internal/queue"
)

var ErrProcessorStopped = errors.New("batch processor stopped")

// Store is the transactional part of *gorm.DB the processor needs.
type Store interface {
	Transaction(fc func(*gorm.DB) error, opts ...*sql.TxOptions) error
}

// BatchProcessor persists listing batches taken from the queue
type BatchProcessor struct {
	db      Store
	logger  *logrus.Logger
	config  *config.Config
	queue   *queue.ListingQueue
	metrics *observability.Metrics
	clock   clockwork.Clock
	start   sync.Once
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewBatchProcessor creates a new batch processor instance
func NewBatchProcessor(db Store, queue *queue.ListingQueue, config *config.Config, logger *logrus.Logger, metrics *observability.Metrics) *BatchProcessor {
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		db:      db,
		queue:   queue,
		config:  config,
		logger:  logger,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the queue and starts its processing loop
func (p *BatchProcessor) Start() {
	p.start.Do(func() {
		p.queue.Subscribe(p.processBatch)
		p.queue.Start()
	})
}

// Stop aborts pending retries, then flushes and closes the queue
func (p *BatchProcessor) Stop() {
	p.cancel()
	p.queue.Close()
}

// Submit splits records into batches of at most MaxBatchSize and queues them.
// It returns the number of records accepted before the first failed push.
func (p *BatchProcessor) Submit(records []models.PropertyRecord) (int, error) {
	size := p.config.BatchProcessing.MaxBatchSize
	if size <= 0 {
		size = len(records)
	}

	accepted := 0
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		if err := p.queue.Push(records[start:end:end]); err != nil {
			p.metrics.QueueDepth.Set(float64(p.queue.Len()))
			return accepted, fmt.Errorf("failed to queue listings: %w", err)
		}
		accepted = end
	}
	p.metrics.QueueDepth.Set(float64(p.queue.Len()))
	return accepted, nil
}

// processBatch stores a single batch with transaction and retry logic
func (p *BatchProcessor) processBatch(batch []models.PropertyRecord) error {
	p.metrics.BatchSize.Observe(float64(len(batch)))
	defer p.metrics.QueueDepth.Set(float64(p.queue.Len()))

	attempts := max(p.config.BatchProcessing.MaxRetries, 1)
	delay := time.Duration(p.config.BatchProcessing.RetryDelay) * time.Second

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying batch processing, attempt %d of %d", attempt+1, attempts)
			select {
			case <-p.ctx.Done():
				p.metrics.BatchesProcessed.WithLabelValues("error").Inc()
				return fmt.Errorf("%w: %v", ErrProcessorStopped, err)
			case <-p.clock.After(delay):
			}
		}

		err = p.db.Transaction(func(tx *gorm.DB) error {
			if err := database.UpsertListings(tx, batch); err != nil {
				return fmt.Errorf("failed to upsert listings batch: %w", err)
			}
			return nil
		})

		if err == nil {
			p.metrics.BatchesProcessed.WithLabelValues("success").Inc()
			p.metrics.ListingsIngested.Add(float64(len(batch)))
			p.logger.Infof("Successfully processed batch of %d listings", len(batch))
			return nil
		}

		p.logger.Errorf("Batch processing failed: %v", err)
	}

	p.metrics.BatchesProcessed.WithLabelValues("error").Inc()
	return fmt.Errorf("failed to process batch after %d attempts: %w", attempts, err)
}
