package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"athensenergy/server/config"
	"athensenergy/server/internal/ingest"
	"athensenergy/server/internal/models"
	"athensenergy/server/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
	flushInterval  = time.Second
)

// MessageReader is the part of *kafkago.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Sink accepts normalized listings. It returns how many records it took
// before failing.
type Sink interface {
	Submit(records []models.PropertyRecord) (int, error)
}

// Consumer reads raw listings from a Kafka topic, normalizes them and hands
// batches to the ingestion sink. Offsets are committed once a batch is
// accepted.
type Consumer struct {
	reader    MessageReader
	sink      Sink
	logger    *logrus.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	batchSize int
}

// NewConsumer creates a consumer group reader for the configured topic.
func NewConsumer(cfg *config.Config, sink Sink, logger *logrus.Logger, metrics *observability.Metrics) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(reader, sink, logger, metrics, cfg.Kafka.BatchSize)
}

func newConsumer(reader MessageReader, sink Sink, logger *logrus.Logger, metrics *observability.Metrics, batchSize int) *Consumer {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Consumer{
		reader:    reader,
		sink:      sink,
		logger:    logger,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
		batchSize: batchSize,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.WithField("batch_size", c.batchSize).Info("Kafka consumer started")
	backoff := initialBackoff

	for {
		msgs, err := c.fetchBatch(ctx)
		if len(msgs) > 0 {
			if !c.handleBatch(ctx, msgs) {
				return nil
			}
			backoff = initialBackoff
		}

		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Kafka consumer stopping")
				return nil
			}
			c.logger.WithError(err).Error("Failed to fetch Kafka message")
			if !c.wait(ctx, &backoff) {
				return nil
			}
		}
	}
}

// fetchBatch blocks for the first message, then collects more until the batch
// is full or no message arrives within flushInterval.
func (c *Consumer) fetchBatch(ctx context.Context) ([]kafkago.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	msgs := []kafkago.Message{first}

	for len(msgs) < c.batchSize {
		fetchCtx, cancel := context.WithTimeout(ctx, flushInterval)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			return msgs, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// handleBatch decodes, delivers and commits one batch. It returns false when
// the consumer should stop.
func (c *Consumer) handleBatch(ctx context.Context, msgs []kafkago.Message) bool {
	records := make([]models.PropertyRecord, 0, len(msgs))
	for _, msg := range msgs {
		record, err := decodeMessage(msg)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).WithError(err).Warn("Skipping undecodable listing message")
			c.metrics.KafkaMessages.WithLabelValues("invalid").Inc()
			continue
		}
		c.metrics.KafkaMessages.WithLabelValues("decoded").Inc()
		records = append(records, record)
	}

	if !c.deliver(ctx, records) {
		return false
	}

	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		if ctx.Err() != nil {
			return false
		}
		c.logger.WithError(err).Error("Failed to commit Kafka offsets")
	}
	return true
}

// deliver retries with backoff until the sink took every record.
func (c *Consumer) deliver(ctx context.Context, records []models.PropertyRecord) bool {
	backoff := initialBackoff
	for len(records) > 0 {
		n, err := c.sink.Submit(records)
		records = records[n:]
		if err == nil {
			return true
		}
		c.logger.WithError(err).WithField("pending", len(records)).Warn("Ingestion queue refused listings, backing off")
		if !c.wait(ctx, &backoff) {
			return false
		}
	}
	return true
}

func (c *Consumer) wait(ctx context.Context, backoff *time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(*backoff):
	}
	*backoff = min(*backoff*2, maxBackoff)
	return true
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// decodeMessage turns a message value into a normalized record. The message
// key is used as the listing id when the payload has none.
func decodeMessage(msg kafkago.Message) (models.PropertyRecord, error) {
	var raw ingest.RawListing
	if err := json.Unmarshal(msg.Value, &raw); err != nil {
		return models.PropertyRecord{}, fmt.Errorf("decode raw listing: %w", err)
	}
	if raw.ID == "" && len(msg.Key) > 0 {
		raw.ID = string(msg.Key)
	}
	return ingest.Normalize(raw), nil
}
