// Package kafka adapts the pipeline's extractor and sink interfaces to
// Kafka topics via segmentio/kafka-go.
package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrasense/article-enricher/internal/config"
	"github.com/patrasense/article-enricher/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes raw scraped articles from the source topic.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	flushInterval time.Duration
	logger        *slog.Logger
}

// NewReader creates a consumer-group reader for the articles topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaArticlesTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Reader{
		reader:        r,
		flushInterval: cfg.BatchFlushInterval,
		logger:        logger,
	}
}

// ExtractBatch blocks for the first available message, then keeps
// fetching until batchSize messages are buffered or the flush interval
// elapses. Offsets are committed per message via the Commit callback,
// after the article has been handled.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawArticle, error) {
	first, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}

	msgs := make([]kafkago.Message, 0, batchSize)
	msgs = append(msgs, first)

	flushCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()

	for len(msgs) < batchSize {
		msg, err := r.reader.FetchMessage(flushCtx)
		if err != nil {
			// Deadline or cancellation ends the batch; buffered messages
			// are still returned.
			break
		}
		msgs = append(msgs, msg)
	}

	batch := make([]domain.RawArticle, len(msgs))
	for i, msg := range msgs {
		batch[i] = r.mapMessage(msg)
	}
	return batch, nil
}

// Close shuts down the underlying consumer-group reader.
func (r *Reader) Close() error {
	return r.reader.Close()
}

func (r *Reader) mapMessage(msg kafkago.Message) domain.RawArticle {
	raw := mapMessageToRawArticle(msg)
	raw.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return raw
}

// mapMessageToRawArticle copies message fields into the domain type.
func mapMessageToRawArticle(msg kafkago.Message) domain.RawArticle {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawArticle{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
