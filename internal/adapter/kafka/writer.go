package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrasense/article-enricher/internal/config"
	"github.com/patrasense/article-enricher/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes enriched records to the sink topic for downstream
// consumers that prefer a stream over polling the read API.
// It implements pipeline.SinkPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured enriched topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaEnrichedTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishBatch serializes and publishes multiple enriched articles in a
// single WriteMessages call for efficiency.
func (w *Writer) PublishBatch(ctx context.Context, records []domain.EnrichedArticle) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an EnrichedArticle into a Kafka message
// keyed by source URL, so re-published records land on the same partition.
func serializeToMessage(record domain.EnrichedArticle) (kafkago.Message, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize enriched article: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(record.SourceURL),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "relevancy", Value: []byte(record.Relevancy)},
			{Key: "enriched_at", Value: []byte(record.EnrichedAt.Format(time.RFC3339))},
		},
	}, nil
}
