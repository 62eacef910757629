// Package kafka publishes forecast payloads to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/wildfire-risk-etl/internal/config"
	"github.com/couchcryptid/wildfire-risk-etl/internal/output"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces forecast payloads to a Kafka topic.
// It implements pipeline.PayloadSink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string {
	return "kafka"
}

// Publish writes one payload message keyed by forecast date, so reruns for
// the same day land on the same partition.
func (w *Writer) Publish(ctx context.Context, p output.Payload) error {
	msg, err := serializeToMessage(p)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	w.logger.Debug("payload published", "topic", w.writer.Topic, "bytes", len(msg.Value))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a payload into a Kafka message.
func serializeToMessage(p output.Payload) (kafkago.Message, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize payload: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(p.ForecastDate.Format(time.DateOnly)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "scorer", Value: []byte(p.Scorer)},
			{Key: "generated_at", Value: []byte(p.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
