package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/wastewater-ingest/internal/config"
	"github.com/couchcryptid/wastewater-ingest/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes trend reports to a Kafka topic, one message per
// (location, pathogen) pair. It implements pipeline.Notifier.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured trend topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTrendTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Name returns the sink identifier.
func (w *Writer) Name() string { return "kafka" }

// Notify serializes every trend in note and publishes them in a single
// WriteMessages call.
func (w *Writer) Notify(ctx context.Context, note domain.TrendNotification) error {
	if len(note.Trends) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(note.Trends))
	for i := range note.Trends {
		msg, err := serializeToMessage(note, note.Trends[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish trends: %w", err)
	}
	w.logger.Debug("trends published", "run_id", note.RunID, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals one TrendReport into a Kafka message keyed by
// its pair, so reports for a pair stay on one partition.
func serializeToMessage(note domain.TrendNotification, report domain.TrendReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize trend report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.Location + "|" + report.PathogenTarget),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(note.RunID)},
			{Key: "generated_at", Value: []byte(note.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
