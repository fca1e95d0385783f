package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/rotisserie/eris"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/rainfall-analysis-service/internal/config"
	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
	"github.com/couchcryptid/rainfall-analysis-service/internal/observability"
)

const (
	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces finished analysis reports to a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a Kafka producer for the configured report topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaReportTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger, metrics: metrics}
}

// Publish writes one report, retrying transient failures with backoff until
// the attempts run out or ctx ends.
func (p *Publisher) Publish(ctx context.Context, report domain.Report) error {
	msg, err := serializeReport(report)
	if err != nil {
		p.metrics.PublishErrors.Inc()
		return err
	}

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err = p.writer.WriteMessages(ctx, msg)
		if err == nil {
			p.metrics.ReportsPublished.Inc()
			return nil
		}
		if attempt == maxAttempts || ctx.Err() != nil {
			break
		}
		p.logger.Warn("publish report failed, retrying", "id", report.ID, "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	p.metrics.PublishErrors.Inc()
	return eris.Wrapf(err, "publish report %s", report.ID)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeReport marshals a Report into a Kafka message keyed by report ID.
func serializeReport(report domain.Report) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, eris.Wrap(err, "serialize analysis report")
	}
	return kafkago.Message{
		Key:   []byte(report.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "region", Value: []byte(report.Region)},
			{Key: "direction", Value: []byte(report.Anomaly.Direction)},
			{Key: "confidence", Value: []byte(report.Target.Confidence)},
			{Key: "generated_at", Value: []byte(report.GeneratedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
