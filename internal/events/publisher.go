package events

import (
	"context"
	"time"

	"optibooking/internal/adapters/kafka"
	"optibooking/internal/services/ingestion"
	"optibooking/pkg/logger"
)

// publishTimeout bounds a single publish so a slow broker cannot stall the ingestion worker
const publishTimeout = 5 * time.Second

// Producer is the part of the Kafka producer the publisher needs
type Producer interface {
	Publish(ctx context.Context, topic string, key string, event any) error
}

// Publisher turns ingestion job transitions into Kafka events
type Publisher struct {
	producer Producer
	source   string
	log      *logger.Logger
}

var _ ingestion.Notifier = (*Publisher)(nil)

// NewPublisher creates a publisher; source identifies this instance in every event
func NewPublisher(producer Producer, source string, log *logger.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		source:   source,
		log:      log.With("component", "event_publisher"),
	}
}

// Notify publishes events for terminal job states and ignores the rest
func (p *Publisher) Notify(ctx context.Context, job ingestion.Job) {
	switch job.Status {
	case ingestion.StatusCompleted:
		if job.Kind == ingestion.KindUpload {
			p.publish(ctx, kafka.TopicStaysIngested, job.ID.String(), StaysIngested{
				Base:     NewBase(TypeStaysIngested, p.source),
				JobID:    job.ID.String(),
				Filename: job.Filename,
				Rows:     job.Rows,
			})
		}
		p.publish(ctx, kafka.TopicModelTrained, job.ModelVersion, ModelTrained{
			Base:         NewBase(TypeModelTrained, p.source),
			JobID:        job.ID.String(),
			ModelVersion: job.ModelVersion,
			Samples:      job.Samples,
			OOBRMSE:      job.OOBRMSE,
		})
	case ingestion.StatusFailed:
		p.publish(ctx, kafka.TopicIngestionFailed, job.ID.String(), IngestionFailed{
			Base:     NewBase(TypeIngestionFailed, p.source),
			JobID:    job.ID.String(),
			Kind:     string(job.Kind),
			Filename: job.Filename,
			Error:    job.Error,
		})
	}
}

func (p *Publisher) publish(ctx context.Context, topic, key string, event any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.producer.Publish(ctx, topic, key, event); err != nil {
		p.log.Warnw("Event not published", "topic", topic, "key", key, "error", err)
	}
}
