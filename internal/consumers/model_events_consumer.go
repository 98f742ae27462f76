package consumers

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"optibooking/internal/events"
	"optibooking/internal/ml/pricing"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
)

// MessageReader is the part of the Kafka consumer this package reads from
type MessageReader interface {
	ReadMessageWithShutdownCheck(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ModelReloader swaps in the persisted model
type ModelReloader interface {
	ReloadModel(ctx context.Context) (*pricing.Model, error)
}

// ModelEventsConsumer reloads the model when another replica publishes model.trained
type ModelEventsConsumer struct {
	consumer MessageReader
	reloader ModelReloader
	instance string
	log      *logger.Logger
}

// NewModelEventsConsumer creates a new model events consumer.
// Events whose source equals instance are skipped since this replica already installed that model.
func NewModelEventsConsumer(consumer MessageReader, reloader ModelReloader, instance string, log *logger.Logger) *ModelEventsConsumer {
	return &ModelEventsConsumer{
		consumer: consumer,
		reloader: reloader,
		instance: instance,
		log:      log.With("component", "model_events_consumer"),
	}
}

// Start consumes until ctx is cancelled
func (c *ModelEventsConsumer) Start(ctx context.Context) error {
	c.log.Info("Starting model events consumer...")

	defer func() {
		if err := c.consumer.Close(); err != nil {
			c.log.Errorw("Failed to close model events consumer", "error", err)
		}
	}()

	for {
		msg, err := c.consumer.ReadMessageWithShutdownCheck(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Model events consumer stopped (context cancelled)")
				return nil
			}
			c.log.Errorw("Failed to read message", "error", err)
			continue
		}

		if err := c.handle(ctx, msg.Value); err != nil {
			c.log.Errorw("Failed to process model event", "error", err, "offset", msg.Offset)
		}
	}
}

func (c *ModelEventsConsumer) handle(ctx context.Context, data []byte) error {
	var event events.ModelTrained
	if err := json.Unmarshal(data, &event); err != nil {
		return errors.Wrap(err, "decode model event")
	}
	if event.Type != events.TypeModelTrained {
		c.log.Debugw("Unknown event type, skipping", "type", event.Type)
		return nil
	}
	if event.Source == c.instance {
		return nil
	}

	m, err := c.reloader.ReloadModel(ctx)
	if err != nil {
		return errors.Wrapf(err, "reload model %s", event.ModelVersion)
	}

	if m.Version.String() != event.ModelVersion {
		// the artifact was overwritten again after the event; a later event will follow
		c.log.Infow("Reloaded model differs from event", "event_version", event.ModelVersion, "loaded_version", m.Version)
	}
	return nil
}
