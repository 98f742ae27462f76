package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"optibooking/internal/metrics"
	"optibooking/pkg/logger"
)

// Consumer reads one topic as part of a consumer group
type Consumer struct {
	reader *kafka.Reader
	topic  string
	log    *logger.Logger
}

// ConsumerConfig holds consumer configuration. Every replica passes its own
// GroupID so each one sees every model event.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string
	MaxWait time.Duration
}

func NewConsumer(cfg ConsumerConfig, log *logger.Logger) *Consumer {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * time.Second
	}
	log = log.With("component", "kafka_consumer", "topic", cfg.Topic)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		// model events are a few hundred bytes
		MaxBytes:       64 << 10,
		MaxWait:        cfg.MaxWait,
		CommitInterval: time.Second,
		// a fresh group has nothing to catch up on; older models are already in the artifact store
		StartOffset: kafka.LastOffset,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Warnf(msg, args...)
		}),
	})

	return &Consumer{reader: reader, topic: cfg.Topic, log: log}
}

// ReadMessageWithShutdownCheck returns ctx.Err() instead of a reader error
// once ctx is done, so callers can tell shutdown from a broken connection.
func (c *Consumer) ReadMessageWithShutdownCheck(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}

	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return kafka.Message{}, ctxErr
		}
		return kafka.Message{}, err
	}

	metrics.KafkaMessages.WithLabelValues(c.topic, "consumed").Inc()
	c.log.Debugw("Consumed", "partition", msg.Partition, "offset", msg.Offset, "bytes", len(msg.Value))
	return msg, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
