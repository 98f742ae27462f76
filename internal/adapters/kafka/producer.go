package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"

	"optibooking/internal/metrics"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
)

// Producer handles Kafka message publishing
type Producer struct {
	mu      sync.Mutex
	writers map[string]*kafka.Writer
	brokers []string
	log     *logger.Logger
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	Brokers []string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, log *logger.Logger) *Producer {
	return &Producer{
		writers: make(map[string]*kafka.Writer),
		brokers: cfg.Brokers,
		log:     log.With("component", "kafka_producer"),
	}
}

// getWriter returns or creates a writer for a topic
func (p *Producer) getWriter(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // same key, same partition
		AllowAutoTopicCreation: true,
	}

	p.writers[topic] = w
	return w
}

// Publish JSON-encodes event and sends it to a topic
func (p *Producer) Publish(ctx context.Context, topic string, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "encode event for %s", topic)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.getWriter(topic).WriteMessages(ctx, msg); err != nil {
		p.log.Errorw("Failed to publish", "topic", topic, "key", key, "error", err)
		return errors.Wrapf(err, "publish to %s", topic)
	}

	metrics.KafkaMessages.WithLabelValues(topic, "produced").Inc()
	p.log.Debugw("Published", "topic", topic, "key", key, "bytes", len(data))
	return nil
}

// Close closes all writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			p.log.Errorw("Failed to close writer", "topic", topic, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
