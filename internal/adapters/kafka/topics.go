package kafka

// Topic definitions for Kafka event streaming
const (
	// Ingestion events
	TopicStaysIngested   = "stays.ingested"
	TopicIngestionFailed = "ingestion.failed"

	// Model lifecycle events; consumed by every replica to hot-swap the model
	TopicModelTrained = "model.trained"
)

// AllTopics lists every topic the service produces to
var AllTopics = []string{TopicStaysIngested, TopicIngestionFailed, TopicModelTrained}
