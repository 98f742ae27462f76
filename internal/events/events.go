package events

import (
	"time"

	"github.com/google/uuid"
)

// Event type names carried in Base.Type
const (
	TypeStaysIngested   = "stays.ingested"
	TypeModelTrained    = "model.trained"
	TypeIngestionFailed = "ingestion.failed"
)

const schemaVersion = "1.0"

// Base is embedded in every event
type Base struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"` // instance id of the publisher
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// NewBase creates a base event with defaults
func NewBase(eventType, source string) Base {
	return Base{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Version:   schemaVersion,
	}
}

// StaysIngested is published after an upload batch was stored
type StaysIngested struct {
	Base
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
	Rows     int    `json:"rows"`
}

// ModelTrained is published after a model was persisted and installed
type ModelTrained struct {
	Base
	JobID        string  `json:"job_id,omitempty"`
	ModelVersion string  `json:"model_version"`
	Samples      int     `json:"samples"`
	OOBRMSE      float64 `json:"oob_rmse"`
}

// IngestionFailed is published when an upload or retrain job fails
type IngestionFailed struct {
	Base
	JobID    string `json:"job_id"`
	Kind     string `json:"kind"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error"`
}
