package errors

import (
	"context"
)

// Tracker defines the interface for error tracking services (Sentry, etc.)
type Tracker interface {
	// CaptureError sends an error to the tracking service
	CaptureError(ctx context.Context, err error, tags map[string]string) error

	// CaptureMessage sends a message to the tracking service
	CaptureMessage(ctx context.Context, message string, level Level, tags map[string]string) error

	// AddBreadcrumb records a step (upload received, training started) attached to later events
	AddBreadcrumb(ctx context.Context, message string, category string, level Level, data map[string]interface{})

	// Flush waits for all pending events to be sent
	Flush(ctx context.Context) error
}

// Level represents the severity level of an error or message
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// String returns the string representation of the level
func (l Level) String() string {
	return string(l)
}

type jobIDKey struct{}

// WithJobID attaches an ingestion job id to ctx so trackers can tag events with it
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

// JobIDFrom returns the ingestion job id stored by WithJobID
func JobIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(jobIDKey{}).(string)
	return id, ok && id != ""
}
