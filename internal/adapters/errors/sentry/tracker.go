package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"optibooking/pkg/errors"
)

// Tracker implements error tracking via Sentry
type Tracker struct {
	hub *sentry.Hub
}

// New creates a new Sentry tracker tagged with the service release
func New(dsn string, environment string, release string) (*Tracker, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, err
	}

	return &Tracker{
		hub: sentry.CurrentHub(),
	}, nil
}

// CaptureError sends an error to Sentry
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	hub := t.scoped(ctx, tags)
	hub.CaptureException(err)
	return nil
}

// CaptureMessage sends a message to Sentry
func (t *Tracker) CaptureMessage(ctx context.Context, message string, level errors.Level, tags map[string]string) error {
	hub := t.scoped(ctx, tags)
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetLevel(convertLevel(level))
	})
	hub.CaptureMessage(message)
	return nil
}

// AddBreadcrumb adds a breadcrumb to the shared hub
func (t *Tracker) AddBreadcrumb(ctx context.Context, message string, category string, level errors.Level, data map[string]interface{}) {
	t.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Message:  message,
		Category: category,
		Level:    convertLevel(level),
		Data:     data,
	}, &sentry.BreadcrumbHint{})
}

// Flush waits up to two seconds for pending events
func (t *Tracker) Flush(ctx context.Context) error {
	if !sentry.Flush(2 * time.Second) {
		return errors.Wrap(errors.ErrTimeout, "sentry flush")
	}
	return nil
}

// scoped clones the hub so tags never leak between concurrent captures
func (t *Tracker) scoped(ctx context.Context, tags map[string]string) *sentry.Hub {
	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if jobID, ok := errors.JobIDFrom(ctx); ok {
			scope.SetTag("job_id", jobID)
		}
	})
	return hub
}

func convertLevel(level errors.Level) sentry.Level {
	switch level {
	case errors.LevelDebug:
		return sentry.LevelDebug
	case errors.LevelInfo:
		return sentry.LevelInfo
	case errors.LevelWarning:
		return sentry.LevelWarning
	case errors.LevelError:
		return sentry.LevelError
	case errors.LevelFatal:
		return sentry.LevelFatal
	default:
		return sentry.LevelInfo
	}
}
