package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"optibooking/internal/adapters/errors/noop"
	"optibooking/pkg/errors"
)

type recordingTracker struct {
	noop.Tracker
	tags []map[string]string
}

func (r *recordingTracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	r.tags = append(r.tags, tags)
	return r.Tracker.CaptureError(ctx, err, tags)
}

func TestErrorForwarding(t *testing.T) {
	tracker := &recordingTracker{}
	log := Nop().WithTracker(tracker).With("component", "ingestion")

	log.Info("not forwarded")
	log.Errorw("parse failed", "row", 3)
	log.ErrorWithContext(errors.WithJobID(context.Background(), "job-1"), errors.ErrParse, map[string]string{"stage": "parse"})

	errs, _ := tracker.Captured()
	assert.Equal(t, int64(2), errs)
	assert.Equal(t, map[string]string{"component": "ingestion"}, tracker.tags[0])
	assert.Equal(t, map[string]string{"component": "ingestion", "stage": "parse", "job_id": "job-1"}, tracker.tags[1])
}

func TestWith_KeepsComponentTag(t *testing.T) {
	tracker := &recordingTracker{}
	log := Nop().WithTracker(tracker)

	log.Error("boom")
	log.With("component", "forecast").With("request_id", "r").Errorf("boom %d", 2)

	assert.Equal(t, "logger", tracker.tags[0]["component"])
	assert.Equal(t, "forecast", tracker.tags[1]["component"])
}
