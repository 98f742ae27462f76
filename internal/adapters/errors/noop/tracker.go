package noop

import (
	"context"
	"sync/atomic"

	"optibooking/pkg/errors"
)

// Tracker drops events instead of sending them anywhere. It still counts
// what it was handed so local runs and tests can see that reporting fired.
type Tracker struct {
	errors   atomic.Int64
	messages atomic.Int64
}

var _ errors.Tracker = (*Tracker)(nil)

func New() *Tracker {
	return &Tracker{}
}

func (t *Tracker) CaptureError(_ context.Context, err error, _ map[string]string) error {
	if err != nil {
		t.errors.Add(1)
	}
	return nil
}

func (t *Tracker) CaptureMessage(context.Context, string, errors.Level, map[string]string) error {
	t.messages.Add(1)
	return nil
}

func (t *Tracker) AddBreadcrumb(context.Context, string, string, errors.Level, map[string]interface{}) {
}

func (t *Tracker) Flush(context.Context) error {
	return nil
}

// Captured returns how many errors and messages were dropped
func (t *Tracker) Captured() (errs, messages int64) {
	return t.errors.Load(), t.messages.Load()
}
