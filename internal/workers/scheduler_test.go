package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
)

type mockWorker struct {
	*BaseWorker
	runCount atomic.Int32
	runFunc  func(ctx context.Context) error
}

func newMockWorker(name string, interval time.Duration, enabled bool) *mockWorker {
	return &mockWorker{BaseWorker: NewBaseWorker(name, interval, enabled, logger.Nop())}
}

func (m *mockWorker) Run(ctx context.Context) error {
	m.runCount.Add(1)
	if m.runFunc != nil {
		return m.runFunc(ctx)
	}
	return nil
}

func stopScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(logger.Nop())
	w := newMockWorker("w1", 20*time.Millisecond, true)
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return w.runCount.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	stopScheduler(t, s)
	assert.False(t, s.IsRunning())
}

func TestScheduler_RunsImmediately(t *testing.T) {
	s := NewScheduler(logger.Nop())
	w := newMockWorker("hourly", time.Hour, true)
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return w.runCount.Load() == 1 }, time.Second, 5*time.Millisecond)
	stopScheduler(t, s)
}

func TestScheduler_DisabledWorker(t *testing.T) {
	s := NewScheduler(logger.Nop())
	enabled := newMockWorker("enabled", 20*time.Millisecond, true)
	disabled := newMockWorker("disabled", 20*time.Millisecond, false)
	zeroInterval := newMockWorker("zero", 0, true)
	s.RegisterWorker(enabled)
	s.RegisterWorker(disabled)
	s.RegisterWorker(zeroInterval)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return enabled.runCount.Load() > 0 }, time.Second, 5*time.Millisecond)
	stopScheduler(t, s)

	assert.Zero(t, disabled.runCount.Load())
	assert.Zero(t, zeroInterval.runCount.Load())
}

func TestScheduler_RecordsHealthAndSurvivesPanics(t *testing.T) {
	s := NewScheduler(logger.Nop())

	failing := newMockWorker("failing", time.Hour, true)
	failing.runFunc = func(context.Context) error { return errors.ErrUnavailable }
	panicking := newMockWorker("panicking", time.Hour, true)
	panicking.runFunc = func(context.Context) error { panic("boom") }

	s.RegisterWorker(failing)
	s.RegisterWorker(panicking)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		h := s.Health()
		return h["failing"].RunCount == 1 && h["panicking"].RunCount == 1
	}, time.Second, 5*time.Millisecond)
	stopScheduler(t, s)

	h := s.Health()
	assert.Equal(t, int64(1), h["failing"].ErrorCount)
	assert.Contains(t, h["failing"].LastError, "service unavailable")
	assert.Contains(t, h["panicking"].LastError, "boom")
}

func TestScheduler_StopTimesOut(t *testing.T) {
	s := NewScheduler(logger.Nop())
	release := make(chan struct{})
	w := newMockWorker("stuck", time.Hour, true)
	w.runFunc = func(context.Context) error {
		<-release
		return nil
	}
	s.RegisterWorker(w)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return w.runCount.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), errors.ErrTimeout)
	close(release)
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	assert.Error(t, NewScheduler(logger.Nop()).Stop(context.Background()))
}
