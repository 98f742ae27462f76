package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
)

type fakeStays struct {
	n   int
	err error
}

func (f fakeStays) Count(context.Context) (int, error) { return f.n, f.err }

type fakeModel struct {
	trainedAt time.Time
	types     []string
}

func (f fakeModel) ModelTrainedAt() (time.Time, bool) { return f.trainedAt, !f.trainedAt.IsZero() }
func (f fakeModel) ListRoomTypes() []string           { return f.types }

type fakeQueue int

func (q fakeQueue) QueueDepth() int { return int(q) }

func TestCustomCollector(t *testing.T) {
	c := NewCustomCollector(logger.Nop(), fakeStays{n: 1200}, fakeModel{trainedAt: time.Now().Add(-time.Hour), types: []string{"Deluxe", "Standard"}}, fakeQueue(2))

	assert.Equal(t, 4, testutil.CollectAndCount(c))

	expected := `
# HELP optibooking_stays_total Number of stay records in the store
# TYPE optibooking_stays_total gauge
optibooking_stays_total 1200
# HELP optibooking_room_types Number of observed room types
# TYPE optibooking_room_types gauge
optibooking_room_types 2
# HELP optibooking_ingestion_queue_depth Jobs waiting in the ingestion queue
# TYPE optibooking_ingestion_queue_depth gauge
optibooking_ingestion_queue_depth 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"optibooking_stays_total", "optibooking_room_types", "optibooking_ingestion_queue_depth"))
}

func TestCustomCollector_SkipsUnavailableSamples(t *testing.T) {
	c := NewCustomCollector(logger.Nop(), fakeStays{err: errors.ErrUnavailable}, fakeModel{}, nil)

	// only the room type gauge is always present
	assert.Equal(t, 1, testutil.CollectAndCount(c))
}
