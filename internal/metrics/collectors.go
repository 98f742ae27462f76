package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"optibooking/pkg/logger"
)

// StayCounter reports the size of the stay store
type StayCounter interface {
	Count(ctx context.Context) (int, error)
}

// ModelState reports what the forecaster currently serves
type ModelState interface {
	ModelTrainedAt() (time.Time, bool)
	ListRoomTypes() []string
}

// QueueState reports the ingestion backlog
type QueueState interface {
	QueueDepth() int
}

// CustomCollector reads gauges from the live service on every scrape
type CustomCollector struct {
	log   *logger.Logger
	stays StayCounter
	model ModelState
	queue QueueState

	totalStays *prometheus.Desc
	modelAge   *prometheus.Desc
	roomTypes  *prometheus.Desc
	queueDepth *prometheus.Desc
}

// NewCustomCollector creates a new custom metrics collector. queue may be nil.
func NewCustomCollector(log *logger.Logger, stays StayCounter, model ModelState, queue QueueState) *CustomCollector {
	return &CustomCollector{
		log:   log,
		stays: stays,
		model: model,
		queue: queue,

		totalStays: prometheus.NewDesc(
			"optibooking_stays_total",
			"Number of stay records in the store",
			nil, nil,
		),
		modelAge: prometheus.NewDesc(
			"optibooking_model_age_seconds",
			"Seconds since the serving model was trained",
			nil, nil,
		),
		roomTypes: prometheus.NewDesc(
			"optibooking_room_types",
			"Number of observed room types",
			nil, nil,
		),
		queueDepth: prometheus.NewDesc(
			"optibooking_ingestion_queue_depth",
			"Jobs waiting in the ingestion queue",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalStays
	ch <- c.modelAge
	ch <- c.roomTypes
	ch <- c.queueDepth
}

// Collect implements prometheus.Collector
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if n, err := c.stays.Count(ctx); err != nil {
		c.log.Warnw("Failed to collect stay count metric", "error", err)
	} else {
		ch <- prometheus.MustNewConstMetric(c.totalStays, prometheus.GaugeValue, float64(n))
	}

	// no sample at all until a model exists
	if trainedAt, ok := c.model.ModelTrainedAt(); ok {
		ch <- prometheus.MustNewConstMetric(c.modelAge, prometheus.GaugeValue, time.Since(trainedAt).Seconds())
	}

	ch <- prometheus.MustNewConstMetric(c.roomTypes, prometheus.GaugeValue, float64(len(c.model.ListRoomTypes())))

	if c.queue != nil {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(c.queue.QueueDepth()))
	}
}

// RegisterCustomCollector registers the custom collector
func RegisterCustomCollector(collector *CustomCollector) {
	prometheus.MustRegister(collector)
}
