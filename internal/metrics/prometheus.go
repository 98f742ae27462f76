package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optibooking_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optibooking_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "optibooking_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Ingestion metrics
	IngestionJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optibooking_ingestion_jobs_total",
			Help: "Total number of ingestion jobs by outcome",
		},
		[]string{"status"}, // status: completed|failed|rejected
	)

	IngestionRows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "optibooking_ingestion_rows_total",
			Help: "Total number of stay rows stored by ingestion",
		},
	)

	IngestionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optibooking_ingestion_duration_seconds",
			Help:    "Duration of one parse-store-train cycle",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// Training metrics
	TrainingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optibooking_training_runs_total",
			Help: "Total number of model trainings",
		},
		[]string{"status"}, // status: success|error
	)

	TrainingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optibooking_training_duration_seconds",
			Help:    "Model training duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	ModelOOBRMSE = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "optibooking_model_oob_rmse",
			Help: "Out-of-bag RMSE of the current model",
		},
	)

	ModelSamples = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "optibooking_model_samples",
			Help: "Number of stays the current model was trained on",
		},
	)

	// Prediction metrics
	Predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optibooking_predictions_total",
			Help: "Total number of forecast requests",
		},
		[]string{"status"}, // status: success|error|cached
	)

	PredictionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optibooking_prediction_latency_seconds",
			Help:    "Forecast request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	PredictedDays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "optibooking_predicted_days_total",
			Help: "Total number of daily prices produced",
		},
	)

	PredictionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "optibooking_predictions_in_flight",
			Help: "Forecast requests currently running",
		},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optibooking_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"},
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optibooking_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"database", "operation"},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optibooking_kafka_messages_total",
			Help: "Total Kafka messages",
		},
		[]string{"topic", "direction"}, // direction: produced|consumed
	)

	StreamConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "optibooking_stream_connections",
			Help: "Open status stream websocket connections",
		},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	// Worker metrics
	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	// Ingestion metrics
	prometheus.MustRegister(IngestionJobs)
	prometheus.MustRegister(IngestionRows)
	prometheus.MustRegister(IngestionDuration)

	// Training metrics
	prometheus.MustRegister(TrainingRuns)
	prometheus.MustRegister(TrainingDuration)
	prometheus.MustRegister(ModelOOBRMSE)
	prometheus.MustRegister(ModelSamples)

	// Prediction metrics
	prometheus.MustRegister(Predictions)
	prometheus.MustRegister(PredictionLatency)
	prometheus.MustRegister(PredictedDays)
	prometheus.MustRegister(PredictionsInFlight)

	// Database metrics
	prometheus.MustRegister(DBQueries)
	prometheus.MustRegister(DBQueryDuration)

	// System metrics
	prometheus.MustRegister(KafkaMessages)
	prometheus.MustRegister(StreamConnections)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	WorkerExecutions.WithLabelValues(worker, status(err)).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordIngestion records the outcome of one ingestion job
func RecordIngestion(outcome string, rows int, duration time.Duration) {
	IngestionJobs.WithLabelValues(outcome).Inc()
	if rows > 0 {
		IngestionRows.Add(float64(rows))
	}
	if duration > 0 {
		IngestionDuration.Observe(duration.Seconds())
	}
}

// RecordTraining records a training run; samples and rmse are only applied on success
func RecordTraining(duration time.Duration, samples int, oobRMSE float64, err error) {
	TrainingRuns.WithLabelValues(status(err)).Inc()
	TrainingDuration.Observe(duration.Seconds())
	if err == nil {
		ModelSamples.Set(float64(samples))
		ModelOOBRMSE.Set(oobRMSE)
	}
}

// RecordPrediction records one forecast request
func RecordPrediction(latency time.Duration, days int, cached bool, err error) {
	s := status(err)
	if cached && err == nil {
		s = "cached"
	}
	Predictions.WithLabelValues(s).Inc()
	PredictionLatency.Observe(latency.Seconds())
	if days > 0 {
		PredictedDays.Add(float64(days))
	}
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	DBQueries.WithLabelValues(database, operation, status(err)).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
