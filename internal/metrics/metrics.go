// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RowsLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offerctr_rows_loaded_total",
		Help: "Interaction rows pulled through the chunked loader",
	})

	BatchesLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offerctr_batches_loaded_total",
		Help: "Chunks emitted by the loader after joining and downcasting",
	})

	BytesHeld = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "offerctr_loader_bytes_held",
		Help: "Bytes currently held against the loader memory budget",
	})

	RowsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offerctr_rows_rejected_total",
		Help: "Records routed to the reject sink, by pipeline stage",
	}, []string{"stage"})

	FitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "offerctr_fit_duration_seconds",
		Help:    "Wall time of one ensemble member fit",
		Buckets: prometheus.DefBuckets,
	})

	FitsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offerctr_fits_total",
		Help: "Ensemble member fits completed",
	})

	PredictionsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offerctr_predictions_written_total",
		Help: "Predictions flushed to the prediction sink",
	})

	RunsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offerctr_runs_total",
		Help: "Pipeline runs finished, by terminal status",
	}, []string{"status"})
)

// Init registers every pipeline metric with the default registry. Call it
// once from the entrypoint before serving or training.
func Init() {
	prometheus.MustRegister(
		RowsLoaded,
		BatchesLoaded,
		BytesHeld,
		RowsRejected,
		FitDuration,
		FitsCompleted,
		PredictionsWritten,
		RunsFinished,
	)
}

// RecordRowsLoaded counts rows emitted by the loader.
func RecordRowsLoaded(n int) {
	RowsLoaded.Add(float64(n))
}

// RecordBatchLoaded counts one emitted chunk.
func RecordBatchLoaded() {
	BatchesLoaded.Inc()
}

// UpdateBytesHeld sets the loader's current budget usage.
func UpdateBytesHeld(bytes int64) {
	BytesHeld.Set(float64(bytes))
}

// RecordRowsRejected counts records routed to the reject sink at a stage.
func RecordRowsRejected(stage string, n int) {
	RowsRejected.WithLabelValues(stage).Add(float64(n))
}

// RecordFitDuration observes one member fit's wall time in seconds.
func RecordFitDuration(seconds float64) {
	FitDuration.Observe(seconds)
	FitsCompleted.Inc()
}

// RecordPredictionsWritten counts predictions flushed to the sink.
func RecordPredictionsWritten(n int) {
	PredictionsWritten.Add(float64(n))
}

// RecordRunFinished counts a run reaching a terminal status.
func RecordRunFinished(status string) {
	RunsFinished.WithLabelValues(status).Inc()
}
