// Package metrics defines the Prometheus instruments exported by the
// training engine. promauto registers everything on the default registry, so
// importing the package is all the wiring a caller needs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal counts gradient updates, labeled by worker id ("all" for
	// the nodeMovie and edgeMovie baselines).
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "katana_sgd_updates_total",
			Help: "Total number of gradient updates applied",
		},
		[]string{"worker"},
	)

	// LockConflictsTotal counts failed non-blocking slice-lock acquisitions
	// in the marching executor, labeled by worker id.
	LockConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "katana_sgd_lock_conflicts_total",
			Help: "Total number of slice lock conflicts in the march executor",
		},
		[]string{"worker"},
	)

	// RMSE tracks the most recent root-mean-square error measurement.
	RMSE = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "katana_sgd_rmse",
			Help: "Root mean square error of the current factorization",
		},
	)

	// RatingsTotal reports the edge count of the loaded graph.
	RatingsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "katana_sgd_ratings_total",
			Help: "Number of ratings in the training graph",
		},
	)

	// EpochDuration measures full epoch wall times.
	EpochDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "katana_sgd_epoch_duration_seconds",
			Help: "Duration of training epochs in seconds",
			// Epochs range from milliseconds on toy graphs to minutes on
			// full MovieLens/Netflix-sized inputs.
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 1200},
		},
	)
)
