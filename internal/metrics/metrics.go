// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faceswap_jobs_total",
		Help: "Total number of jobs finished, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "faceswap_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faceswap_frames_processed_total",
		Help: "Total number of frames processed, by processor",
	}, []string{"processor"})

	FrameFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faceswap_frame_failures_total",
		Help: "Total number of frames a processor failed on and left untouched",
	}, []string{"processor"})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "faceswap_active_jobs",
		Help: "Number of jobs currently running",
	})
)
