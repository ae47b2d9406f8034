// Package metrics exposes Prometheus counters for the attendance
// pipeline, served on /metrics by the API server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faceattend_match_attempts_total",
		Help: "Probe encodings scanned against the enrolled gallery.",
	})

	MatchHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faceattend_match_hits_total",
		Help: "Probe encodings that matched an enrolled user.",
	})

	MatchMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faceattend_match_misses_total",
		Help: "Probe encodings that matched nobody within tolerance.",
	})

	ExtractionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faceattend_extraction_failures_total",
		Help: "Images rejected because face detection found zero or many faces, or the face service failed.",
	})

	AttendanceRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faceattend_attendance_recorded_total",
		Help: "Attendance events written.",
	})

	AttendanceSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faceattend_attendance_suppressed_total",
		Help: "Attendance events suppressed as duplicates inside the cooldown window.",
	})
)
