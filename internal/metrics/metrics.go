// Package metrics exposes Prometheus counters for the encoder loop, the
// tuner and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Encoder metrics
	EncoderReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "globeradio",
		Subsystem: "encoder",
		Name:      "reads_total",
		Help:      "Encoder polls by result (ok, parity, error, timeout, busy)",
	}, []string{"result"})

	EncoderReadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "globeradio",
		Subsystem: "encoder",
		Name:      "read_duration_seconds",
		Help:      "Time spent reading both encoders",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})

	EncoderConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "globeradio",
		Subsystem: "encoder",
		Name:      "connected",
		Help:      "1 while the encoder provider is connected",
	})

	// Tuner metrics
	TunerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "globeradio",
		Subsystem: "tuner",
		Name:      "state",
		Help:      "1 for the tuner's current state",
	}, []string{"state"})

	LatchTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "globeradio",
		Subsystem: "tuner",
		Name:      "latch_transitions_total",
		Help:      "Latch events (latched, released)",
	}, []string{"event"})

	StationsFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "globeradio",
		Subsystem: "tuner",
		Name:      "stations_found",
		Help:      "Stations resolved per search",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	})

	PlayerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "globeradio",
		Subsystem: "player",
		Name:      "errors_total",
		Help:      "Failed play or stop commands",
	})

	// Index metrics
	IndexCells = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "globeradio",
		Subsystem: "index",
		Name:      "cells",
		Help:      "Occupied cells in the sparse index",
	})

	IndexCollisions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "globeradio",
		Subsystem: "index",
		Name:      "collisions",
		Help:      "Cells holding more than one city",
	})

	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "globeradio",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "globeradio",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "path"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "globeradio",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})
)

// SetTunerState marks state as current and clears the others.
func SetTunerState(state string, all ...string) {
	for _, s := range all {
		TunerState.WithLabelValues(s).Set(0)
	}
	TunerState.WithLabelValues(state).Set(1)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request metrics. path is the route pattern, so the
// label set stays bounded.
func Middleware(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
