// Package prometheus is the Prometheus-backed implementation of
// metrics.Recorder, grounded on marmos91-dittofs/pkg/metrics/prometheus's
// S3Metrics: a registry-scoped struct of CounterVec/HistogramVec/GaugeVec
// fields built with promauto so registration happens once, at
// construction.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"a4.io/dcfs/internal/metrics"
)

type recorder struct {
	opsTotal         *prometheus.CounterVec
	opDuration       *prometheus.HistogramVec
	bytesTotal       *prometheus.CounterVec
	transfersTotal   *prometheus.CounterVec
	transferDuration *prometheus.HistogramVec
	transferBytes    *prometheus.HistogramVec
	transferParts    *prometheus.HistogramVec
	mountedChannels  prometheus.Gauge
}

// New registers DCFS's metric families against reg and returns a
// metrics.Recorder backed by them. reg is typically
// prometheus.NewRegistry() owned by internal/healthserver; passing the
// same registry into both lets the health endpoint serve exactly what
// this recorder writes.
func New(reg *prometheus.Registry) metrics.Recorder {
	f := promauto.With(reg)
	return &recorder{
		opsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dcfs_dispatcher_operations_total",
			Help: "Total dispatcher operations by name, directory, and outcome.",
		}, []string{"op", "dir", "err"}),
		opDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dcfs_dispatcher_operation_duration_seconds",
			Help:    "Dispatcher operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		bytesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dcfs_bytes_total",
			Help: "Bytes moved through read/write handles.",
		}, []string{"op", "direction"}),
		transfersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dcfs_transfers_total",
			Help: "Completed upload/download pipeline runs by direction and outcome.",
		}, []string{"direction", "status"}),
		transferDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dcfs_transfer_duration_seconds",
			Help:    "Upload/download pipeline run duration.",
			Buckets: []float64{.05, .1, .5, 1, 5, 10, 30, 60},
		}, []string{"direction"}),
		transferBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dcfs_transfer_bytes",
			Help:    "Size of each upload/download pipeline run.",
			Buckets: prometheus.ExponentialBuckets(4096, 4, 10),
		}, []string{"direction"}),
		transferParts: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dcfs_transfer_parts",
			Help:    "Part count of each upload/download pipeline run.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		}, []string{"direction"}),
		mountedChannels: f.NewGauge(prometheus.GaugeOpts{
			Name: "dcfs_mounted_channels",
			Help: "Number of listable channel directories in the primed namespace.",
		}),
	}
}

func (r *recorder) RecordOp(op, dir string, duration time.Duration, errKind string) {
	r.opsTotal.WithLabelValues(op, dir, errKind).Inc()
	r.opDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (r *recorder) RecordBytes(op, direction string, n uint64) {
	r.bytesTotal.WithLabelValues(op, direction).Add(float64(n))
}

func (r *recorder) RecordTransfer(direction string, parts int, bytes int64, duration time.Duration, success bool) {
	status := "ok"
	if !success {
		status = "failed"
	}
	r.transfersTotal.WithLabelValues(direction, status).Inc()
	r.transferDuration.WithLabelValues(direction).Observe(duration.Seconds())
	r.transferBytes.WithLabelValues(direction).Observe(float64(bytes))
	r.transferParts.WithLabelValues(direction).Observe(float64(parts))
}

func (r *recorder) SetMountedChannels(n int) {
	r.mountedChannels.Set(float64(n))
}
