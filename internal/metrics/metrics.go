// Package metrics provides Prometheus metrics for the pointlab service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pointlab"

var (
	// ClusterRunsTotal tracks clustering runs.
	ClusterRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cluster_runs_total",
			Help:      "Total clustering runs",
		},
		[]string{"algorithm", "status"}, // algorithm: damped/lloyd, status: success/error
	)

	// ClusterLatency tracks clustering run latency.
	ClusterLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cluster_latency_seconds",
			Help:      "Clustering run latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"algorithm"},
	)

	// ClusterPoints tracks the number of points per clustering run.
	ClusterPoints = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cluster_points",
			Help:      "Number of input points per clustering run",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	// ClusterReseedsTotal tracks centers re-seeded after receiving no points.
	ClusterReseedsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cluster_reseeds_total",
			Help:      "Total empty centers re-seeded from input points",
		},
	)

	// SessionsActive tracks the number of live point sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of active point sessions",
		},
	)

	// SessionPoints tracks buffered points per session.
	SessionPoints = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_points",
			Help:      "Points buffered per session",
		},
		[]string{"session"},
	)

	// ObjectStoreOps tracks object store operations.
	ObjectStoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objectstore_ops_total",
			Help:      "Total object store operations",
		},
		[]string{"operation", "status"}, // operation: get/head/put/delete/list, status: success/error
	)

	// ObjectStoreLatency tracks object store operation latency.
	ObjectStoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "objectstore_latency_seconds",
			Help:      "Object store operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// ArchiveBytesWritten tracks encoded run bytes written to the archive.
	ArchiveBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_bytes_written_total",
			Help:      "Total encoded run bytes written to the archive",
		},
		[]string{"compression"},
	)

	// RunCacheLookups counts archive cache lookups by result (hit or miss).
	RunCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_cache_lookups_total",
			Help:      "Archive record cache lookups by result",
		},
		[]string{"result"},
	)

	// RunCacheBytes is the size of the records held by the archive cache.
	RunCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_cache_bytes",
			Help:      "Bytes of encoded run records held in memory",
		},
	)
)

// ObserveCluster records a clustering run.
func ObserveCluster(algorithm string, points int, latencySeconds float64, reseeded int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ClusterRunsTotal.WithLabelValues(algorithm, status).Inc()
	ClusterLatency.WithLabelValues(algorithm).Observe(latencySeconds)
	if err == nil {
		ClusterPoints.Observe(float64(points))
		if reseeded > 0 {
			ClusterReseedsTotal.Add(float64(reseeded))
		}
	}
}

// SetSessionsActive sets the active session count.
func SetSessionsActive(n int) {
	SessionsActive.Set(float64(n))
}

// SetSessionPoints sets the buffered point count for a session.
func SetSessionPoints(session string, n int) {
	SessionPoints.WithLabelValues(session).Set(float64(n))
}

// DeleteSessionPoints drops the per-session series.
func DeleteSessionPoints(session string) {
	SessionPoints.DeleteLabelValues(session)
}

// ObserveObjectStoreOp records an object store operation.
func ObserveObjectStoreOp(operation string, latencySeconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ObjectStoreOps.WithLabelValues(operation, status).Inc()
	ObjectStoreLatency.WithLabelValues(operation).Observe(latencySeconds)
}

// AddArchiveBytes records bytes written for an archived run.
func AddArchiveBytes(compression string, n int) {
	if n > 0 {
		ArchiveBytesWritten.WithLabelValues(compression).Add(float64(n))
	}
}

// ObserveRunCache records one archive cache lookup.
func ObserveRunCache(hit bool) {
	if hit {
		RunCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	RunCacheLookups.WithLabelValues("miss").Inc()
}

// SetRunCacheBytes updates the archive cache size gauge.
func SetRunCacheBytes(n int64) {
	RunCacheBytes.Set(float64(n))
}
