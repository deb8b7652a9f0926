package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCluster(t *testing.T) {
	ClusterRunsTotal.Reset()
	ClusterLatency.Reset()

	ObserveCluster("damped", 100, 0.002, 0, nil)
	ObserveCluster("damped", 50, 0.001, 0, nil)
	ObserveCluster("lloyd", 10, 0.001, 0, errors.New("bad k"))

	if val := testutil.ToFloat64(ClusterRunsTotal.WithLabelValues("damped", "success")); val != 2 {
		t.Errorf("expected 2 successful damped runs, got %f", val)
	}
	if val := testutil.ToFloat64(ClusterRunsTotal.WithLabelValues("lloyd", "error")); val != 1 {
		t.Errorf("expected 1 failed lloyd run, got %f", val)
	}
	if val := testutil.ToFloat64(ClusterRunsTotal.WithLabelValues("lloyd", "success")); val != 0 {
		t.Errorf("expected 0 successful lloyd runs, got %f", val)
	}

	count := testutil.CollectAndCount(ClusterLatency)
	if count != 2 {
		t.Errorf("expected 2 latency series, got %d", count)
	}
}

func TestClusterReseeds(t *testing.T) {
	before := testutil.ToFloat64(ClusterReseedsTotal)

	ObserveCluster("damped", 4, 0.001, 3, nil)
	ObserveCluster("damped", 4, 0.001, 5, errors.New("canceled"))

	after := testutil.ToFloat64(ClusterReseedsTotal)
	if after-before != 3 {
		t.Errorf("expected reseeds to grow by 3, got %f", after-before)
	}
}

func TestSessionMetrics(t *testing.T) {
	SessionPoints.Reset()

	SetSessionsActive(3)
	if val := testutil.ToFloat64(SessionsActive); val != 3 {
		t.Errorf("expected 3 active sessions, got %f", val)
	}

	SetSessionPoints("a", 12)
	SetSessionPoints("b", 4)
	if val := testutil.ToFloat64(SessionPoints.WithLabelValues("a")); val != 12 {
		t.Errorf("expected 12 points for a, got %f", val)
	}

	DeleteSessionPoints("a")
	if count := testutil.CollectAndCount(SessionPoints); count != 1 {
		t.Errorf("expected 1 session series after delete, got %d", count)
	}
}

func TestObjectStoreOpsMetric(t *testing.T) {
	ObjectStoreOps.Reset()
	ObjectStoreLatency.Reset()

	ObserveObjectStoreOp("get", 0.005, nil)
	ObserveObjectStoreOp("get", 0.010, errors.New("connection failed"))
	ObserveObjectStoreOp("put", 0.020, nil)

	if val := testutil.ToFloat64(ObjectStoreOps.WithLabelValues("get", "success")); val != 1 {
		t.Errorf("expected 1 success get op, got %f", val)
	}
	if val := testutil.ToFloat64(ObjectStoreOps.WithLabelValues("get", "error")); val != 1 {
		t.Errorf("expected 1 error get op, got %f", val)
	}
	if val := testutil.ToFloat64(ObjectStoreOps.WithLabelValues("put", "success")); val != 1 {
		t.Errorf("expected 1 put op, got %f", val)
	}
}

func TestArchiveBytes(t *testing.T) {
	ArchiveBytesWritten.Reset()

	AddArchiveBytes("zstd", 100)
	AddArchiveBytes("zstd", 0)
	AddArchiveBytes("lz4", 40)

	if val := testutil.ToFloat64(ArchiveBytesWritten.WithLabelValues("zstd")); val != 100 {
		t.Errorf("expected 100 zstd bytes, got %f", val)
	}
	if val := testutil.ToFloat64(ArchiveBytesWritten.WithLabelValues("lz4")); val != 40 {
		t.Errorf("expected 40 lz4 bytes, got %f", val)
	}
}

func TestObserveRunCache(t *testing.T) {
	RunCacheLookups.Reset()

	ObserveRunCache(true)
	ObserveRunCache(true)
	ObserveRunCache(false)

	if val := testutil.ToFloat64(RunCacheLookups.WithLabelValues("hit")); val != 2 {
		t.Errorf("expected 2 hits, got %f", val)
	}
	if val := testutil.ToFloat64(RunCacheLookups.WithLabelValues("miss")); val != 1 {
		t.Errorf("expected 1 miss, got %f", val)
	}

	SetRunCacheBytes(512)
	if val := testutil.ToFloat64(RunCacheBytes); val != 512 {
		t.Errorf("expected gauge 512, got %f", val)
	}
}
