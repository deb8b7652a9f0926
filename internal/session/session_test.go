package session

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"

	"github.com/pointlab/pointlab/internal/cluster"
)

func openSession(t *testing.T, m *Manager, name string, points ...cluster.Point) *Session {
	t.Helper()
	s, err := m.GetOrCreate(name)
	if err != nil {
		t.Fatalf("GetOrCreate(%q) failed: %v", name, err)
	}
	if len(points) > 0 {
		if _, err := s.Add(points...); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	return s
}

func expectPoints(t *testing.T, s *Session, want ...cluster.Point) {
	t.Helper()
	if got := s.Points(); !slices.Equal(got, want) {
		t.Errorf("points = %v, want %v", got, want)
	}
}

func TestSession_AddDeduplicates(t *testing.T) {
	s := openSession(t, NewManager(Config{}), "a")

	n, err := s.Add(cluster.Point{X: 1, Y: 2}, cluster.Point{X: 1, Y: 3}, cluster.Point{X: 1, Y: 2})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 new points, got %d", n)
	}

	n, err = s.Add(cluster.Point{X: 1, Y: 3}, cluster.Point{X: 4, Y: 4})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 new point, got %d", n)
	}

	expectPoints(t, s, cluster.Point{X: 1, Y: 2}, cluster.Point{X: 1, Y: 3}, cluster.Point{X: 4, Y: 4})
	if s.Len() != 3 {
		t.Errorf("expected len 3, got %d", s.Len())
	}
}

func TestSession_Clamp(t *testing.T) {
	s := openSession(t, NewManager(Config{Bounds: Bounds{Width: 500, Height: 400}}), "canvas")

	if _, err := s.Add(cluster.Point{X: -3, Y: 10}, cluster.Point{X: 600, Y: 900}, cluster.Point{X: 0, Y: 10}); err != nil {
		t.Fatal(err)
	}

	// (-3, 10) clamps onto (0, 10) so the third point is a duplicate
	expectPoints(t, s, cluster.Point{X: 0, Y: 10}, cluster.Point{X: 500, Y: 400})

	// far out coordinates are fine once clamped
	if _, err := s.Add(cluster.Point{X: 1e300, Y: -1e300}); err != nil {
		t.Errorf("clamped point rejected: %v", err)
	}
}

func TestSession_RejectsBadCoordinates(t *testing.T) {
	tests := []struct {
		name  string
		point cluster.Point
	}{
		{"nan", cluster.Point{X: math.NaN(), Y: 0}},
		{"inf", cluster.Point{X: 0, Y: math.Inf(-1)}},
		{"too large", cluster.Point{X: 1e308, Y: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openSession(t, NewManager(Config{}), "a")
			_, err := s.Add(cluster.Point{X: 1, Y: 1}, tt.point)
			if !errors.Is(err, cluster.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if s.Len() != 0 {
				t.Errorf("rejected batch should add nothing, got %d points", s.Len())
			}
		})
	}
}

func TestSession_PointCap(t *testing.T) {
	s := openSession(t, NewManager(Config{MaxPointsPerSession: 3}), "a", cluster.Point{X: 1}, cluster.Point{X: 2})

	_, err := s.Add(cluster.Point{X: 3}, cluster.Point{X: 4})
	if !errors.Is(err, ErrTooManyPoints) {
		t.Errorf("expected ErrTooManyPoints, got %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 points after rejected add, got %d", s.Len())
	}

	// duplicates do not count against the cap
	n, err := s.Add(cluster.Point{X: 1}, cluster.Point{X: 3})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 new point, got %d", n)
	}
}

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(Config{MaxSessions: 2})

	if _, err := m.GetOrCreate(""); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}

	a := openSession(t, m, "b")
	again := openSession(t, m, "b")
	if a != again {
		t.Error("GetOrCreate should return the existing session")
	}

	openSession(t, m, "a")
	if _, err := m.GetOrCreate("c"); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("expected ErrTooManySessions, got %v", err)
	}

	if got := m.List(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("List() = %v", got)
	}

	if err := m.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := m.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := m.GetOrCreate("c"); err != nil {
		t.Errorf("slot should be free after delete: %v", err)
	}
}

var fourPoints = []cluster.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 10, Y: 10}, {X: 10, Y: 11}}

func TestManager_ClusterClearsSession(t *testing.T) {
	m := NewManager(Config{})
	s := openSession(t, m, "a", fourPoints...)

	points, res, err := m.Cluster(context.Background(), "a", ClusterRequest{
		K:          2,
		Iterations: 10,
		Options:    []cluster.Option{cluster.WithSeed(1)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(points, fourPoints) {
		t.Errorf("clustered points = %v", points)
	}
	if len(res.Labels) != 4 {
		t.Errorf("expected 4 labels, got %d", len(res.Labels))
	}
	if s.Len() != 0 {
		t.Errorf("session should be empty, has %d points", s.Len())
	}

	_, _, err = m.Cluster(context.Background(), "a", ClusterRequest{K: 2, Iterations: 10})
	if !errors.Is(err, cluster.ErrInvalidArgument) {
		t.Errorf("empty session should be rejected, got %v", err)
	}
}

func TestManager_ClusterKeep(t *testing.T) {
	m := NewManager(Config{})
	s := openSession(t, m, "a", cluster.Point{X: 1, Y: 1}, cluster.Point{X: 2, Y: 2})

	if _, _, err := m.Cluster(context.Background(), "a", ClusterRequest{K: 1, Iterations: 3, Keep: true}); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 {
		t.Errorf("keep should leave 2 points, got %d", s.Len())
	}
}

func TestManager_ClusterFailureKeepsPoints(t *testing.T) {
	m := NewManager(Config{})
	s := openSession(t, m, "a", cluster.Point{X: 1, Y: 1}, cluster.Point{X: 2, Y: 2})

	_, _, err := m.Cluster(context.Background(), "a", ClusterRequest{K: 0, Iterations: 3})
	if !errors.Is(err, cluster.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	expectPoints(t, s, cluster.Point{X: 1, Y: 1}, cluster.Point{X: 2, Y: 2})

	if _, _, err := m.Cluster(context.Background(), "missing", ClusterRequest{K: 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_ClusterCommitFailureKeepsOrder(t *testing.T) {
	m := NewManager(Config{MaxPointsPerSession: 5})
	s := openSession(t, m, "a", fourPoints...)
	late := cluster.Point{X: 5, Y: 5}
	commitErr := errors.New("archive unavailable")

	_, _, err := m.Cluster(context.Background(), "a", ClusterRequest{
		K:          2,
		Iterations: 3,
		Commit: func(points []cluster.Point, res *cluster.Result) error {
			// a point arriving while the run is in flight
			if _, err := s.Add(late); err != nil {
				t.Errorf("concurrent add failed: %v", err)
			}
			return commitErr
		},
	})
	if !errors.Is(err, commitErr) {
		t.Fatalf("expected commit error, got %v", err)
	}
	expectPoints(t, s, append(slices.Clone(fourPoints), late)...)

	// the cap still holds with nothing lost or duplicated
	if _, err := s.Add(cluster.Point{X: 6, Y: 6}); !errors.Is(err, ErrTooManyPoints) {
		t.Errorf("expected ErrTooManyPoints, got %v", err)
	}
}

func TestManager_ClusterKeepsPointsAddedDuringRun(t *testing.T) {
	m := NewManager(Config{})
	s := openSession(t, m, "a", fourPoints...)
	late := cluster.Point{X: 5, Y: 5}

	var committed []cluster.Point
	points, _, err := m.Cluster(context.Background(), "a", ClusterRequest{
		K:          2,
		Iterations: 3,
		Commit: func(points []cluster.Point, res *cluster.Result) error {
			committed = points
			_, err := s.Add(late, fourPoints[0])
			return err
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(points, fourPoints) || !slices.Equal(committed, fourPoints) {
		t.Errorf("run should see the snapshot, got %v and %v", points, committed)
	}
	expectPoints(t, s, late)

	// a clustered point may be added again
	if n, err := s.Add(fourPoints[0]); err != nil || n != 1 {
		t.Errorf("re-adding a clustered point: n=%d err=%v", n, err)
	}
}

func TestSession_ConcurrentAdds(t *testing.T) {
	s := openSession(t, NewManager(Config{}), "a")

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = s.Add(cluster.Point{X: float64(i), Y: float64(i % 10)})
			}
		}()
	}
	wg.Wait()

	if s.Len() != 100 {
		t.Errorf("expected 100 distinct points, got %d", s.Len())
	}
}
