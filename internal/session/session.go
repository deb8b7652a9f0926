// Package session buffers points collected from a client before they are
// clustered. Each named session deduplicates exact duplicate points and,
// when bounds are configured, clamps them onto the canvas.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/pointlab/pointlab/internal/cluster"
	"github.com/pointlab/pointlab/internal/metrics"
)

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrTooManySessions is returned when creating a session would exceed the cap.
	ErrTooManySessions = errors.New("too many sessions")

	// ErrTooManyPoints is returned when an add would exceed the per-session cap.
	ErrTooManyPoints = errors.New("too many points in session")

	// ErrInvalidName is returned for empty session names.
	ErrInvalidName = errors.New("invalid session name")
)

// Bounds is the canvas area points are clamped to. A zero Bounds disables
// clamping.
type Bounds struct {
	Width  float64
	Height float64
}

// IsZero reports whether clamping is disabled.
func (b Bounds) IsZero() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Clamp pins p into [0, Width] x [0, Height].
func (b Bounds) Clamp(p cluster.Point) cluster.Point {
	if b.IsZero() {
		return p
	}
	return cluster.Point{X: clamp(p.X, 0, b.Width), Y: clamp(p.Y, 0, b.Height)}
}

func clamp(x, lo, hi float64) float64 {
	if x <= lo {
		return lo
	}
	if x >= hi {
		return hi
	}
	return x
}

// Session is an insertion-ordered set of points.
type Session struct {
	name      string
	bounds    Bounds
	maxPoints int

	mu     sync.RWMutex
	points []cluster.Point
	seen   map[cluster.Point]struct{}
}

func newSession(name string, bounds Bounds, maxPoints int) *Session {
	return &Session{
		name:      name,
		bounds:    bounds,
		maxPoints: maxPoints,
		seen:      make(map[cluster.Point]struct{}),
	}
}

// Name returns the session name.
func (s *Session) Name() string {
	return s.name
}

// Add appends points that are not already present and returns how many were
// new. If the new points would push the session past its cap nothing is
// added.
func (s *Session) Add(points ...cluster.Point) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]cluster.Point, 0, len(points))
	batch := make(map[cluster.Point]struct{}, len(points))
	for _, p := range points {
		if !p.IsFinite() {
			return 0, fmt.Errorf("%w: non-finite point", cluster.ErrInvalidArgument)
		}
		if !p.InRange() && s.bounds.IsZero() {
			return 0, fmt.Errorf("%w: point exceeds coordinate limit %g", cluster.ErrInvalidArgument, cluster.MaxCoordinate)
		}
		p = s.bounds.Clamp(p)
		if _, ok := s.seen[p]; ok {
			continue
		}
		if _, ok := batch[p]; ok {
			continue
		}
		batch[p] = struct{}{}
		fresh = append(fresh, p)
	}

	if s.maxPoints > 0 && len(s.points)+len(fresh) > s.maxPoints {
		return 0, fmt.Errorf("%w: %d buffered, %d new, limit %d", ErrTooManyPoints, len(s.points), len(fresh), s.maxPoints)
	}

	for _, p := range fresh {
		s.seen[p] = struct{}{}
	}
	s.points = append(s.points, fresh...)
	metrics.SetSessionPoints(s.name, len(s.points))
	return len(fresh), nil
}

// Points returns a copy of the buffered points in insertion order.
func (s *Session) Points() []cluster.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]cluster.Point(nil), s.points...)
}

// Len returns the number of buffered points.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Clear drops all buffered points.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = nil
	s.seen = make(map[cluster.Point]struct{})
	metrics.SetSessionPoints(s.name, 0)
}

// discard removes the given points, leaving anything added since they were
// read in place and in order.
func (s *Session) discard(points []cluster.Point) {
	drop := make(map[cluster.Point]struct{}, len(points))
	for _, p := range points {
		drop[p] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.points[:0]
	for _, p := range s.points {
		if _, ok := drop[p]; ok {
			delete(s.seen, p)
			continue
		}
		kept = append(kept, p)
	}
	s.points = kept
	metrics.SetSessionPoints(s.name, len(s.points))
}

// Config holds the manager guardrails.
type Config struct {
	MaxSessions         int
	MaxPointsPerSession int
	Bounds              Bounds
}

// Manager owns the named sessions.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Get returns an existing session.
func (m *Manager) Get(name string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return s, nil
}

// GetOrCreate returns the named session, creating it if needed.
func (m *Manager) GetOrCreate(name string) (*Session, error) {
	if name == "" {
		return nil, ErrInvalidName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[name]; ok {
		return s, nil
	}
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, m.cfg.MaxSessions)
	}
	s := newSession(name, m.cfg.Bounds, m.cfg.MaxPointsPerSession)
	m.sessions[name] = s
	metrics.SetSessionsActive(len(m.sessions))
	return s, nil
}

// Delete removes a session.
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(m.sessions, name)
	metrics.SetSessionsActive(len(m.sessions))
	metrics.DeleteSessionPoints(name)
	return nil
}

// List returns session names in sorted order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClusterRequest describes a clustering run over a session's points.
type ClusterRequest struct {
	K          int
	Iterations int
	// Keep leaves the points buffered after clustering.
	Keep    bool
	Options []cluster.Option
	// Commit, if set, runs after the engine succeeds and before the points
	// are removed. An error from Commit leaves the session untouched.
	Commit func(points []cluster.Point, res *cluster.Result) error
}

// Cluster runs the engine over a snapshot of the session's points. Once the
// run and its Commit succeed, the snapshot is removed from the session unless
// the request asks to keep it. Points added while the run is in flight are
// never dropped.
func (m *Manager) Cluster(ctx context.Context, name string, req ClusterRequest) ([]cluster.Point, *cluster.Result, error) {
	s, err := m.Get(name)
	if err != nil {
		return nil, nil, err
	}

	points := s.Points()
	if len(points) == 0 {
		return nil, nil, fmt.Errorf("%w: session %q has no points", cluster.ErrInvalidArgument, name)
	}

	opts := append([]cluster.Option{cluster.WithContext(ctx)}, req.Options...)
	res, err := cluster.Cluster(points, req.K, req.Iterations, opts...)
	if err != nil {
		return nil, nil, err
	}
	if req.Commit != nil {
		if err := req.Commit(points, res); err != nil {
			return nil, nil, err
		}
	}
	if !req.Keep {
		s.discard(points)
	}
	return points, res, nil
}
