package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pointlab/pointlab/internal/archive"
)

// maxListLimit caps GET /v1/runs?limit=.
const maxListLimit = 1000

type runResponse struct {
	ID           string       `json:"id"`
	CreatedAt    time.Time    `json:"created_at"`
	Algorithm    string       `json:"algorithm"`
	K            int          `json:"k"`
	Iterations   int          `json:"iterations"`
	LearningRate float64      `json:"learning_rate"`
	Seed         uint64       `json:"seed"`
	Seeded       bool         `json:"seeded"`
	EmptyPolicy  string       `json:"empty_policy,omitempty"`
	Points       [][2]float64 `json:"points"`
	Centers      [][2]float64 `json:"centers"`
	Labels       []int        `json:"labels"`
	Sizes        []uint64     `json:"sizes"`
	Colors       []string     `json:"colors"`
	CenterColors []string     `json:"center_colors"`
	Inertia      float64      `json:"inertia"`
	Reseeded     int          `json:"reseeded"`
}

func (r *Router) handleListRuns(w http.ResponseWriter, req *http.Request) {
	limit := 0
	if s := req.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxListLimit {
			r.writeAPIError(w, ErrBadRequest(fmt.Sprintf("limit must be an integer between 1 and %d", maxListLimit)))
			return
		}
		limit = n
	}

	infos, err := r.archive.List(req.Context(), limit)
	if err != nil {
		r.writeErr(w, req, err)
		return
	}
	if infos == nil {
		infos = []archive.Info{}
	}
	r.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": infos})
}

func (r *Router) handleGetRun(w http.ResponseWriter, req *http.Request) {
	run, err := r.archive.Load(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeErr(w, req, err)
		return
	}
	r.writeJSON(w, http.StatusOK, runResponse{
		ID:           run.ID,
		CreatedAt:    run.CreatedAt,
		Algorithm:    run.Algorithm,
		K:            run.K,
		Iterations:   run.Iterations,
		LearningRate: run.LearningRate,
		Seed:         run.Seed,
		Seeded:       run.Seeded,
		EmptyPolicy:  run.EmptyPolicy,
		Points:       pairs(run.Points),
		Centers:      pairs(run.Centers),
		Labels:       run.Labels,
		Sizes:        run.Sizes(),
		Colors:       r.palette.ColorsFor(run.Labels),
		CenterColors: r.palette.Sequence(len(run.Centers)),
		Inertia:      run.Inertia,
		Reseeded:     run.Reseeded,
	})
}

func (r *Router) handleDeleteRun(w http.ResponseWriter, req *http.Request) {
	if err := r.archive.Delete(req.Context(), req.PathValue("id")); err != nil {
		r.writeErr(w, req, err)
		return
	}
	r.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRunCluster returns the members of one cluster of a stored run.
func (r *Router) handleRunCluster(w http.ResponseWriter, req *http.Request) {
	label, err := strconv.Atoi(req.PathValue("label"))
	if err != nil {
		r.writeAPIError(w, ErrBadRequest(fmt.Sprintf("invalid cluster label %q", req.PathValue("label"))))
		return
	}
	run, err := r.archive.Load(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeErr(w, req, err)
		return
	}
	members, err := run.Members(label)
	if err != nil {
		r.writeErr(w, req, err)
		return
	}

	indices := members.ToArray()
	points := make([][2]float64, len(indices))
	for i, idx := range indices {
		p := run.Points[idx]
		points[i] = [2]float64{p.X, p.Y}
	}
	c := run.Centers[label]
	r.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  run.ID,
		"label":   label,
		"center":  [2]float64{c.X, c.Y},
		"color":   r.palette.Color(label),
		"size":    members.GetCardinality(),
		"members": indices,
		"points":  points,
	})
}
