package api

import (
	"net/http"
	"time"

	"github.com/pointlab/pointlab/internal/cluster"
	"github.com/pointlab/pointlab/internal/session"
)

type addPointsRequest struct {
	Points [][]float64 `json:"points"`
}

type sessionClusterRequest struct {
	clusterParams
	// Keep leaves the points buffered after clustering.
	Keep bool `json:"keep,omitempty"`
}

type sessionSummary struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

func (r *Router) handleListSessions(w http.ResponseWriter, req *http.Request) {
	names := r.sessions.List()
	out := make([]sessionSummary, 0, len(names))
	for _, name := range names {
		s, err := r.sessions.Get(name)
		if err != nil {
			// deleted since List
			continue
		}
		out = append(out, sessionSummary{Name: name, Points: s.Len()})
	}
	r.writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}

func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("session")
	s, err := r.sessions.Get(name)
	if err != nil {
		r.writeErr(w, req, err)
		return
	}
	r.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":   name,
		"points": pairs(s.Points()),
	})
}

func (r *Router) handleDeleteSession(w http.ResponseWriter, req *http.Request) {
	if err := r.sessions.Delete(req.PathValue("session")); err != nil {
		r.writeErr(w, req, err)
		return
	}
	r.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) handleAddPoints(w http.ResponseWriter, req *http.Request) {
	var body addPointsRequest
	if apiErr := r.decodeJSON(req, &body); apiErr != nil {
		r.writeAPIError(w, apiErr)
		return
	}
	points, apiErr := parsePoints(body.Points)
	if apiErr != nil {
		r.writeAPIError(w, apiErr)
		return
	}

	s, err := r.sessions.GetOrCreate(req.PathValue("session"))
	if err != nil {
		r.writeErr(w, req, err)
		return
	}
	added, err := s.Add(points...)
	if err != nil {
		r.writeErr(w, req, err)
		return
	}
	r.writeJSON(w, http.StatusOK, map[string]int{
		"added": added,
		"total": s.Len(),
	})
}

func (r *Router) handleClusterSession(w http.ResponseWriter, req *http.Request) {
	var body sessionClusterRequest
	if apiErr := r.decodeJSON(req, &body); apiErr != nil {
		r.writeAPIError(w, apiErr)
		return
	}
	plan, apiErr := r.resolve(body.clusterParams, "")
	if apiErr != nil {
		r.writeAPIError(w, apiErr)
		return
	}

	ctx := req.Context()
	start := time.Now()
	var (
		resp     *clusterResponse
		observed bool
	)
	// The points leave the session only after the response is built and,
	// when asked, the run is archived.
	_, _, err := r.sessions.Cluster(ctx, req.PathValue("session"), session.ClusterRequest{
		K:          plan.k,
		Iterations: plan.iterations,
		Keep:       body.Keep,
		Options:    plan.options(),
		Commit: func(points []cluster.Point, res *cluster.Result) error {
			r.observe(ctx, plan, len(points), start, res, nil)
			observed = true
			var err error
			resp, err = r.respond(ctx, plan, points, res)
			return err
		},
	})
	if !observed {
		r.observe(ctx, plan, 0, start, nil, err)
	}
	if err != nil {
		r.writeErr(w, req, err)
		return
	}
	r.writeJSON(w, http.StatusOK, resp)
}
