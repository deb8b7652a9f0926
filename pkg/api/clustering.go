package api

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/pointlab/pointlab/internal/archive"
	"github.com/pointlab/pointlab/internal/cluster"
	"github.com/pointlab/pointlab/internal/logging"
	"github.com/pointlab/pointlab/internal/metrics"
)

// clusterParams are the knobs shared by every clustering endpoint.
type clusterParams struct {
	K            int      `json:"k"`
	Iterations   *int     `json:"iterations,omitempty"`
	Seed         *uint64  `json:"seed,omitempty"`
	LearningRate *float64 `json:"learning_rate,omitempty"`
	EmptyPolicy  string   `json:"empty_policy,omitempty"`
	Save         bool     `json:"save,omitempty"`
}

type clusterRequest struct {
	Points    [][]float64 `json:"points"`
	Algorithm string      `json:"algorithm,omitempty"`
	clusterParams
}

type clusterResponse struct {
	Centers      [][2]float64 `json:"centers"`
	Labels       []int        `json:"labels"`
	Sizes        []int        `json:"sizes"`
	Colors       []string     `json:"colors"`
	CenterColors []string     `json:"center_colors"`
	Iterations   int          `json:"iterations"`
	Inertia      float64      `json:"inertia"`
	Reseeded     int          `json:"reseeded"`
	Algorithm    string       `json:"algorithm"`
	Seed         *uint64      `json:"seed,omitempty"`
	RunID        string       `json:"run_id,omitempty"`
}

type sweepRequest struct {
	Points       [][]float64 `json:"points"`
	KMin         int         `json:"k_min"`
	KMax         int         `json:"k_max"`
	Iterations   *int        `json:"iterations,omitempty"`
	Seed         *uint64     `json:"seed,omitempty"`
	LearningRate *float64    `json:"learning_rate,omitempty"`
	EmptyPolicy  string      `json:"empty_policy,omitempty"`
}

type sweepResult struct {
	K          int     `json:"k"`
	Inertia    float64 `json:"inertia"`
	Iterations int     `json:"iterations"`
	Reseeded   int     `json:"reseeded"`
}

// runPlan is a fully resolved clustering request.
type runPlan struct {
	algorithm    cluster.Algorithm
	k            int
	iterations   int
	seed         uint64
	seeded       bool
	learningRate float64
	emptyPolicy  cluster.EmptyPolicy
	save         bool
}

func (s runPlan) options() []cluster.Option {
	return []cluster.Option{
		cluster.WithSeed(s.seed),
		cluster.WithLearningRate(s.learningRate),
		cluster.WithEmptyPolicy(s.emptyPolicy),
	}
}

// resolve applies configured defaults and caps. Requests without a seed get
// a random one so every response is reproducible.
func (r *Router) resolve(p clusterParams, algorithm string) (runPlan, *APIError) {
	plan := runPlan{k: p.K, save: p.Save}

	alg, err := cluster.ParseAlgorithm(algorithm)
	if err != nil {
		return plan, ErrBadRequest(err.Error())
	}
	plan.algorithm = alg

	if apiErr := r.checkK(p.K); apiErr != nil {
		return plan, apiErr
	}
	iterations, apiErr := r.iterations(p.Iterations)
	if apiErr != nil {
		return plan, apiErr
	}
	plan.iterations = iterations

	if p.Seed != nil {
		plan.seed = *p.Seed
		plan.seeded = true
	} else {
		plan.seed = rand.Uint64()
	}

	plan.learningRate = r.cfg.Cluster.GetLearningRate()
	if p.LearningRate != nil {
		plan.learningRate = *p.LearningRate
		if !(plan.learningRate > 0 && plan.learningRate <= 1) {
			return plan, ErrBadRequest(fmt.Sprintf("learning_rate must be in (0, 1], got %v", plan.learningRate))
		}
	}

	policy := p.EmptyPolicy
	if policy == "" {
		policy = r.cfg.Cluster.EmptyPolicy
	}
	plan.emptyPolicy, err = cluster.ParseEmptyPolicy(policy)
	if err != nil {
		return plan, ErrBadRequest(err.Error())
	}

	if plan.save && r.archive == nil {
		return plan, ErrArchiveDisabled()
	}
	return plan, nil
}

func (r *Router) checkK(k int) *APIError {
	if k < 1 {
		return ErrBadRequest(fmt.Sprintf("k must be at least 1, got %d", k))
	}
	if maxK := r.cfg.Cluster.GetMaxK(); k > maxK {
		return ErrBadRequest(fmt.Sprintf("k must be at most %d, got %d", maxK, k))
	}
	return nil
}

func (r *Router) iterations(requested *int) (int, *APIError) {
	if requested == nil {
		return r.cfg.Cluster.GetDefaultIterations(), nil
	}
	n := *requested
	if n < 0 {
		return 0, ErrBadRequest(fmt.Sprintf("iterations must not be negative, got %d", n))
	}
	if maxIter := r.cfg.Cluster.GetMaxIterations(); n > maxIter {
		return 0, ErrBadRequest(fmt.Sprintf("iterations must be at most %d, got %d", maxIter, n))
	}
	return n, nil
}

func (r *Router) handleCluster(w http.ResponseWriter, req *http.Request) {
	var body clusterRequest
	if apiErr := r.decodeJSON(req, &body); apiErr != nil {
		r.writeAPIError(w, apiErr)
		return
	}
	points, apiErr := parsePoints(body.Points)
	if apiErr != nil {
		r.writeAPIError(w, apiErr)
		return
	}
	plan, apiErr := r.resolve(body.clusterParams, body.Algorithm)
	if apiErr != nil {
		r.writeAPIError(w, apiErr)
		return
	}

	ctx := req.Context()
	start := time.Now()
	var res *cluster.Result
	var err error
	if plan.algorithm == cluster.AlgorithmLloyd {
		res, err = cluster.Baseline(points, plan.k)
	} else {
		opts := append(plan.options(), cluster.WithContext(ctx))
		res, err = cluster.Cluster(points, plan.k, plan.iterations, opts...)
	}
	r.observe(ctx, plan, len(points), start, res, err)
	if err != nil {
		r.writeErr(w, req, err)
		return
	}

	resp, err := r.respond(ctx, plan, points, res)
	if err != nil {
		r.writeErr(w, req, err)
		return
	}
	r.writeJSON(w, http.StatusOK, resp)
}

func (r *Router) handleSweep(w http.ResponseWriter, req *http.Request) {
	var body sweepRequest
	if apiErr := r.decodeJSON(req, &body); apiErr != nil {
		r.writeAPIError(w, apiErr)
		return
	}
	points, apiErr := parsePoints(body.Points)
	if apiErr != nil {
		r.writeAPIError(w, apiErr)
		return
	}
	if body.KMax < body.KMin {
		r.writeAPIError(w, ErrBadRequest(fmt.Sprintf("k_max (%d) must not be less than k_min (%d)", body.KMax, body.KMin)))
		return
	}
	plan, apiErr := r.resolve(clusterParams{
		K:            body.KMax,
		Iterations:   body.Iterations,
		Seed:         body.Seed,
		LearningRate: body.LearningRate,
		EmptyPolicy:  body.EmptyPolicy,
	}, "")
	if apiErr != nil {
		r.writeAPIError(w, apiErr)
		return
	}
	if apiErr := r.checkK(body.KMin); apiErr != nil {
		r.writeAPIError(w, apiErr)
		return
	}

	ctx := req.Context()
	start := time.Now()
	sweep, err := cluster.Sweep(ctx, points, cluster.KRange(body.KMin, body.KMax), plan.iterations, cluster.SweepOptions{
		Seed:         plan.seed,
		LearningRate: plan.learningRate,
		EmptyPolicy:  plan.emptyPolicy,
	})
	elapsed := time.Since(start)
	metrics.ObserveCluster("sweep", len(points), elapsed.Seconds(), 0, err)
	if info := logging.FromContext(ctx); info != nil {
		info.AddClusterTime(elapsed)
	}
	if err != nil {
		r.writeErr(w, req, err)
		return
	}

	results := make([]sweepResult, len(sweep))
	for i, sp := range sweep {
		results[i] = sweepResult{
			K:          sp.K,
			Inertia:    sp.Inertia,
			Iterations: sp.Result.Iterations,
			Reseeded:   sp.Result.Reseeded,
		}
	}
	r.logger.WithContext(ctx).Debug("sweep completed",
		"k_min", body.KMin,
		"k_max", body.KMax,
		"points", len(points),
		"elapsed_ms", float64(elapsed.Microseconds())/1000.0,
	)
	r.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"seed":    plan.seed,
	})
}

// observe records metrics and logs a finished clustering run.
func (r *Router) observe(ctx context.Context, plan runPlan, n int, start time.Time, res *cluster.Result, err error) {
	elapsed := time.Since(start)
	reseeded := 0
	if res != nil {
		reseeded = res.Reseeded
	}
	metrics.ObserveCluster(string(plan.algorithm), n, elapsed.Seconds(), reseeded, err)

	if info := logging.FromContext(ctx); info != nil {
		info.AddClusterTime(elapsed)
	}
	logger := r.logger.WithContext(ctx).With("elapsed_ms", float64(elapsed.Microseconds())/1000.0)
	if err != nil {
		logger.Debug("clustering failed", "k", plan.k, "points", n, "error", err)
		return
	}
	logger.Debug("clustering completed",
		"algorithm", string(plan.algorithm),
		"k", plan.k,
		"points", n,
		"iterations", res.Iterations,
		"inertia", res.Inertia,
	)
	if reseeded > 0 {
		logger.Warn("reseeded empty clusters", "k", plan.k, "points", n, "reseeded", reseeded)
	}
}

// respond builds the response body and archives the run when asked.
func (r *Router) respond(ctx context.Context, plan runPlan, points []cluster.Point, res *cluster.Result) (*clusterResponse, error) {
	resp := &clusterResponse{
		Centers:      pairs(res.Centers),
		Labels:       res.Labels,
		Sizes:        res.Sizes(),
		Colors:       r.palette.ColorsFor(res.Labels),
		CenterColors: r.palette.Sequence(len(res.Centers)),
		Iterations:   res.Iterations,
		Inertia:      res.Inertia,
		Reseeded:     res.Reseeded,
		Algorithm:    string(plan.algorithm),
	}
	if plan.algorithm == cluster.AlgorithmDamped {
		seed := plan.seed
		resp.Seed = &seed
	}
	if !plan.save {
		return resp, nil
	}

	id, err := r.archive.Save(ctx, &archive.Run{
		Algorithm:    string(plan.algorithm),
		K:            plan.k,
		Iterations:   plan.iterations,
		LearningRate: plan.learningRate,
		Seed:         plan.seed,
		// Lloyd initialization is not seedable, so its runs never share an id.
		Seeded:       plan.seeded && plan.algorithm == cluster.AlgorithmDamped,
		EmptyPolicy:  plan.emptyPolicy.String(),
		Points:       points,
		Centers:      res.Centers,
		Labels:       res.Labels,
		Inertia:      res.Inertia,
		Reseeded:     res.Reseeded,
	})
	if err != nil {
		return nil, err
	}
	resp.RunID = id
	return resp, nil
}

func parsePoints(raw [][]float64) ([]cluster.Point, *APIError) {
	if len(raw) == 0 {
		return nil, ErrBadRequest("points must not be empty")
	}
	points := make([]cluster.Point, len(raw))
	for i, p := range raw {
		if len(p) != 2 {
			return nil, ErrBadRequest(fmt.Sprintf("point %d must have exactly 2 coordinates, got %d", i, len(p)))
		}
		points[i] = cluster.Point{X: p[0], Y: p[1]}
	}
	return points, nil
}

func pairs(points []cluster.Point) [][2]float64 {
	out := make([][2]float64, len(points))
	for i, p := range points {
		out[i] = [2]float64{p.X, p.Y}
	}
	return out
}
