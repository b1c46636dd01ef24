package opt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"darpm/internal/model"
)

// Metrics counts what the search did during one Solve call.
type Metrics struct {
	Iterations         int
	Improvements       int // elite promotions
	InsertAttempts     int
	Inserts            int
	Swaps              int
	SwapSuccesses      int
	RelinkCalls        int
	RelinkImprovements int
	BestObjective      int
	Elapsed            time.Duration
	Snapshots          []Snapshot
}

// Snapshot records the state after one GRASP iteration.
type Snapshot struct {
	Iteration int           `json:"iteration"`
	Objective int           `json:"objective"`
	Elite     int           `json:"elite"`
	Promoted  bool          `json:"promoted"`
	Elapsed   time.Duration `json:"elapsedNs"`
}

// Solver runs GRASP with path relinking. A Solver is not safe for
// concurrent use; create one per run.
type Solver struct {
	Params Params
	Metric Metric

	log      zerolog.Logger
	progress func(Snapshot)
	rng      *rand.Rand
	ins      *Inserter
	metrics  Metrics
}

type Option func(*Solver)

func WithLogger(l zerolog.Logger) Option { return func(s *Solver) { s.log = l } }

// WithProgress registers a callback invoked after every GRASP iteration.
func WithProgress(fn func(Snapshot)) Option { return func(s *Solver) { s.progress = fn } }

// WithRand overrides the random source derived from Params.Seed.
func WithRand(r *rand.Rand) Option { return func(s *Solver) { s.rng = r } }

func NewSolver(p Params, m Metric, opts ...Option) (*Solver, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: metric is required", ErrInvalidParams)
	}
	s := &Solver{Params: p, Metric: m, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	if s.rng == nil {
		seed := p.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		s.rng = rand.New(rand.NewSource(seed))
	}
	s.ins = &Inserter{Metric: m, Alpha: p.Alpha, Method: p.Method, metrics: &s.metrics}
	return s, nil
}

// Inserter exposes the route engine configured with the solver's parameters.
func (s *Solver) Inserter() *Inserter { return s.ins }

// Metrics returns the counters accumulated so far.
func (s *Solver) Metrics() Metrics { return s.metrics }

// Solve searches until the upper bound is reached, the iteration cap is hit
// or ctx ends, and returns the best validated solution found. Cancellation is
// observed between iterations only; an unfinished iteration is discarded.
func (s *Solver) Solve(ctx context.Context, reqs []model.Request) (*Solution, Metrics, error) {
	start := time.Now()
	s.metrics = Metrics{}
	base, err := NewSolution(reqs)
	if err != nil {
		return nil, s.metrics, err
	}
	if base.Len() == 0 {
		return nil, s.metrics, ErrNoRequests
	}
	if err := s.checkServable(base); err != nil {
		return nil, s.metrics, err
	}
	s.log.Info().Int("requests", base.Len()).Str("method", s.Params.Method.String()).
		Int("capacity", s.Params.Capacity).Msg("grasp started")

	var elite *Solution
	for {
		if ctx.Err() != nil {
			break
		}
		if s.Params.GRASPIterations > 0 && s.metrics.Iterations >= s.Params.GRASPIterations {
			break
		}
		if elite != nil && elite.UpperBound() {
			break
		}
		s.metrics.Iterations++
		sol, err := s.iterate(base, elite)
		if err != nil {
			s.log.Error().Err(err).Int("iteration", s.metrics.Iterations).Msg("path relinking failed")
			return elite, s.finish(start), err
		}
		promoted := false
		if elite == nil || sol.Objective() > elite.Objective() {
			if err := sol.Validate(s.ins); err != nil {
				s.log.Error().Err(err).Int("iteration", s.metrics.Iterations).Msg("candidate failed validation")
				return elite, s.finish(start), err
			}
			elite, promoted = sol, true
			s.metrics.Improvements++
			s.metrics.BestObjective = elite.Objective()
			s.log.Info().Int("iteration", s.metrics.Iterations).Int("objective", elite.Objective()).
				Int("routes", len(elite.Routes)).Msg("new elite")
		}
		snap := Snapshot{Iteration: s.metrics.Iterations, Objective: sol.Objective(), Elite: elite.Objective(),
			Promoted: promoted, Elapsed: time.Since(start)}
		s.metrics.Snapshots = append(s.metrics.Snapshots, snap)
		if s.progress != nil {
			s.progress(snap)
		}
	}
	if elite == nil {
		return nil, s.finish(start), fmt.Errorf("grasp stopped before the first iteration: %w", context.Cause(ctx))
	}
	if elite.UpperBound() {
		s.log.Info().Err(ErrUpperBound).Int("iteration", s.metrics.Iterations).Msg("grasp stopped early")
	}
	m := s.finish(start)
	s.log.Info().Int("objective", elite.Objective()).Int("iterations", m.Iterations).
		Dur("elapsed", m.Elapsed).Msg("grasp finished")
	return elite, m, nil
}

func (s *Solver) finish(start time.Time) Metrics {
	s.metrics.Elapsed = time.Since(start)
	return s.metrics
}

// iterate runs one GRASP iteration: construction, local search and, once an
// elite exists, path relinking followed by another local search.
func (s *Solver) iterate(base, elite *Solution) (*Solution, error) {
	sol := s.Build(base)
	sol = s.LocalSearch(sol)
	if elite != nil && !sol.UpperBound() {
		relinked, err := s.PathRelink(sol, elite)
		if err != nil {
			return nil, err
		}
		sol = s.LocalSearch(relinked)
	}
	s.log.Debug().Int("iteration", s.metrics.Iterations).Int("objective", sol.Objective()).Msg("grasp iteration")
	return sol, nil
}

// checkServable rejects requests that cannot be served even alone.
func (s *Solver) checkServable(base *Solution) error {
	for _, id := range base.ids {
		rt := NewRoute(base.requests[id], s.Params.Capacity, s.Metric)
		if err := s.ins.Validate(rt); err != nil {
			var ie *InvariantError
			if errors.As(err, &ie) {
				return fmt.Errorf("%w: request %d cannot be served by a direct ride: %s", ErrMalformedRequest, id, ie.Detail)
			}
			return err
		}
	}
	return nil
}
