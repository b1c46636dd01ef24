package opt

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"darpm/internal/model"
)

func testSolver(t *testing.T, tweak func(*Params)) *Solver {
	t.Helper()
	p := DefaultParams()
	p.Seed = 7
	if tweak != nil {
		tweak(&p)
	}
	s, err := NewSolver(p, plane)
	require.NoError(t, err)
	return s
}

func randomRequests(n int, seed int64) []model.Request {
	r := rand.New(rand.NewSource(seed))
	out := make([]model.Request, n)
	for i := range out {
		o := pt(r.Float64()*20, r.Float64()*20)
		d := pt(r.Float64()*20, r.Float64()*20)
		e := r.Float64() * 100
		tt := plane.TravelTime(o, d)
		out[i] = model.Request{ID: i + 1, Origin: o, Destination: d, Pickup: win(e, e+15), Dropoff: win(e+tt, e+tt+30)}
	}
	return out
}

// solutionOf builds a solution whose routes serve the given id groups, each
// group inserted in order.
func solutionOf(t *testing.T, s *Solver, base *Solution, groups ...[]int) *Solution {
	t.Helper()
	sol := base.empty()
	for _, g := range groups {
		rt := NewRoute(base.Request(g[0]), s.Params.Capacity, s.Metric)
		for _, id := range g[1:] {
			require.NoError(t, s.ins.Insert(rt, base.Request(id)))
		}
		sol.Routes = append(sol.Routes, rt)
	}
	require.NoError(t, sol.Validate(s.ins))
	return sol
}

func requests(rs ...*model.Request) []model.Request {
	out := make([]model.Request, len(rs))
	for i, r := range rs {
		out[i] = *r
	}
	return out
}

func shared(sol *Solution) map[int]bool {
	out := map[int]bool{}
	for _, rt := range sol.Routes {
		for _, id := range rt.RequestIDs() {
			out[id] = !rt.Private()
		}
	}
	return out
}

func TestLocalSearchMergesPrivateRoutes(t *testing.T) {
	s := testSolver(t, func(p *Params) {
		p.InsertAttempts = 50
		p.LocalSearchIterations = 1
		p.SwapFraction = 0
	})
	base, err := NewSolution(requests(corridor(1, 0), corridor(2, 1)))
	require.NoError(t, err)
	sol := solutionOf(t, s, base, []int{1}, []int{2})
	require.Equal(t, 0, sol.Objective())
	require.Equal(t, []int{1, 2}, sol.Pending())

	out := s.LocalSearch(sol)
	require.Equal(t, 2, out.Objective())
	require.Len(t, out.Routes, 1)
	require.Len(t, out.Routes[0].Stops, 4)
	require.True(t, out.UpperBound())
	require.NoError(t, out.Validate(s.ins))
	require.Equal(t, 0, sol.Objective(), "input must not change")
}

func TestLocalSearchZeroIterationsReturnsInput(t *testing.T) {
	s := testSolver(t, func(p *Params) { p.LocalSearchIterations = 0 })
	base, err := NewSolution(requests(corridor(1, 0), corridor(2, 1)))
	require.NoError(t, err)
	sol := solutionOf(t, s, base, []int{1}, []int{2})
	out := s.LocalSearch(sol)
	require.Same(t, sol, out)
	require.Equal(t, 0, out.Objective())
}

func TestLocalSearchNeverLowersObjective(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		s := testSolver(t, func(p *Params) { p.Seed = seed })
		base, err := NewSolution(randomRequests(40, seed))
		require.NoError(t, err)
		sol := s.Build(base)
		require.NoError(t, sol.Validate(s.ins))
		out := s.LocalSearch(sol)
		require.GreaterOrEqual(t, out.Objective(), sol.Objective())
		require.NoError(t, out.Validate(s.ins))
	}
}

func TestBuildServesEveryRequestOnce(t *testing.T) {
	s := testSolver(t, nil)
	base, err := NewSolution(randomRequests(60, 3))
	require.NoError(t, err)
	sol := s.Build(base)
	require.NoError(t, sol.Validate(s.ins))
	total := 0
	for _, rt := range sol.Routes {
		total += rt.Size()
	}
	require.Equal(t, 60, total)
	require.Empty(t, base.Routes)
}

func TestGreedyScorePenalisesUnreachableDropoff(t *testing.T) {
	s := testSolver(t, nil)
	rt := NewRoute(corridor(1, 0), 2, plane)
	near := corridor(2, 1)
	tooLate := mkReq(3, pt(0, 1), pt(500, 1), win(0, 20), win(0, 30))
	require.Less(t, s.greedyScore(rt, near), dropoffPenalty)
	require.GreaterOrEqual(t, s.greedyScore(rt, tooLate), dropoffPenalty)
}

func TestSwapChangesObjectiveByNewlySharedRequests(t *testing.T) {
	reqs := requests(corridor(1, 0), corridor(2, 1), corridor(3, 0.5), corridor(4, 1.5))
	tests := []struct {
		name   string
		groups [][]int
		a, b   int
	}{
		{"two private routes", [][]int{{1}, {2}}, 1, 2},
		{"two shared routes", [][]int{{1, 2}, {3, 4}}, 2, 3},
		{"shared and private", [][]int{{1, 2}, {3}}, 2, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := testSolver(t, nil)
			base, err := NewSolution(reqs)
			require.NoError(t, err)
			sol := solutionOf(t, s, base, tc.groups...)
			ra, rb := sol.routeOf(tc.a), sol.routeOf(tc.b)

			out, err := s.Swap(sol, tc.a, tc.b)
			require.NoError(t, err)
			require.NoError(t, out.Validate(s.ins))
			require.Equal(t, rb, out.routeOf(tc.a))
			require.Equal(t, ra, out.routeOf(tc.b))

			before, after := shared(sol), shared(out)
			gained, lost := 0, 0
			for id := range before {
				switch {
				case after[id] && !before[id]:
					gained++
				case before[id] && !after[id]:
					lost++
				}
			}
			require.Equal(t, gained-lost, out.Objective()-sol.Objective())
			require.Equal(t, ra, sol.routeOf(tc.a), "input must not change")
		})
	}
}

func TestSwapErrors(t *testing.T) {
	s := testSolver(t, func(p *Params) { p.SwapAttempts = 5 })
	base, err := NewSolution(requests(corridor(1, 0), corridor(2, 1), corridor(3, 0.5)))
	require.NoError(t, err)
	sol := solutionOf(t, s, base, []int{1, 2}, []int{3})

	_, err = s.Swap(sol, 1, 2)
	require.ErrorIs(t, err, ErrInfeasible)

	_, err = s.Swap(sol, 1, 2, 3)
	require.ErrorIs(t, err, ErrInvalidParams)

	// the only other route is private, so no partner can be sampled
	_, err = s.Swap(sol, 1)
	require.ErrorIs(t, err, ErrBudgetExhausted)
	require.True(t, recoverable(err))

	pair, err := NewSolution(requests(corridor(1, 0), corridor(2, 1)))
	require.NoError(t, err)
	lone := solutionOf(t, s, pair, []int{1, 2})
	_, err = s.Swap(lone)
	require.ErrorIs(t, err, ErrInfeasible)
}

func TestPathRelinkIdenticalSolutionsIsNoop(t *testing.T) {
	s := testSolver(t, nil)
	base, err := NewSolution(requests(corridor(1, 0), corridor(2, 1), corridor(3, 30)))
	require.NoError(t, err)
	elite := solutionOf(t, s, base, []int{1, 2}, []int{3})
	current := elite.Clone()

	out, err := s.PathRelink(current, elite)
	require.NoError(t, err)
	require.Same(t, elite, out)
	require.Equal(t, 2, out.Objective())
}

func TestPathRelinkMergesTargetsFromCurrent(t *testing.T) {
	s := testSolver(t, nil)
	base, err := NewSolution(requests(corridor(1, 0), corridor(2, 1), corridor(3, 0.5), corridor(4, 1.5)))
	require.NoError(t, err)
	elite := solutionOf(t, s, base, []int{1}, []int{2}, []int{3, 4})
	current := solutionOf(t, s, base, []int{1, 2}, []int{3}, []int{4})

	out, err := s.PathRelink(current, elite)
	require.NoError(t, err)
	require.Equal(t, 4, out.Objective())
	require.NoError(t, out.Validate(s.ins))
	require.Equal(t, out.routeOf(1), out.routeOf(2))
	require.Equal(t, out.routeOf(3), out.routeOf(4))

	require.Equal(t, 2, elite.Objective(), "elite must not change")
	require.Equal(t, 2, current.Objective(), "current must not change")
}

func TestPathRelinkInsertsTargetNextToItsPartner(t *testing.T) {
	s := testSolver(t, func(p *Params) { p.Capacity = 3 })
	base, err := NewSolution(requests(corridor(1, 0), corridor(2, 1), corridor(3, 0.5)))
	require.NoError(t, err)
	elite := solutionOf(t, s, base, []int{1}, []int{2, 3})
	current := solutionOf(t, s, base, []int{1, 2}, []int{3})

	// 2 is not a target, so 1 goes through targeted insertion, not merging
	out, err := s.PathRelink(current, elite)
	require.NoError(t, err)
	require.NoError(t, out.Validate(s.ins))
	require.Equal(t, 3, out.Objective())
	require.Len(t, out.Routes, 1)
	require.Equal(t, out.routeOf(2), out.routeOf(1))
	require.Equal(t, 2, elite.Objective(), "elite must not change")
}

// guidedInstance has 1 blocked from the route of its partner 2 by the late
// pickup of 3. Moving 2 next to 4 or 5 frees it.
func guidedInstance(t *testing.T, s *Solver) (current, elite *Solution) {
	t.Helper()
	base, err := NewSolution(requests(
		mkReq(1, pt(0, 0.2), pt(10, 0.2), win(0, 1), win(10, 12)),
		corridor(2, 0),
		mkReq(3, pt(0, 0.4), pt(10, 0.4), win(14, 16), win(24, 40)),
		corridor(4, 0.6),
		corridor(5, 0.8),
	))
	require.NoError(t, err)
	elite = solutionOf(t, s, base, []int{1}, []int{2, 3}, []int{4, 5})
	current = solutionOf(t, s, base, []int{1, 2}, []int{3, 4}, []int{5})
	require.Error(t, s.ins.Insert(elite.Routes[1].Clone(), base.Request(1)))
	return current, elite
}

func TestPathRelinkGuidedSwapOpensRoom(t *testing.T) {
	tweak := func(guided bool) func(*Params) {
		return func(p *Params) {
			p.Capacity = 3
			p.SwapAttempts = 50
			p.GuidedSwap = guided
		}
	}

	s := testSolver(t, tweak(false))
	current, elite := guidedInstance(t, s)
	out, err := s.PathRelink(current, elite)
	require.NoError(t, err)
	require.Same(t, current, out)

	s = testSolver(t, tweak(true))
	current, elite = guidedInstance(t, s)
	out, err = s.PathRelink(current, elite)
	require.NoError(t, err)
	require.NoError(t, out.Validate(s.ins))
	require.Equal(t, 5, out.Objective())
	require.Equal(t, out.routeOf(2), out.routeOf(1))
	require.NotEqual(t, out.routeOf(2), out.routeOf(3))
	require.Equal(t, 4, elite.Objective(), "elite must not change")
	require.Equal(t, 4, current.Objective(), "current must not change")
}

func TestDropPrivateReportsInvariant(t *testing.T) {
	s := testSolver(t, nil)
	base, err := NewSolution(requests(corridor(1, 0), corridor(2, 1)))
	require.NoError(t, err)
	sol := solutionOf(t, s, base, []int{1, 2})
	err = sol.dropPrivate(2)
	require.ErrorIs(t, err, ErrInvariant)
	var ie *InvariantError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, "served-once", ie.Invariant)
}

func TestPathRelinkKeepsCurrentWhenNotBetter(t *testing.T) {
	s := testSolver(t, nil)
	far := mkReq(3, pt(300, 300), pt(310, 300), win(500, 520), win(510, 540))
	base, err := NewSolution(requests(corridor(1, 0), corridor(2, 1), far))
	require.NoError(t, err)
	elite := solutionOf(t, s, base, []int{1}, []int{2}, []int{3})
	current := solutionOf(t, s, base, []int{1, 2}, []int{3})

	// both targets merge, which only ties current
	out, err := s.PathRelink(current, elite)
	require.NoError(t, err)
	require.Same(t, current, out)
}

func TestSolveReachesUpperBound(t *testing.T) {
	s := testSolver(t, func(p *Params) { p.GRASPIterations = 0 })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sol, m, err := s.Solve(ctx, requests(corridor(1, 0), corridor(2, 1)))
	require.NoError(t, err)
	require.True(t, sol.UpperBound())
	require.Equal(t, 1, m.Iterations)
	require.Equal(t, 2, m.BestObjective)
	require.Len(t, m.Snapshots, 1)
	require.True(t, m.Snapshots[0].Promoted)
}

func TestSolveRandomInstance(t *testing.T) {
	var seen []Snapshot
	p := DefaultParams()
	p.Seed = 11
	p.GRASPIterations = 4
	s, err := NewSolver(p, plane, WithProgress(func(sn Snapshot) { seen = append(seen, sn) }))
	require.NoError(t, err)

	reqs := randomRequests(50, 11)
	sol, m, err := s.Solve(context.Background(), reqs)
	require.NoError(t, err)
	require.NoError(t, sol.Validate(s.Inserter()))
	require.Equal(t, 50, sol.Len())
	require.LessOrEqual(t, m.Iterations, 4)
	require.Len(t, seen, m.Iterations)
	require.Equal(t, sol.Objective(), m.BestObjective)
	for i := 1; i < len(seen); i++ {
		require.GreaterOrEqual(t, seen[i].Elite, seen[i-1].Elite)
	}
	require.Positive(t, m.InsertAttempts)

	res := sol.Result(s.Inserter())
	require.Equal(t, 50, res.Requests)
	require.Equal(t, sol.Objective(), res.Objective)
	require.Len(t, res.Routes, len(sol.Routes))
	require.Len(t, res.Shared, sol.Objective())
}

func TestSolveIsReproducibleForASeed(t *testing.T) {
	reqs := randomRequests(40, 5)
	run := func() []string {
		s := testSolver(t, func(p *Params) { p.Seed = 99; p.GRASPIterations = 3 })
		sol, _, err := s.Solve(context.Background(), reqs)
		require.NoError(t, err)
		var out []string
		for _, rt := range sol.Routes {
			out = append(out, rt.String())
		}
		return out
	}
	require.Equal(t, run(), run())
}

func TestSolveCancellation(t *testing.T) {
	reqs := append(requests(corridor(1, 0), corridor(2, 1)),
		*mkReq(3, pt(300, 300), pt(310, 300), win(500, 520), win(510, 540)))

	t.Run("before start", func(t *testing.T) {
		s := testSolver(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sol, _, err := s.Solve(ctx, reqs)
		require.ErrorIs(t, err, context.Canceled)
		require.Nil(t, sol)
	})

	t.Run("between iterations", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p := DefaultParams()
		p.Seed = 3
		p.GRASPIterations = 0
		s, err := NewSolver(p, plane, WithProgress(func(Snapshot) { cancel() }))
		require.NoError(t, err)
		sol, m, err := s.Solve(ctx, reqs)
		require.NoError(t, err)
		require.Equal(t, 1, m.Iterations)
		require.NoError(t, sol.Validate(s.Inserter()))
		require.Equal(t, 2, sol.Objective())
	})
}

func TestSolveRejectsBadInput(t *testing.T) {
	unservable := mkReq(5, pt(0, 0), pt(10, 0), win(0, 1), win(0, 5))
	inverted := mkReq(6, pt(0, 0), pt(1, 0), win(10, 0), win(0, 50))
	still := mkReq(7, pt(3, 3), pt(3, 3), win(0, 10), win(0, 20))
	tests := []struct {
		name string
		reqs []model.Request
		want error
	}{
		{"empty", nil, ErrNoRequests},
		{"duplicate id", requests(corridor(1, 0), corridor(1, 1)), ErrDuplicateRequest},
		{"zero id", requests(corridor(0, 0)), ErrMalformedRequest},
		{"inverted window", requests(inverted), ErrMalformedRequest},
		{"no direct ride fits", requests(corridor(1, 0), unservable), ErrMalformedRequest},
		{"drop-off at pickup time", requests(corridor(1, 0), still), ErrMalformedRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := testSolver(t, nil)
			sol, _, err := s.Solve(context.Background(), tc.reqs)
			require.ErrorIs(t, err, tc.want)
			require.Nil(t, sol)
		})
	}
}

func TestNewSolverRejectsBadParams(t *testing.T) {
	tests := []struct {
		name  string
		tweak func(*Params)
	}{
		{"zero capacity", func(p *Params) { p.Capacity = 0 }},
		{"negative alpha", func(p *Params) { p.Alpha = -1 }},
		{"beta above one", func(p *Params) { p.Beta = 1.5 }},
		{"zero limitRCL", func(p *Params) { p.LimitRCL = 0 }},
		{"unknown method", func(p *Params) { p.Method = InsertionMethod(9) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultParams()
			tc.tweak(&p)
			_, err := NewSolver(p, plane)
			require.ErrorIs(t, err, ErrInvalidParams)
		})
	}
	_, err := NewSolver(DefaultParams(), nil)
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestParseInsertionMethod(t *testing.T) {
	for in, want := range map[string]InsertionMethod{"": Exhaustive, "IA": Exhaustive, "exhaustive": Exhaustive, "ib": Heuristic, " Heuristic ": Heuristic} {
		got, err := ParseInsertionMethod(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseInsertionMethod("regret")
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestSolutionValidateServedOnce(t *testing.T) {
	s := testSolver(t, nil)
	base, err := NewSolution(requests(corridor(1, 0), corridor(2, 1)))
	require.NoError(t, err)

	missing := solutionOf(t, s, base, []int{1}, []int{2})
	missing.removeRoute(1)
	var ie *InvariantError
	require.ErrorAs(t, missing.Validate(s.ins), &ie)
	require.Equal(t, "served-once", ie.Invariant)
	require.Equal(t, 2, ie.RequestID)

	twice := solutionOf(t, s, base, []int{1, 2})
	twice.Routes = append(twice.Routes, NewRoute(base.Request(2), 2, plane))
	require.ErrorIs(t, twice.Validate(s.ins), ErrInvariant)
}
