package opt

import (
	"fmt"
)

// LocalSearch improves sol by reinserting pending requests into other
// routes. When a pass does not raise the objective it perturbs the solution
// with random swaps before the next pass. sol itself is never modified; with
// zero iterations it is returned as is.
func (s *Solver) LocalSearch(sol *Solution) *Solution {
	cur := sol
	iters := s.Params.LocalSearchIterations
	swaps := int(s.Params.SwapFraction * float64(sol.Len()))
	for i := 0; i < iters; i++ {
		if cur.UpperBound() {
			break
		}
		next := cur.Clone()
		s.insertPending(next, next.Pending(), s.Params.InsertAttempts)
		if next.Objective() > cur.Objective() {
			s.log.Debug().Int("pass", i).Int("objective", next.Objective()).Msg("local search improved")
			cur = next
			continue
		}
		if i == iters-1 {
			break
		}
		for k := 0; k < swaps; k++ {
			if swapped, err := s.swapRandom(cur); err == nil {
				cur = swapped
			}
		}
	}
	return cur
}

// insertPending tries to move each still-pending request of ids into up to
// attempts randomly sampled routes of sol, edited in place. A request whose
// private route was already absorbed is skipped.
func (s *Solver) insertPending(sol *Solution, ids []int, attempts int) {
	for _, id := range ids {
		if !sol.isPending(id) {
			continue
		}
		own := sol.routeOf(id)
		req := sol.requests[id]
		for a := 0; a < attempts && len(sol.Routes) > 1; a++ {
			k := s.rng.Intn(len(sol.Routes))
			if k == own {
				continue
			}
			if err := s.ins.Insert(sol.Routes[k], req); err != nil {
				continue
			}
			sol.removeRoute(own)
			break
		}
	}
}

// Swap exchanges requests between two routes and returns the edited clone.
// With no ids it swaps random requests of two highly delayed routes; with one
// id it looks for a partner that lowers the delay of id's route; with two ids
// it swaps exactly those. sol is never modified.
func (s *Solver) Swap(sol *Solution, ids ...int) (*Solution, error) {
	switch len(ids) {
	case 0:
		return s.swapRandom(sol)
	case 1:
		return s.swapOne(sol, ids[0], 0)
	case 2:
		return s.swapPair(sol, ids[0], ids[1])
	}
	return nil, fmt.Errorf("%w: swap takes at most two requests, got %d", ErrInvalidParams, len(ids))
}

func (s *Solver) swapRandom(sol *Solution) (*Solution, error) {
	if len(sol.Routes) < 2 {
		return nil, fmt.Errorf("%w: need two routes to swap", ErrInfeasible)
	}
	s.metrics.Swaps++
	ranked := sol.rankByDelay(s.ins)
	pool := ranked
	if top := max(2, s.Params.SwapAttempts/2); top < len(ranked) {
		pool = ranked[:top]
	}
	for a := 0; a < max(1, s.Params.SwapAttempts); a++ {
		i := pool[s.rng.Intn(len(pool))]
		j := pool[s.rng.Intn(len(pool))]
		if i == j {
			continue
		}
		next := sol.Clone()
		if err := s.crossSwap(next, i, s.pick(next.Routes[i]), j, s.pick(next.Routes[j])); err != nil {
			continue
		}
		s.metrics.SwapSuccesses++
		return next, nil
	}
	return nil, fmt.Errorf("%w: random swap", ErrBudgetExhausted)
}

func (s *Solver) swapPair(sol *Solution, a, b int) (*Solution, error) {
	i, j := sol.routeOf(a), sol.routeOf(b)
	if i < 0 || j < 0 {
		return nil, fmt.Errorf("%w: request %d or %d is not served", ErrInfeasible, a, b)
	}
	if i == j {
		return nil, fmt.Errorf("%w: requests %d and %d share a route", ErrInfeasible, a, b)
	}
	s.metrics.Swaps++
	next := sol.Clone()
	if err := s.crossSwap(next, i, a, j, b); err != nil {
		return nil, err
	}
	s.metrics.SwapSuccesses++
	return next, nil
}

// swapOne swaps id with a random request of a random shared route and keeps
// the result only if the delay of id's original route drops by more than
// minImprovement.
func (s *Solver) swapOne(sol *Solution, id int, minImprovement float64) (*Solution, error) {
	i := sol.routeOf(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: request %d is not served", ErrInfeasible, id)
	}
	s.metrics.Swaps++
	before := s.ins.Delay(sol.Routes[i])
	for a := 0; a < s.Params.SwapAttempts; a++ {
		j := s.rng.Intn(len(sol.Routes))
		if j == i || sol.Routes[j].Private() {
			continue
		}
		next := sol.Clone()
		if err := s.crossSwap(next, i, id, j, s.pick(next.Routes[j])); err != nil {
			continue
		}
		if s.ins.Delay(next.Routes[i]) < before-minImprovement {
			s.metrics.SwapSuccesses++
			return next, nil
		}
	}
	return nil, fmt.Errorf("%w: no improving swap for request %d", ErrBudgetExhausted, id)
}

// crossSwap moves a from route i to route j and b from j to i. sol must be a
// private clone: on error it is left half edited and must be discarded.
func (s *Solver) crossSwap(sol *Solution, i, a, j, b int) error {
	ri, rj := sol.Routes[i], sol.Routes[j]
	if !ri.Remove(a) || !rj.Remove(b) {
		return &InvariantError{Invariant: "served-once", RequestID: a, Detail: fmt.Sprintf("swap partner %d not on expected route", b)}
	}
	if err := s.ins.Insert(ri, sol.requests[b]); err != nil {
		return err
	}
	if err := s.ins.Insert(rj, sol.requests[a]); err != nil {
		return err
	}
	sol.compact()
	return nil
}

// pick returns a random request served by rt.
func (s *Solver) pick(rt *Route) int {
	ids := rt.RequestIDs()
	return ids[s.rng.Intn(len(ids))]
}
