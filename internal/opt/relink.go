package opt

import (
	"slices"
)

// PathRelink moves the elite solution towards current. Targets are requests
// pending in elite but shared in current; each is steered into the routes
// serving its partners from current. It returns the better of the relinked
// elite and current, or elite itself when there is nothing to relink.
// Neither input is modified. The only error is a broken invariant.
func (s *Solver) PathRelink(current, elite *Solution) (*Solution, error) {
	resolved := current.Pending()
	var targets []int
	for _, id := range elite.Pending() {
		if !slices.Contains(resolved, id) {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		return elite, nil
	}
	s.metrics.RelinkCalls++

	assoc := make(map[int][]int, len(targets))
	for _, id := range targets {
		assoc[id] = current.associates(id)
	}
	var merge, rest []int
	for _, id := range targets {
		if partnerOfTarget(id, targets, assoc) {
			merge = append(merge, id)
		} else {
			rest = append(rest, id)
		}
	}

	relinked := elite.Clone()
	if err := s.mergeTargets(relinked, merge, assoc); err != nil {
		return nil, err
	}
	s.insertGuided(relinked, rest, assoc)
	if s.Params.GuidedSwap {
		var left []int
		for _, id := range rest {
			if relinked.isPending(id) {
				left = append(left, id)
			}
		}
		if len(left) > 0 {
			relinked = s.guidedSwap(relinked, left, assoc)
			s.insertGuided(relinked, left, assoc)
		}
	}

	s.log.Debug().Int("targets", len(targets)).Int("relinked", relinked.Objective()).
		Int("current", current.Objective()).Msg("path relinking")
	if relinked.Objective() > current.Objective() {
		s.metrics.RelinkImprovements++
		return relinked, nil
	}
	return current, nil
}

// partnerOfTarget reports whether id shares a route in current with another target.
func partnerOfTarget(id int, targets []int, assoc map[int][]int) bool {
	for _, t := range targets {
		if t != id && slices.Contains(assoc[t], id) {
			return true
		}
	}
	return false
}

// mergeTargets pairs up targets that rode together in current. Both are
// pending in sol, so the partner is inserted into the private route of the
// first and its own private route is dropped. Each target is considered once.
func (s *Solver) mergeTargets(sol *Solution, merge []int, assoc map[int][]int) error {
	left := make(map[int]bool, len(merge))
	for _, id := range merge {
		left[id] = true
	}
	for _, r1 := range merge {
		if !left[r1] {
			continue
		}
		delete(left, r1)
		for _, r2 := range assoc[r1] {
			if !left[r2] {
				continue
			}
			delete(left, r2)
			if !sol.isPending(r2) {
				continue
			}
			host := sol.Routes[sol.routeOf(r1)]
			if err := s.ins.insertWith(host, sol.requests[r2], Heuristic); err != nil {
				continue
			}
			if err := sol.dropPrivate(r2); err != nil {
				return err
			}
		}
	}
	return nil
}

// insertGuided tries each pending request of ids only on the routes that
// serve its associates.
func (s *Solver) insertGuided(sol *Solution, ids []int, assoc map[int][]int) {
	for _, id := range ids {
		if !sol.isPending(id) {
			continue
		}
		own := sol.routeOf(id)
		for _, k := range sol.routesServing(assoc[id]) {
			if k == own {
				continue
			}
			if err := s.ins.Insert(sol.Routes[k], sol.requests[id]); err == nil {
				sol.removeRoute(own)
				break
			}
		}
	}
}

// guidedSwap reshuffles the routes of each pending request's associates,
// trying to open room for it. The first accepted swap per request wins.
func (s *Solver) guidedSwap(sol *Solution, ids []int, assoc map[int][]int) *Solution {
	for _, id := range ids {
		for _, a := range assoc[id] {
			if next, err := s.swapOne(sol, a, 0); err == nil {
				sol = next
				break
			}
		}
	}
	return sol
}
