package opt

import (
	"math"
	"slices"

	"darpm/internal/model"
)

// dropoffPenalty replaces the drop-off slot estimate when the drop-off window
// cannot be met from a slot, so the request stays rankable.
const dropoffPenalty = 10000.0

// Build constructs a fresh solution over base's request table. Requests are
// visited in a random order; each step restricts the candidates to those
// whose greedy score lies within Beta of the best and tries a LimitRCL share
// of them against the newest route.
func (s *Solver) Build(base *Solution) *Solution {
	out := base.empty()
	pool := slices.Clone(base.ids)
	s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) == 0 {
		return out
	}
	cur := NewRoute(out.requests[pool[0]], s.Params.Capacity, s.Metric)
	out.Routes = append(out.Routes, cur)
	pool = pool[1:]
	for len(pool) > 0 {
		rcl := s.restricted(cur, pool, out.requests)
		tries := max(1, int(math.Round(float64(len(rcl))*s.Params.LimitRCL)))
		placed := -1
		for k := 0; k < len(rcl) && k < tries; k++ {
			if err := s.ins.Insert(cur, out.requests[rcl[k]]); err == nil {
				placed = rcl[k]
				break
			}
		}
		if placed >= 0 {
			pool = slices.DeleteFunc(pool, func(id int) bool { return id == placed })
			continue
		}
		cur = NewRoute(out.requests[pool[0]], s.Params.Capacity, s.Metric)
		out.Routes = append(out.Routes, cur)
		pool = pool[1:]
	}
	s.log.Debug().Int("routes", len(out.Routes)).Int("objective", out.Objective()).Msg("construction done")
	return out
}

// restricted returns the restricted candidate list: pool members whose greedy
// score against rt is within Beta of the best, in pool order.
func (s *Solver) restricted(rt *Route, pool []int, reqs map[int]*model.Request) []int {
	mu := make([]float64, len(pool))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, id := range pool {
		mu[i] = s.greedyScore(rt, reqs[id])
		lo = math.Min(lo, mu[i])
		hi = math.Max(hi, mu[i])
	}
	bound := lo + s.Params.Beta*(hi-lo)
	rcl := make([]int, 0, len(pool))
	for i, id := range pool {
		if mu[i] <= bound {
			rcl = append(rcl, id)
		}
	}
	return rcl
}

// greedyScore estimates the cost of serving req on rt: the cheapest pickup
// slot plus the cheapest drop-off slot, each priced as the travel-time detour
// between two consecutive stops.
func (s *Solver) greedyScore(rt *Route, req *model.Request) float64 {
	tt := s.Metric.TravelTime
	bestPU, bestDO := math.Inf(1), math.Inf(1)
	for i := 0; i+1 < len(rt.Stops); i++ {
		v, vn := rt.Stops[i], rt.Stops[i+1]
		direct := tt(v.Location, vn.Location)

		toO := tt(v.Location, req.Origin)
		pu := toO + tt(req.Origin, vn.Location) - direct
		if v.Time+toO < req.Pickup.Earliest {
			pu = req.Pickup.Earliest - v.Time + tt(req.Origin, vn.Location) - direct
		}
		bestPU = math.Min(bestPU, pu)

		toD := tt(v.Location, req.Destination)
		do := dropoffPenalty
		if v.Time+toD <= req.Dropoff.Latest {
			do = toD + tt(req.Destination, vn.Location) - direct
		}
		bestDO = math.Min(bestDO, do)
	}
	return bestPU + bestDO
}
