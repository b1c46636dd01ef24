package opt

import (
	"fmt"
	"slices"
	"sort"

	"darpm/internal/model"
)

// Solution partitions the request set into routes. The request table is
// read-only and shared by every clone.
type Solution struct {
	requests map[int]*model.Request
	ids      []int
	Routes   []*Route
}

// NewSolution indexes reqs without assigning any route. It rejects
// duplicate ids, non-positive ids and inverted windows.
func NewSolution(reqs []model.Request) (*Solution, error) {
	owned := slices.Clone(reqs)
	s := &Solution{requests: make(map[int]*model.Request, len(owned)), ids: make([]int, 0, len(owned))}
	for i := range owned {
		r := &owned[i]
		if r.ID <= 0 {
			return nil, fmt.Errorf("%w: id %d must be positive", ErrMalformedRequest, r.ID)
		}
		if _, dup := s.requests[r.ID]; dup {
			return nil, fmt.Errorf("%w: id %d appears twice in the input", ErrDuplicateRequest, r.ID)
		}
		if r.Pickup.Earliest > r.Pickup.Latest || r.Dropoff.Earliest > r.Dropoff.Latest {
			return nil, fmt.Errorf("%w: request %d has an inverted time window", ErrMalformedRequest, r.ID)
		}
		s.requests[r.ID] = r
		s.ids = append(s.ids, r.ID)
	}
	return s, nil
}

// empty returns a solution over the same request table with no routes.
func (s *Solution) empty() *Solution {
	return &Solution{requests: s.requests, ids: s.ids}
}

// Request looks up a request by id.
func (s *Solution) Request(id int) *model.Request { return s.requests[id] }

// Len is the number of requests to serve.
func (s *Solution) Len() int { return len(s.ids) }

// Objective counts requests that do not ride alone.
func (s *Solution) Objective() int {
	private := 0
	for _, rt := range s.Routes {
		if rt.Private() {
			private++
		}
	}
	return len(s.ids) - private
}

// UpperBound reports whether every request is on a shared route.
func (s *Solution) UpperBound() bool { return s.Objective() == len(s.ids) }

// Pending lists, in ascending order, the requests alone on a private route.
func (s *Solution) Pending() []int {
	var out []int
	for _, rt := range s.Routes {
		if rt.Private() {
			out = append(out, rt.First())
		}
	}
	sort.Ints(out)
	return out
}

func (s *Solution) isPending(id int) bool {
	i := s.routeOf(id)
	return i >= 0 && s.Routes[i].Private()
}

// Clone deep-copies the routes; the request table stays shared.
func (s *Solution) Clone() *Solution {
	out := s.empty()
	out.Routes = make([]*Route, len(s.Routes))
	for i, rt := range s.Routes {
		out.Routes[i] = rt.Clone()
	}
	return out
}

// routeOf returns the index of the route serving id, or -1.
func (s *Solution) routeOf(id int) int {
	for i, rt := range s.Routes {
		if rt.Contains(id) {
			return i
		}
	}
	return -1
}

// associates lists the other requests sharing id's route.
func (s *Solution) associates(id int) []int {
	i := s.routeOf(id)
	if i < 0 {
		return nil
	}
	return slices.DeleteFunc(s.Routes[i].RequestIDs(), func(o int) bool { return o == id })
}

// routesServing returns the distinct indices of routes serving any of ids, in ids order.
func (s *Solution) routesServing(ids []int) []int {
	var out []int
	for _, id := range ids {
		if i := s.routeOf(id); i >= 0 && !slices.Contains(out, i) {
			out = append(out, i)
		}
	}
	return out
}

func (s *Solution) removeRoute(i int) {
	s.Routes = slices.Delete(s.Routes, i, i+1)
}

// dropPrivate deletes the private route of id after id moved elsewhere.
func (s *Solution) dropPrivate(id int) error {
	for i, rt := range s.Routes {
		if rt.Private() && rt.First() == id {
			s.removeRoute(i)
			return nil
		}
	}
	return &InvariantError{Invariant: "served-once", RequestID: id, Detail: "no private route left to drop"}
}

// compact discards routes whose last request was removed.
func (s *Solution) compact() {
	s.Routes = slices.DeleteFunc(s.Routes, (*Route).Empty)
}

// rankByDelay returns route indices sorted by decreasing delay, the most
// constrained first.
func (s *Solution) rankByDelay(in *Inserter) []int {
	delays := make([]float64, len(s.Routes))
	idx := make([]int, len(s.Routes))
	for i, rt := range s.Routes {
		idx[i] = i
		delays[i] = in.Delay(rt)
	}
	sort.SliceStable(idx, func(a, b int) bool { return delays[idx[a]] > delays[idx[b]] })
	return idx
}

// Validate checks that every request is served exactly once and that every
// route satisfies its invariants.
func (s *Solution) Validate(in *Inserter) error {
	served := make(map[int]int, len(s.ids))
	for _, rt := range s.Routes {
		if err := in.Validate(rt); err != nil {
			return err
		}
		for _, id := range rt.RequestIDs() {
			if _, ok := s.requests[id]; !ok {
				return &InvariantError{Invariant: "served-once", RequestID: id, Detail: "unknown request"}
			}
			served[id]++
		}
	}
	for _, id := range s.ids {
		switch served[id] {
		case 1:
		case 0:
			return &InvariantError{Invariant: "served-once", RequestID: id, Detail: "not served"}
		default:
			return &InvariantError{Invariant: "served-once", RequestID: id, Detail: fmt.Sprintf("served %d times", served[id])}
		}
	}
	return nil
}

// Result converts the solution into its reporting form.
func (s *Solution) Result(in *Inserter) model.RunResult {
	res := model.RunResult{Requests: s.Len(), Objective: s.Objective(), Routes: make([]model.RouteOut, 0, len(s.Routes))}
	if s.Len() > 0 {
		res.PoolingPercent = float64(res.Objective) * 100 / float64(s.Len())
	}
	for i, rt := range s.Routes {
		out := model.RouteOut{Seq: i + 1, Delay: in.Delay(rt), Stops: make([]model.StopOut, len(rt.Stops))}
		for k, st := range rt.Stops {
			out.Stops[k] = model.StopOut{RequestID: st.RequestID, Kind: st.Kind.String(), Time: st.Time, Location: st.Location}
		}
		res.Routes = append(res.Routes, out)
		res.Shared = append(res.Shared, in.Stats(rt)...)
	}
	return res
}
