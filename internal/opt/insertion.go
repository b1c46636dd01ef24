package opt

import (
	"fmt"
	"math"
	"slices"

	"darpm/internal/model"
)

// eps absorbs float accumulation on boundary checks; boundary values are feasible.
const eps = 1e-6

// Inserter holds what every route edit needs: the metric, the fair-share
// bound and the insertion strategy.
type Inserter struct {
	Metric Metric
	Alpha  float64
	Method InsertionMethod

	metrics *Metrics
}

// Insert adds req to rt at the best position according to the insertion
// method. On failure rt is left untouched.
func (in *Inserter) Insert(rt *Route, req *model.Request) error {
	return in.insertWith(rt, req, in.Method)
}

func (in *Inserter) insertWith(rt *Route, req *model.Request, method InsertionMethod) error {
	if rt.Contains(req.ID) {
		return fmt.Errorf("%w: request %d already on route %s", ErrDuplicateRequest, req.ID, rt)
	}
	if in.metrics != nil {
		in.metrics.InsertAttempts++
	}
	n := len(rt.Stops)
	pu, do := pickupStop(req), dropoffStop(req)
	cand := make([]Stop, n+2)
	var best []Stop
	bestDelay := math.Inf(1)
	for p := 0; p <= n; p++ {
		for d := p + 1; d <= n+1; d++ {
			splice(cand, rt.Stops, p, d, pu, do)
			if !in.feasible(cand, rt.Capacity) {
				continue
			}
			if method == Exhaustive {
				rt.Stops = slices.Clone(cand)
				in.countInsert()
				return nil
			}
			if dl := in.delay(cand); dl < bestDelay {
				bestDelay = dl
				best = slices.Clone(cand)
			}
		}
	}
	if best == nil {
		return fmt.Errorf("%w: request %d into route %s", ErrInfeasible, req.ID, rt)
	}
	rt.Stops = best
	in.countInsert()
	return nil
}

func (in *Inserter) countInsert() {
	if in.metrics != nil {
		in.metrics.Inserts++
	}
}

// splice writes src into dst with pu at index p and do at index d (p < d).
func splice(dst, src []Stop, p, d int, pu, do Stop) {
	j := 0
	for k := range dst {
		switch k {
		case p:
			dst[k] = pu
		case d:
			dst[k] = do
		default:
			dst[k] = src[j]
			j++
		}
	}
}

// feasible propagates times into stops and checks, in order: capacity and
// continuous service, the fair-share bound, time windows, then that every
// drop-off comes strictly after its pickup.
func (in *Inserter) feasible(stops []Stop, capacity int) bool {
	propagate(stops, in.Metric)
	if !loadOK(stops, capacity) {
		return false
	}
	if len(stops) > 2 && in.fairShareViolation(stops) != 0 {
		return false
	}
	for _, s := range stops {
		if s.Time < s.Window.Earliest-eps || s.Time > s.Window.Latest+eps {
			return false
		}
	}
	return precedenceViolation(stops) == 0
}

// precedenceViolation returns the id of a request dropped off no later than
// it was picked up, or 0.
func precedenceViolation(stops []Stop) int {
	picked := make(map[int]float64, len(stops)/2)
	for _, s := range stops {
		if s.Kind == Pickup {
			picked[s.RequestID] = s.Time
			continue
		}
		if s.Time <= picked[s.RequestID] {
			return s.RequestID
		}
	}
	return 0
}

// loadOK checks that the onboard count stays in [0, capacity] and only
// reaches zero at the last stop.
func loadOK(stops []Stop, capacity int) bool {
	load := 0
	for i, s := range stops {
		if s.Kind == Pickup {
			load++
		} else {
			load--
		}
		if load > capacity || load < 0 {
			return false
		}
		if load == 0 && i != len(stops)-1 {
			return false
		}
	}
	return load == 0
}

// proRata returns, per request, the cost of each leg it rides divided by the
// number of passengers aboard on that leg.
func (in *Inserter) proRata(stops []Stop) map[int]float64 {
	cost := make(map[int]float64, len(stops)/2)
	onboard := make([]int, 0, 4)
	for i := 0; i < len(stops)-1; i++ {
		s := stops[i]
		if s.Kind == Pickup {
			onboard = append(onboard, s.RequestID)
		} else {
			onboard = slices.DeleteFunc(onboard, func(id int) bool { return id == s.RequestID })
		}
		if len(onboard) == 0 {
			continue
		}
		share := in.Metric.Distance(s.Location, stops[i+1].Location) / float64(len(onboard))
		for _, id := range onboard {
			cost[id] += share
		}
	}
	return cost
}

// directCosts maps each request to the cost of riding straight from its pickup to its drop-off.
func (in *Inserter) directCosts(stops []Stop) map[int]float64 {
	from := make(map[int]model.GeoPoint, len(stops)/2)
	out := make(map[int]float64, len(stops)/2)
	for _, s := range stops {
		if s.Kind == Pickup {
			from[s.RequestID] = s.Location
			continue
		}
		out[s.RequestID] = in.Metric.Distance(from[s.RequestID], s.Location)
	}
	return out
}

// fairShareViolation returns the id of a request paying more than Alpha
// times its direct cost, or 0.
func (in *Inserter) fairShareViolation(stops []Stop) int {
	shared := in.proRata(stops)
	for id, direct := range in.directCosts(stops) {
		if shared[id] > in.Alpha*direct+eps {
			return id
		}
	}
	return 0
}

// requestDelays maps each request to how much later it is dropped off than
// a direct ride would arrive (the drop-off window opening), floored at zero.
func requestDelays(stops []Stop) map[int]float64 {
	out := make(map[int]float64, len(stops)/2)
	for _, s := range stops {
		if s.Kind == Dropoff {
			out[s.RequestID] = math.Max(0, s.Time-s.Window.Earliest)
		}
	}
	return out
}

func (in *Inserter) delay(stops []Stop) float64 {
	if len(stops) <= 2 {
		return 0
	}
	total := 0.0
	for _, s := range stops {
		if s.Kind == Dropoff {
			total += math.Max(0, s.Time-s.Window.Earliest)
		}
	}
	return total
}

// Delay is the cumulative extra time the route's passengers spend because
// of sharing. A private route has no delay.
func (in *Inserter) Delay(rt *Route) float64 {
	return in.delay(rt.Stops)
}

// Validate checks all route invariants against the stored times. It never
// mutates the route.
func (in *Inserter) Validate(rt *Route) error {
	if err := checkPairing(rt.Stops); err != nil {
		return err
	}
	load := 0
	for i, s := range rt.Stops {
		if s.Kind == Pickup {
			load++
		} else {
			load--
		}
		if load > rt.Capacity {
			return &InvariantError{Invariant: "capacity", RequestID: s.RequestID, Detail: fmt.Sprintf("%d aboard, capacity %d", load, rt.Capacity)}
		}
		if load == 0 && i != len(rt.Stops)-1 {
			return &InvariantError{Invariant: "continuous-service", RequestID: s.RequestID, Detail: fmt.Sprintf("vehicle empty at stop %d of %d", i, len(rt.Stops))}
		}
		if i > 0 {
			prev := rt.Stops[i-1]
			if s.Time+eps < prev.Time+in.Metric.TravelTime(prev.Location, s.Location) {
				return &InvariantError{Invariant: "time-monotonicity", RequestID: s.RequestID, Detail: fmt.Sprintf("stop %d at %.1f unreachable from %.1f", i, s.Time, prev.Time)}
			}
		}
		if s.Time < s.Window.Earliest-eps || s.Time > s.Window.Latest+eps {
			return &InvariantError{Invariant: "time-window", RequestID: s.RequestID, Detail: fmt.Sprintf("%s at %.1f outside [%.1f, %.1f]", s.Kind, s.Time, s.Window.Earliest, s.Window.Latest)}
		}
	}
	if id := precedenceViolation(rt.Stops); id != 0 {
		return &InvariantError{Invariant: "precedence", RequestID: id, Detail: "drop-off not after pickup"}
	}
	if len(rt.Stops) > 2 {
		if id := in.fairShareViolation(rt.Stops); id != 0 {
			return &InvariantError{Invariant: "fair-share", RequestID: id, Detail: fmt.Sprintf("pro-rata cost above %.2f of direct cost", in.Alpha)}
		}
	}
	return nil
}

// checkPairing verifies each request appears exactly twice, pickup first.
func checkPairing(stops []Stop) error {
	if len(stops) == 0 || len(stops)%2 != 0 {
		return &InvariantError{Invariant: "pairing", Detail: fmt.Sprintf("route has %d stops", len(stops))}
	}
	seen := make(map[int]int, len(stops)/2)
	for _, s := range stops {
		n := seen[s.RequestID]
		switch {
		case n == 0 && s.Kind != Pickup:
			return &InvariantError{Invariant: "pairing", RequestID: s.RequestID, Detail: "drop-off before pickup"}
		case n == 1 && s.Kind != Dropoff:
			return &InvariantError{Invariant: "pairing", RequestID: s.RequestID, Detail: "second pickup"}
		case n >= 2:
			return &InvariantError{Invariant: "pairing", RequestID: s.RequestID, Detail: "served more than once"}
		}
		seen[s.RequestID] = n + 1
	}
	for id, n := range seen {
		if n != 2 {
			return &InvariantError{Invariant: "pairing", RequestID: id, Detail: "missing drop-off"}
		}
	}
	return nil
}

// SwapStops exchanges stops i and j of rt and keeps the result only if the
// route stays valid.
func (in *Inserter) SwapStops(rt *Route, i, j int) error {
	if i == j || i < 0 || j < 0 || i >= len(rt.Stops) || j >= len(rt.Stops) {
		return fmt.Errorf("%w: positions %d and %d", ErrInfeasible, i, j)
	}
	cand := slices.Clone(rt.Stops)
	cand[i], cand[j] = cand[j], cand[i]
	if checkPairing(cand) != nil || !in.feasible(cand, rt.Capacity) {
		return fmt.Errorf("%w: swapping stops %d and %d of %s", ErrInfeasible, i, j, rt)
	}
	rt.Stops = cand
	return nil
}

// Stats reports, for every request of a shared route, its delay, price
// saving and pickup advance. Private routes yield nothing.
func (in *Inserter) Stats(rt *Route) []model.RequestStat {
	if len(rt.Stops) <= 2 {
		return nil
	}
	delays := requestDelays(rt.Stops)
	shared := in.proRata(rt.Stops)
	pickups := make(map[int]Stop, len(rt.Stops)/2)
	var out []model.RequestStat
	for _, s := range rt.Stops {
		if s.Kind == Pickup {
			pickups[s.RequestID] = s
			continue
		}
		pu := pickups[s.RequestID]
		st := model.RequestStat{RequestID: s.RequestID, DelaySec: delays[s.RequestID]}
		if tt := in.Metric.TravelTime(pu.Location, s.Location); tt > 0 {
			st.DelayPercent = st.DelaySec * 100 / tt
		}
		if direct := in.Metric.Distance(pu.Location, s.Location); direct > 0 {
			st.SavingPercent = (1 - shared[s.RequestID]/direct) * 100
		}
		st.PickupAdvanceSec = math.Max(0, pu.Window.Latest-pu.Time)
		if width := pu.Window.Latest - pu.Window.Earliest; width > 0 {
			st.PickupAdvancePercent = st.PickupAdvanceSec * 100 / width
		}
		out = append(out, st)
	}
	return out
}
