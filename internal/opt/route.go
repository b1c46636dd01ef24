package opt

import (
	"fmt"
	"slices"

	"darpm/internal/model"
)

type StopKind uint8

const (
	Pickup StopKind = iota
	Dropoff
)

func (k StopKind) String() string {
	if k == Pickup {
		return "pickup"
	}
	return "dropoff"
}

// Stop is one visit of a vehicle. Location and Window are copies of the
// request's pickup or drop-off data; Time is recomputed on every edit.
type Stop struct {
	RequestID int
	Kind      StopKind
	Location  model.GeoPoint
	Window    model.TimeWindow
	Time      float64
}

func pickupStop(r *model.Request) Stop {
	return Stop{RequestID: r.ID, Kind: Pickup, Location: r.Origin, Window: r.Pickup}
}

func dropoffStop(r *model.Request) Stop {
	return Stop{RequestID: r.ID, Kind: Dropoff, Location: r.Destination, Window: r.Dropoff}
}

// Route is the ordered stop sequence of one vehicle ("taxi").
type Route struct {
	Capacity int
	Stops    []Stop
}

// NewRoute starts a private route serving req alone.
func NewRoute(req *model.Request, capacity int, m Metric) *Route {
	rt := &Route{Capacity: capacity, Stops: []Stop{pickupStop(req), dropoffStop(req)}}
	propagate(rt.Stops, m)
	return rt
}

// Private reports whether the route serves a single request.
func (r *Route) Private() bool { return len(r.Stops) == 2 }

// Empty reports whether the last request has been removed.
func (r *Route) Empty() bool { return len(r.Stops) == 0 }

// Size is the number of requests served.
func (r *Route) Size() int { return len(r.Stops) / 2 }

func (r *Route) Contains(id int) bool {
	for _, s := range r.Stops {
		if s.RequestID == id {
			return true
		}
	}
	return false
}

// RequestIDs lists the served requests in pickup order.
func (r *Route) RequestIDs() []int {
	out := make([]int, 0, len(r.Stops)/2)
	for _, s := range r.Stops {
		if s.Kind == Pickup {
			out = append(out, s.RequestID)
		}
	}
	return out
}

// First returns the request picked up first. The route must not be empty.
func (r *Route) First() int { return r.Stops[0].RequestID }

func (r *Route) Clone() *Route {
	return &Route{Capacity: r.Capacity, Stops: slices.Clone(r.Stops)}
}

// Remove deletes both stops of id. Times are left as they were; the next
// insertion re-propagates the whole sequence.
func (r *Route) Remove(id int) bool {
	n := len(r.Stops)
	r.Stops = slices.DeleteFunc(r.Stops, func(s Stop) bool { return s.RequestID == id })
	return len(r.Stops) != n
}

func (r *Route) String() string {
	b := make([]byte, 0, len(r.Stops)*8)
	b = append(b, '[')
	for i, s := range r.Stops {
		if i > 0 {
			b = append(b, ' ')
		}
		sign := '+'
		if s.Kind == Dropoff {
			sign = '-'
		}
		b = fmt.Appendf(b, "%c%d@%.0f", sign, s.RequestID, s.Time)
	}
	return string(append(b, ']'))
}

// propagate schedules every stop as early as its window and the travel time
// from its predecessor allow. Upstream times never depend on downstream stops.
func propagate(stops []Stop, m Metric) {
	for i := range stops {
		t := stops[i].Window.Earliest
		if i > 0 {
			if arr := stops[i-1].Time + m.TravelTime(stops[i-1].Location, stops[i].Location); arr > t {
				t = arr
			}
		}
		stops[i].Time = t
	}
}
