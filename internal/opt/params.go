package opt

import (
	"fmt"
	"math"
	"strings"

	"darpm/internal/model"
)

// Metric is the geographic collaborator. Both functions must be
// deterministic, symmetric and non-negative. Distance doubles as cost.
type Metric interface {
	Distance(a, b model.GeoPoint) float64
	TravelTime(a, b model.GeoPoint) float64
}

// InsertionMethod selects how Insert picks among feasible positions.
type InsertionMethod int

const (
	// Exhaustive returns the first feasible (pickup, dropoff) pair in position order.
	Exhaustive InsertionMethod = iota
	// Heuristic returns the feasible pair with the smallest route delay.
	Heuristic
)

func (m InsertionMethod) String() string {
	switch m {
	case Exhaustive:
		return "exhaustive"
	case Heuristic:
		return "heuristic"
	}
	return fmt.Sprintf("InsertionMethod(%d)", int(m))
}

// ParseInsertionMethod accepts the method names and the historical IA/IB aliases.
func ParseInsertionMethod(s string) (InsertionMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exhaustive", "ia":
		return Exhaustive, nil
	case "heuristic", "ib":
		return Heuristic, nil
	}
	return 0, fmt.Errorf("%w: unknown insertion method %q", ErrInvalidParams, s)
}

type Params struct {
	Capacity              int             // seats per vehicle
	Alpha                 float64         // fair-share bound, pro-rata cost <= Alpha * direct cost
	Beta                  float64         // RCL width in [0,1]
	LimitRCL              float64         // fraction of the RCL tried per construction step, (0,1]
	GRASPIterations       int             // 0 means until the upper bound or the context ends
	LocalSearchIterations int             // per local search call
	InsertAttempts        int             // random routes sampled per pending request
	SwapAttempts          int             // retries per swap operation
	SwapFraction          float64         // swaps per plateau, as a fraction of the request count
	Method                InsertionMethod // insertion strategy used by local search and construction
	GuidedSwap            bool            // run the guided swap pass of path relinking
	Seed                  int64           // 0 picks a time-based seed
}

// DefaultParams mirrors the defaults of the batch experiments.
func DefaultParams() Params {
	return Params{
		Capacity:              2,
		Alpha:                 0.8,
		Beta:                  0.1,
		LimitRCL:              0.2,
		GRASPIterations:       10,
		LocalSearchIterations: 10,
		InsertAttempts:        5,
		SwapAttempts:          10,
		SwapFraction:          0.1,
		Method:                Exhaustive,
		GuidedSwap:            true,
	}
}

func (p Params) Validate() error {
	switch {
	case p.Capacity < 1:
		return fmt.Errorf("%w: capacity must be >= 1, got %d", ErrInvalidParams, p.Capacity)
	case !(p.Alpha > 0) || math.IsInf(p.Alpha, 0):
		return fmt.Errorf("%w: alpha must be > 0, got %v", ErrInvalidParams, p.Alpha)
	case p.Beta < 0 || p.Beta > 1:
		return fmt.Errorf("%w: beta must be in [0,1], got %v", ErrInvalidParams, p.Beta)
	case !(p.LimitRCL > 0) || p.LimitRCL > 1:
		return fmt.Errorf("%w: limitRCL must be in (0,1], got %v", ErrInvalidParams, p.LimitRCL)
	case p.GRASPIterations < 0, p.LocalSearchIterations < 0:
		return fmt.Errorf("%w: iteration counts must be >= 0", ErrInvalidParams)
	case p.InsertAttempts < 0, p.SwapAttempts < 0, p.SwapFraction < 0:
		return fmt.Errorf("%w: attempt budgets must be >= 0", ErrInvalidParams)
	case p.Method != Exhaustive && p.Method != Heuristic:
		return fmt.Errorf("%w: %s", ErrInvalidParams, p.Method)
	}
	return nil
}
