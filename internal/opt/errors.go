package opt

import (
	"errors"
	"fmt"
)

var (
	// ErrInfeasible means no position satisfies the route invariants.
	ErrInfeasible = errors.New("infeasible")
	// ErrBudgetExhausted means a bounded sampling loop ran out of tries.
	ErrBudgetExhausted = errors.New("attempt budget exhausted")
	// ErrUpperBound is a control signal: every request rides on a shared route.
	ErrUpperBound = errors.New("upper bound reached")
	// ErrDuplicateRequest is a contract violation: the request is already on the route
	// or appears twice in the input.
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrMalformedRequest marks input that no route could ever serve.
	ErrMalformedRequest = errors.New("malformed request")
	ErrInvalidParams    = errors.New("invalid solver parameters")
	ErrNoRequests       = errors.New("no requests")
	ErrInvariant        = errors.New("invariant violation")
)

// InvariantError reports a broken route or solution invariant. It always
// indicates a bug and aborts the run.
type InvariantError struct {
	Invariant string
	RequestID int
	Detail    string
}

func (e *InvariantError) Error() string {
	if e.RequestID != 0 {
		return fmt.Sprintf("invariant %s violated by request %d: %s", e.Invariant, e.RequestID, e.Detail)
	}
	return fmt.Sprintf("invariant %s violated: %s", e.Invariant, e.Detail)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

// recoverable reports whether err is a search dead end the caller should
// absorb by trying the next candidate.
func recoverable(err error) bool {
	return errors.Is(err, ErrInfeasible) || errors.Is(err, ErrBudgetExhausted)
}
