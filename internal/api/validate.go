package api

import (
    "fmt"
    "time"

    "darpm/internal/model"
    "darpm/internal/opt"
)

func validateRunRequest(req *model.RunRequest) error {
    if (req.RequestSetID == "") == (len(req.Requests) == 0) {
        return fmt.Errorf("%w: exactly one of requestSetId or requests is required", opt.ErrInvalidParams)
    }
    if req.TimeLimitMs < 0 {
        return fmt.Errorf("%w: timeLimitMs must be >= 0", opt.ErrInvalidParams)
    }
    if len(req.Requests) > 0 {
        return validateRequests(req.Requests)
    }
    return nil
}

// validateRequests checks ids and windows the way the engine will.
func validateRequests(reqs []model.Request) error {
    if len(reqs) == 0 {
        return opt.ErrNoRequests
    }
    _, err := opt.NewSolution(reqs)
    return err
}

// runParams overlays per-run overrides on the configured defaults.
func runParams(base opt.Params, o *model.SolverOverrides) (opt.Params, error) {
    if o == nil {
        return base, nil
    }
    p := base
    if o.Capacity != 0 {
        p.Capacity = o.Capacity
    }
    if o.Alpha != 0 {
        p.Alpha = o.Alpha
    }
    if o.Beta != 0 {
        p.Beta = o.Beta
    }
    if o.LimitRCL != 0 {
        p.LimitRCL = o.LimitRCL
    }
    if o.GRASPIterations != 0 {
        p.GRASPIterations = o.GRASPIterations
    }
    if o.LocalSearchIterations != 0 {
        p.LocalSearchIterations = o.LocalSearchIterations
    }
    if o.InsertAttempts != 0 {
        p.InsertAttempts = o.InsertAttempts
    }
    if o.SwapAttempts != 0 {
        p.SwapAttempts = o.SwapAttempts
    }
    if o.SwapFraction != 0 {
        p.SwapFraction = o.SwapFraction
    }
    if o.InsertionMethod != "" {
        m, err := opt.ParseInsertionMethod(o.InsertionMethod)
        if err != nil {
            return opt.Params{}, err
        }
        p.Method = m
    }
    if o.Seed != 0 {
        p.Seed = o.Seed
    }
    return p, p.Validate()
}

// timeLimit resolves the wall-clock budget of a run: the request's value or
// the configured default, capped by the server maximum.
func timeLimit(ms int, def, ceiling time.Duration) (time.Duration, error) {
    d := def
    if ms > 0 {
        d = time.Duration(ms) * time.Millisecond
    }
    if d <= 0 {
        return 0, fmt.Errorf("%w: no time limit configured", opt.ErrInvalidParams)
    }
    if ceiling > 0 && d > ceiling {
        return 0, fmt.Errorf("%w: timeLimitMs exceeds the maximum of %d", opt.ErrInvalidParams, ceiling.Milliseconds())
    }
    return d, nil
}
