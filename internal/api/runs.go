package api

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/rs/zerolog"

    "darpm/internal/metrics"
    "darpm/internal/model"
    "darpm/internal/opt"
    "darpm/internal/report"
    "darpm/internal/webhooks"
)

const storeTimeout = 5 * time.Second

// CreateRunHandler handles POST /v1/runs. The run is solved in the
// background; the response carries its id for polling or streaming.
func (s *Server) CreateRunHandler(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.authorize(w, r, false); !ok { return }
    var req model.RunRequest
    if err := decodeJSON(w, r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateRunRequest(&req); err != nil {
        writeError(w, r, "Invalid run request", err)
        return
    }
    base, err := s.Cfg.Solver.Params()
    if err != nil {
        writeError(w, r, "Solver misconfigured", err)
        return
    }
    params, err := runParams(base, req.Solver)
    if err != nil {
        writeError(w, r, "Invalid solver parameters", err)
        return
    }
    limit, err := timeLimit(req.TimeLimitMs, s.Cfg.Solver.TimeLimit, s.Cfg.Server.MaxTimeLimit)
    if err != nil {
        writeError(w, r, "Invalid time limit", err)
        return
    }

    var set model.RequestSet
    if req.RequestSetID != "" {
        if set, err = s.Store.GetRequestSet(r.Context(), req.RequestSetID); err != nil {
            writeError(w, r, "Load request set failed", err)
            return
        }
        if err := validateRequests(set.Requests); err != nil {
            writeError(w, r, "Invalid request set", err)
            return
        }
    } else if set, err = s.Store.CreateRequestSet(r.Context(), model.RequestSet{Name: "inline", Requests: req.Requests}); err != nil {
        writeError(w, r, "Save requests failed", err)
        return
    }

    run, err := s.Store.CreateRun(r.Context(), model.Run{RequestSetID: set.ID, Status: model.RunPending})
    if err != nil {
        writeError(w, r, "Create run failed", err)
        return
    }
    s.startRun(run, set.Requests, params, limit)
    w.Header().Set("Location", "/v1/runs/"+run.ID)
    writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) GetRunHandler(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.authorize(w, r, false); !ok { return }
    run, err := s.Store.GetRun(r.Context(), r.PathValue("id"))
    if err != nil {
        writeError(w, r, "Get run failed", err)
        return
    }
    writeJSON(w, http.StatusOK, run)
}

// ListRunsHandler handles GET /v1/runs?status=completed,failed&cursor=&limit=
func (s *Server) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.authorize(w, r, false); !ok { return }
    var statuses []string
    if v := r.URL.Query().Get("status"); v != "" {
        statuses = strings.Split(v, ",")
    }
    cursor, limit := pageParams(r)
    items, next, err := s.Store.ListRuns(r.Context(), statuses, cursor, limit)
    if err != nil {
        writeError(w, r, "List runs failed", err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunReportHandler returns the summary statistics of a completed run.
func (s *Server) RunReportHandler(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.authorize(w, r, false); !ok { return }
    run, err := s.Store.GetRun(r.Context(), r.PathValue("id"))
    if err != nil {
        writeError(w, r, "Get run failed", err)
        return
    }
    if run.Status != model.RunCompleted || run.Result == nil {
        writeProblem(w, http.StatusConflict, "Run not completed", "status is "+run.Status, r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, report.Summarize(*run.Result))
}

// SolverConfigHandler returns the parameters a run uses when it overrides nothing.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
    c := s.Cfg.Solver
    writeJSON(w, http.StatusOK, map[string]any{
        "defaults": model.SolverOverrides{
            Capacity:              c.Capacity,
            Alpha:                 c.Alpha,
            Beta:                  c.Beta,
            LimitRCL:              c.LimitRCL,
            GRASPIterations:       c.GRASPIterations,
            LocalSearchIterations: c.LocalSearchIterations,
            InsertAttempts:        c.InsertAttempts,
            SwapAttempts:          c.SwapAttempts,
            SwapFraction:          c.SwapFraction,
            InsertionMethod:       c.InsertionMethod,
            Seed:                  c.Seed,
        },
        "guidedSwap":     c.GuidedSwap,
        "speedKph":       c.SpeedKph,
        "timeLimitMs":    c.TimeLimit.Milliseconds(),
        "maxTimeLimitMs": s.Cfg.Server.MaxTimeLimit.Milliseconds(),
    })
}

func (s *Server) startRun(run model.Run, reqs []model.Request, p opt.Params, limit time.Duration) {
    s.wg.Add(1)
    go func() {
        defer s.wg.Done()
        s.execute(run, reqs, p, limit)
    }()
}

// execute solves one run and records its outcome: store, metrics, progress
// stream and webhooks.
func (s *Server) execute(run model.Run, reqs []model.Request, p opt.Params, limit time.Duration) {
    log := s.Log.With().Str("run", run.ID).Logger()
    metrics.RunsInFlight.Inc()
    defer metrics.RunsInFlight.Dec()
    start := time.Now()

    ctx, cancel := context.WithTimeout(s.runCtx, limit)
    defer cancel()

    run.Status = model.RunRunning
    s.saveRun(run, log)
    s.Broker.Publish(run.ID, Event{Type: EventRunning, Data: map[string]any{"requests": len(reqs), "timeLimitMs": limit.Milliseconds()}})

    progress := func(sn opt.Snapshot) {
        metrics.GRASPIterations.Inc()
        typ := EventIteration
        if sn.Promoted {
            typ = EventElite
        }
        s.Broker.Publish(run.ID, Event{Type: typ, Data: map[string]any{
            "iteration": sn.Iteration, "objective": sn.Objective, "elite": sn.Elite, "elapsedMs": sn.Elapsed.Milliseconds(),
        }})
    }
    solver, err := opt.NewSolver(p, s.Metric, opt.WithLogger(log), opt.WithProgress(progress))
    if err != nil {
        s.failRun(run, err, start, log)
        return
    }
    sol, m, err := solver.Solve(ctx, reqs)
    metrics.InsertAttempts.Add(float64(m.InsertAttempts))
    metrics.Inserts.Add(float64(m.Inserts))
    if err == nil {
        err = sol.Validate(solver.Inserter())
    }
    if err != nil {
        s.failRun(run, err, start, log)
        return
    }

    res := sol.Result(solver.Inserter())
    res.Iterations = m.Iterations
    res.ElapsedMs = m.Elapsed.Milliseconds()
    run.Status = model.RunCompleted
    run.Result = &res
    s.saveRun(run, log)

    metrics.Runs.WithLabelValues(model.RunCompleted).Inc()
    metrics.RunDuration.WithLabelValues(model.RunCompleted).Observe(time.Since(start).Seconds())
    metrics.Objective.Set(float64(res.Objective))
    metrics.PoolingPercent.Set(res.PoolingPercent)

    s.Broker.Publish(run.ID, completedEvent(&res))
    ectx, ecancel := context.WithTimeout(context.Background(), storeTimeout)
    defer ecancel()
    s.Pub.Emit(ectx, webhooks.EventRunCompleted, map[string]any{
        "runId": run.ID, "requestSetId": run.RequestSetID, "summary": report.Summarize(res),
    })
    log.Info().Int("objective", res.Objective).Float64("pooling", res.PoolingPercent).
        Int("iterations", res.Iterations).Msg("run completed")
}

func (s *Server) failRun(run model.Run, cause error, start time.Time, log zerolog.Logger) {
    log.Error().Err(cause).Msg("run failed")
    run.Status = model.RunFailed
    run.Error = cause.Error()
    s.saveRun(run, log)
    metrics.Runs.WithLabelValues(model.RunFailed).Inc()
    metrics.RunDuration.WithLabelValues(model.RunFailed).Observe(time.Since(start).Seconds())
    s.Broker.Publish(run.ID, failedEvent(run.Error))
    ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
    defer cancel()
    s.Pub.Emit(ctx, webhooks.EventRunFailed, map[string]any{"runId": run.ID, "requestSetId": run.RequestSetID, "error": run.Error})
}

// saveRun persists run state outside the run's context so that the outcome
// of a cancelled run is still recorded.
func (s *Server) saveRun(run model.Run, log zerolog.Logger) {
    ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
    defer cancel()
    if err := s.Store.UpdateRun(ctx, run); err != nil {
        log.Error().Err(err).Str("status", run.Status).Msg("save run")
    }
}
