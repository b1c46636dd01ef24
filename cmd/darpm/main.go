// Command darpm solves one static ride-sharing instance from a trip record
// file or a checkpoint and prints the pooling report.
package main

import (
    "context"
    "encoding/json"
    "errors"
    "flag"
    "fmt"
    "io"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"

    "darpm/internal/config"
    "darpm/internal/geo"
    "darpm/internal/integrations"
    "darpm/internal/integrations/nyctaxi"
    "darpm/internal/model"
    "darpm/internal/opt"
    "darpm/internal/report"
    "darpm/internal/store"
)

type options struct {
    configPath     string
    input          string
    checkpoint     string
    loadCheckpoint string
    output         string
    method         string
    timeLimit      time.Duration
    seed           int64
    size           int
    save           bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
    var o options
    fs := flag.NewFlagSet("darpm", flag.ContinueOnError)
    fs.SetOutput(stderr)
    fs.StringVar(&o.configPath, "config", os.Getenv("DARPM_CONFIG"), "path to a YAML config file")
    fs.StringVar(&o.input, "input", "", "NYC taxi trip record CSV (overrides dataset.path)")
    fs.StringVar(&o.checkpoint, "checkpoint", "", "write the loaded requests to this JSON file")
    fs.StringVar(&o.loadCheckpoint, "load-checkpoint", "", "solve the requests saved in this JSON file")
    fs.StringVar(&o.output, "output", "", "write the full result as JSON to this file")
    fs.StringVar(&o.method, "method", "", "insertion method: exhaustive or heuristic")
    fs.DurationVar(&o.timeLimit, "time-limit", 0, "wall clock budget (0 uses solver.timeLimit)")
    fs.Int64Var(&o.seed, "seed", 0, "random seed (0 uses solver.seed)")
    fs.IntVar(&o.size, "size", -1, "cap on the number of requests (-1 uses dataset.testSize)")
    fs.BoolVar(&o.save, "save", false, "persist the request set and run to DATABASE_URL")
    if err := fs.Parse(args); err != nil {
        return o, err
    }
    if fs.NArg() > 0 {
        return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
    }
    if o.input != "" && o.loadCheckpoint != "" {
        return o, errors.New("-input and -load-checkpoint are mutually exclusive")
    }
    return o, nil
}

// apply folds the command line overrides into cfg.
func (o options) apply(cfg *config.Config) {
    if o.input != "" {
        cfg.Dataset.Path = o.input
    }
    if o.method != "" {
        cfg.Solver.InsertionMethod = o.method
    }
    if o.timeLimit > 0 {
        cfg.Solver.TimeLimit = o.timeLimit
    }
    if o.seed != 0 {
        cfg.Solver.Seed = o.seed
    }
    if o.size >= 0 {
        cfg.Dataset.TestSize = o.size
    }
}

func source(cfg config.Config, o options, lg zerolog.Logger) (integrations.RequestSource, error) {
    if o.loadCheckpoint != "" {
        c := integrations.Checkpoint{Path: o.loadCheckpoint}
        if o.size > 0 {
            c.Limit = o.size
        }
        return c, nil
    }
    if cfg.Dataset.Path == "" {
        return nil, errors.New("no input: set -input, -load-checkpoint or dataset.path")
    }
    return nyctaxi.Adapter{Path: cfg.Dataset.Path, Opts: nyctaxi.Options{
        TimeWindow: cfg.Dataset.TimeWindow,
        Timeframe:  cfg.Dataset.Timeframe,
        TestSize:   cfg.Dataset.TestSize,
        SpeedKph:   cfg.Solver.SpeedKph,
        Log:        lg,
    }}, nil
}

// run loads the instance, solves it and writes the report to stdout. When st
// is not nil the request set and the finished run are stored there.
func run(ctx context.Context, cfg config.Config, o options, st store.Store, stdout io.Writer, lg zerolog.Logger) error {
    if err := cfg.Validate(); err != nil {
        return err
    }
    src, err := source(cfg, o, lg)
    if err != nil {
        return err
    }
    reqs, err := src.Load(ctx)
    if err != nil {
        return fmt.Errorf("load %s: %w", src.Name(), err)
    }
    if o.checkpoint != "" {
        if err := integrations.WriteCheckpoint(o.checkpoint, model.RequestSet{Name: src.Name(), Requests: reqs}); err != nil {
            return err
        }
        lg.Info().Str("path", o.checkpoint).Int("requests", len(reqs)).Msg("checkpoint written")
    }

    params, err := cfg.Solver.Params()
    if err != nil {
        return err
    }
    solver, err := opt.NewSolver(params, geo.NewHaversine(cfg.Solver.SpeedKph), opt.WithLogger(lg))
    if err != nil {
        return err
    }

    var runRec model.Run
    if st != nil {
        set, err := st.CreateRequestSet(ctx, model.RequestSet{Name: src.Name(), Requests: reqs})
        if err != nil {
            return fmt.Errorf("save request set: %w", err)
        }
        runRec, err = st.CreateRun(ctx, model.Run{RequestSetID: set.ID, Status: model.RunRunning})
        if err != nil {
            return fmt.Errorf("save run: %w", err)
        }
    }

    solveCtx, cancel := context.WithTimeout(ctx, cfg.Solver.TimeLimit)
    defer cancel()
    sol, m, err := solver.Solve(solveCtx, reqs)
    if err == nil {
        err = sol.Validate(solver.Inserter())
    }
    if err != nil {
        if st != nil {
            runRec.Status, runRec.Error = model.RunFailed, err.Error()
            if uerr := st.UpdateRun(context.WithoutCancel(ctx), runRec); uerr != nil {
                lg.Error().Err(uerr).Msg("save failed run")
            }
        }
        return fmt.Errorf("solve: %w", err)
    }

    res := sol.Result(solver.Inserter())
    res.Iterations = m.Iterations
    res.ElapsedMs = m.Elapsed.Milliseconds()
    if st != nil {
        runRec.Status, runRec.Result = model.RunCompleted, &res
        if err := st.UpdateRun(ctx, runRec); err != nil {
            return fmt.Errorf("save run: %w", err)
        }
        lg.Info().Str("run", runRec.ID).Msg("run saved")
    }
    if o.output != "" {
        b, err := json.MarshalIndent(res, "", "  ")
        if err != nil {
            return err
        }
        if err := os.WriteFile(o.output, b, 0o644); err != nil {
            return fmt.Errorf("write result: %w", err)
        }
    }
    return report.Write(stdout, report.Summarize(res))
}

func main() {
    log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

    o, err := parseFlags(os.Args[1:], os.Stderr)
    if errors.Is(err, flag.ErrHelp) {
        return
    }
    if err != nil {
        log.Fatal().Err(err).Msg("bad arguments")
    }
    cfg, err := config.Load(o.configPath)
    if err != nil {
        log.Fatal().Err(err).Msg("cannot load config")
    }
    o.apply(&cfg)
    log.Logger = cfg.Log.Logger(os.Stderr)

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    var st store.Store
    if o.save {
        if cfg.Database.URL == "" {
            log.Fatal().Msg("-save needs DATABASE_URL or database.url")
        }
        pg, err := store.NewPostgres(cfg.Database.URL)
        if err != nil {
            log.Fatal().Err(err).Msg("cannot connect to db")
        }
        defer pg.Close()
        if cfg.Database.Migrate {
            if err := pg.Migrate(ctx); err != nil {
                log.Fatal().Err(err).Msg("cannot migrate db")
            }
        }
        st = pg
    }

    if err := run(ctx, cfg, o, st, os.Stdout, log.Logger); err != nil {
        log.Error().Err(err).Msg("run failed")
        stop()
        os.Exit(1)
    }
}
