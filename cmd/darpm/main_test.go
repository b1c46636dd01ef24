package main

import (
    "bytes"
    "context"
    "encoding/json"
    "io"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/rs/zerolog"
    "github.com/stretchr/testify/require"

    "darpm/internal/config"
    "darpm/internal/integrations"
    "darpm/internal/model"
    "darpm/internal/opt"
    "darpm/internal/store"
)

func twins() []model.Request {
    from := model.GeoPoint{Lat: 40.75, Lng: -73.99}
    to := model.GeoPoint{Lat: 40.76, Lng: -73.99}
    mk := func(id int) model.Request {
        return model.Request{ID: id, Pickup: model.TimeWindow{Earliest: 0, Latest: 100},
            Dropoff: model.TimeWindow{Earliest: 100, Latest: 400}, Origin: from, Destination: to}
    }
    return []model.Request{mk(1), mk(2)}
}

func TestParseFlags(t *testing.T) {
    o, err := parseFlags([]string{"-input", "trips.csv", "-method", "heuristic", "-time-limit", "2s", "-seed", "7", "-size", "50"}, io.Discard)
    require.NoError(t, err)

    cfg := config.Default()
    o.apply(&cfg)
    require.Equal(t, "trips.csv", cfg.Dataset.Path)
    require.Equal(t, "heuristic", cfg.Solver.InsertionMethod)
    require.Equal(t, 2*time.Second, cfg.Solver.TimeLimit)
    require.EqualValues(t, 7, cfg.Solver.Seed)
    require.Equal(t, 50, cfg.Dataset.TestSize)

    // unset flags keep the config
    o, err = parseFlags(nil, io.Discard)
    require.NoError(t, err)
    before := config.Default()
    after := before
    o.apply(&after)
    require.Equal(t, before, after)

    _, err = parseFlags([]string{"-input", "a.csv", "-load-checkpoint", "b.json"}, io.Discard)
    require.Error(t, err)
    _, err = parseFlags([]string{"extra"}, io.Discard)
    require.Error(t, err)
}

func TestRunFromCheckpoint(t *testing.T) {
    dir := t.TempDir()
    in := filepath.Join(dir, "in.json")
    require.NoError(t, integrations.WriteCheckpoint(in, model.RequestSet{Name: "twins", Requests: twins()}))

    cfg := config.Default()
    cfg.Solver.Seed = 1
    cfg.Solver.TimeLimit = 5 * time.Second
    o := options{loadCheckpoint: in, checkpoint: filepath.Join(dir, "copy.json"), output: filepath.Join(dir, "out.json"), size: -1}
    mem := store.NewMemory()

    var out bytes.Buffer
    require.NoError(t, run(context.Background(), cfg, o, mem, &out, zerolog.Nop()))
    require.Contains(t, out.String(), "best objective")
    require.Contains(t, out.String(), "100.0 %")

    copied, err := integrations.ReadCheckpoint(o.checkpoint)
    require.NoError(t, err)
    require.Equal(t, twins(), copied.Requests)

    b, err := os.ReadFile(o.output)
    require.NoError(t, err)
    var res model.RunResult
    require.NoError(t, json.Unmarshal(b, &res))
    require.Equal(t, 2, res.Objective)
    require.Len(t, res.Routes, 1)

    runs, _, err := mem.ListRuns(context.Background(), []string{model.RunCompleted}, "", 0)
    require.NoError(t, err)
    require.Len(t, runs, 1)
    require.Equal(t, 2, runs[0].Result.Objective)
}

func TestRunRejectsZeroTimeLimit(t *testing.T) {
    in := filepath.Join(t.TempDir(), "in.json")
    require.NoError(t, integrations.WriteCheckpoint(in, model.RequestSet{Requests: twins()}))

    cfg := config.Default()
    cfg.Solver.TimeLimit = 0
    // -time-limit 0 keeps the configured value, so the zero reaches validation
    o, err := parseFlags([]string{"-load-checkpoint", in, "-time-limit", "0"}, io.Discard)
    require.NoError(t, err)
    o.apply(&cfg)
    require.Zero(t, cfg.Solver.TimeLimit)

    err = run(context.Background(), cfg, o, nil, io.Discard, zerolog.Nop())
    require.ErrorIs(t, err, opt.ErrInvalidParams)
}

func TestRunNeedsInput(t *testing.T) {
    cfg := config.Default()
    err := run(context.Background(), cfg, options{size: -1}, nil, io.Discard, zerolog.Nop())
    require.ErrorContains(t, err, "no input")
}
