//go:build postgres_integration

package store

import (
    "os"
    "testing"

    "github.com/stretchr/testify/require"

    "darpm/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := NewPostgres(dsn)
    require.NoError(t, err)
    defer p.Close()
    require.NoError(t, p.Ping(t.Context()))
    require.NoError(t, p.Migrate(t.Context()))
    require.NoError(t, p.Migrate(t.Context()), "migrations are idempotent")

    set, err := p.CreateRequestSet(t.Context(), model.RequestSet{Name: "it", Requests: []model.Request{
        {ID: 1, Pickup: model.TimeWindow{Earliest: 0, Latest: 10}, Dropoff: model.TimeWindow{Earliest: 20, Latest: 30}},
    }})
    require.NoError(t, err)
    got, err := p.GetRequestSet(t.Context(), set.ID)
    require.NoError(t, err)
    require.Equal(t, set.Requests, got.Requests)

    run, err := p.CreateRun(t.Context(), model.Run{RequestSetID: set.ID})
    require.NoError(t, err)
    run.Status = model.RunCompleted
    run.Result = &model.RunResult{Requests: 1, Objective: 1}
    require.NoError(t, p.UpdateRun(t.Context(), run))
    back, err := p.GetRun(t.Context(), run.ID)
    require.NoError(t, err)
    require.Equal(t, model.RunCompleted, back.Status)
    require.NotEmpty(t, back.FinishedAt)
    require.Equal(t, 1, back.Result.Objective)

    runs, _, err := p.ListRuns(t.Context(), []string{model.RunCompleted}, "", 10)
    require.NoError(t, err)
    require.NotEmpty(t, runs)
}
