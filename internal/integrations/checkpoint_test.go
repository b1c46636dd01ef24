package integrations

import (
    "context"
    "os"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/require"

    "darpm/internal/model"
)

func TestCheckpointRoundTrip(t *testing.T) {
    path := filepath.Join(t.TempDir(), "instance.json")
    set := model.RequestSet{ID: "rs_1", Name: "jan-15", Requests: []model.Request{
        {ID: 1, Pickup: model.TimeWindow{Earliest: 0, Latest: 900}, Dropoff: model.TimeWindow{Earliest: 1000, Latest: 1900}},
        {ID: 2, Pickup: model.TimeWindow{Earliest: 10, Latest: 910}, Dropoff: model.TimeWindow{Earliest: 1200, Latest: 2100}},
    }}
    require.NoError(t, WriteCheckpoint(path, set))

    got, err := ReadCheckpoint(path)
    require.NoError(t, err)
    require.Equal(t, set.Requests, got.Requests)
    require.NotEmpty(t, got.CreatedAt)

    var src RequestSource = Checkpoint{Path: path, Limit: 1}
    reqs, err := src.Load(context.Background())
    require.NoError(t, err)
    require.Len(t, reqs, 1)
    require.Equal(t, 1, reqs[0].ID)
}

func TestReadCheckpointErrors(t *testing.T) {
    dir := t.TempDir()
    _, err := ReadCheckpoint(filepath.Join(dir, "missing.json"))
    require.Error(t, err)

    empty := filepath.Join(dir, "empty.json")
    require.NoError(t, os.WriteFile(empty, []byte(`{"requests":[]}`), 0o600))
    _, err = ReadCheckpoint(empty)
    require.Error(t, err)

    junk := filepath.Join(dir, "junk.json")
    require.NoError(t, os.WriteFile(junk, []byte(`{`), 0o600))
    _, err = ReadCheckpoint(junk)
    require.Error(t, err)
}
