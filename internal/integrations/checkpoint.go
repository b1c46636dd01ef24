package integrations

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    "darpm/internal/model"
)

// Checkpoint is a request set saved as JSON so a run can be replayed on the
// exact same instance.
type Checkpoint struct {
    Path  string
    Limit int // keep only the first Limit requests; 0 keeps all
}

func (c Checkpoint) Name() string { return "checkpoint" }

func (c Checkpoint) Load(ctx context.Context) ([]model.Request, error) {
    set, err := ReadCheckpoint(c.Path)
    if err != nil {
        return nil, err
    }
    reqs := set.Requests
    if c.Limit > 0 && len(reqs) > c.Limit {
        reqs = reqs[:c.Limit]
    }
    return reqs, ctx.Err()
}

func ReadCheckpoint(path string) (model.RequestSet, error) {
    var set model.RequestSet
    b, err := os.ReadFile(path)
    if err != nil {
        return set, fmt.Errorf("read checkpoint: %w", err)
    }
    if err := json.Unmarshal(b, &set); err != nil {
        return set, fmt.Errorf("decode checkpoint %s: %w", path, err)
    }
    if len(set.Requests) == 0 {
        return set, errors.New("checkpoint holds no requests")
    }
    return set, nil
}

// WriteCheckpoint stores set at path, replacing any previous file atomically.
func WriteCheckpoint(path string, set model.RequestSet) error {
    if set.CreatedAt == "" {
        set.CreatedAt = time.Now().UTC().Format(time.RFC3339)
    }
    b, err := json.MarshalIndent(set, "", "  ")
    if err != nil {
        return err
    }
    tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
    if err != nil {
        return fmt.Errorf("write checkpoint: %w", err)
    }
    defer os.Remove(tmp.Name())
    if _, err := tmp.Write(b); err != nil {
        tmp.Close()
        return fmt.Errorf("write checkpoint: %w", err)
    }
    if err := tmp.Close(); err != nil {
        return fmt.Errorf("write checkpoint: %w", err)
    }
    return os.Rename(tmp.Name(), path)
}
