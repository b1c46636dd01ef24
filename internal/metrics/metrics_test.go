package metrics

import (
    "testing"

    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/require"
)

func TestRegisterDefaultIsIdempotent(t *testing.T) {
    RegisterDefault()
    RegisterDefault()

    Runs.WithLabelValues("completed").Inc()
    require.Equal(t, 1.0, testutil.ToFloat64(Runs.WithLabelValues("completed")))

    families, err := Registry.Gather()
    require.NoError(t, err)
    names := map[string]bool{}
    for _, f := range families {
        names[f.GetName()] = true
    }
    require.True(t, names["darpm_runs_total"])
    require.True(t, names["go_goroutines"])
}
