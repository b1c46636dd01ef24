package store

import (
    "encoding/hex"
    "testing"

    "github.com/stretchr/testify/require"
)

func TestComputeDedupKeyFromID(t *testing.T) {
    body := []byte(`{"id":"evt_123","type":"run.completed"}`)
    require.Equal(t, "evt_123", computeDedupKey(body))
}

func TestComputeDedupKeyFromHash(t *testing.T) {
    body := []byte(`{"notId":"x"}`)
    got := computeDedupKey(body)
    // hex-encoded first 8 bytes -> 16 hex chars
    b, err := hex.DecodeString(got)
    require.NoError(t, err)
    require.Len(t, b, 8)
    require.Equal(t, got, computeDedupKey(body))
    require.NotEqual(t, got, computeDedupKey([]byte(`{"notId":"y"}`)))
}

func TestPQStringArray(t *testing.T) {
    require.Nil(t, pqStringArray(nil))
    require.Nil(t, pqStringArray([]string{}))
    require.Equal(t, []string{"a", "b"}, pqStringArray([]string{"a", "b"}))
}

func TestMigrationsEmbedded(t *testing.T) {
    b, err := migrations.ReadFile("migrations/001_init.sql")
    require.NoError(t, err)
    for _, table := range []string{"request_sets", "runs", "subscriptions", "webhook_deliveries", "webhook_dlq"} {
        require.Contains(t, string(b), "CREATE TABLE IF NOT EXISTS "+table)
    }
}
