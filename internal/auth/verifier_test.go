package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"darpm/internal/config"
)

func TestDevMode(t *testing.T) {
	v := NewVerifier(config.AuthConfig{})
	p, err := v.Verify("alice:Admin")
	require.NoError(t, err)
	require.Equal(t, Principal{Subject: "alice", Role: RoleAdmin}, p)
	require.True(t, p.IsAdmin())

	_, err = v.Verify("alice")
	require.Error(t, err)
}

func TestHMACMode(t *testing.T) {
	secret := []byte("s3cret")
	v := NewVerifier(config.AuthConfig{Mode: "hmac", HMACSecret: string(secret)})
	now := time.Unix(1_700_000_000, 0)
	v.now = func() time.Time { return now }

	tok, err := SignHS256(secret, map[string]any{"sub": "bob", "role": "admin", "exp": now.Add(time.Hour).Unix()})
	require.NoError(t, err)
	p, err := v.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "bob", p.Subject)
	require.True(t, p.IsAdmin())

	plain, _ := SignHS256(secret, map[string]any{"sub": "carol"})
	p, err = v.Verify(plain)
	require.NoError(t, err)
	require.Equal(t, RoleUser, p.Role)

	forged, _ := SignHS256([]byte("other"), map[string]any{"sub": "bob", "role": "admin"})
	_, err = v.Verify(forged)
	require.ErrorIs(t, err, ErrBadSignature)

	expired, _ := SignHS256(secret, map[string]any{"sub": "bob", "exp": now.Add(-time.Second).Unix()})
	_, err = v.Verify(expired)
	require.ErrorIs(t, err, ErrExpired)

	_, err = v.Verify("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}
