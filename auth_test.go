package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := testTokenService()
	cred, err := svc.CreateAccessToken("user@example.com")
	require.NoError(t, err)

	sub, ok := svc.VerifySubject(cred)
	require.True(t, ok)
	require.Equal(t, "user@example.com", sub)
}

func TestTokenServiceRejectsWrongSecret(t *testing.T) {
	svc := testTokenService()
	cred, err := svc.CreateAccessToken("user@example.com")
	require.NoError(t, err)

	other := NewTokenService([]byte("another-secret"), time.Hour, 24*time.Hour)
	_, ok := other.VerifySubject(cred)
	require.False(t, ok)
}

func TestTokenServiceRejectsTampering(t *testing.T) {
	svc := testTokenService()
	cred, err := svc.CreateAccessToken("user@example.com")
	require.NoError(t, err)

	parts := strings.Split(cred, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	_, ok := svc.VerifySubject(tampered)
	require.False(t, ok)

	_, ok = svc.VerifySubject("not-a-token")
	require.False(t, ok)
	_, ok = svc.VerifySubject("")
	require.False(t, ok)
}

func TestTokenServiceExpiry(t *testing.T) {
	svc := testTokenService()
	cred, err := svc.CreateAccessToken("user@example.com")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, ok := svc.VerifySubject(cred)
	require.False(t, ok)
}

func TestPasswordHashing(t *testing.T) {
	hash := testHash(t, "hunter2")
	require.True(t, comparePassword(hash, "hunter2"))
	require.False(t, comparePassword(hash, "hunter3"))
}
