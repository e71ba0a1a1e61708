package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestLogLevelFiltering(t *testing.T) {
	cases := []struct {
		level    string
		status   int
		suppress bool
	}{
		{"", http.StatusOK, false},
		{"debug", http.StatusOK, false},
		{"info", http.StatusOK, false},
		{"warn", http.StatusOK, true},
		{"warn", http.StatusUnauthorized, false},
		{"error", http.StatusUnauthorized, true},
		{"error", http.StatusInternalServerError, false},
	}
	for _, c := range cases {
		require.Equal(t, c.suppress, suppressRequestLog(c.level, c.status), "%s/%d", c.level, c.status)
	}
}

func TestBearerTokenExtraction(t *testing.T) {
	req, _ := http.NewRequest("GET", "/", nil)
	_, ok := bearerToken(req)
	require.False(t, ok)

	req.Header.Set("Authorization", "Token abc")
	_, ok = bearerToken(req)
	require.False(t, ok)

	req.Header.Set("Authorization", "Bearer ")
	_, ok = bearerToken(req)
	require.False(t, ok)

	req.Header.Set("Authorization", "Bearer abc123")
	cred, ok := bearerToken(req)
	require.True(t, ok)
	require.Equal(t, "abc123", cred)
}
