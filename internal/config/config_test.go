package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogLevelValidation(t *testing.T) {
	t.Setenv("DB_ADAPTER", "memory")

	t.Setenv("LOG_LEVEL", "verbose")
	_, err := New()
	require.Error(t, err)

	t.Setenv("LOG_LEVEL", "WARN")
	c, err := New()
	require.NoError(t, err)
	require.Equal(t, "warn", c.LogLevel)
}

func TestTokenLifetimesMustBePositive(t *testing.T) {
	t.Setenv("DB_ADAPTER", "memory")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "0")
	_, err := New()
	require.Error(t, err)
}
