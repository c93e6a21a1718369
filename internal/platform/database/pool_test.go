package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legitify/internal/platform/config"
)

func TestNewWithoutURLSelectsInMemory(t *testing.T) {
	pool, err := New(context.Background(), config.DatabaseConfig{})
	require.NoError(t, err)
	assert.Nil(t, pool)
}

func TestNewRejectsMalformedURL(t *testing.T) {
	_, err := New(context.Background(), config.DatabaseConfig{URL: "postgres://%zz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database url")
}

func TestNilPool(t *testing.T) {
	var pool *Pool
	assert.ErrorIs(t, pool.Health(context.Background()), errNotConfigured)
	assert.NoError(t, pool.Close())
}
