package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAroundRequiredFields(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/falprs")
	t.Setenv("DNN_INFERENCE_SERVER", "http://localhost:9000")

	cfg, err := Load("nonexistent-env")
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/falprs", cfg.Database.DSN)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Capture.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Inference.Timeout)
}

func TestLoadFailsWithoutRequiredFields(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("DNN_INFERENCE_SERVER", "")

	_, err := Load("nonexistent-env")
	assert.Error(t, err)
}
