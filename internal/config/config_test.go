package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "mlp-small", cfg.Model.Architecture)
	assert.Equal(t, cfg.Model.InputDim, cfg.Data.Dim)
	assert.NoError(t, Validate(cfg))
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  architecture: mlp-tiny
  input_dim: 32
  num_prototypes: 512
  score_variant: generalized_entropy
data:
  dim: 32
  batch_size: 64
trainer:
  max_epochs: 20
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mlp-tiny", cfg.Model.Architecture)
	assert.Equal(t, 512, cfg.Model.NumPrototypes)
	assert.Equal(t, "generalized_entropy", cfg.Model.ScoreVariant)
	assert.Equal(t, 64, cfg.Data.BatchSize)
	assert.Equal(t, 20, cfg.Trainer.MaxEpochs)
	// Untouched fields keep their defaults.
	assert.Equal(t, 4, cfg.Data.NumValViews)
	assert.NoError(t, Validate(cfg))
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	mutate := func(f func(*Config)) *Config {
		cfg := defaultConfig()
		f(cfg)
		return cfg
	}

	assert.Error(t, Validate(nil))
	assert.Error(t, Validate(mutate(func(c *Config) { c.Model.Architecture = "vit-huge" })))
	assert.Error(t, Validate(mutate(func(c *Config) { c.Model.InputDim = 0; c.Data.Dim = 0 })))
	assert.Error(t, Validate(mutate(func(c *Config) { c.Model.ScoreVariant = "renyi" })))
	assert.Error(t, Validate(mutate(func(c *Config) { c.Model.DropPathRate = 1.0 })))
	assert.Error(t, Validate(mutate(func(c *Config) { c.Model.SinkhornQueueSize = 8 })))
	assert.Error(t, Validate(mutate(func(c *Config) { c.Trainer.MaxEpochs = 0 })))
	assert.Error(t, Validate(mutate(func(c *Config) { c.Optim.WarmupEpochs = 1000 })))
	assert.Error(t, Validate(mutate(func(c *Config) { c.Data.Dim = 16 })))
	assert.Error(t, Validate(mutate(func(c *Config) { c.Data.OODFraction = 2 })))
}
