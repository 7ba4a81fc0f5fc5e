package config

import (
	"errors"
	"fmt"
)

// Validate checks the loaded config for values the run cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	switch cfg.Model.Architecture {
	case "mlp-tiny", "mlp-small":
	default:
		return fmt.Errorf("model.architecture %q is not supported", cfg.Model.Architecture)
	}
	if cfg.Model.InputDim < 1 {
		return fmt.Errorf("model.input_dim must be positive, got %d", cfg.Model.InputDim)
	}
	switch cfg.Model.ScoreVariant {
	case "truncated_entropy", "generalized_entropy":
	default:
		return fmt.Errorf("model.score_variant %q is not supported", cfg.Model.ScoreVariant)
	}
	for _, r := range []struct {
		name string
		rate float32
	}{
		{"model.dropout_rate", cfg.Model.DropoutRate},
		{"model.drop_channel_rate", cfg.Model.DropChannelRate},
		{"model.drop_block_rate", cfg.Model.DropBlockRate},
		{"model.drop_path_rate", cfg.Model.DropPathRate},
	} {
		if r.rate < 0 || r.rate >= 1 {
			return fmt.Errorf("%s must be in [0, 1), got %v", r.name, r.rate)
		}
	}
	if cfg.Model.SinkhornQueueSize != 0 && cfg.Model.SinkhornQueueSize < cfg.Data.BatchSize {
		return fmt.Errorf("model.sinkhorn_queue_size %d is smaller than data.batch_size %d",
			cfg.Model.SinkhornQueueSize, cfg.Data.BatchSize)
	}

	if cfg.Trainer.MaxEpochs < 1 {
		return fmt.Errorf("trainer.max_epochs must be positive, got %d", cfg.Trainer.MaxEpochs)
	}
	if cfg.Optim.WarmupEpochs > cfg.Trainer.MaxEpochs {
		return fmt.Errorf("optim.warmup_epochs %d exceeds trainer.max_epochs %d",
			cfg.Optim.WarmupEpochs, cfg.Trainer.MaxEpochs)
	}

	if cfg.Data.Dim != cfg.Model.InputDim {
		return fmt.Errorf("data.dim %d does not match model.input_dim %d",
			cfg.Data.Dim, cfg.Model.InputDim)
	}
	if cfg.Data.OODFraction < 0 || cfg.Data.OODFraction > 1 {
		return fmt.Errorf("data.ood_fraction must be in [0, 1], got %v", cfg.Data.OODFraction)
	}

	return nil
}
