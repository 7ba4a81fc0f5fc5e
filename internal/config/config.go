// Package config loads the Sensemble run configuration from YAML.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds a full Sensemble run configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Optim    OptimConfig    `yaml:"optim"`
	Data     DataConfig     `yaml:"data"`
	Trainer  TrainerConfig  `yaml:"trainer"`
	Tracking TrackingConfig `yaml:"tracking"`
	Seed     int64          `yaml:"seed"`
}

type ModelConfig struct {
	Architecture      string  `yaml:"architecture"` // mlp-tiny | mlp-small
	InputDim          int     `yaml:"input_dim"`
	DropoutRate       float32 `yaml:"dropout_rate"`
	DropChannelRate   float32 `yaml:"drop_channel_rate"`
	DropBlockRate     float32 `yaml:"drop_block_rate"`
	DropPathRate      float32 `yaml:"drop_path_rate"`
	PrototypeDim      int     `yaml:"prototype_dim"`
	NumPrototypes     int     `yaml:"num_prototypes"`
	Temp              float32 `yaml:"temp"`
	SharpenTemp       float32 `yaml:"sharpen_temp"`
	NumSinkhornIters  int     `yaml:"num_sinkhorn_iters"`
	SinkhornQueueSize int     `yaml:"sinkhorn_queue_size"`
	MemaxWeight       float32 `yaml:"memax_weight"`
	ScoreVariant      string  `yaml:"score_variant"` // truncated_entropy | generalized_entropy
	ConditionalMeans  bool    `yaml:"conditional_means"`
}

type OptimConfig struct {
	LR           float32 `yaml:"lr"`
	WeightDecay  float32 `yaml:"weight_decay"`
	WarmupEpochs int     `yaml:"warmup_epochs"`
}

type DataConfig struct {
	Dim         int     `yaml:"dim"` // defaults to model input_dim
	NumClasses  int     `yaml:"num_classes"`
	BatchSize   int     `yaml:"batch_size"`
	NumValViews int     `yaml:"num_val_views"`
	AugNoise    float32 `yaml:"aug_noise"`
	OODFraction float32 `yaml:"ood_fraction"`
}

type TrainerConfig struct {
	MaxEpochs            int `yaml:"max_epochs"`
	TrainBatchesPerEpoch int `yaml:"train_batches_per_epoch"`
	ValBatchesPerEpoch   int `yaml:"val_batches_per_epoch"`
}

type TrackingConfig struct {
	Console    bool   `yaml:"console"`    // log scalars through zap
	Prometheus bool   `yaml:"prometheus"` // expose scalars as gauges
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads configuration from a YAML file. A missing file yields the
// default configuration and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Model.Architecture == "" {
		cfg.Model.Architecture = "mlp-small"
	}
	if cfg.Model.InputDim == 0 {
		cfg.Model.InputDim = 64
	}
	if cfg.Model.ScoreVariant == "" {
		cfg.Model.ScoreVariant = "truncated_entropy"
	}
	if cfg.Data.Dim == 0 {
		cfg.Data.Dim = cfg.Model.InputDim
	}
	if cfg.Data.NumClasses == 0 {
		cfg.Data.NumClasses = 10
	}
	if cfg.Data.BatchSize == 0 {
		cfg.Data.BatchSize = 256
	}
	if cfg.Data.NumValViews == 0 {
		cfg.Data.NumValViews = 4
	}
	if cfg.Data.AugNoise == 0 {
		cfg.Data.AugNoise = 0.1
	}
	if cfg.Data.OODFraction == 0 {
		cfg.Data.OODFraction = 0.25
	}
	if cfg.Trainer.MaxEpochs == 0 {
		cfg.Trainer.MaxEpochs = 100
	}
	if cfg.Trainer.TrainBatchesPerEpoch == 0 {
		cfg.Trainer.TrainBatchesPerEpoch = 50
	}
	if cfg.Trainer.ValBatchesPerEpoch == 0 {
		cfg.Trainer.ValBatchesPerEpoch = 10
	}
	if cfg.Tracking.ListenAddr == "" {
		cfg.Tracking.ListenAddr = ":9090"
	}
}
