// Package train drives the epoch loop around a training module.
package train

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sensemble-ml/sensemble/internal/data"
	"github.com/sensemble-ml/sensemble/internal/optim"
)

// Step is the lifecycle a trainable module implements. The trainer calls
// OnFitStart and ConfigureOptimizers once, then TrainingStep and
// ValidationStep per batch, and OnValidationEpochEnd after each validation
// sweep.
type Step interface {
	OnFitStart() error
	ConfigureOptimizers() (optim.Optimizer, *optim.LinearWarmupCosine, error)
	TrainingStep(batch *data.TrainBatch) error
	ValidationStep(batch *data.ValBatch) error
	OnValidationEpochEnd()
}

// Config sizes the training run.
type Config struct {
	MaxEpochs            int
	TrainBatchesPerEpoch int
	ValBatchesPerEpoch   int
	RunID                string // generated when empty
}

// Validate reports sizing errors.
func (c Config) Validate() error {
	if c.MaxEpochs < 1 {
		return fmt.Errorf("train: max epochs must be positive, got %d", c.MaxEpochs)
	}
	if c.TrainBatchesPerEpoch < 1 {
		return fmt.Errorf("train: train batches per epoch must be positive, got %d", c.TrainBatchesPerEpoch)
	}
	if c.ValBatchesPerEpoch < 0 {
		return fmt.Errorf("train: val batches per epoch must be >= 0, got %d", c.ValBatchesPerEpoch)
	}
	return nil
}

// Trainer runs the fit loop: per epoch it applies the learning-rate
// schedule, streams training batches, then validation batches, then the
// epoch-end hook.
type Trainer struct {
	cfg    Config
	step   Step
	source data.Source
	logger *zap.Logger
	runID  string
}

// New creates a trainer with a fresh run ID.
func New(cfg Config, step Step, source data.Source, logger *zap.Logger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Trainer{
		cfg:    cfg,
		step:   step,
		source: source,
		logger: logger,
		runID:  runID,
	}, nil
}

// RunID identifies this training run.
func (t *Trainer) RunID() string { return t.runID }

// Fit runs the full training loop. It returns early with the context error
// when ctx is canceled between batches.
func (t *Trainer) Fit(ctx context.Context) error {
	if err := t.step.OnFitStart(); err != nil {
		return err
	}
	opt, schedule, err := t.step.ConfigureOptimizers()
	if err != nil {
		return err
	}

	t.logger.Info("fit start",
		zap.String("run_id", t.runID),
		zap.Int("max_epochs", t.cfg.MaxEpochs),
	)

	for epoch := 0; epoch < t.cfg.MaxEpochs; epoch++ {
		schedule.Apply(opt, epoch)
		t.logger.Info("epoch start",
			zap.Int("epoch", epoch),
			zap.Float64("lr", float64(opt.LR())),
		)

		for i := 0; i < t.cfg.TrainBatchesPerEpoch; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := t.step.TrainingStep(t.source.TrainBatch()); err != nil {
				return fmt.Errorf("train: epoch %d batch %d: %w", epoch, i, err)
			}
		}

		for i := 0; i < t.cfg.ValBatchesPerEpoch; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := t.step.ValidationStep(t.source.ValBatch()); err != nil {
				return fmt.Errorf("train: epoch %d val batch %d: %w", epoch, i, err)
			}
		}
		if t.cfg.ValBatchesPerEpoch > 0 {
			t.step.OnValidationEpochEnd()
		}
	}

	t.logger.Info("fit done", zap.String("run_id", t.runID))
	return nil
}

// Validate runs a single validation sweep without training.
func (t *Trainer) Validate(ctx context.Context) error {
	if err := t.step.OnFitStart(); err != nil {
		return err
	}
	if _, _, err := t.step.ConfigureOptimizers(); err != nil {
		return err
	}
	for i := 0; i < t.cfg.ValBatchesPerEpoch; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.step.ValidationStep(t.source.ValBatch()); err != nil {
			return fmt.Errorf("train: val batch %d: %w", i, err)
		}
	}
	t.step.OnValidationEpochEnd()
	return nil
}
