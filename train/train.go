// Copyright 2025 Sensemble ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package train exposes the epoch-loop trainer.
package train

import (
	"go.uber.org/zap"

	"github.com/sensemble-ml/sensemble/internal/data"
	"github.com/sensemble-ml/sensemble/internal/train"
)

// Step is the lifecycle a trainable module implements.
type Step = train.Step

// Config sizes the training run.
type Config = train.Config

// Trainer runs the fit loop.
type Trainer = train.Trainer

// New creates a trainer.
//
// Example:
//
//	trainer, err := train.New(train.Config{
//	    MaxEpochs:            100,
//	    TrainBatchesPerEpoch: 50,
//	    ValBatchesPerEpoch:   10,
//	}, model, source, logger)
func New(cfg Config, step Step, source data.Source, logger *zap.Logger) (*Trainer, error) {
	return train.New(cfg, step, source, logger)
}
