// Copyright 2025 Sensemble ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package pretrain

import (
	"github.com/sensemble-ml/sensemble/internal/dist"
	"github.com/sensemble-ml/sensemble/internal/pretrain"
	"github.com/sensemble-ml/sensemble/internal/tracking"
)

// Config holds every Sensemble hyperparameter.
type Config = pretrain.Config

// Sensemble is the training module.
type Sensemble = pretrain.Sensemble

// New constructs a Sensemble module.
//
// Example:
//
//	model, err := pretrain.New(pretrain.Config{
//	    Architecture: "mlp-tiny",
//	    InputDim:     784,
//	    MaxEpochs:    50,
//	}, dist.SingleProcess{}, tracking.NopSink{})
func New(cfg Config, collective dist.Collective, sink tracking.Sink) (*Sensemble, error) {
	return pretrain.New(cfg, collective, sink)
}
