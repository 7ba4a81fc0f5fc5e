// Copyright 2025 Sensemble ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package pretrain provides the Sensemble self-supervised pretraining model.
//
// # Overview
//
// Sensemble learns representations by clustering augmented views against a
// bank of prototype vectors. A student pass predicts sharpened teacher
// assignments, the targets are balanced across workers with Sinkhorn-Knopp
// iterations over a sliding queue, and a max-entropy regularizer keeps the
// gathered prediction distribution from collapsing.
//
// # Basic Usage
//
//	import (
//	    "github.com/sensemble-ml/sensemble/internal/dist"
//	    "github.com/sensemble-ml/sensemble/internal/tracking"
//	    "github.com/sensemble-ml/sensemble/pretrain"
//	)
//
//	func main() {
//	    model, err := pretrain.New(pretrain.Config{
//	        Architecture: "mlp-small",
//	        InputDim:     3072,
//	        MaxEpochs:    100,
//	    }, dist.SingleProcess{}, tracking.NopSink{})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    // Drive with train.Trainer, or call the lifecycle directly:
//	    // model.OnFitStart(), model.ConfigureOptimizers(),
//	    // model.TrainingStep(batch), model.ValidationStep(batch),
//	    // model.OnValidationEpochEnd().
//	}
//
// During validation the model computes out-of-distribution scores from a
// deterministic pass, a Monte Carlo dropout ensemble, and an ensemble over
// augmented views, and tracks AUROC for every score kind.
package pretrain
