// Copyright 2025 Sensemble ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ood exposes the out-of-distribution scoring primitives: the score
// policy, the score-set computations, and the OOD label convention.
//
// All scores share one sign convention: higher means more anomalous.
package ood

import (
	"github.com/sensemble-ml/sensemble/internal/ood"
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// Variant selects the entropy refinement included in the score set.
type Variant = ood.Variant

const (
	// TruncatedEntropy computes Shannon entropy over the top-K probabilities.
	TruncatedEntropy = ood.TruncatedEntropy

	// GeneralizedEntropy computes the generalized entropy score over the
	// top-K probabilities.
	GeneralizedEntropy = ood.GeneralizedEntropy
)

// Policy parameterizes the score set.
type Policy = ood.Policy

// ScoreSet maps a score kind to per-sample scores.
type ScoreSet = ood.ScoreSet

// DefaultPolicy returns the standard hyperparameters for a variant.
func DefaultPolicy(v Variant) Policy { return ood.DefaultPolicy(v) }

// Kinds returns the ordered score-kind names a policy produces.
func Kinds(p Policy) []string { return ood.Kinds(p) }

// SinglePass computes the deterministic one-forward-pass scores.
func SinglePass(logits *tensor.Tensor, p Policy) ScoreSet { return ood.SinglePass(logits, p) }

// Ensemble computes the ensemble scores from K probability matrices.
func Ensemble(probas []*tensor.Tensor, p Policy) ScoreSet { return ood.Ensemble(probas, p) }

// IsOOD derives binary out-of-distribution labels from integer class labels,
// where the sentinel value -1 marks an OOD sample.
func IsOOD(labels []int) []bool { return ood.IsOOD(labels) }
