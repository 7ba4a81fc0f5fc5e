// Copyright 2025 Sensemble ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the float32 CPU tensor used throughout Sensemble.
package tensor

import (
	"math/rand"

	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// Tensor is a dense row-major float32 matrix or vector.
type Tensor = tensor.Tensor

// Shape describes tensor dimensions.
type Shape = tensor.Shape

// New creates a zero-filled tensor.
func New(shape Shape) *Tensor { return tensor.New(shape) }

// Zeros creates a zero-filled tensor.
func Zeros(shape Shape) *Tensor { return tensor.Zeros(shape) }

// Ones creates a one-filled tensor.
func Ones(shape Shape) *Tensor { return tensor.Ones(shape) }

// FromSlice creates a tensor from data with the given shape.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// MustFromSlice creates a tensor from data, panicking on shape mismatch.
func MustFromSlice(data []float32, shape Shape) *Tensor {
	return tensor.MustFromSlice(data, shape)
}

// Randn creates a tensor with standard normal entries.
func Randn(shape Shape, rng *rand.Rand) *Tensor { return tensor.Randn(shape, rng) }
