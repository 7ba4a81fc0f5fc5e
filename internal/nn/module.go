// Package nn implements the neural network building blocks used by the
// Sensemble pretraining model.
//
// Building blocks:
//   - Module interface: Forward + Parameters
//   - Parameter: trainable tensor with a name
//   - Linear: fully connected layer (Xavier init)
//   - ReLU, Dropout, ChannelDropout, DropPath: activations and stochastic
//     regularization
//   - MLP: the projection head
//   - Entropy / TruncatedEntropy / GeneralizedEntropy: uncertainty primitives
//
// Every forward pass receives an explicit Mode instead of mutating module
// state. Monte Carlo dropout at evaluation time is therefore a pure argument
// (EvalMCDropout) and cannot leak into later calls.
package nn

import (
	"github.com/sensemble-ml/sensemble/internal/autodiff"
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// Mode selects how stochastic regularization behaves during a forward pass.
type Mode int

const (
	// Train runs every stochastic layer (dropout, channel dropout,
	// stochastic depth) in sampling mode.
	Train Mode = iota

	// Eval runs fully deterministic inference.
	Eval

	// EvalMCDropout runs deterministic inference except for dropout-type
	// layers, which keep sampling. This is the Monte Carlo dropout mode used
	// by the ensemble OOD scores: repeated passes over the same input yield
	// different predictions.
	EvalMCDropout
)

func (m Mode) String() string {
	switch m {
	case Train:
		return "train"
	case Eval:
		return "eval"
	case EvalMCDropout:
		return "eval+mcdropout"
	default:
		return "unknown"
	}
}

// dropoutActive reports whether dropout-type layers sample in this mode.
func (m Mode) dropoutActive() bool { return m == Train || m == EvalMCDropout }

// dropPathActive reports whether stochastic depth samples in this mode.
// Unlike dropout it stays off under EvalMCDropout: the MC ensemble perturbs
// unit activations, not the network topology.
func (m Mode) dropPathActive() bool { return m == Train }

// Module is the base interface for all neural network components.
type Module interface {
	// Forward computes the module output. Operations are recorded on tape
	// when it is non-nil; a nil tape runs the same computation gradient-free.
	Forward(tape *autodiff.Tape, x *tensor.Tensor, mode Mode) *tensor.Tensor

	// Parameters returns all trainable parameters of this module, including
	// nested module parameters. Modules without trainable state return nil.
	Parameters() []*Parameter
}
