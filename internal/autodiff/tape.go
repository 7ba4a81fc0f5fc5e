// Package autodiff implements reverse-mode automatic differentiation for the
// Sensemble training objective.
//
// Architecture:
//   - Tape: records operations during the forward pass
//   - Operation interface: each op (MatMulT, ReLU, SoftCrossEntropy, ...)
//     implements its own backward pass
//   - Backward: walks the tape in reverse and accumulates gradients into a
//     map keyed by tensor identity
//
// Forward functions in this package take the tape as their first argument.
// A nil tape disables recording, which is how the gradient-free paths
// (teacher forward pass, OOD scoring) run the exact same model code.
//
// Usage:
//
//	tape := autodiff.NewTape()
//	logits := autodiff.MatMulT(tape, embeds, prototypes)
//	loss := autodiff.SoftCrossEntropy(tape, logits, targets)
//	grads := tape.Backward(loss)
package autodiff

import (
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// Operation is a single differentiable step recorded on the tape.
//
// Backward receives the gradient of the loss with respect to the operation's
// output and returns gradients with respect to each input, in input order.
// A nil entry means no gradient flows to that input.
type Operation interface {
	Inputs() []*tensor.Tensor
	Output() *tensor.Tensor
	Backward(outputGrad *tensor.Tensor) []*tensor.Tensor
}

// Grads maps a tensor to the accumulated gradient of the loss w.r.t. it.
// Keys are tensor identities, so parameters looked up by their tensor
// pointer find their gradient directly.
type Grads map[*tensor.Tensor]*tensor.Tensor

// Get returns the gradient for t, or nil if t did not participate in the
// recorded computation.
func (g Grads) Get(t *tensor.Tensor) *tensor.Tensor {
	return g[t]
}

// Tape records operations for backpropagation.
type Tape struct {
	ops       []Operation
	recording bool
}

// NewTape creates a tape with recording enabled.
func NewTape() *Tape {
	return &Tape{recording: true}
}

// Record appends an operation to the tape. Safe to call on a nil tape or a
// tape with recording stopped; both are no-ops.
func (t *Tape) Record(op Operation) {
	if t == nil || !t.recording {
		return
	}
	t.ops = append(t.ops, op)
}

// IsRecording reports whether operations are currently recorded.
func (t *Tape) IsRecording() bool {
	return t != nil && t.recording
}

// StopRecording disables recording until StartRecording is called.
func (t *Tape) StopRecording() { t.recording = false }

// StartRecording re-enables recording.
func (t *Tape) StartRecording() { t.recording = true }

// Len returns the number of recorded operations.
func (t *Tape) Len() int {
	if t == nil {
		return 0
	}
	return len(t.ops)
}

// Reset discards all recorded operations, keeping the recording flag.
// Call once per training step after the optimizer update.
func (t *Tape) Reset() {
	t.ops = t.ops[:0]
}

// Backward runs reverse-mode differentiation from loss, which must be the
// output of a recorded operation (or a tensor seeded by the caller). The
// gradient of loss w.r.t. itself is seeded with ones.
func (t *Tape) Backward(loss *tensor.Tensor) Grads {
	grads := Grads{loss: tensor.Ones(loss.Shape())}
	for i := len(t.ops) - 1; i >= 0; i-- {
		op := t.ops[i]
		outGrad := grads[op.Output()]
		if outGrad == nil {
			// Operation did not contribute to the loss.
			continue
		}
		inGrads := op.Backward(outGrad)
		inputs := op.Inputs()
		for j, g := range inGrads {
			if g == nil {
				continue
			}
			accumulate(grads, inputs[j], g)
		}
	}
	return grads
}

func accumulate(grads Grads, key, g *tensor.Tensor) {
	if existing, ok := grads[key]; ok {
		grads[key] = existing.Add(g)
		return
	}
	grads[key] = g
}
