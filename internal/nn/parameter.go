package nn

import (
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// Parameter is a named trainable tensor.
//
// Gradients are not stored on the parameter; the optimizer looks them up in
// the autodiff.Grads map by the parameter's tensor identity after each
// backward pass.
type Parameter struct {
	name   string
	tensor *tensor.Tensor
}

// NewParameter wraps a tensor as a trainable parameter.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{name: name, tensor: t}
}

// Name returns the parameter's name.
func (p *Parameter) Name() string { return p.name }

// Tensor returns the underlying tensor. The optimizer mutates its data in
// place at step boundaries; nothing else may write to it.
func (p *Parameter) Tensor() *tensor.Tensor { return p.tensor }

// NumElements returns the parameter's element count.
func (p *Parameter) NumElements() int { return p.tensor.NumElements() }

// CountParameters sums the element counts of all parameters of a module.
func CountParameters(m Module) int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.NumElements()
	}
	return total
}
