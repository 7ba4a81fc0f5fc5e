package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sensemble-ml/sensemble/internal/autodiff"
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ W.T + b.
//
// Shapes:
//   - x: [batch_size, in_features]
//   - W: [out_features, in_features]
//   - b: [out_features]
//   - y: [batch_size, out_features]
//
// Weights use Xavier/Glorot uniform initialization, biases start at zero.
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter
	bias        *Parameter
}

// NewLinear creates a Linear layer with Xavier-initialized weights.
func NewLinear(inFeatures, outFeatures int, rng *rand.Rand) *Linear {
	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", Xavier(inFeatures, outFeatures, rng)),
		bias:        NewParameter("bias", tensor.Zeros(tensor.Shape{outFeatures})),
	}
}

// Forward computes y = x @ W.T + b.
func (l *Linear) Forward(tape *autodiff.Tape, x *tensor.Tensor, _ Mode) *tensor.Tensor {
	shape := x.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("Linear.Forward: expected 2D input [batch, features], got shape %v", shape))
	}
	if shape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got %d", l.inFeatures, shape[1]))
	}
	out := autodiff.MatMulT(tape, x, l.weight.Tensor())
	return autodiff.AddBias(tape, out, l.bias.Tensor())
}

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter { return l.weight }

// Bias returns the bias parameter.
func (l *Linear) Bias() *Parameter { return l.bias }

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int { return l.inFeatures }

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int { return l.outFeatures }

// Xavier creates a [out, in] weight tensor sampled from the Xavier/Glorot
// uniform distribution U(-limit, limit), limit = sqrt(6 / (in + out)).
func Xavier(inFeatures, outFeatures int, rng *rand.Rand) *tensor.Tensor {
	limit := float32(math.Sqrt(6 / float64(inFeatures+outFeatures)))
	return tensor.Uniform(tensor.Shape{outFeatures, inFeatures}, -limit, limit, rng)
}
