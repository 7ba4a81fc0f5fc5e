package nn

import (
	"math/rand"

	"github.com/sensemble-ml/sensemble/internal/autodiff"
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// MLP is a small nonlinear projector: numHiddenLayers blocks of
// Linear → ReLU → Dropout followed by a final Linear to outDim.
//
// Used as the projection head mapping encoder embeddings into the
// prototype space.
type MLP struct {
	layers []Module
}

// NewMLP creates an MLP with the given hidden width and depth.
func NewMLP(inDim, hiddenDim, outDim, numHiddenLayers int, dropoutRate float32, rng *rand.Rand) *MLP {
	var layers []Module
	width := inDim
	for i := 0; i < numHiddenLayers; i++ {
		layers = append(layers,
			NewLinear(width, hiddenDim, rng),
			NewReLU(),
			NewDropout(dropoutRate, rng),
		)
		width = hiddenDim
	}
	layers = append(layers, NewLinear(width, outDim, rng))
	return &MLP{layers: layers}
}

// Forward runs the input through every layer in order.
func (m *MLP) Forward(tape *autodiff.Tape, x *tensor.Tensor, mode Mode) *tensor.Tensor {
	for _, layer := range m.layers {
		x = layer.Forward(tape, x, mode)
	}
	return x
}

// Parameters returns the parameters of all layers.
func (m *MLP) Parameters() []*Parameter {
	var params []*Parameter
	for _, layer := range m.layers {
		params = append(params, layer.Parameters()...)
	}
	return params
}
