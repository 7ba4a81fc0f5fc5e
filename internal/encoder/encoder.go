// Package encoder defines the image-encoder contract consumed by the
// Sensemble pretraining model, plus a reference residual-MLP encoder family.
//
// The encoder is a replaceable collaborator: anything that maps an image
// batch to an embedding batch and honors the injected stochastic
// regularization hooks (dropout, channel dropout, block dropout, stochastic
// depth) can be plugged in. The reference family keeps the repo runnable and
// testable end to end without a convolutional backbone.
package encoder

import (
	"fmt"
	"math/rand"

	"github.com/sensemble-ml/sensemble/internal/autodiff"
	"github.com/sensemble-ml/sensemble/internal/nn"
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// Architecture selects an encoder backbone.
type Architecture string

// Reference architectures.
const (
	MLPTiny  Architecture = "mlp-tiny"
	MLPSmall Architecture = "mlp-small"
)

// Rates bundles the stochastic-regularization strengths injected into the
// backbone.
type Rates struct {
	DropChannel float32 // whole-channel dropout inside residual blocks
	DropBlock   float32 // coarse feature-span dropout inside residual blocks
	DropPath    float32 // stochastic depth on residual branches
}

// Validate returns an error when any rate is outside [0, 1).
func (r Rates) Validate() error {
	for _, v := range []float32{r.DropChannel, r.DropBlock, r.DropPath} {
		if v < 0 || v >= 1 {
			return fmt.Errorf("encoder: regularization rate %f outside [0, 1)", v)
		}
	}
	return nil
}

// Encoder maps an image batch [batch, in_dim] to embeddings [batch, embed_dim].
type Encoder interface {
	nn.Module

	// EmbedDim returns the embedding width produced by Forward.
	EmbedDim() int
}

// New constructs the encoder for the given architecture selector and returns
// it together with its embedding dimension. An unrecognized selector is a
// configuration error.
func New(arch Architecture, inDim int, rates Rates, rng *rand.Rand) (Encoder, int, error) {
	if err := rates.Validate(); err != nil {
		return nil, 0, err
	}
	switch arch {
	case MLPTiny:
		e := newResidualMLP(inDim, 64, 2, 8, rates, rng)
		return e, e.EmbedDim(), nil
	case MLPSmall:
		e := newResidualMLP(inDim, 256, 4, 16, rates, rng)
		return e, e.EmbedDim(), nil
	default:
		return nil, 0, fmt.Errorf("encoder: unknown architecture %q", arch)
	}
}

// residualMLP is a width-preserving residual network over flattened inputs:
// a linear stem followed by blocks of
//
//	x + DropPath(BlockDrop(ChannelDrop(ReLU(Linear(x)))))
//
// mirroring where a convolutional backbone injects its regularization.
type residualMLP struct {
	stem     *nn.Linear
	blocks   []*residualBlock
	embedDim int
}

type residualBlock struct {
	linear      *nn.Linear
	relu        *nn.ReLU
	dropChannel *nn.ChannelDropout
	dropBlock   *nn.ChannelDropout
	dropPath    *nn.DropPath
}

func newResidualMLP(inDim, width, numBlocks, numChannels int, rates Rates, rng *rand.Rand) *residualMLP {
	e := &residualMLP{
		stem:     nn.NewLinear(inDim, width, rng),
		embedDim: width,
	}
	for i := 0; i < numBlocks; i++ {
		e.blocks = append(e.blocks, &residualBlock{
			linear:      nn.NewLinear(width, width, rng),
			relu:        nn.NewReLU(),
			dropChannel: nn.NewChannelDropout(rates.DropChannel, numChannels, rng),
			// Block dropout removes coarser spans: quarter-width groups.
			dropBlock: nn.NewChannelDropout(rates.DropBlock, 4, rng),
			dropPath:  nn.NewDropPath(rates.DropPath, rng),
		})
	}
	return e
}

func (e *residualMLP) Forward(tape *autodiff.Tape, x *tensor.Tensor, mode nn.Mode) *tensor.Tensor {
	h := autodiff.ReLU(tape, e.stem.Forward(tape, x, mode))
	for _, b := range e.blocks {
		branch := b.relu.Forward(tape, b.linear.Forward(tape, h, mode), mode)
		branch = b.dropChannel.Forward(tape, branch, mode)
		branch = b.dropBlock.Forward(tape, branch, mode)
		branch = b.dropPath.Forward(tape, branch, mode)
		h = autodiff.Add(tape, h, branch)
	}
	return h
}

func (e *residualMLP) Parameters() []*nn.Parameter {
	params := e.stem.Parameters()
	for _, b := range e.blocks {
		params = append(params, b.linear.Parameters()...)
	}
	return params
}

func (e *residualMLP) EmbedDim() int { return e.embedDim }
