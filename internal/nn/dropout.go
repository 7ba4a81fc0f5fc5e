package nn

import (
	"fmt"
	"math/rand"

	"github.com/sensemble-ml/sensemble/internal/autodiff"
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// ReLU applies max(x, 0) element-wise.
type ReLU struct{}

// NewReLU creates a ReLU activation.
func NewReLU() *ReLU { return &ReLU{} }

// Forward applies the activation.
func (r *ReLU) Forward(tape *autodiff.Tape, x *tensor.Tensor, _ Mode) *tensor.Tensor {
	return autodiff.ReLU(tape, x)
}

// Parameters returns nil (activations have no trainable state).
func (r *ReLU) Parameters() []*Parameter { return nil }

// Dropout zeroes individual activations with probability rate during
// stochastic modes and rescales survivors by 1/(1-rate) (inverted dropout),
// so deterministic inference is the identity.
//
// Dropout samples in both Train and EvalMCDropout mode; the latter is what
// turns repeated evaluation passes into a Monte Carlo ensemble.
type Dropout struct {
	rate float32
	rng  *rand.Rand
}

// NewDropout creates a Dropout layer. rate must be in [0, 1).
func NewDropout(rate float32, rng *rand.Rand) *Dropout {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("Dropout: rate must be in [0, 1), got %f", rate))
	}
	return &Dropout{rate: rate, rng: rng}
}

// Forward applies element dropout in stochastic modes, identity otherwise.
func (d *Dropout) Forward(tape *autodiff.Tape, x *tensor.Tensor, mode Mode) *tensor.Tensor {
	if !mode.dropoutActive() || d.rate == 0 {
		return x
	}
	keep := 1 - d.rate
	mask := tensor.New(x.Shape())
	md := mask.Data()
	scale := 1 / keep
	for i := range md {
		if d.rng.Float32() >= d.rate {
			md[i] = scale
		}
	}
	return autodiff.ApplyMask(tape, x, mask)
}

// Parameters returns nil.
func (d *Dropout) Parameters() []*Parameter { return nil }

// ChannelDropout zeroes whole feature channels per sample, the dense analogue
// of 2D channel dropout on convolutional maps: features are split into
// numChannels contiguous groups and each group is dropped as a unit.
//
// Like Dropout it samples in both Train and EvalMCDropout mode.
type ChannelDropout struct {
	rate        float32
	numChannels int
	rng         *rand.Rand
}

// NewChannelDropout creates a ChannelDropout layer over numChannels groups.
func NewChannelDropout(rate float32, numChannels int, rng *rand.Rand) *ChannelDropout {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("ChannelDropout: rate must be in [0, 1), got %f", rate))
	}
	if numChannels < 1 {
		panic(fmt.Sprintf("ChannelDropout: numChannels must be >= 1, got %d", numChannels))
	}
	return &ChannelDropout{rate: rate, numChannels: numChannels, rng: rng}
}

// Forward drops whole feature groups in stochastic modes, identity otherwise.
func (d *ChannelDropout) Forward(tape *autodiff.Tape, x *tensor.Tensor, mode Mode) *tensor.Tensor {
	if !mode.dropoutActive() || d.rate == 0 {
		return x
	}
	rows, cols := x.Rows(), x.Cols()
	if cols%d.numChannels != 0 {
		panic(fmt.Sprintf("ChannelDropout: %d features not divisible into %d channels", cols, d.numChannels))
	}
	width := cols / d.numChannels
	scale := 1 / (1 - d.rate)
	mask := tensor.New(x.Shape())
	for r := 0; r < rows; r++ {
		row := mask.Row(r)
		for ch := 0; ch < d.numChannels; ch++ {
			if d.rng.Float32() >= d.rate {
				seg := row[ch*width : (ch+1)*width]
				for i := range seg {
					seg[i] = scale
				}
			}
		}
	}
	return autodiff.ApplyMask(tape, x, mask)
}

// Parameters returns nil.
func (d *ChannelDropout) Parameters() []*Parameter { return nil }

// DropPath implements stochastic depth: with probability rate a sample's
// entire residual branch output is zeroed, survivors are rescaled by
// 1/(1-rate). Applied to the branch before the residual addition.
//
// DropPath samples only in Train mode. The MC-dropout ensemble perturbs
// activations, not network depth, so EvalMCDropout leaves it deterministic.
type DropPath struct {
	rate float32
	rng  *rand.Rand
}

// NewDropPath creates a DropPath layer.
func NewDropPath(rate float32, rng *rand.Rand) *DropPath {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("DropPath: rate must be in [0, 1), got %f", rate))
	}
	return &DropPath{rate: rate, rng: rng}
}

// Forward zeroes whole rows in Train mode, identity otherwise.
func (d *DropPath) Forward(tape *autodiff.Tape, x *tensor.Tensor, mode Mode) *tensor.Tensor {
	if !mode.dropPathActive() || d.rate == 0 {
		return x
	}
	rows := x.Rows()
	scale := 1 / (1 - d.rate)
	mask := tensor.New(x.Shape())
	for r := 0; r < rows; r++ {
		if d.rng.Float32() >= d.rate {
			row := mask.Row(r)
			for i := range row {
				row[i] = scale
			}
		}
	}
	return autodiff.ApplyMask(tape, x, mask)
}

// Parameters returns nil.
func (d *DropPath) Parameters() []*Parameter { return nil }
