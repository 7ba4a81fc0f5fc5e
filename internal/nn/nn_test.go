package nn_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensemble-ml/sensemble/internal/autodiff"
	"github.com/sensemble-ml/sensemble/internal/nn"
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

func TestLinearForward(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	layer := nn.NewLinear(3, 2, rng)

	// Overwrite init so the output is predictable.
	w := layer.Weight().Tensor() // [2, 3]
	copy(w.Data(), []float32{1, 0, 0, 0, 1, 0})
	copy(layer.Bias().Tensor().Data(), []float32{10, 20})

	x := tensor.MustFromSlice([]float32{1, 2, 3}, tensor.Shape{1, 3})
	y := layer.Forward(nil, x, nn.Eval)

	require.True(t, y.Shape().Equal(tensor.Shape{1, 2}))
	assert.InDelta(t, 11, y.At(0, 0), 1e-6)
	assert.InDelta(t, 22, y.At(0, 1), 1e-6)
}

func TestLinearForwardPanicsOnBadShape(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	layer := nn.NewLinear(3, 2, rng)
	x := tensor.Ones(tensor.Shape{1, 4})

	assert.Panics(t, func() { layer.Forward(nil, x, nn.Eval) })
}

func TestDropoutModes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	d := nn.NewDropout(0.5, rng)
	x := tensor.Ones(tensor.Shape{16, 64})

	// Eval is the identity, same tensor back.
	assert.Same(t, x, d.Forward(nil, x, nn.Eval))

	// Train and EvalMCDropout both sample.
	for _, mode := range []nn.Mode{nn.Train, nn.EvalMCDropout} {
		y := d.Forward(nil, x, mode)
		zeros := 0
		for _, v := range y.Data() {
			switch v {
			case 0:
				zeros++
			case 2: // survivors scaled by 1/(1-rate)
			default:
				t.Fatalf("mode %v: unexpected value %f", mode, v)
			}
		}
		frac := float64(zeros) / float64(len(y.Data()))
		assert.InDelta(t, 0.5, frac, 0.1, "mode %v drop fraction", mode)
	}
}

func TestChannelDropoutDropsWholeGroups(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	d := nn.NewChannelDropout(0.5, 8, rng)
	x := tensor.Ones(tensor.Shape{4, 32}) // 8 channels of width 4

	y := d.Forward(nil, x, nn.Train)

	for r := 0; r < 4; r++ {
		row := y.Row(r)
		for ch := 0; ch < 8; ch++ {
			seg := row[ch*4 : (ch+1)*4]
			for _, v := range seg {
				assert.Equal(t, seg[0], v, "channel must drop or survive as a unit")
			}
		}
	}
}

func TestDropPathOnlySamplesInTrainMode(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	d := nn.NewDropPath(0.5, rng)
	x := tensor.Ones(tensor.Shape{64, 8})

	// Deterministic under both eval modes, including MC dropout.
	assert.Same(t, x, d.Forward(nil, x, nn.Eval))
	assert.Same(t, x, d.Forward(nil, x, nn.EvalMCDropout))

	y := d.Forward(nil, x, nn.Train)
	dropped := 0
	for r := 0; r < 64; r++ {
		row := y.Row(r)
		for _, v := range row {
			assert.Equal(t, row[0], v, "drop-path acts on whole rows")
		}
		if row[0] == 0 {
			dropped++
		}
	}
	assert.InDelta(t, 0.5, float64(dropped)/64, 0.2)
}

func TestDropoutGradientMatchesMask(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	d := nn.NewDropout(0.5, rng)
	x := tensor.Ones(tensor.Shape{4, 4})

	tape := autodiff.NewTape()
	y := d.Forward(tape, x, nn.Train)
	loss := autodiff.SoftCrossEntropy(tape, y, tensor.Full(tensor.Shape{4, 4}, 0.25))
	grads := tape.Backward(loss)

	gx := grads.Get(x)
	require.NotNil(t, gx)
	// Gradient is zero exactly where the activation was dropped.
	for i, v := range y.Data() {
		if v == 0 {
			assert.Zero(t, gx.Data()[i])
		}
	}
}

func TestMLPShapesAndParameters(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	mlp := nn.NewMLP(16, 16, 8, 2, 0.5, rng)

	x := tensor.Ones(tensor.Shape{3, 16})
	y := mlp.Forward(nil, x, nn.Eval)
	require.True(t, y.Shape().Equal(tensor.Shape{3, 8}))

	// Two hidden Linears plus the output Linear, each with weight and bias.
	assert.Len(t, mlp.Parameters(), 6)
	want := (16*16 + 16) + (16*16 + 16) + (16*8 + 8)
	assert.Equal(t, want, nn.CountParameters(mlp))
}

func TestEntropyIdentities(t *testing.T) {
	uniform := tensor.Full(tensor.Shape{1, 8}, 0.125)
	oneHot := tensor.MustFromSlice([]float32{1, 0, 0, 0}, tensor.Shape{1, 4})

	assert.InDelta(t, math.Log(8), float64(nn.Entropy(uniform).At(0)), 1e-6)
	assert.Zero(t, nn.Entropy(oneHot).At(0), "one-hot entropy with 0 log 0 = 0")
}

func TestTruncatedEntropy(t *testing.T) {
	p := tensor.MustFromSlice([]float32{0.4, 0.3, 0.2, 0.1}, tensor.Shape{1, 4})

	full := nn.Entropy(p).At(0)
	top2 := nn.TruncatedEntropy(p, 2).At(0)
	all := nn.TruncatedEntropy(p, 10).At(0)

	assert.Less(t, top2, full, "truncation discards tail mass")
	assert.InDelta(t, float64(full), float64(all), 1e-6, "topK >= width equals full entropy")

	// Top-2 keeps 0.4 and 0.3 only.
	want := -(0.4*math.Log(0.4) + 0.3*math.Log(0.3))
	assert.InDelta(t, want, float64(top2), 1e-6)
}

func TestGeneralizedEntropy(t *testing.T) {
	oneHot := tensor.MustFromSlice([]float32{1, 0, 0, 0}, tensor.Shape{1, 4})
	uniform := tensor.Full(tensor.Shape{1, 4}, 0.25)
	peaked := tensor.MustFromSlice([]float32{0.97, 0.01, 0.01, 0.01}, tensor.Shape{1, 4})

	assert.Zero(t, nn.GeneralizedEntropy(oneHot, 0.1, 100).At(0))
	assert.Greater(t, nn.GeneralizedEntropy(uniform, 0.1, 100).At(0),
		nn.GeneralizedEntropy(peaked, 0.1, 100).At(0),
		"uniform rows score higher than confident rows")
}
