package autodiff

import (
	"math"
	"math/rand"
	"testing"

	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// numericGrad estimates dscalar/dx by central differences, where forward must
// recompute the scalar output from scratch on every call.
func numericGrad(x *tensor.Tensor, forward func() float32) *tensor.Tensor {
	const eps = 1e-3
	grad := tensor.New(x.Shape())
	for i := range x.Data() {
		orig := x.Data()[i]
		x.Data()[i] = orig + eps
		plus := forward()
		x.Data()[i] = orig - eps
		minus := forward()
		x.Data()[i] = orig
		grad.Data()[i] = (plus - minus) / (2 * eps)
	}
	return grad
}

func assertClose(t *testing.T, want, got *tensor.Tensor, tol float64, msg string) {
	t.Helper()
	if !want.Shape().Equal(got.Shape()) {
		t.Fatalf("%s: shape mismatch %v vs %v", msg, want.Shape(), got.Shape())
	}
	for i := range want.Data() {
		if math.Abs(float64(want.Data()[i]-got.Data()[i])) > tol {
			t.Fatalf("%s: element %d: got %f, want %f", msg, i, got.Data()[i], want.Data()[i])
		}
	}
}

// recordedSum reduces a tensor to a recorded scalar loss so that every
// element of x receives gradient 1 during Backward.
func recordedSum(tape *Tape, x *tensor.Tensor) *tensor.Tensor {
	ones := tensor.Ones(x.Shape())
	masked := ApplyMask(tape, x, ones)
	out := tensor.Full(tensor.Shape{1}, masked.Sum())
	tape.Record(&sumOp{x: masked, out: out})
	return out
}

type sumOp struct {
	x, out *tensor.Tensor
}

func (op *sumOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.x} }
func (op *sumOp) Output() *tensor.Tensor   { return op.out }
func (op *sumOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{tensor.Full(op.x.Shape(), g.At(0))}
}

func TestNilTapeDisablesRecording(t *testing.T) {
	var tape *Tape
	a := tensor.Ones(tensor.Shape{2, 3})
	b := tensor.Ones(tensor.Shape{4, 3})

	out := MatMulT(tape, a, b)

	if out.At(0, 0) != 3 {
		t.Errorf("forward through nil tape: got %f, want 3", out.At(0, 0))
	}
	if tape.IsRecording() || tape.Len() != 0 {
		t.Error("nil tape must not record")
	}
}

func TestMatMulTGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := tensor.Randn(tensor.Shape{3, 4}, rng)
	b := tensor.Randn(tensor.Shape{5, 4}, rng)

	tape := NewTape()
	out := MatMulT(tape, a, b)
	loss := recordedSum(tape, out)
	grads := tape.Backward(loss)

	wantA := numericGrad(a, func() float32 { return a.MatMulT(b).Sum() })
	wantB := numericGrad(b, func() float32 { return a.MatMulT(b).Sum() })
	assertClose(t, wantA, grads.Get(a), 1e-2, "dL/dA")
	assertClose(t, wantB, grads.Get(b), 1e-2, "dL/dB")
}

func TestNormalizeRowsGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	x := tensor.Randn(tensor.Shape{3, 4}, rng)

	// Weighted sum so rows get non-uniform output gradients.
	w := tensor.Randn(tensor.Shape{3, 4}, rng)
	forward := func() float32 { return x.NormalizeRows().Mul(w).Sum() }

	tape := NewTape()
	y := NormalizeRows(tape, x)
	wy := ApplyMask(tape, y, w)
	loss := recordedSum(tape, wy)
	grads := tape.Backward(loss)

	assertClose(t, numericGrad(x, forward), grads.Get(x), 1e-2, "dL/dx through row normalize")
}

func TestSoftCrossEntropyGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	logits := tensor.Randn(tensor.Shape{4, 6}, rng)
	targets := tensor.Rand(tensor.Shape{4, 6}, rng)
	// Make targets row-stochastic as the caller contract requires.
	for r := 0; r < 4; r++ {
		row := targets.Row(r)
		var sum float32
		for _, v := range row {
			sum += v
		}
		for i := range row {
			row[i] /= sum
		}
	}

	tape := NewTape()
	loss := SoftCrossEntropy(tape, logits, targets)
	grads := tape.Backward(loss)

	forward := func() float32 {
		lp := logits.LogSoftmax()
		var total float32
		for i, v := range lp.Data() {
			total -= targets.Data()[i] * v
		}
		return total / 4
	}
	assertClose(t, numericGrad(logits, forward), grads.Get(logits), 1e-2, "dL/dlogits")

	// Sanity: loss against targets equal to softmax(logits) is the entropy,
	// and gradient there is ~zero.
	tape2 := NewTape()
	self := SoftCrossEntropy(tape2, logits, logits.Softmax())
	g2 := tape2.Backward(self).Get(logits)
	for _, v := range g2.Data() {
		if math.Abs(float64(v)) > 1e-5 {
			t.Fatalf("gradient at self-targets should vanish, got %f", v)
		}
	}
}

func TestMemaxGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	logits := tensor.Randn(tensor.Shape{5, 7}, rng)

	tape := NewTape()
	p := Softmax(tape, logits)
	memax := Memax(tape, p, p.SumCols(), p.Rows())
	grads := tape.Backward(memax)

	forward := func() float32 {
		sm := logits.Softmax()
		mean := sm.MeanCols()
		var h float64
		for _, m := range mean.Data() {
			if m > 0 {
				h -= float64(m) * math.Log(float64(m))
			}
		}
		return float32(math.Log(7) - h)
	}
	assertClose(t, numericGrad(logits, forward), grads.Get(logits), 1e-2, "dmemax/dlogits")

	// A perfectly uniform global distribution is the regularizer's minimum.
	uniform := tensor.Full(tensor.Shape{5, 7}, 1.0/7)
	m := Memax(nil, uniform, uniform.SumCols(), 5)
	if math.Abs(float64(m.At(0))) > 1e-6 {
		t.Errorf("memax of uniform assignment: got %f, want 0", m.At(0))
	}
}

func TestLinearChainGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	x := tensor.Randn(tensor.Shape{2, 3}, rng)
	w := tensor.Randn(tensor.Shape{4, 3}, rng)
	bias := tensor.Randn(tensor.Shape{4}, rng)
	targets := tensor.Full(tensor.Shape{2, 4}, 0.25)

	forward := func() float32 {
		h := x.MatMulT(w).Add(bias)
		relu := tensor.New(h.Shape())
		for i, v := range h.Data() {
			if v > 0 {
				relu.Data()[i] = v
			}
		}
		lp := relu.LogSoftmax()
		var total float32
		for i, v := range lp.Data() {
			total -= targets.Data()[i] * v
		}
		return total / 2
	}

	tape := NewTape()
	h := AddBias(tape, MatMulT(tape, x, w), bias)
	a := ReLU(tape, h)
	loss := SoftCrossEntropy(tape, a, targets)
	grads := tape.Backward(loss)

	assertClose(t, numericGrad(w, forward), grads.Get(w), 1e-2, "dL/dW through chain")
	assertClose(t, numericGrad(bias, forward), grads.Get(bias), 1e-2, "dL/dbias through chain")
	assertClose(t, numericGrad(x, forward), grads.Get(x), 1e-2, "dL/dx through chain")
}

func TestTapeReset(t *testing.T) {
	tape := NewTape()
	a := tensor.Ones(tensor.Shape{2, 2})
	MatMulT(tape, a, a)
	if tape.Len() != 1 {
		t.Fatalf("tape length: got %d, want 1", tape.Len())
	}

	tape.Reset()
	if tape.Len() != 0 {
		t.Errorf("tape length after Reset: got %d, want 0", tape.Len())
	}

	tape.StopRecording()
	MatMulT(tape, a, a)
	if tape.Len() != 0 {
		t.Errorf("stopped tape must not record, got %d ops", tape.Len())
	}
}
