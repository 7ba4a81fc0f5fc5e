package autodiff

import (
	"fmt"
	"math"

	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// matMulOp represents output = a @ b.
//
// Backward:
//
//	dL/dA = dL/dC @ B^T
//	dL/dB = A^T @ dL/dC
type matMulOp struct {
	a, b, out *tensor.Tensor
}

func (op *matMulOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.a, op.b} }
func (op *matMulOp) Output() *tensor.Tensor   { return op.out }

func (op *matMulOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{g.MatMulT(op.b), op.a.TMatMul(g)}
}

// MatMul computes a @ b and records the operation.
func MatMul(t *Tape, a, b *tensor.Tensor) *tensor.Tensor {
	out := a.MatMul(b)
	t.Record(&matMulOp{a: a, b: b, out: out})
	return out
}

// matMulTOp represents output = a @ b^T, the cosine-similarity product
// between embedding rows and prototype rows.
//
// Backward:
//
//	dL/dA = dL/dC @ B
//	dL/dB = dL/dC^T @ A
type matMulTOp struct {
	a, b, out *tensor.Tensor
}

func (op *matMulTOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.a, op.b} }
func (op *matMulTOp) Output() *tensor.Tensor   { return op.out }

func (op *matMulTOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{g.MatMul(op.b), g.TMatMul(op.a)}
}

// MatMulT computes a @ b^T and records the operation.
func MatMulT(t *Tape, a, b *tensor.Tensor) *tensor.Tensor {
	out := a.MatMulT(b)
	t.Record(&matMulTOp{a: a, b: b, out: out})
	return out
}

// addOp represents element-wise output = a + b for equal shapes.
type addOp struct {
	a, b, out *tensor.Tensor
}

func (op *addOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.a, op.b} }
func (op *addOp) Output() *tensor.Tensor   { return op.out }

func (op *addOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{g, g}
}

// Add computes a + b for equal shapes and records the operation.
func Add(t *Tape, a, b *tensor.Tensor) *tensor.Tensor {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("autodiff: Add shape mismatch %v vs %v", a.Shape(), b.Shape()))
	}
	out := a.Add(b)
	t.Record(&addOp{a: a, b: b, out: out})
	return out
}

// addBiasOp represents output = x + bias with the 1D bias broadcast across
// rows. The bias gradient is the column sum of the output gradient.
type addBiasOp struct {
	x, bias, out *tensor.Tensor
}

func (op *addBiasOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.x, op.bias} }
func (op *addBiasOp) Output() *tensor.Tensor   { return op.out }

func (op *addBiasOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{g, g.SumCols()}
}

// AddBias computes x + bias (bias broadcast over rows) and records it.
func AddBias(t *Tape, x, bias *tensor.Tensor) *tensor.Tensor {
	out := x.Add(bias)
	t.Record(&addBiasOp{x: x, bias: bias, out: out})
	return out
}

// scaleOp represents output = x * s for a fixed scalar s (temperature, etc).
type scaleOp struct {
	x, out *tensor.Tensor
	s      float32
}

func (op *scaleOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.x} }
func (op *scaleOp) Output() *tensor.Tensor   { return op.out }

func (op *scaleOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{g.Scale(op.s)}
}

// Scale computes x * s and records the operation.
func Scale(t *Tape, x *tensor.Tensor, s float32) *tensor.Tensor {
	out := x.Scale(s)
	t.Record(&scaleOp{x: x, out: out, s: s})
	return out
}

// reluOp represents output = max(x, 0).
type reluOp struct {
	x, out *tensor.Tensor
}

func (op *reluOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.x} }
func (op *reluOp) Output() *tensor.Tensor   { return op.out }

func (op *reluOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	gx := tensor.New(op.x.Shape())
	xd, gd, od := op.x.Data(), g.Data(), gx.Data()
	for i := range xd {
		if xd[i] > 0 {
			od[i] = gd[i]
		}
	}
	return []*tensor.Tensor{gx}
}

// ReLU computes max(x, 0) element-wise and records the operation.
func ReLU(t *Tape, x *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(x.Shape())
	xd, od := x.Data(), out.Data()
	for i, v := range xd {
		if v > 0 {
			od[i] = v
		}
	}
	op := &reluOp{x: x, out: out}
	t.Record(op)
	return out
}

// maskOp represents output = x ⊙ mask for a fixed stochastic mask. The same
// op backs element dropout, channel dropout, and per-sample drop-path; only
// the mask construction differs.
type maskOp struct {
	x, mask, out *tensor.Tensor
}

func (op *maskOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.x} }
func (op *maskOp) Output() *tensor.Tensor   { return op.out }

func (op *maskOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{g.Mul(op.mask)}
}

// ApplyMask computes x ⊙ mask and records the operation. The mask is treated
// as a constant: no gradient flows to it.
func ApplyMask(t *Tape, x, mask *tensor.Tensor) *tensor.Tensor {
	out := x.Mul(mask)
	t.Record(&maskOp{x: x, mask: mask, out: out})
	return out
}

// normalizeRowsOp represents per-row L2 normalization y = x / ||x||.
//
// Backward per row, with y the normalized row and n = ||x||:
//
//	dL/dx = (dL/dy − (dL/dy · y) y) / n
type normalizeRowsOp struct {
	x, out, norms *tensor.Tensor
}

func (op *normalizeRowsOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.x} }
func (op *normalizeRowsOp) Output() *tensor.Tensor   { return op.out }

func (op *normalizeRowsOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	gx := tensor.New(op.x.Shape())
	rows, cols := op.x.Rows(), op.x.Cols()
	for r := 0; r < rows; r++ {
		y := op.out.Row(r)
		gr := g.Row(r)
		or := gx.Row(r)
		n := op.norms.At(r)
		if n == 0 {
			continue
		}
		var dot float32
		for c := 0; c < cols; c++ {
			dot += gr[c] * y[c]
		}
		inv := 1 / n
		for c := 0; c < cols; c++ {
			or[c] = (gr[c] - dot*y[c]) * inv
		}
	}
	return []*tensor.Tensor{gx}
}

// NormalizeRows L2-normalizes every row of x and records the operation.
func NormalizeRows(t *Tape, x *tensor.Tensor) *tensor.Tensor {
	out := x.NormalizeRows()
	t.Record(&normalizeRowsOp{x: x, out: out, norms: x.RowNorms()})
	return out
}

// softmaxOp represents row-wise softmax.
//
// Backward per row, with p the softmax row:
//
//	dL/dx = p ⊙ (dL/dp − (dL/dp · p))
type softmaxOp struct {
	x, out *tensor.Tensor
}

func (op *softmaxOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.x} }
func (op *softmaxOp) Output() *tensor.Tensor   { return op.out }

func (op *softmaxOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	gx := tensor.New(op.x.Shape())
	rows, cols := op.x.Rows(), op.x.Cols()
	for r := 0; r < rows; r++ {
		p := op.out.Row(r)
		gr := g.Row(r)
		or := gx.Row(r)
		var dot float32
		for c := 0; c < cols; c++ {
			dot += gr[c] * p[c]
		}
		for c := 0; c < cols; c++ {
			or[c] = p[c] * (gr[c] - dot)
		}
	}
	return []*tensor.Tensor{gx}
}

// Softmax computes the row-wise softmax of x and records the operation.
func Softmax(t *Tape, x *tensor.Tensor) *tensor.Tensor {
	out := x.Softmax()
	t.Record(&softmaxOp{x: x, out: out})
	return out
}

// softCrossEntropyOp represents the soft-target cross entropy
//
//	L = mean over rows of −Σ_j targets[j] · log_softmax(logits)[j]
//
// Backward (targets are constants, each target row sums to 1):
//
//	dL/dlogits = (softmax(logits) − targets) / batch_size
type softCrossEntropyOp struct {
	logits, targets, out *tensor.Tensor
}

func (op *softCrossEntropyOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.logits} }
func (op *softCrossEntropyOp) Output() *tensor.Tensor   { return op.out }

func (op *softCrossEntropyOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	scale := g.At(0) / float32(op.logits.Rows())
	gx := op.logits.Softmax().Sub(op.targets).Scale(scale)
	return []*tensor.Tensor{gx}
}

// SoftCrossEntropy computes the mean cross entropy between logits and soft
// (non-one-hot) target distributions, returning a scalar [1] tensor. Targets
// are treated as constants: this is the bootstrap loss, whose targets come
// from the gradient-free teacher pass.
func SoftCrossEntropy(t *Tape, logits, targets *tensor.Tensor) *tensor.Tensor {
	if !logits.Shape().Equal(targets.Shape()) {
		panic(fmt.Sprintf("autodiff: SoftCrossEntropy shape mismatch %v vs %v",
			logits.Shape(), targets.Shape()))
	}
	logProbs := logits.LogSoftmax()
	var total float64
	for i, lp := range logProbs.Data() {
		total -= float64(targets.Data()[i]) * float64(lp)
	}
	out := tensor.Full(tensor.Shape{1}, float32(total/float64(logits.Rows())))
	t.Record(&softCrossEntropyOp{logits: logits, targets: targets, out: out})
	return out
}

// memaxOp represents the max-entropy regularizer computed over the globally
// gathered prediction distribution:
//
//	memax = log(P) − H(colSums / totalRows)
//
// colSums is the per-prototype sum over every row on every worker; only the
// local probability shard is differentiable; the remote contribution behaves
// as a constant, which matches gradient flow through a synchronized
// all-gather where each worker backpropagates its own shard.
//
// Backward:
//
//	dH/dm_j = −(log m_j + 1)  ⇒  d memax/dm_j = log m_j + 1
//	d m_j / d proba_ij = 1 / totalRows
type memaxOp struct {
	probas, out *tensor.Tensor
	mean        *tensor.Tensor
	totalRows   int
}

func (op *memaxOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.probas} }
func (op *memaxOp) Output() *tensor.Tensor   { return op.out }

func (op *memaxOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	scale := g.At(0) / float32(op.totalRows)
	cols := op.probas.Cols()
	colGrad := make([]float32, cols)
	for j, m := range op.mean.Data() {
		if m > 0 {
			colGrad[j] = (float32(math.Log(float64(m))) + 1) * scale
		}
	}
	gx := tensor.New(op.probas.Shape())
	for r := 0; r < op.probas.Rows(); r++ {
		copy(gx.Row(r), colGrad)
	}
	return []*tensor.Tensor{gx}
}

// Memax computes log(numPrototypes) − entropy(mean assignment distribution)
// over the gathered population and records the operation.
//
// gatheredColSums must be the per-prototype sum over all totalRows gathered
// rows, local shard included; probas is the local differentiable shard.
func Memax(t *Tape, probas, gatheredColSums *tensor.Tensor, totalRows int) *tensor.Tensor {
	cols := probas.Cols()
	if gatheredColSums.NumElements() != cols {
		panic(fmt.Sprintf("autodiff: Memax column mismatch %d vs %v",
			cols, gatheredColSums.Shape()))
	}
	mean := gatheredColSums.Scale(1 / float32(totalRows))
	var h float64
	for _, m := range mean.Data() {
		if m > 0 {
			h -= float64(m) * math.Log(float64(m))
		}
	}
	val := math.Log(float64(cols)) - h
	out := tensor.Full(tensor.Shape{1}, float32(val))
	t.Record(&memaxOp{probas: probas, out: out, mean: mean, totalRows: totalRows})
	return out
}

// addScaledOp represents output = a + s*b for scalar [1] tensors, used to
// assemble the total loss from its terms.
type addScaledOp struct {
	a, b, out *tensor.Tensor
	s         float32
}

func (op *addScaledOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.a, op.b} }
func (op *addScaledOp) Output() *tensor.Tensor   { return op.out }

func (op *addScaledOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{g, g.Scale(op.s)}
}

// AddScaled computes a + s*b and records the operation.
func AddScaled(t *Tape, a, b *tensor.Tensor, s float32) *tensor.Tensor {
	out := a.Add(b.Scale(s))
	t.Record(&addScaledOp{a: a, b: b, out: out, s: s})
	return out
}
