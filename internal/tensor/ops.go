package tensor

import (
	"fmt"
	"math"
)

// Add returns t + o element-wise. o may be a 1D tensor (or a [1, cols] row)
// broadcast across the rows of a 2D receiver, which is how layer biases are
// applied.
func (t *Tensor) Add(o *Tensor) *Tensor {
	return t.zipBroadcast(o, "Add", func(a, b float32) float32 { return a + b })
}

// Sub returns t - o element-wise, with the same broadcasting rules as Add.
func (t *Tensor) Sub(o *Tensor) *Tensor {
	return t.zipBroadcast(o, "Sub", func(a, b float32) float32 { return a - b })
}

// Mul returns the element-wise (Hadamard) product.
func (t *Tensor) Mul(o *Tensor) *Tensor {
	return t.zipBroadcast(o, "Mul", func(a, b float32) float32 { return a * b })
}

// Div returns the element-wise quotient.
func (t *Tensor) Div(o *Tensor) *Tensor {
	return t.zipBroadcast(o, "Div", func(a, b float32) float32 { return a / b })
}

func (t *Tensor) zipBroadcast(o *Tensor, op string, f func(a, b float32) float32) *Tensor {
	if t.shape.Equal(o.shape) {
		out := New(t.shape)
		for i := range t.data {
			out.data[i] = f(t.data[i], o.data[i])
		}
		return out
	}
	// Row broadcast: [rows, cols] against [cols] or [1, cols].
	if len(t.shape) == 2 {
		cols := t.shape[1]
		if (len(o.shape) == 1 && o.shape[0] == cols) ||
			(len(o.shape) == 2 && o.shape[0] == 1 && o.shape[1] == cols) {
			out := New(t.shape)
			for r := 0; r < t.shape[0]; r++ {
				row := t.data[r*cols : (r+1)*cols]
				for c := 0; c < cols; c++ {
					out.data[r*cols+c] = f(row[c], o.data[c])
				}
			}
			return out
		}
	}
	panic(fmt.Sprintf("tensor: %s shape mismatch %v vs %v", op, t.shape, o.shape))
}

// Scale returns t * s.
func (t *Tensor) Scale(s float32) *Tensor {
	out := New(t.shape)
	for i, v := range t.data {
		out.data[i] = v * s
	}
	return out
}

// ScaleInPlace multiplies every element by s without allocating.
func (t *Tensor) ScaleInPlace(s float32) *Tensor {
	for i := range t.data {
		t.data[i] *= s
	}
	return t
}

// AddScalar returns t + s element-wise.
func (t *Tensor) AddScalar(s float32) *Tensor {
	out := New(t.shape)
	for i, v := range t.data {
		out.data[i] = v + s
	}
	return out
}

// MatMul computes the matrix product t @ o for 2D tensors:
// [m, k] @ [k, n] -> [m, n].
func (t *Tensor) MatMul(o *Tensor) *Tensor {
	t.require2D("MatMul")
	o.require2D("MatMul")
	m, k := t.shape[0], t.shape[1]
	if o.shape[0] != k {
		panic(fmt.Sprintf("tensor: MatMul inner dimension mismatch %v @ %v", t.shape, o.shape))
	}
	n := o.shape[1]
	out := New(Shape{m, n})
	for i := 0; i < m; i++ {
		ti := t.data[i*k : (i+1)*k]
		oi := out.data[i*n : (i+1)*n]
		for p := 0; p < k; p++ {
			a := ti[p]
			if a == 0 {
				continue
			}
			orow := o.data[p*n : (p+1)*n]
			for j := 0; j < n; j++ {
				oi[j] += a * orow[j]
			}
		}
	}
	return out
}

// MatMulT computes t @ o.T for 2D tensors: [m, k] @ [n, k].T -> [m, n].
// This is the prototype-similarity product: both operands keep rows as the
// "sample" axis, so no explicit transpose materialization is needed.
func (t *Tensor) MatMulT(o *Tensor) *Tensor {
	t.require2D("MatMulT")
	o.require2D("MatMulT")
	m, k := t.shape[0], t.shape[1]
	if o.shape[1] != k {
		panic(fmt.Sprintf("tensor: MatMulT inner dimension mismatch %v @ %v.T", t.shape, o.shape))
	}
	n := o.shape[0]
	out := New(Shape{m, n})
	for i := 0; i < m; i++ {
		ti := t.data[i*k : (i+1)*k]
		for j := 0; j < n; j++ {
			oj := o.data[j*k : (j+1)*k]
			var acc float32
			for p := 0; p < k; p++ {
				acc += ti[p] * oj[p]
			}
			out.data[i*n+j] = acc
		}
	}
	return out
}

// TMatMul computes t.T @ o for 2D tensors: [k, m].T @ [k, n] -> [m, n].
// Used in backward passes (gradient w.r.t. the second matmul operand).
func (t *Tensor) TMatMul(o *Tensor) *Tensor {
	t.require2D("TMatMul")
	o.require2D("TMatMul")
	k, m := t.shape[0], t.shape[1]
	if o.shape[0] != k {
		panic(fmt.Sprintf("tensor: TMatMul inner dimension mismatch %v.T @ %v", t.shape, o.shape))
	}
	n := o.shape[1]
	out := New(Shape{m, n})
	for p := 0; p < k; p++ {
		tp := t.data[p*m : (p+1)*m]
		op := o.data[p*n : (p+1)*n]
		for i := 0; i < m; i++ {
			a := tp[i]
			if a == 0 {
				continue
			}
			oi := out.data[i*n : (i+1)*n]
			for j := 0; j < n; j++ {
				oi[j] += a * op[j]
			}
		}
	}
	return out
}

// Transpose returns the transpose of a 2D tensor.
func (t *Tensor) Transpose() *Tensor {
	t.require2D("Transpose")
	m, n := t.shape[0], t.shape[1]
	out := New(Shape{n, m})
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			out.data[j*m+i] = t.data[i*n+j]
		}
	}
	return out
}

// Softmax returns the row-wise softmax of a 2D tensor, computed with the
// log-sum-exp shift for stability.
func (t *Tensor) Softmax() *Tensor {
	t.require2D("Softmax")
	out := New(t.shape)
	cols := t.shape[1]
	for r := 0; r < t.shape[0]; r++ {
		row := t.data[r*cols : (r+1)*cols]
		orow := out.data[r*cols : (r+1)*cols]
		softmaxRow(row, orow)
	}
	return out
}

// LogSoftmax returns the row-wise log-softmax of a 2D tensor.
func (t *Tensor) LogSoftmax() *Tensor {
	t.require2D("LogSoftmax")
	out := New(t.shape)
	cols := t.shape[1]
	for r := 0; r < t.shape[0]; r++ {
		row := t.data[r*cols : (r+1)*cols]
		lse := logSumExpRow(row)
		orow := out.data[r*cols : (r+1)*cols]
		for c, v := range row {
			orow[c] = v - lse
		}
	}
	return out
}

// LogSumExp returns the row-wise log-sum-exp of a 2D tensor as a 1D tensor.
func (t *Tensor) LogSumExp() *Tensor {
	t.require2D("LogSumExp")
	out := New(Shape{t.shape[0]})
	cols := t.shape[1]
	for r := 0; r < t.shape[0]; r++ {
		out.data[r] = logSumExpRow(t.data[r*cols : (r+1)*cols])
	}
	return out
}

// MaxRows returns the row-wise maximum of a 2D tensor as a 1D tensor.
func (t *Tensor) MaxRows() *Tensor {
	t.require2D("MaxRows")
	out := New(Shape{t.shape[0]})
	cols := t.shape[1]
	for r := 0; r < t.shape[0]; r++ {
		row := t.data[r*cols : (r+1)*cols]
		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		out.data[r] = max
	}
	return out
}

// SumRows returns the per-row sum of a 2D tensor as a 1D tensor.
func (t *Tensor) SumRows() *Tensor {
	t.require2D("SumRows")
	out := New(Shape{t.shape[0]})
	cols := t.shape[1]
	for r := 0; r < t.shape[0]; r++ {
		var acc float32
		for _, v := range t.data[r*cols : (r+1)*cols] {
			acc += v
		}
		out.data[r] = acc
	}
	return out
}

// SumCols returns the per-column sum of a 2D tensor as a 1D tensor.
func (t *Tensor) SumCols() *Tensor {
	t.require2D("SumCols")
	cols := t.shape[1]
	out := New(Shape{cols})
	for r := 0; r < t.shape[0]; r++ {
		row := t.data[r*cols : (r+1)*cols]
		for c, v := range row {
			out.data[c] += v
		}
	}
	return out
}

// MeanCols returns the per-column mean of a 2D tensor as a 1D tensor.
func (t *Tensor) MeanCols() *Tensor {
	return t.SumCols().Scale(1 / float32(t.shape[0]))
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float32 {
	var acc float32
	for _, v := range t.data {
		acc += v
	}
	return acc
}

// Mean returns the mean of all elements.
func (t *Tensor) Mean() float32 {
	return t.Sum() / float32(len(t.data))
}

// NormalizeRows returns the 2D tensor with every row scaled to unit L2 norm.
// Rows with norm below eps are left unscaled rather than divided to Inf.
func (t *Tensor) NormalizeRows() *Tensor {
	t.require2D("NormalizeRows")
	const eps = 1e-12
	out := New(t.shape)
	cols := t.shape[1]
	for r := 0; r < t.shape[0]; r++ {
		row := t.data[r*cols : (r+1)*cols]
		var sq float64
		for _, v := range row {
			sq += float64(v) * float64(v)
		}
		norm := float32(math.Sqrt(sq))
		orow := out.data[r*cols : (r+1)*cols]
		if norm < eps {
			copy(orow, row)
			continue
		}
		inv := 1 / norm
		for c, v := range row {
			orow[c] = v * inv
		}
	}
	return out
}

// RowNorms returns the per-row L2 norm of a 2D tensor as a 1D tensor.
func (t *Tensor) RowNorms() *Tensor {
	t.require2D("RowNorms")
	out := New(Shape{t.shape[0]})
	cols := t.shape[1]
	for r := 0; r < t.shape[0]; r++ {
		var sq float64
		for _, v := range t.data[r*cols : (r+1)*cols] {
			sq += float64(v) * float64(v)
		}
		out.data[r] = float32(math.Sqrt(sq))
	}
	return out
}

func softmaxRow(row, out []float32) {
	lse := logSumExpRow(row)
	for c, v := range row {
		out[c] = float32(math.Exp(float64(v - lse)))
	}
}

func logSumExpRow(row []float32) float32 {
	max := row[0]
	for _, v := range row[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v - max))
	}
	return max + float32(math.Log(sum))
}
