// Package tensor implements the dense float32 tensor used by the Sensemble
// training core.
//
// The package is deliberately narrower than a general ML framework tensor:
// one dtype (float32), one device (CPU), row-major layout. Everything the
// pretraining objective and the OOD evaluator need (matrix products against
// a prototype bank, row-wise softmax/normalization, the reductions driving
// Sinkhorn balancing) is provided as explicit methods that panic on shape
// mismatch, so a shape bug fails at the call site rather than corrupting a
// training run.
//
// Example:
//
//	rng := rand.New(rand.NewSource(0))
//	x := tensor.Randn(tensor.Shape{32, 128}, rng)
//	p := tensor.Uniform(tensor.Shape{2048, 128}, -0.09, 0.09, rng)
//	logits := x.NormalizeRows().MatMulT(p.NormalizeRows()).Scale(1 / 0.1)
package tensor

import (
	"fmt"
	"math/rand"
)

// Shape represents the dimensions of a tensor.
// Example: Shape{32, 2048} is a 32×2048 matrix.
type Shape []int

// NumElements returns the total number of elements implied by the shape.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether two shapes have identical dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

func (s Shape) String() string {
	return fmt.Sprintf("%v", []int(s))
}

// Tensor is a dense float32 tensor in row-major layout.
//
// Tensors own their backing slice. Methods never alias the receiver's data
// into the result unless documented otherwise; in-place mutation is confined
// to the explicitly named *InPlace methods and Data writes by the owner.
type Tensor struct {
	shape Shape
	data  []float32
}

// New creates a zero-filled tensor with the given shape.
func New(shape Shape) *Tensor {
	return &Tensor{
		shape: shape.Clone(),
		data:  make([]float32, shape.NumElements()),
	}
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape) *Tensor {
	return New(shape)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor {
	return Full(shape, 1)
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float32) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// FromSlice creates a tensor from a Go slice. The data is copied.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	t := New(shape)
	copy(t.data, data)
	return t, nil
}

// MustFromSlice is FromSlice that panics on length mismatch. Test helper.
func MustFromSlice(data []float32, shape Shape) *Tensor {
	t, err := FromSlice(data, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// Randn creates a tensor with samples from the standard normal distribution.
func Randn(shape Shape, rng *rand.Rand) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = float32(rng.NormFloat64())
	}
	return t
}

// Rand creates a tensor with samples from U(0, 1).
func Rand(shape Shape, rng *rand.Rand) *Tensor {
	return Uniform(shape, 0, 1, rng)
}

// Uniform creates a tensor with samples from U(lo, hi).
func Uniform(shape Shape, lo, hi float32, rng *rand.Rand) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = lo + (hi-lo)*rng.Float32()
	}
	return t
}

// Shape returns the tensor's shape. The returned slice must not be mutated.
func (t *Tensor) Shape() Shape { return t.shape }

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int { return t.shape[i] }

// NumElements returns the total element count.
func (t *Tensor) NumElements() int { return len(t.data) }

// Data returns the backing slice in row-major order. Writes through the
// returned slice mutate the tensor.
func (t *Tensor) Data() []float32 { return t.data }

// At returns the element at the given multi-dimensional index.
func (t *Tensor) At(idx ...int) float32 {
	return t.data[t.offset(idx...)]
}

// Set writes the element at the given multi-dimensional index.
func (t *Tensor) Set(value float32, idx ...int) {
	t.data[t.offset(idx...)] = value
}

func (t *Tensor) offset(idx ...int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: index %v does not match shape %v", idx, t.shape))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off = off*t.shape[i] + x
	}
	return off
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := New(t.shape)
	copy(out.data, t.data)
	return out
}

// CopyFrom overwrites the tensor's contents with those of src.
// Shapes must match exactly.
func (t *Tensor) CopyFrom(src *Tensor) {
	if !t.shape.Equal(src.shape) {
		panic(fmt.Sprintf("tensor: CopyFrom shape mismatch %v vs %v", t.shape, src.shape))
	}
	copy(t.data, src.data)
}

// Reshape returns a copy of the tensor with a new shape holding the same
// elements in row-major order.
func (t *Tensor) Reshape(shape Shape) *Tensor {
	if shape.NumElements() != len(t.data) {
		panic(fmt.Sprintf("tensor: cannot reshape %v to %v", t.shape, shape))
	}
	out := t.Clone()
	out.shape = shape.Clone()
	return out
}

// Rows returns the leading dimension of a 2D tensor.
func (t *Tensor) Rows() int {
	t.require2D("Rows")
	return t.shape[0]
}

// Cols returns the trailing dimension of a 2D tensor.
func (t *Tensor) Cols() int {
	t.require2D("Cols")
	return t.shape[1]
}

// Row returns row i of a 2D tensor as a slice aliasing the tensor's data.
func (t *Tensor) Row(i int) []float32 {
	t.require2D("Row")
	cols := t.shape[1]
	return t.data[i*cols : (i+1)*cols]
}

// RowRange returns a copy of rows [lo, hi) of a 2D tensor.
func (t *Tensor) RowRange(lo, hi int) *Tensor {
	t.require2D("RowRange")
	if lo < 0 || hi > t.shape[0] || lo > hi {
		panic(fmt.Sprintf("tensor: RowRange [%d, %d) out of range for shape %v", lo, hi, t.shape))
	}
	cols := t.shape[1]
	out := New(Shape{hi - lo, cols})
	copy(out.data, t.data[lo*cols:hi*cols])
	return out
}

// SetRowRange overwrites rows [lo, lo+src.Rows()) with the rows of src.
func (t *Tensor) SetRowRange(lo int, src *Tensor) {
	t.require2D("SetRowRange")
	src.require2D("SetRowRange src")
	if src.shape[1] != t.shape[1] {
		panic(fmt.Sprintf("tensor: SetRowRange column mismatch %v vs %v", t.shape, src.shape))
	}
	if lo < 0 || lo+src.shape[0] > t.shape[0] {
		panic(fmt.Sprintf("tensor: SetRowRange rows [%d, %d) out of range for shape %v",
			lo, lo+src.shape[0], t.shape))
	}
	copy(t.data[lo*t.shape[1]:], src.data)
}

func (t *Tensor) require2D(op string) {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor: %s requires a 2D tensor, got shape %v", op, t.shape))
	}
}

// Concat concatenates 2D tensors along the row axis. All inputs must share
// the same column count. Used to materialize the gathered world×rows matrix
// produced by collective all-gather.
func Concat(tensors []*Tensor) *Tensor {
	if len(tensors) == 0 {
		panic("tensor: Concat of zero tensors")
	}
	cols := tensors[0].Cols()
	rows := 0
	for _, t := range tensors {
		if t.Cols() != cols {
			panic(fmt.Sprintf("tensor: Concat column mismatch %d vs %d", t.Cols(), cols))
		}
		rows += t.Rows()
	}
	out := New(Shape{rows, cols})
	off := 0
	for _, t := range tensors {
		copy(out.data[off:], t.data)
		off += len(t.data)
	}
	return out
}
