// Package sinkhorn implements the Sinkhorn-Knopp target balancer and the
// sliding queue of past teacher targets that stabilizes it.
//
// Balancing prevents collapsed prototype assignment: the teacher's soft
// targets are iteratively renormalized so that, across the population
// gathered from every worker, each prototype receives roughly equal
// probability mass while every row stays a distribution. The iteration count
// is a fixed hyperparameter, not a convergence tolerance: every worker must
// issue the identical sequence of collective calls or the group deadlocks.
package sinkhorn

import (
	"github.com/sensemble-ml/sensemble/internal/dist"
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// DefaultIters is the default number of balancing iterations.
const DefaultIters = 3

// Balancer runs a fixed number of Sinkhorn-Knopp normalization iterations
// over targets gathered from all workers in a collective group.
type Balancer struct {
	iters      int
	collective dist.Collective
}

// NewBalancer creates a balancer performing iters iterations per call.
func NewBalancer(iters int, collective dist.Collective) *Balancer {
	return &Balancer{iters: iters, collective: collective}
}

// Iters returns the configured iteration count.
func (b *Balancer) Iters() int { return b.iters }

// Balance renormalizes the local shard of targets against the globally
// gathered population and returns a fresh tensor; the input is not modified.
//
// Every input row must have positive sum (softmax outputs satisfy this).
// The result is row-stochastic with pooled column mass pushed toward
// uniform. Label construction only: callers must not backpropagate through
// the result, and the method performs 1 + iters all-gathers regardless of
// data, keeping the collective schedule identical on every worker.
func (b *Balancer) Balance(targets *tensor.Tensor) *tensor.Tensor {
	rows, cols := targets.Rows(), targets.Cols()
	world := b.collective.WorldSize()

	gathered := b.collective.AllGather(targets)
	t := targets.Scale(1 / gathered.Sum())

	for i := 0; i < b.iters; i++ {
		// Balance columns against the pooled population.
		colSums := b.collective.AllGather(t).SumCols()
		t = t.Div(colSums).ScaleInPlace(1 / float32(cols))

		// Balance rows locally.
		rowSums := t.SumRows()
		for r := 0; r < rows; r++ {
			row := t.Row(r)
			inv := 1 / (rowSums.At(r) * float32(world*rows))
			for c := range row {
				row[c] *= inv
			}
		}
	}

	// Back to the one-unit-of-mass-per-row convention.
	return t.ScaleInPlace(float32(world * rows))
}
