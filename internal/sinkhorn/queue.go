package sinkhorn

import (
	"fmt"

	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// Queue is a fixed-capacity sliding buffer of the most recent teacher
// targets, newest rows first. It widens the population the balancer sees in
// early training, before a single batch is representative.
//
// Capacity is the per-worker share of the configured global queue size. The
// queue is per-worker local state, touched once per training step.
type Queue struct {
	buf      *tensor.Tensor // [capacity, num_prototypes]
	capacity int
}

// NewQueue creates a queue holding capacity target rows. The capacity must
// be able to hold at least one batch; PushBatch enforces that per call.
func NewQueue(capacity, numPrototypes int) *Queue {
	if capacity < 1 {
		panic(fmt.Sprintf("sinkhorn: queue capacity must be >= 1, got %d", capacity))
	}
	return &Queue{
		buf:      tensor.Zeros(tensor.Shape{capacity, numPrototypes}),
		capacity: capacity,
	}
}

// Capacity returns the number of rows the queue holds.
func (q *Queue) Capacity() int { return q.capacity }

// PushBatch slides the buffer down by the batch size, evicting the oldest
// rows, and writes the new targets into the leading rows. A batch larger
// than the queue is an invariant violation: balancing needs the queue to
// hold at least one full batch.
func (q *Queue) PushBatch(targets *tensor.Tensor) {
	batch := targets.Rows()
	if batch > q.capacity {
		panic(fmt.Sprintf("sinkhorn: batch size %d exceeds queue capacity %d", batch, q.capacity))
	}
	if q.capacity > batch {
		// Shift-down overwrite; copy handles the overlapping ranges.
		cols := q.buf.Cols()
		data := q.buf.Data()
		copy(data[batch*cols:], data[:(q.capacity-batch)*cols])
	}
	q.buf.SetRowRange(0, targets)
}

// IsWarm reports whether the queue has been completely overwritten at least
// once by step (0-based): batchSize*(step+1) >= capacity. Monotone in step.
// Before warm-up the balancer runs on the current batch alone; after, on the
// full queue contents.
func (q *Queue) IsWarm(step, batchSize int) bool {
	return batchSize*(step+1) >= q.capacity
}

// Rows returns a copy of the buffer contents, newest rows first.
func (q *Queue) Rows() *tensor.Tensor {
	return q.buf.Clone()
}
