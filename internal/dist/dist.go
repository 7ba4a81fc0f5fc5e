// Package dist provides the synchronous collective-communication primitives
// the training loop depends on.
//
// The core algorithm only ever needs two collectives: an all-gather of 2D
// row batches (Sinkhorn balancing, memax regularization) and an all-reduce
// mean of scalar metric vectors (epoch-end metric sync). Both are barriers:
// a call blocks until every worker in the group arrives. A worker that skips
// a collective call deadlocks the group; that is the accepted contract of
// synchronous data-parallel training, so every code path must issue the same
// number of collective calls in the same order on every worker.
//
// Two implementations ship with the package: SingleProcess for world size 1
// and Group, an in-process set of goroutine workers synchronizing through a
// shared barrier, which is how the multi-worker behavior is tested.
package dist

import (
	"sync"

	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// Collective is the communication surface of one worker in a synchronous
// data-parallel group.
type Collective interface {
	// WorldSize returns the number of workers in the group.
	WorldSize() int

	// Rank returns this worker's index in [0, WorldSize).
	Rank() int

	// AllGather returns every worker's rows concatenated in rank order:
	// a local [rows, cols] shard becomes [world_size*rows, cols]. Blocks
	// until all workers have contributed.
	AllGather(t *tensor.Tensor) *tensor.Tensor

	// AllReduceMean returns the element-wise mean of x across all workers.
	// Blocks until all workers have contributed.
	AllReduceMean(x []float64) []float64
}

// SingleProcess is the world-size-1 collective: both collectives are
// identity operations that return their input unchanged (gather copies).
type SingleProcess struct{}

// WorldSize returns 1.
func (SingleProcess) WorldSize() int { return 1 }

// Rank returns 0.
func (SingleProcess) Rank() int { return 0 }

// AllGather returns a copy of the local shard.
func (SingleProcess) AllGather(t *tensor.Tensor) *tensor.Tensor { return t.Clone() }

// AllReduceMean returns x unchanged.
func (SingleProcess) AllReduceMean(x []float64) []float64 { return x }

// Group is an in-process synchronous worker group. Create one per simulated
// job and hand each goroutine its Worker handle.
type Group struct {
	world int

	mu          sync.Mutex
	gatherRound *gatherRound
	reduceRound *reduceRound
}

// NewGroup creates a group of worldSize workers and returns one handle per
// rank.
func NewGroup(worldSize int) []*Worker {
	g := &Group{world: worldSize}
	workers := make([]*Worker, worldSize)
	for r := 0; r < worldSize; r++ {
		workers[r] = &Worker{group: g, rank: r}
	}
	return workers
}

// Worker is one rank's handle onto a Group.
type Worker struct {
	group *Group
	rank  int
}

// WorldSize returns the group size.
func (w *Worker) WorldSize() int { return w.group.world }

// Rank returns the worker's rank.
func (w *Worker) Rank() int { return w.rank }

type gatherRound struct {
	slots     []*tensor.Tensor
	out       *tensor.Tensor
	remaining int
	done      chan struct{}
}

// AllGather blocks until all ranks of the group have called it for the
// current round, then returns the rank-ordered concatenation.
func (w *Worker) AllGather(t *tensor.Tensor) *tensor.Tensor {
	g := w.group
	g.mu.Lock()
	if g.gatherRound == nil {
		g.gatherRound = &gatherRound{
			slots:     make([]*tensor.Tensor, g.world),
			remaining: g.world,
			done:      make(chan struct{}),
		}
	}
	r := g.gatherRound
	r.slots[w.rank] = t
	r.remaining--
	if r.remaining == 0 {
		r.out = tensor.Concat(r.slots)
		g.gatherRound = nil // next call starts a fresh round
		close(r.done)
		g.mu.Unlock()
	} else {
		g.mu.Unlock()
		<-r.done
	}
	return r.out
}

type reduceRound struct {
	sum       []float64
	out       []float64
	remaining int
	done      chan struct{}
}

// AllReduceMean blocks until all ranks of the group have called it for the
// current round, then returns the element-wise mean.
func (w *Worker) AllReduceMean(x []float64) []float64 {
	g := w.group
	g.mu.Lock()
	if g.reduceRound == nil {
		g.reduceRound = &reduceRound{
			sum:       make([]float64, len(x)),
			remaining: g.world,
			done:      make(chan struct{}),
		}
	}
	r := g.reduceRound
	if len(x) != len(r.sum) {
		g.mu.Unlock()
		panic("dist: AllReduceMean length mismatch across workers")
	}
	for i, v := range x {
		r.sum[i] += v
	}
	r.remaining--
	if r.remaining == 0 {
		r.out = make([]float64, len(r.sum))
		for i, v := range r.sum {
			r.out[i] = v / float64(g.world)
		}
		g.reduceRound = nil
		close(r.done)
		g.mu.Unlock()
	} else {
		g.mu.Unlock()
		<-r.done
	}
	return r.out
}
