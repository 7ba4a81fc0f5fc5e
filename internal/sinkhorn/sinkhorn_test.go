package sinkhorn_test

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensemble-ml/sensemble/internal/dist"
	"github.com/sensemble-ml/sensemble/internal/sinkhorn"
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// randomTargets builds a row-stochastic matrix of softmax-like rows.
func randomTargets(rows, cols int, rng *rand.Rand) *tensor.Tensor {
	return tensor.Randn(tensor.Shape{rows, cols}, rng).Scale(2).Softmax()
}

func TestBalanceKeepsRowsStochastic(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	targets := randomTargets(16, 8, rng)
	b := sinkhorn.NewBalancer(sinkhorn.DefaultIters, dist.SingleProcess{})

	balanced := b.Balance(targets)

	require.True(t, balanced.Shape().Equal(targets.Shape()))
	for r := 0; r < 16; r++ {
		var sum float64
		for _, v := range balanced.Row(r) {
			sum += float64(v)
			assert.GreaterOrEqual(t, v, float32(0))
		}
		assert.InDelta(t, 1, sum, 1e-4, "row %d sum", r)
	}
}

func TestBalanceDoesNotMutateInput(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	targets := randomTargets(4, 8, rng)
	before := targets.Clone()

	sinkhorn.NewBalancer(3, dist.SingleProcess{}).Balance(targets)

	assert.Equal(t, before.Data(), targets.Data())
}

// columnImbalance measures the max deviation of per-prototype mass from
// uniform, normalized so a fully collapsed assignment scores 1.
func columnImbalance(t *tensor.Tensor) float64 {
	cols := t.Cols()
	colSums := t.SumCols()
	total := t.Sum()
	uniform := float64(total) / float64(cols)
	worst := 0.0
	for _, v := range colSums.Data() {
		dev := math.Abs(float64(v) - uniform)
		if dev > worst {
			worst = dev
		}
	}
	return worst / float64(total)
}

func TestBalancePushesColumnsTowardUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	// Heavily collapsed assignment: most mass on prototype 0.
	logits := tensor.Randn(tensor.Shape{32, 8}, rng)
	for r := 0; r < 32; r++ {
		logits.Row(r)[0] += 4
	}
	targets := logits.Softmax()

	imbalanceBefore := columnImbalance(targets)
	var prev *tensor.Tensor
	for _, iters := range []int{1, 3, 10} {
		balanced := sinkhorn.NewBalancer(iters, dist.SingleProcess{}).Balance(targets)
		imbalance := columnImbalance(balanced)
		assert.Less(t, imbalance, imbalanceBefore, "iters=%d must improve column balance", iters)
		if prev != nil {
			assert.LessOrEqual(t, imbalance, columnImbalance(prev)+1e-6,
				"more iterations must not worsen balance")
		}
		prev = balanced
	}
}

func TestBalanceAcrossWorkersMatchesPooledBalance(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	shardA := randomTargets(4, 8, rng)
	shardB := randomTargets(4, 8, rng)

	// Two workers balancing their shards against the pooled population.
	workers := dist.NewGroup(2)
	shards := []*tensor.Tensor{shardA, shardB}
	results := make([]*tensor.Tensor, 2)
	var wg sync.WaitGroup
	for rank, w := range workers {
		wg.Add(1)
		go func(rank int, w *dist.Worker) {
			defer wg.Done()
			results[rank] = sinkhorn.NewBalancer(3, w).Balance(shards[rank])
		}(rank, w)
	}
	wg.Wait()

	// A single worker balancing the concatenated population computes the
	// same normalization, so the per-shard results must line up.
	pooled := sinkhorn.NewBalancer(3, dist.SingleProcess{}).
		Balance(tensor.Concat([]*tensor.Tensor{shardA, shardB}))

	combined := tensor.Concat(results)
	require.True(t, combined.Shape().Equal(pooled.Shape()))
	for i := range pooled.Data() {
		assert.InDelta(t, pooled.Data()[i], combined.Data()[i], 1e-4)
	}
}

func TestQueuePushFullBatchReplacesBuffer(t *testing.T) {
	q := sinkhorn.NewQueue(4, 2)
	batch := tensor.MustFromSlice([]float32{1, 1, 2, 2, 3, 3, 4, 4}, tensor.Shape{4, 2})

	q.PushBatch(batch)

	assert.Equal(t, batch.Data(), q.Rows().Data())
}

func TestQueuePushSlidesWindow(t *testing.T) {
	q := sinkhorn.NewQueue(4, 2)
	first := tensor.MustFromSlice([]float32{1, 1, 2, 2}, tensor.Shape{2, 2})
	second := tensor.MustFromSlice([]float32{3, 3, 4, 4}, tensor.Shape{2, 2})

	q.PushBatch(first)
	q.PushBatch(second)

	// Newest first: second batch in rows 0-1, first batch shifted to 2-3.
	want := []float32{3, 3, 4, 4, 1, 1, 2, 2}
	assert.Equal(t, want, q.Rows().Data())

	third := tensor.MustFromSlice([]float32{5, 5}, tensor.Shape{1, 2})
	q.PushBatch(third)

	// Oldest row (the trailing "2,2") evicted, rest preserved in order.
	want = []float32{5, 5, 3, 3, 4, 4, 1, 1}
	assert.Equal(t, want, q.Rows().Data())
}

func TestQueuePushPanicsWhenBatchExceedsCapacity(t *testing.T) {
	q := sinkhorn.NewQueue(2, 2)

	assert.Panics(t, func() {
		q.PushBatch(tensor.Ones(tensor.Shape{3, 2}))
	})
}

func TestQueueIsWarmMonotone(t *testing.T) {
	q := sinkhorn.NewQueue(8, 4)

	// batch=2: warm once 2*(step+1) >= 8, i.e. step >= 3.
	warmSeen := false
	for step := 0; step < 10; step++ {
		warm := q.IsWarm(step, 2)
		if warmSeen {
			assert.True(t, warm, "warm state must never flip back at step %d", step)
		}
		if warm {
			warmSeen = true
			assert.GreaterOrEqual(t, step, 3)
		} else {
			assert.Less(t, step, 3)
		}
	}
	assert.True(t, warmSeen)

	// Capacity equal to batch size is warm immediately.
	q2 := sinkhorn.NewQueue(4, 4)
	assert.True(t, q2.IsWarm(0, 4))
}
