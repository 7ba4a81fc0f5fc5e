package metrics_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sensemble-ml/sensemble/internal/metrics"
)

func TestAUROCPerfectSeparation(t *testing.T) {
	a := metrics.NewAUROC()
	a.Update([]float64{0.9, 0.8, 0.7}, []bool{true, true, true})
	a.Update([]float64{0.1, 0.2, 0.3}, []bool{false, false, false})

	assert.InDelta(t, 1.0, a.Compute(), 1e-9)
}

func TestAUROCInvertedSeparation(t *testing.T) {
	a := metrics.NewAUROC()
	a.Update([]float64{0.1, 0.2}, []bool{true, true})
	a.Update([]float64{0.8, 0.9}, []bool{false, false})

	assert.InDelta(t, 0.0, a.Compute(), 1e-9)
}

func TestAUROCPartialSeparation(t *testing.T) {
	a := metrics.NewAUROC()
	// Positives {1, 3}, negatives {2, 4}: exactly one of four
	// positive/negative pairs ranks the positive higher.
	a.Update([]float64{1, 2, 3, 4}, []bool{true, false, true, false})

	assert.InDelta(t, 0.25, a.Compute(), 1e-9)
}

func TestAUROCSingleClassScoresAtChance(t *testing.T) {
	a := metrics.NewAUROC()
	a.Update([]float64{0.4, 0.6}, []bool{true, true})

	assert.Equal(t, 0.5, a.Compute())
}

func TestAUROCUpdateOrderIrrelevant(t *testing.T) {
	a := metrics.NewAUROC()
	b := metrics.NewAUROC()
	a.Update([]float64{0.9, 0.1, 0.7, 0.2}, []bool{true, false, true, false})
	b.Update([]float64{0.2, 0.7}, []bool{false, true})
	b.Update([]float64{0.9, 0.1}, []bool{true, false})

	assert.InDelta(t, a.Compute(), b.Compute(), 1e-12)
}

func TestAUROCReset(t *testing.T) {
	a := metrics.NewAUROC()
	a.Update([]float64{0.9}, []bool{true})
	a.Update([]float64{0.1}, []bool{false})
	assert.Equal(t, 2, a.Count())

	a.Reset()

	assert.Equal(t, 0, a.Count())
	assert.Equal(t, 0.5, a.Compute(), "reset accumulator is degenerate")
}

func TestMean(t *testing.T) {
	m := metrics.NewMean()
	assert.True(t, math.IsNaN(m.Compute()), "empty mean is NaN")

	m.Update([]float64{1, 2, 3})
	m.UpdateOne(6)

	assert.InDelta(t, 3.0, m.Compute(), 1e-12)
	assert.Equal(t, 4, m.Count())

	m.Reset()
	assert.Equal(t, 0, m.Count())
	assert.True(t, math.IsNaN(m.Compute()))
}
