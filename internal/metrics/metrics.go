// Package metrics implements the validation metric accumulators: explicit
// objects with update / compute / reset lifecycles, scoped to one validation
// epoch.
//
// Accumulators are per-worker local. At epoch end the computed values are
// averaged across workers with a one-shot collective reduction, then every
// accumulator is reset so no state leaks into the next epoch.
package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Metric is the epoch-end surface shared by all accumulators.
type Metric interface {
	// Compute returns the metric value over everything accumulated since
	// the last Reset.
	Compute() float64

	// Reset clears accumulated state.
	Reset()
}

// AUROC accumulates anomaly scores with binary labels and computes the area
// under the ROC curve, where label true is the positive (out-of-distribution)
// class and higher scores predict it.
type AUROC struct {
	scores []float64
	labels []bool
}

// NewAUROC creates an empty AUROC accumulator.
func NewAUROC() *AUROC { return &AUROC{} }

// Update appends a batch of scores and their labels. Lengths must match.
func (a *AUROC) Update(scores []float64, labels []bool) {
	if len(scores) != len(labels) {
		panic("metrics: AUROC update length mismatch")
	}
	a.scores = append(a.scores, scores...)
	a.labels = append(a.labels, labels...)
}

// Compute returns the AUROC over all accumulated samples. An epoch that saw
// only one class has no ranking to score and computes as chance (0.5).
func (a *AUROC) Compute() float64 {
	pos, neg := 0, 0
	for _, l := range a.labels {
		if l {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}

	// stat.ROC wants scores ascending with labels aligned.
	idx := make([]int, len(a.scores))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return a.scores[idx[i]] < a.scores[idx[j]] })
	y := make([]float64, len(idx))
	classes := make([]bool, len(idx))
	for i, j := range idx {
		y[i] = a.scores[j]
		classes[i] = a.labels[j]
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// Count returns the number of accumulated samples.
func (a *AUROC) Count() int { return len(a.scores) }

// Reset clears accumulated state.
func (a *AUROC) Reset() {
	a.scores = a.scores[:0]
	a.labels = a.labels[:0]
}

// Mean accumulates a running mean of scalar observations.
type Mean struct {
	sum   float64
	count int
}

// NewMean creates an empty Mean accumulator.
func NewMean() *Mean { return &Mean{} }

// Update adds the observations to the running mean.
func (m *Mean) Update(values []float64) {
	for _, v := range values {
		m.sum += v
	}
	m.count += len(values)
}

// UpdateOne adds a single observation.
func (m *Mean) UpdateOne(v float64) {
	m.sum += v
	m.count++
}

// Compute returns the mean, or NaN when nothing was accumulated.
func (m *Mean) Compute() float64 {
	if m.count == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.count)
}

// Count returns the number of accumulated observations.
func (m *Mean) Count() int { return m.count }

// Reset clears accumulated state.
func (m *Mean) Reset() {
	m.sum = 0
	m.count = 0
}
