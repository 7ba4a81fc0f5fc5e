// Package data defines the multi-view batch types consumed by the training
// and validation steps, and a synthetic source that generates them.
//
// The synthetic source keeps the full pipeline runnable and testable
// without an image dataset on disk. In-distribution samples are
// noisy points around fixed class centers; views are independent jitters of
// the same underlying sample; out-of-distribution samples come from a wider,
// center-free distribution and carry the sentinel label -1.
package data

import (
	"fmt"
	"math/rand"

	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// OODLabel is the sentinel class label marking an out-of-distribution sample.
const OODLabel = -1

// TrainBatch carries three co-registered views per sample. The anchor view
// is not consumed by the objective but is part of the batch contract.
type TrainBatch struct {
	Anchor       *tensor.Tensor // [batch, dim]
	StudentViews *tensor.Tensor // [batch, dim]
	TeacherViews *tensor.Tensor // [batch, dim]
	Labels       []int          // ignored by the objective
}

// ValBatch carries the canonical image, K augmented views, and labels with
// the OOD sentinel.
type ValBatch struct {
	Images *tensor.Tensor   // [batch, dim]
	Views  []*tensor.Tensor // K tensors of [batch, dim]
	Labels []int
}

// Source produces training and validation batches.
type Source interface {
	TrainBatch() *TrainBatch
	ValBatch() *ValBatch
}

// SyntheticConfig parameterizes the synthetic source.
type SyntheticConfig struct {
	Dim         int     // flattened input width
	NumClasses  int     // number of in-distribution cluster centers
	BatchSize   int
	NumValViews int     // K augmented views per validation sample
	AugNoise    float32 // view jitter strength
	OODFraction float32 // share of OOD samples in validation batches
	Seed        int64
}

// Validate reports configuration errors.
func (c SyntheticConfig) Validate() error {
	if c.Dim < 1 || c.NumClasses < 1 || c.BatchSize < 1 || c.NumValViews < 1 {
		return fmt.Errorf("data: dim, classes, batch size and view count must be positive")
	}
	if c.OODFraction < 0 || c.OODFraction > 1 {
		return fmt.Errorf("data: OOD fraction %f outside [0, 1]", c.OODFraction)
	}
	return nil
}

// Synthetic generates Gaussian-cluster batches. Deterministic under its seed.
type Synthetic struct {
	cfg     SyntheticConfig
	centers *tensor.Tensor // [classes, dim]
	rng     *rand.Rand
}

// NewSynthetic creates a source with freshly sampled class centers.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	return &Synthetic{
		cfg:     cfg,
		centers: tensor.Randn(tensor.Shape{cfg.NumClasses, cfg.Dim}, rng).Scale(3),
		rng:     rng,
	}, nil
}

// sample draws one in-distribution point and its class.
func (s *Synthetic) sample() ([]float32, int) {
	class := s.rng.Intn(s.cfg.NumClasses)
	center := s.centers.Row(class)
	x := make([]float32, s.cfg.Dim)
	for i := range x {
		x[i] = center[i] + float32(s.rng.NormFloat64())
	}
	return x, class
}

// sampleOOD draws one out-of-distribution point: wide noise with no center.
func (s *Synthetic) sampleOOD() []float32 {
	x := make([]float32, s.cfg.Dim)
	for i := range x {
		x[i] = float32(s.rng.NormFloat64()) * 6
	}
	return x
}

// augment returns an independently jittered view of x.
func (s *Synthetic) augment(x []float32) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = v + s.cfg.AugNoise*float32(s.rng.NormFloat64())
	}
	return out
}

// TrainBatch draws an in-distribution batch with anchor, student, and
// teacher views of each sample.
func (s *Synthetic) TrainBatch() *TrainBatch {
	b, d := s.cfg.BatchSize, s.cfg.Dim
	anchor := tensor.New(tensor.Shape{b, d})
	student := tensor.New(tensor.Shape{b, d})
	teacher := tensor.New(tensor.Shape{b, d})
	labels := make([]int, b)
	for i := 0; i < b; i++ {
		x, class := s.sample()
		copy(anchor.Row(i), x)
		copy(student.Row(i), s.augment(x))
		copy(teacher.Row(i), s.augment(x))
		labels[i] = class
	}
	return &TrainBatch{Anchor: anchor, StudentViews: student, TeacherViews: teacher, Labels: labels}
}

// ValBatch draws a validation batch mixing ID and OOD samples.
func (s *Synthetic) ValBatch() *ValBatch {
	b, d := s.cfg.BatchSize, s.cfg.Dim
	images := tensor.New(tensor.Shape{b, d})
	views := make([]*tensor.Tensor, s.cfg.NumValViews)
	for k := range views {
		views[k] = tensor.New(tensor.Shape{b, d})
	}
	labels := make([]int, b)
	for i := 0; i < b; i++ {
		var x []float32
		if s.rng.Float32() < s.cfg.OODFraction {
			x = s.sampleOOD()
			labels[i] = OODLabel
		} else {
			var class int
			x, class = s.sample()
			labels[i] = class
		}
		copy(images.Row(i), x)
		for k := range views {
			copy(views[k].Row(i), s.augment(x))
		}
	}
	return &ValBatch{Images: images, Views: views, Labels: labels}
}
