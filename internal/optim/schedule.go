package optim

import (
	"fmt"
	"math"

	"github.com/sensemble-ml/sensemble/internal/autodiff"
)

// Optimizer is the surface the trainer and schedule drive.
type Optimizer interface {
	Step(grads autodiff.Grads)
	LR() float32
	SetLR(lr float32)
}

// LinearWarmupCosine is a per-epoch learning-rate schedule: linear warmup
// from warmupStartLR to baseLR over warmupEpochs, then cosine annealing down
// to etaMin at maxEpochs.
//
// The horizon must be finite and positive. A schedule without a known end
// cannot compute the cosine phase, so an unset horizon is a configuration
// error surfaced before training starts.
type LinearWarmupCosine struct {
	warmupEpochs  int
	maxEpochs     int
	warmupStartLR float32
	baseLR        float32
	etaMin        float32
}

// NewLinearWarmupCosine creates the schedule. maxEpochs must be positive and
// at least warmupEpochs.
func NewLinearWarmupCosine(warmupEpochs, maxEpochs int, baseLR float32) (*LinearWarmupCosine, error) {
	if maxEpochs <= 0 {
		return nil, fmt.Errorf("optim: schedule requires a finite positive epoch horizon, got %d", maxEpochs)
	}
	if warmupEpochs < 0 || warmupEpochs > maxEpochs {
		return nil, fmt.Errorf("optim: warmup epochs %d outside [0, %d]", warmupEpochs, maxEpochs)
	}
	return &LinearWarmupCosine{
		warmupEpochs: warmupEpochs,
		maxEpochs:    maxEpochs,
		baseLR:       baseLR,
	}, nil
}

// LRAt returns the learning rate for a 0-based epoch index.
func (s *LinearWarmupCosine) LRAt(epoch int) float32 {
	if epoch < s.warmupEpochs {
		frac := float32(epoch) / float32(s.warmupEpochs)
		return s.warmupStartLR + (s.baseLR-s.warmupStartLR)*frac
	}
	if epoch >= s.maxEpochs {
		return s.etaMin
	}
	progress := float64(epoch-s.warmupEpochs) / float64(s.maxEpochs-s.warmupEpochs)
	cos := 0.5 * (1 + math.Cos(math.Pi*progress))
	return s.etaMin + (s.baseLR-s.etaMin)*float32(cos)
}

// Apply sets the optimizer's learning rate for the given epoch.
func (s *LinearWarmupCosine) Apply(opt Optimizer, epoch int) {
	opt.SetLR(s.LRAt(epoch))
}
