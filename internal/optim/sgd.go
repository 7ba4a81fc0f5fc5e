package optim

import (
	"github.com/sensemble-ml/sensemble/internal/autodiff"
	"github.com/sensemble-ml/sensemble/internal/nn"
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Without momentum: param -= lr * grad.
// With momentum: velocity = momentum * velocity + grad; param -= lr * velocity.
type SGD struct {
	params     []*nn.Parameter
	lr         float32
	momentum   float32
	velocities map[*nn.Parameter]*tensor.Tensor
}

// SGDConfig holds SGD hyperparameters.
type SGDConfig struct {
	LR       float32 // learning rate (default 0.01)
	Momentum float32 // momentum factor in [0, 1) (default 0)
}

// NewSGD creates an SGD optimizer over params.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter]*tensor.Tensor),
	}
}

// LR returns the current learning rate.
func (s *SGD) LR() float32 { return s.lr }

// SetLR overrides the learning rate.
func (s *SGD) SetLR(lr float32) { s.lr = lr }

// Step applies one update from the gradients of the last backward pass.
func (s *SGD) Step(grads autodiff.Grads) {
	for _, param := range s.params {
		grad := grads.Get(param.Tensor())
		if grad == nil {
			continue
		}

		pd := param.Tensor().Data()
		gd := grad.Data()
		if s.momentum == 0 {
			for i := range pd {
				pd[i] -= s.lr * gd[i]
			}
			continue
		}

		vel, ok := s.velocities[param]
		if !ok {
			vel = tensor.Zeros(param.Tensor().Shape())
			s.velocities[param] = vel
		}
		vd := vel.Data()
		for i := range pd {
			vd[i] = s.momentum*vd[i] + gd[i]
			pd[i] -= s.lr * vd[i]
		}
	}
}
