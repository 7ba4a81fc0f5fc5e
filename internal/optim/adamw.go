// Package optim implements the optimizers and the learning-rate schedule
// driving Sensemble pretraining.
package optim

import (
	"math"

	"github.com/sensemble-ml/sensemble/internal/autodiff"
	"github.com/sensemble-ml/sensemble/internal/nn"
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// AdamW implements Adam with decoupled weight decay.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param = param - lr * (m_hat / (sqrt(v_hat) + eps) + weight_decay * param)
//
// Unlike L2-regularized Adam, the decay term bypasses the moment estimates,
// which is the AdamW formulation from "Decoupled Weight Decay Regularization"
// (Loshchilov & Hutter, 2019).
type AdamW struct {
	params      []*nn.Parameter
	lr          float32
	betas       [2]float32
	eps         float32
	weightDecay float32
	step        int

	m map[*nn.Parameter]*tensor.Tensor
	v map[*nn.Parameter]*tensor.Tensor
}

// AdamWConfig holds AdamW hyperparameters.
type AdamWConfig struct {
	LR          float32    // learning rate (default 1e-2)
	Betas       [2]float32 // moment decay rates (default 0.9, 0.999)
	Eps         float32    // denominator stabilizer (default 1e-8)
	WeightDecay float32    // decoupled decay coefficient (default 0)
}

// NewAdamW creates an AdamW optimizer over params.
func NewAdamW(params []*nn.Parameter, config AdamWConfig) *AdamW {
	if config.LR == 0 {
		config.LR = 1e-2
	}
	if config.Betas == [2]float32{} {
		config.Betas = [2]float32{0.9, 0.999}
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &AdamW{
		params:      params,
		lr:          config.LR,
		betas:       config.Betas,
		eps:         config.Eps,
		weightDecay: config.WeightDecay,
		m:           make(map[*nn.Parameter]*tensor.Tensor),
		v:           make(map[*nn.Parameter]*tensor.Tensor),
	}
}

// LR returns the current learning rate.
func (a *AdamW) LR() float32 { return a.lr }

// SetLR overrides the learning rate; called by the schedule at epoch
// boundaries.
func (a *AdamW) SetLR(lr float32) { a.lr = lr }

// Step applies one update from the gradients of the last backward pass.
// Parameters absent from grads did not participate in the loss and are
// skipped.
func (a *AdamW) Step(grads autodiff.Grads) {
	a.step++
	beta1, beta2 := float64(a.betas[0]), float64(a.betas[1])
	bc1 := 1 - math.Pow(beta1, float64(a.step))
	bc2 := 1 - math.Pow(beta2, float64(a.step))

	for _, param := range a.params {
		grad := grads.Get(param.Tensor())
		if grad == nil {
			continue
		}

		m, ok := a.m[param]
		if !ok {
			m = tensor.Zeros(param.Tensor().Shape())
			a.m[param] = m
			a.v[param] = tensor.Zeros(param.Tensor().Shape())
		}
		v := a.v[param]

		pd := param.Tensor().Data()
		gd := grad.Data()
		md := m.Data()
		vd := v.Data()
		for i := range pd {
			g := gd[i]
			md[i] = a.betas[0]*md[i] + (1-a.betas[0])*g
			vd[i] = a.betas[1]*vd[i] + (1-a.betas[1])*g*g
			mHat := float64(md[i]) / bc1
			vHat := float64(vd[i]) / bc2
			update := mHat/(math.Sqrt(vHat)+float64(a.eps)) +
				float64(a.weightDecay)*float64(pd[i])
			pd[i] -= a.lr * float32(update)
		}
	}
}
