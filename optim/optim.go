// Package optim provides the public API for optimizers and learning-rate
// schedulers.
package optim

import (
	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/optim"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// Optimizer updates parameters from the gradients a backward pass
// produced.
type Optimizer = optim.Optimizer

// Scheduler adjusts the optimizer's learning rate over training.
type Scheduler = optim.Scheduler

// SGDConfig configures stochastic gradient descent.
type SGDConfig = optim.SGDConfig

// SGD is stochastic gradient descent with optional momentum, weight decay
// and Nesterov updates.
type SGD[B tensor.Backend] = optim.SGD[B]

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig, backend B) *SGD[B] {
	return optim.NewSGD(params, config, backend)
}

// AdamConfig configures the Adam optimizer.
type AdamConfig = optim.AdamConfig

// Adam is the Adam optimizer with bias-corrected moment estimates.
type Adam[B tensor.Backend] = optim.Adam[B]

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, backend B) *Adam[B] {
	return optim.NewAdam(params, config, backend)
}

// StepLR decays the learning rate by gamma every stepSize steps.
type StepLR = optim.StepLR

// NewStepLR creates a StepLR scheduler.
func NewStepLR(optimizer Optimizer, stepSize int, gamma float64) *StepLR {
	return optim.NewStepLR(optimizer, stepSize, gamma)
}

// MultiStepLR decays the learning rate by gamma at each milestone.
type MultiStepLR = optim.MultiStepLR

// NewMultiStepLR creates a MultiStepLR scheduler.
func NewMultiStepLR(optimizer Optimizer, milestones []int, gamma float64) *MultiStepLR {
	return optim.NewMultiStepLR(optimizer, milestones, gamma)
}

// CosineAnnealingLR anneals the learning rate along a half cosine.
type CosineAnnealingLR = optim.CosineAnnealingLR

// NewCosineAnnealingLR creates a cosine annealing scheduler.
func NewCosineAnnealingLR(optimizer Optimizer, tMax int, etaMin float64) *CosineAnnealingLR {
	return optim.NewCosineAnnealingLR(optimizer, tMax, etaMin)
}
