// Package optim implements the optimization algorithms and learning-rate
// schedules used by the training loop.
//
// Provided:
//   - Optimizer interface with SGD (momentum, Nesterov, weight decay) and Adam
//   - Scheduler interface with StepLR, MultiStepLR and CosineAnnealingLR
//
// Design follows torch.optim adapted to Go: optimizers consume the gradient
// map produced by the autodiff tape and update parameter data in place.
package optim

import (
	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// Optimizer updates model parameters from computed gradients.
type Optimizer interface {
	// Step applies one update from the gradient map produced by
	// GradientTape.Backward. Parameters absent from the map are skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears the gradients of all managed parameters.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float64

	// SetLR changes the learning rate; called by schedulers.
	SetLR(lr float64)

	// StateDict returns the optimizer state (velocities, moments) for
	// checkpointing.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores the optimizer state from a checkpoint.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// getGradient retrieves the gradient for a parameter, or nil when the
// parameter did not participate in the recorded forward pass.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Tensor().Raw()]
}
