// Package nn implements the neural network building blocks used by the
// quantization-aware training pipeline.
//
// Building blocks:
//   - Module interface: base interface for all layers and containers
//   - Parameter: trainable tensors with gradient slots
//   - Conv2d, Linear, BatchNorm2d, ReLU6: layers
//   - Sequential: ordered container
//   - CrossEntropyLoss: classification criterion
//
// Design follows PyTorch's nn.Module adapted to Go generics: layers are
// generic over the backend so the same model definition runs on a plain
// backend for inference and an autodiff backend for training.
package nn

import "github.com/quanta-ml/quanta/internal/tensor"

// Module is the base interface for all network components.
type Module[B tensor.Backend] interface {
	// Forward computes the module output for the given input.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters, including those of
	// nested modules. Stateless modules return nil.
	Parameters() []*Parameter[B]

	// StateDict returns a map from parameter name to raw tensor for
	// serialization. Includes non-trainable buffers such as running
	// statistics.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores parameters and buffers from a state dict.
	// Shapes and dtypes must match the module exactly.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// ModeSetter is implemented by modules whose forward pass differs between
// training and evaluation, such as BatchNorm2d. Containers propagate the
// mode to every child that implements it.
type ModeSetter interface {
	SetTraining(training bool)
}

// SetTraining switches a module tree between training and evaluation mode.
// Modules that do not implement ModeSetter are unaffected.
func SetTraining[B tensor.Backend](m Module[B], training bool) {
	if ms, ok := m.(ModeSetter); ok {
		ms.SetTraining(training)
	}
}
