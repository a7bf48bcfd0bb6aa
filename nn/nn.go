// Package nn provides the public API for the neural network building
// blocks: layers, containers, loss, checkpointing, and deterministic
// initialization.
package nn

import (
	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// Module is the common interface for all layers and containers.
type Module[B tensor.Backend] = nn.Module[B]

// ModeSetter is implemented by modules that behave differently in
// training and evaluation, such as batch normalization.
type ModeSetter = nn.ModeSetter

// SetTraining switches m between training and evaluation mode when it
// cares about the distinction.
func SetTraining[B tensor.Backend](m Module[B], training bool) {
	nn.SetTraining(m, training)
}

// Parameter is a named trainable tensor.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a named parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// Initializer is a seeded source for deterministic weight initialization.
type Initializer = nn.Initializer

// NewInitializer creates an initializer from a seed.
func NewInitializer(seed uint64) *Initializer { return nn.NewInitializer(seed) }

// Linear is a fully connected layer.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a linear layer with N(0, 0.01) weights and zero bias.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, init *Initializer, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, init, backend)
}

// Conv2dConfig describes a 2D convolution.
type Conv2dConfig = nn.Conv2dConfig

// Conv2d is a 2D convolution layer with optional grouping.
type Conv2d[B tensor.Backend] = nn.Conv2d[B]

// NewConv2d creates a convolution with Kaiming-normal initialized kernels.
func NewConv2d[B tensor.Backend](cfg Conv2dConfig, init *Initializer, backend B) *Conv2d[B] {
	return nn.NewConv2d(cfg, init, backend)
}

// BatchNorm2d normalizes over the batch and spatial dimensions per channel.
type BatchNorm2d[B tensor.Backend] = nn.BatchNorm2d[B]

// NewBatchNorm2d creates a batch norm layer with unit weight and zero bias.
func NewBatchNorm2d[B tensor.Backend](numFeatures int, backend B) *BatchNorm2d[B] {
	return nn.NewBatchNorm2d(numFeatures, backend)
}

// ReLU6 clips activations to [0, 6].
type ReLU6[B tensor.Backend] = nn.ReLU6[B]

// Sequential chains modules so each output feeds the next input.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a Sequential container over the given modules.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// CrossEntropyLoss is the fused softmax + cross-entropy criterion.
type CrossEntropyLoss[B tensor.Backend] = nn.CrossEntropyLoss[B]

// NewCrossEntropyLoss creates the criterion.
func NewCrossEntropyLoss[B tensor.Backend](backend B) *CrossEntropyLoss[B] {
	return nn.NewCrossEntropyLoss(backend)
}

// Accuracy computes the fraction of correct argmax predictions for a batch.
func Accuracy[B tensor.Backend](logits *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B]) float64 {
	return nn.Accuracy(logits, targets)
}

// Checkpoint bundles model and optimizer state for persistence.
type Checkpoint[B tensor.Backend] = nn.Checkpoint[B]

// OptimizerState is the optimizer surface a checkpoint captures.
type OptimizerState = nn.OptimizerState

// LoadCheckpoint restores model weights, and optimizer state when
// optimizer is non-nil, from a checkpoint file.
func LoadCheckpoint[B tensor.Backend](path string, backend B, model Module[B], optimizer OptimizerState) (*Checkpoint[B], error) {
	return nn.LoadCheckpoint(path, backend, model, optimizer)
}
