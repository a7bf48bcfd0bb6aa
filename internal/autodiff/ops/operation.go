// Package ops defines the differentiable operations recorded on the gradient tape.
//
// Each operation captures its inputs and output during the forward pass and
// knows how to compute input gradients from the output gradient during the
// backward pass. The tape walks recorded operations in reverse and accumulates
// gradients via the chain rule.
package ops

import "github.com/quanta-ml/quanta/internal/tensor"

// Operation is a single recorded step in the computation graph.
type Operation interface {
	// Backward computes gradients for the inputs given the output gradient.
	// The returned slice corresponds position-by-position to Inputs().
	// A nil entry means no gradient flows to that input.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors of this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the tensor produced by this operation.
	Output() *tensor.RawTensor
}
