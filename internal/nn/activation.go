package nn

import "github.com/quanta-ml/quanta/internal/tensor"

// ReLU6 applies the clipped rectifier min(max(x, 0), 6).
// The bounded range is what makes activations quantizable on a fixed grid.
type ReLU6[B tensor.Backend] struct{}

// NewReLU6 creates a ReLU6 activation.
func NewReLU6[B tensor.Backend]() *ReLU6[B] {
	return &ReLU6[B]{}
}

// Forward applies the activation element-wise.
func (r *ReLU6[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return input.ReLU6()
}

// Parameters returns nil; the activation is stateless.
func (r *ReLU6[B]) Parameters() []*Parameter[B] { return nil }

// StateDict returns an empty map.
func (r *ReLU6[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op for stateless modules.
func (r *ReLU6[B]) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }
