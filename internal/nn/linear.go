package nn

import (
	"fmt"

	"github.com/quanta-ml/quanta/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ Wᵀ + b.
//
//   - x: [batch, inFeatures]
//   - W: [outFeatures, inFeatures]
//   - b: [outFeatures]
//   - y: [batch, outFeatures]
//
// Weights are drawn from N(0, 0.01), biases start at zero, matching the
// classifier head initialization used throughout the pipeline.
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B]
	bias        *Parameter[B]
	backend     B
}

// NewLinear creates a Linear layer with weights from init.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, init *Initializer, backend B) *Linear[B] {
	weight := Normal(init, tensor.Shape{outFeatures, inFeatures}, 0.01, backend)
	bias := Zeros(tensor.Shape{outFeatures}, backend)

	return &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", weight),
		bias:        NewParameter("bias", bias),
		backend:     backend,
	}
}

// Forward computes y = x @ Wᵀ + b.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("Linear.Forward: expected 2D input [batch, features], got %v", shape))
	}
	if shape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected %d input features, got %d", l.inFeatures, shape[1]))
	}

	output := input.MatMul(l.weight.Tensor().T())

	// Bias broadcasts across the batch as [1, outFeatures].
	b := l.bias.Tensor().Reshape(1, l.outFeatures)
	return output.Add(b)
}

// Parameters returns [weight, bias].
func (l *Linear[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] { return l.weight }

// Bias returns the bias parameter.
func (l *Linear[B]) Bias() *Parameter[B] { return l.bias }

// InFeatures returns the input width.
func (l *Linear[B]) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output width.
func (l *Linear[B]) OutFeatures() int { return l.outFeatures }

// StateDict returns the layer parameters keyed by name.
func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": l.weight.Tensor().Raw(),
		"bias":   l.bias.Tensor().Raw(),
	}
}

// LoadStateDict restores the layer parameters.
func (l *Linear[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadParam(stateDict, "weight", l.weight); err != nil {
		return err
	}
	return loadParam(stateDict, "bias", l.bias)
}

// loadParam copies a named entry from a state dict into a parameter,
// validating shape and dtype.
func loadParam[B tensor.Backend](stateDict map[string]*tensor.RawTensor, name string, p *Parameter[B]) error {
	raw, ok := stateDict[name]
	if !ok {
		return fmt.Errorf("missing %q in state dict", name)
	}
	if err := p.Tensor().Raw().CopyFrom(raw); err != nil {
		return fmt.Errorf("load %q: %w", name, err)
	}
	return nil
}
