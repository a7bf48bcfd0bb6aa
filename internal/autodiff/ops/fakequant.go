package ops

import "github.com/quanta-ml/quanta/internal/tensor"

// FakeQuantOp records a fake-quantization step.
//
// The forward pass rounds values onto a discrete grid, whose derivative is
// zero almost everywhere. Training uses the straight-through estimator
// instead: the output gradient is passed to the input unchanged, as if the
// quantizer were the identity.
type FakeQuantOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewFakeQuantOp creates a new FakeQuantOp.
func NewFakeQuantOp(input, output *tensor.RawTensor) *FakeQuantOp {
	return &FakeQuantOp{input: input, output: output}
}

// Backward applies the straight-through estimator.
func (op *FakeQuantOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad.Clone()}
}

func (op *FakeQuantOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *FakeQuantOp) Output() *tensor.RawTensor   { return op.output }
