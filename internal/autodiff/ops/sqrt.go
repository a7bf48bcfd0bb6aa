package ops

import "github.com/quanta-ml/quanta/internal/tensor"

// SqrtOp records element-wise square root: output = √x.
//
// d(√x)/dx = 1 / (2√x) = 1 / (2·output).
type SqrtOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSqrtOp creates a new SqrtOp.
func NewSqrtOp(input, output *tensor.RawTensor) *SqrtOp {
	return &SqrtOp{input: input, output: output}
}

func (op *SqrtOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := tensor.MustRaw(op.input.Shape(), op.input.DType(), op.input.Device())

	g := outputGrad.AsFloat32()
	y := op.output.AsFloat32()
	out := grad.AsFloat32()
	for i := range out {
		out[i] = g[i] / (2 * y[i])
	}

	return []*tensor.RawTensor{grad}
}

func (op *SqrtOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *SqrtOp) Output() *tensor.RawTensor   { return op.output }
