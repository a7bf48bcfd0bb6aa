package ops

import "github.com/quanta-ml/quanta/internal/tensor"

// ReLU6Op records the clipped rectifier: output = min(max(x, 0), 6).
//
// The derivative is 1 on the open interval (0, 6) and 0 everywhere else,
// including both clipping boundaries.
type ReLU6Op struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewReLU6Op creates a new ReLU6Op.
func NewReLU6Op(input, output *tensor.RawTensor) *ReLU6Op {
	return &ReLU6Op{input: input, output: output}
}

func (op *ReLU6Op) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := tensor.MustRaw(op.input.Shape(), op.input.DType(), op.input.Device())

	x := op.input.AsFloat32()
	g := outputGrad.AsFloat32()
	out := grad.AsFloat32()
	for i, v := range x {
		if v > 0 && v < 6 {
			out[i] = g[i]
		}
	}

	return []*tensor.RawTensor{grad}
}

func (op *ReLU6Op) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *ReLU6Op) Output() *tensor.RawTensor   { return op.output }
