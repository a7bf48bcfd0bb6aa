package ops

import "github.com/quanta-ml/quanta/internal/tensor"

// SumDimOp records a sum reduction along one dimension.
//
// Backward broadcasts the output gradient back across the reduced dimension:
// every input element that contributed to an output element receives its
// gradient unchanged.
type SumDimOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewSumDimOp creates a new SumDimOp.
func NewSumDimOp(input, output *tensor.RawTensor, dim int) *SumDimOp {
	return &SumDimOp{input: input, output: output, dim: dim}
}

func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := expandAlongDim(outputGrad, op.input.Shape(), op.dim, 1)
	return []*tensor.RawTensor{grad}
}

func (op *SumDimOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *SumDimOp) Output() *tensor.RawTensor   { return op.output }

// MeanDimOp records a mean reduction along one dimension.
//
// Backward is the sum backward scaled by 1/n, where n is the size of the
// reduced dimension.
type MeanDimOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewMeanDimOp creates a new MeanDimOp.
func NewMeanDimOp(input, output *tensor.RawTensor, dim int) *MeanDimOp {
	return &MeanDimOp{input: input, output: output, dim: dim}
}

func (op *MeanDimOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	n := op.input.Shape()[op.dim]
	grad := expandAlongDim(outputGrad, op.input.Shape(), op.dim, 1/float32(n))
	return []*tensor.RawTensor{grad}
}

func (op *MeanDimOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *MeanDimOp) Output() *tensor.RawTensor   { return op.output }

// expandAlongDim spreads a reduced gradient back to the input shape,
// replicating each output element scale times across the reduced dimension.
// Works for both keepDim variants since the flat layout of the output
// gradient is identical either way.
func expandAlongDim(grad *tensor.RawTensor, inputShape tensor.Shape, dim int, scale float32) *tensor.RawTensor {
	out := tensor.MustRaw(inputShape, grad.DType(), grad.Device())

	outer, inner := 1, 1
	for i := 0; i < dim; i++ {
		outer *= inputShape[i]
	}
	for i := dim + 1; i < len(inputShape); i++ {
		inner *= inputShape[i]
	}
	red := inputShape[dim]

	src := grad.AsFloat32()
	dst := out.AsFloat32()
	for o := 0; o < outer; o++ {
		for r := 0; r < red; r++ {
			base := (o*red + r) * inner
			gradBase := o * inner
			for i := 0; i < inner; i++ {
				dst[base+i] = src[gradBase+i] * scale
			}
		}
	}
	return out
}
