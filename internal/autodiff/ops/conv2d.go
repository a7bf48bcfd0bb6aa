package ops

import "github.com/quanta-ml/quanta/internal/tensor"

// Conv2DOp records a grouped 2D convolution for autodiff.
//
// Forward: output = Conv2D(input, kernel, stride, padding, groups)
//
// Backward gradients are computed by the backend:
//   - input grad: transposed convolution of the output gradient with the kernel
//   - kernel grad: correlation of the input with the output gradient
type Conv2DOp struct {
	input   *tensor.RawTensor
	kernel  *tensor.RawTensor
	output  *tensor.RawTensor
	stride  int
	padding int
	groups  int
}

// NewConv2DOp creates a new Conv2D operation.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding, groups int) *Conv2DOp {
	return &Conv2DOp{
		input:   input,
		kernel:  kernel,
		output:  output,
		stride:  stride,
		padding: padding,
		groups:  groups,
	}
}

func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

func (op *Conv2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward delegates both gradient kernels to the backend.
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.Conv2DInputBackward(op.input, op.kernel, outputGrad, op.stride, op.padding, op.groups)
	kernelGrad := backend.Conv2DKernelBackward(op.input, op.kernel, outputGrad, op.stride, op.padding, op.groups)
	return []*tensor.RawTensor{inputGrad, kernelGrad}
}
