package tensor

// Backend defines the interface that all compute backends must implement.
// Backends own the actual computation for tensor operations; the typed
// Tensor API above them is a thin dispatch layer.
//
// Implementations:
//   - cpu.Backend: pure Go kernels
//   - autodiff.Backend: decorator that records operations on a gradient tape
type Backend interface {
	// Element-wise binary operations with NumPy-style broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// MatMul performs 2D matrix multiplication: [M,K] @ [K,N] -> [M,N].
	MatMul(a, b *RawTensor) *RawTensor

	// Conv2D performs grouped 2D convolution.
	// Input [N,C_in,H,W], kernel [C_out,C_in/groups,K_h,K_w].
	// groups == C_in gives a depthwise convolution.
	Conv2D(input, kernel *RawTensor, stride, padding, groups int) *RawTensor

	// Conv2D gradients, used by the autodiff decorator.
	Conv2DInputBackward(input, kernel, outputGrad *RawTensor, stride, padding, groups int) *RawTensor
	Conv2DKernelBackward(input, kernel, outputGrad *RawTensor, stride, padding, groups int) *RawTensor

	// Activations and quantization.
	ReLU6(x *RawTensor) *RawTensor
	FakeQuant(x *RawTensor, p QuantParams) *RawTensor

	// Element-wise math.
	Sqrt(x *RawTensor) *RawTensor

	// Reductions.
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	Argmax(x *RawTensor, dim int) *RawTensor

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// CrossEntropy computes mean cross-entropy loss over the batch from raw
	// logits [N,C] and class-index targets [N]. Returns a scalar [1] tensor.
	CrossEntropy(logits, targets *RawTensor) *RawTensor

	// Metadata.
	Name() string
	Device() Device
}
