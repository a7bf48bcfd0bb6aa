// Package autodiff implements reverse-mode automatic differentiation using
// the decorator pattern.
//
// Backend[B] wraps any tensor.Backend and records every differentiable
// operation on a GradientTape during the forward pass. Calling
// Tape().Backward then replays the tape in reverse to produce gradients for
// each parameter tensor.
//
//	ad := autodiff.New(cpu.New())
//	ad.Tape().StartRecording()
//	loss := model.Forward(input)
//	grads := ad.Tape().Backward(ones, ad)
package autodiff

import (
	"github.com/quanta-ml/quanta/internal/autodiff/ops"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// Backend wraps an inner backend and adds gradient tracking.
// It implements tensor.Backend itself, so tensors built on it behave
// identically while training code gains access to the tape.
type Backend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New creates an autodiff Backend wrapping the given backend.
func New[B tensor.Backend](backend B) *Backend[B] {
	return &Backend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for recording control and backward passes.
func (b *Backend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend.
func (b *Backend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *Backend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *Backend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// Add performs element-wise addition and records the operation.
func (b *Backend[B]) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(x, y)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewAddOp(x, y, result))
	}
	return result
}

// Sub performs element-wise subtraction and records the operation.
func (b *Backend[B]) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sub(x, y)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewSubOp(x, y, result))
	}
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *Backend[B]) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(x, y)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewMulOp(x, y, result))
	}
	return result
}

// Div performs element-wise division and records the operation.
func (b *Backend[B]) Div(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Div(x, y)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewDivOp(x, y, result))
	}
	return result
}

// MatMul performs matrix multiplication and records the operation.
func (b *Backend[B]) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.MatMul(x, y)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewMatMulOp(x, y, result))
	}
	return result
}

// Conv2D performs grouped 2D convolution and records the operation.
func (b *Backend[B]) Conv2D(input, kernel *tensor.RawTensor, stride, padding, groups int) *tensor.RawTensor {
	result := b.inner.Conv2D(input, kernel, stride, padding, groups)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewConv2DOp(input, kernel, result, stride, padding, groups))
	}
	return result
}

// Conv2DInputBackward delegates to the inner backend. Gradient kernels are
// never themselves differentiated.
func (b *Backend[B]) Conv2DInputBackward(input, kernel, outputGrad *tensor.RawTensor, stride, padding, groups int) *tensor.RawTensor {
	return b.inner.Conv2DInputBackward(input, kernel, outputGrad, stride, padding, groups)
}

// Conv2DKernelBackward delegates to the inner backend.
func (b *Backend[B]) Conv2DKernelBackward(input, kernel, outputGrad *tensor.RawTensor, stride, padding, groups int) *tensor.RawTensor {
	return b.inner.Conv2DKernelBackward(input, kernel, outputGrad, stride, padding, groups)
}

// ReLU6 applies the clipped rectifier and records the operation.
func (b *Backend[B]) ReLU6(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ReLU6(x)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewReLU6Op(x, result))
	}
	return result
}

// FakeQuant applies fake quantization and records the operation. The
// backward pass is the straight-through estimator, so recording happens
// even when the parameters degenerate to identity.
func (b *Backend[B]) FakeQuant(x *tensor.RawTensor, p tensor.QuantParams) *tensor.RawTensor {
	result := b.inner.FakeQuant(x, p)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewFakeQuantOp(x, result))
	}
	return result
}

// Sqrt computes element-wise square root and records the operation.
func (b *Backend[B]) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sqrt(x)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewSqrtOp(x, result))
	}
	return result
}

// SumDim sums along a dimension and records the operation.
func (b *Backend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	result := b.inner.SumDim(x, dim, keepDim)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewSumDimOp(x, result, dim))
	}
	return result
}

// MeanDim averages along a dimension and records the operation.
func (b *Backend[B]) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	result := b.inner.MeanDim(x, dim, keepDim)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewMeanDimOp(x, result, dim))
	}
	return result
}

// Argmax delegates to the inner backend. Index selection carries no gradient.
func (b *Backend[B]) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.inner.Argmax(x, dim)
}

// Reshape reshapes a tensor and records the operation, so gradients computed
// for the view propagate back to the original tensor.
func (b *Backend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(t, newShape)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewReshapeOp(t, result))
	}
	return result
}

// Transpose transposes a tensor and records the operation. Even though
// transpose is conceptually a view, the inner backend materializes a new
// tensor, so without recording, parameter gradients would be lost.
func (b *Backend[B]) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	ndim := len(t.Shape())
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}

	result := b.inner.Transpose(t, axes...)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewTransposeOp(t, result, axes))
	}
	return result
}

// CrossEntropy computes the fused softmax cross-entropy loss and records the
// operation. Targets are not differentiated.
func (b *Backend[B]) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.CrossEntropy(logits, targets)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewCrossEntropyOp(logits, targets, result))
	}
	return result
}
