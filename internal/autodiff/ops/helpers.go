package ops

import (
	"fmt"

	"github.com/quanta-ml/quanta/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape,
// undoing NumPy-style broadcasting from the forward pass.
//
// Example:
//
//	Forward: a[1,C,1,1] + b[N,C,H,W] -> c[N,C,H,W]
//	Backward: grad_c[N,C,H,W] -> grad_a[1,C,1,1] (sum over dims 0, 2, 3)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()

	// Clone when shapes already match so accumulation never aliases the
	// upstream gradient.
	if gradShape.Equal(targetShape) {
		return grad.Clone()
	}

	// Broadcasting aligns shapes from the right: sum away leading dims the
	// target never had, then sum (keeping dims) wherever the target is 1.
	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0, false)
	}
	resShape := result.Shape()
	for i := range targetShape {
		if targetShape[i] == 1 && resShape[i] > 1 {
			result = backend.SumDim(result, i, true)
			resShape = result.Shape()
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// negate returns -grad as a fresh tensor.
func negate(grad *tensor.RawTensor) *tensor.RawTensor {
	if grad.DType() != tensor.Float32 {
		panic(fmt.Sprintf("negate: unsupported dtype %s", grad.DType()))
	}
	out := tensor.MustRaw(grad.Shape(), grad.DType(), grad.Device())
	src := grad.AsFloat32()
	dst := out.AsFloat32()
	for i, v := range src {
		dst[i] = -v
	}
	return out
}
