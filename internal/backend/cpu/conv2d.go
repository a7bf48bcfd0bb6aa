package cpu

import (
	"fmt"

	"github.com/quanta-ml/quanta/internal/parallel"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// Conv2D performs grouped 2D convolution.
//
// Input shape:  [N, C_in, H, W]
// Kernel shape: [C_out, C_in/groups, K_h, K_w]
// Output shape: [N, C_out, H_out, W_out]
//
// groups == 1 is a standard convolution, groups == C_in a depthwise one.
// Batch items are processed in parallel; the caller sees a synchronous call.
func (cpu *Backend) Conv2D(input, kernel *tensor.RawTensor, stride, padding, groups int) *tensor.RawTensor {
	g := conv2DGeometry(input, kernel, stride, padding, groups)

	output := tensor.MustRaw(tensor.Shape{g.n, g.cOut, g.hOut, g.wOut}, input.DType(), cpu.device)
	in := input.AsFloat32()
	w := kernel.AsFloat32()
	out := output.AsFloat32()

	parallel.For(g.n, func(n int) {
		for oc := 0; oc < g.cOut; oc++ {
			group := oc / g.cOutPerGroup
			icBase := group * g.cInPerGroup
			for oh := 0; oh < g.hOut; oh++ {
				for ow := 0; ow < g.wOut; ow++ {
					var sum float32
					for ic := 0; ic < g.cInPerGroup; ic++ {
						for kh := 0; kh < g.kh; kh++ {
							ih := oh*stride - padding + kh
							if ih < 0 || ih >= g.h {
								continue
							}
							for kw := 0; kw < g.kw; kw++ {
								iw := ow*stride - padding + kw
								if iw < 0 || iw >= g.w {
									continue
								}
								sum += in[((n*g.cIn+icBase+ic)*g.h+ih)*g.w+iw] *
									w[((oc*g.cInPerGroup+ic)*g.kh+kh)*g.kw+kw]
							}
						}
					}
					out[((n*g.cOut+oc)*g.hOut+oh)*g.wOut+ow] = sum
				}
			}
		}
	})

	return output
}

// Conv2DInputBackward computes the convolution gradient with respect to the
// input by scattering the output gradient back through the kernel.
func (cpu *Backend) Conv2DInputBackward(input, kernel, outputGrad *tensor.RawTensor, stride, padding, groups int) *tensor.RawTensor {
	g := conv2DGeometry(input, kernel, stride, padding, groups)

	gradIn := tensor.MustRaw(input.Shape().Clone(), input.DType(), cpu.device)
	w := kernel.AsFloat32()
	gradOut := outputGrad.AsFloat32()
	out := gradIn.AsFloat32()

	parallel.For(g.n, func(n int) {
		for oc := 0; oc < g.cOut; oc++ {
			group := oc / g.cOutPerGroup
			icBase := group * g.cInPerGroup
			for oh := 0; oh < g.hOut; oh++ {
				for ow := 0; ow < g.wOut; ow++ {
					grad := gradOut[((n*g.cOut+oc)*g.hOut+oh)*g.wOut+ow]
					if grad == 0 {
						continue
					}
					for ic := 0; ic < g.cInPerGroup; ic++ {
						for kh := 0; kh < g.kh; kh++ {
							ih := oh*stride - padding + kh
							if ih < 0 || ih >= g.h {
								continue
							}
							for kw := 0; kw < g.kw; kw++ {
								iw := ow*stride - padding + kw
								if iw < 0 || iw >= g.w {
									continue
								}
								out[((n*g.cIn+icBase+ic)*g.h+ih)*g.w+iw] +=
									grad * w[((oc*g.cInPerGroup+ic)*g.kh+kh)*g.kw+kw]
							}
						}
					}
				}
			}
		}
	})

	return gradIn
}

// Conv2DKernelBackward computes the convolution gradient with respect to the
// kernel. Accumulation runs over the batch, so the kernel loop (not the
// batch loop) is the parallel axis.
func (cpu *Backend) Conv2DKernelBackward(input, kernel, outputGrad *tensor.RawTensor, stride, padding, groups int) *tensor.RawTensor {
	g := conv2DGeometry(input, kernel, stride, padding, groups)

	gradW := tensor.MustRaw(kernel.Shape().Clone(), kernel.DType(), cpu.device)
	in := input.AsFloat32()
	gradOut := outputGrad.AsFloat32()
	out := gradW.AsFloat32()

	parallel.For(g.cOut, func(oc int) {
		group := oc / g.cOutPerGroup
		icBase := group * g.cInPerGroup
		for ic := 0; ic < g.cInPerGroup; ic++ {
			for kh := 0; kh < g.kh; kh++ {
				for kw := 0; kw < g.kw; kw++ {
					var sum float32
					for n := 0; n < g.n; n++ {
						for oh := 0; oh < g.hOut; oh++ {
							ih := oh*stride - padding + kh
							if ih < 0 || ih >= g.h {
								continue
							}
							for ow := 0; ow < g.wOut; ow++ {
								iw := ow*stride - padding + kw
								if iw < 0 || iw >= g.w {
									continue
								}
								sum += gradOut[((n*g.cOut+oc)*g.hOut+oh)*g.wOut+ow] *
									in[((n*g.cIn+icBase+ic)*g.h+ih)*g.w+iw]
							}
						}
					}
					out[((oc*g.cInPerGroup+ic)*g.kh+kh)*g.kw+kw] = sum
				}
			}
		}
	})

	return gradW
}

// convGeom carries the validated dimensions of one convolution call.
type convGeom struct {
	n, cIn, h, w              int
	cOut, kh, kw              int
	cInPerGroup, cOutPerGroup int
	hOut, wOut                int
}

func conv2DGeometry(input, kernel *tensor.RawTensor, stride, padding, groups int) convGeom {
	inShape := input.Shape()
	kShape := kernel.Shape()

	if len(inShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inShape)))
	}
	if len(kShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in/groups,K_h,K_w], got %dD", len(kShape)))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	}
	if groups <= 0 || inShape[1]%groups != 0 || kShape[0]%groups != 0 {
		panic(fmt.Sprintf("conv2d: invalid groups %d for C_in=%d C_out=%d", groups, inShape[1], kShape[0]))
	}
	if kShape[1] != inShape[1]/groups {
		panic(fmt.Sprintf("conv2d: kernel expects %d channels per group, input provides %d", kShape[1], inShape[1]/groups))
	}

	g := convGeom{
		n: inShape[0], cIn: inShape[1], h: inShape[2], w: inShape[3],
		cOut: kShape[0], kh: kShape[2], kw: kShape[3],
		cInPerGroup:  inShape[1] / groups,
		cOutPerGroup: kShape[0] / groups,
	}
	g.hOut = (g.h+2*padding-g.kh)/stride + 1
	g.wOut = (g.w+2*padding-g.kw)/stride + 1
	if g.hOut <= 0 || g.wOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output size %dx%d (check stride/padding)", g.hOut, g.wOut))
	}
	return g
}
