package cpu

import (
	"math"

	"github.com/quanta-ml/quanta/internal/tensor"
)

// ReLU6 applies min(max(x, 0), 6) element-wise.
func (cpu *Backend) ReLU6(x *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.MustRaw(x.Shape().Clone(), x.DType(), cpu.device)
	in, out := x.AsFloat32(), result.AsFloat32()
	for i, v := range in {
		switch {
		case v < 0:
			out[i] = 0
		case v > 6:
			out[i] = 6
		default:
			out[i] = v
		}
	}
	return result
}

// FakeQuant applies simulated quantization: values snap to the nearest
// point of the configured grid and come back as float32.
func (cpu *Backend) FakeQuant(x *tensor.RawTensor, p tensor.QuantParams) *tensor.RawTensor {
	result := tensor.MustRaw(x.Shape().Clone(), x.DType(), cpu.device)
	tensor.QuantizeF32(result.AsFloat32(), x.AsFloat32(), p)
	return result
}

// Sqrt applies the element-wise square root.
func (cpu *Backend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.MustRaw(x.Shape().Clone(), x.DType(), cpu.device)
	in, out := x.AsFloat32(), result.AsFloat32()
	for i, v := range in {
		out[i] = float32(math.Sqrt(float64(v)))
	}
	return result
}

// CrossEntropy computes mean cross-entropy over the batch from raw logits
// [N,C] and int32 class targets [N], using the log-sum-exp trick for
// numerical stability. Returns a scalar [1] tensor.
func (cpu *Backend) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic("cross entropy: logits must be 2D [batch, classes]")
	}
	batch, classes := shape[0], shape[1]

	tgt := targets.AsInt32()
	if len(tgt) != batch {
		panic("cross entropy: targets must have shape [batch]")
	}

	logitsData := logits.AsFloat32()
	var total float64
	for b := 0; b < batch; b++ {
		row := logitsData[b*classes : (b+1)*classes]
		target := int(tgt[b])
		if target < 0 || target >= classes {
			panic("cross entropy: target index out of range")
		}
		total += float64(logSumExp(row) - row[target])
	}

	result := tensor.MustRaw(tensor.Shape{1}, tensor.Float32, cpu.device)
	result.AsFloat32()[0] = float32(total / float64(batch))
	return result
}

// logSumExp computes log(sum(exp(z))) without overflow.
func logSumExp(z []float32) float32 {
	maxVal := z[0]
	for _, v := range z[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for _, v := range z {
		sum += math.Exp(float64(v - maxVal))
	}
	return maxVal + float32(math.Log(sum))
}
