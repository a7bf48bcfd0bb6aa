package ops

import (
	"math"

	"github.com/quanta-ml/quanta/internal/tensor"
)

// CrossEntropyOp records the fused softmax + cross-entropy loss.
//
// Forward:
//
//	Loss = mean(-log_softmax(logits)[targets])
//
// Backward uses the fused gradient, which is why the two stay together:
//
//	∂L/∂logits[b,i] = (softmax(logits[b])[i] - 1{i == targets[b]}) / batch
//
// Targets carry no gradient.
type CrossEntropyOp struct {
	logits  *tensor.RawTensor // [batch, classes]
	targets *tensor.RawTensor // [batch] class indices
	output  *tensor.RawTensor // scalar [1]
}

// NewCrossEntropyOp creates a new cross-entropy operation.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{logits: logits, targets: targets, output: output}
}

func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.logits}
}

func (op *CrossEntropyOp) Output() *tensor.RawTensor {
	return op.output
}

func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := op.logits.Shape()
	if len(shape) != 2 {
		panic("CrossEntropyOp: logits must be 2D [batch, classes]")
	}
	batch, classes := shape[0], shape[1]

	grad := tensor.MustRaw(shape, op.logits.DType(), op.logits.Device())

	logits := op.logits.AsFloat32()
	targets := op.targets.AsInt32()
	gradData := grad.AsFloat32()
	scale := outputGrad.AsFloat32()[0] / float32(batch)

	for b := 0; b < batch; b++ {
		row := logits[b*classes : (b+1)*classes]
		probs := softmaxRow(row)

		target := int(targets[b])
		for i := 0; i < classes; i++ {
			g := probs[i]
			if i == target {
				g -= 1
			}
			gradData[b*classes+i] = g * scale
		}
	}

	return []*tensor.RawTensor{grad}
}

// softmaxRow computes a numerically stable softmax for one sample.
func softmaxRow(logits []float32) []float32 {
	probs := make([]float32, len(logits))

	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum float32
	for i, v := range logits {
		probs[i] = float32(math.Exp(float64(v - maxVal)))
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
