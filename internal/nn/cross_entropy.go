package nn

import "github.com/quanta-ml/quanta/internal/tensor"

// CrossEntropyLoss is the fused softmax + cross-entropy classification
// criterion. It expects raw logits; the backend computes the loss with the
// log-sum-exp trick and, on an autodiff backend, records the fused
// operation so the backward pass uses the simplified softmax-minus-onehot
// gradient.
type CrossEntropyLoss[B tensor.Backend] struct {
	backend B
}

// NewCrossEntropyLoss creates the criterion.
func NewCrossEntropyLoss[B tensor.Backend](backend B) *CrossEntropyLoss[B] {
	return &CrossEntropyLoss[B]{backend: backend}
}

// Forward computes the mean loss over the batch.
//
//   - logits: [batch, classes]
//   - targets: [batch] class indices
//
// Returns a scalar tensor.
func (c *CrossEntropyLoss[B]) Forward(
	logits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[int32, B],
) *tensor.Tensor[float32, B] {
	raw := c.backend.CrossEntropy(logits.Raw(), targets.Raw())
	return tensor.New[float32](raw, c.backend)
}

// Accuracy computes the fraction of correct argmax predictions for a batch.
func Accuracy[B tensor.Backend](
	logits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[int32, B],
) float64 {
	predictions := logits.Argmax(1).Data()
	targetData := targets.Data()

	correct := 0
	for i, p := range predictions {
		if p == targetData[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(targetData))
}

// Predictions returns the argmax class index per sample.
func Predictions[B tensor.Backend](logits *tensor.Tensor[float32, B]) []int32 {
	return logits.Argmax(1).Data()
}
