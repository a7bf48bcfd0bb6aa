package nn

import (
	"fmt"

	"github.com/quanta-ml/quanta/internal/tensor"
)

// BatchNorm2d normalizes each channel of a 4D activation map.
//
// Training mode normalizes with batch statistics and updates running
// estimates; evaluation mode normalizes with the running estimates. The
// forward pass is composed from primitive tensor operations, so an
// autodiff backend differentiates it without a hand-derived fused
// backward.
type BatchNorm2d[B tensor.Backend] struct {
	numFeatures int
	eps         float32
	momentum    float32
	training    bool

	gamma *Parameter[B] // scale, initialized to ones
	beta  *Parameter[B] // shift, initialized to zeros

	// Buffers, updated outside the gradient tape.
	runningMean *tensor.Tensor[float32, B]
	runningVar  *tensor.Tensor[float32, B]

	backend B
}

// NewBatchNorm2d creates a BatchNorm2d over numFeatures channels with
// the standard eps 1e-5 and momentum 0.1.
func NewBatchNorm2d[B tensor.Backend](numFeatures int, backend B) *BatchNorm2d[B] {
	shape := tensor.Shape{numFeatures}
	return &BatchNorm2d[B]{
		numFeatures: numFeatures,
		eps:         1e-5,
		momentum:    0.1,
		training:    true,
		gamma:       NewParameter("weight", Ones(shape, backend)),
		beta:        NewParameter("bias", Zeros(shape, backend)),
		runningMean: Zeros(shape, backend),
		runningVar:  Ones(shape, backend),
		backend:     backend,
	}
}

// SetTraining switches between batch statistics and running estimates.
func (bn *BatchNorm2d[B]) SetTraining(training bool) {
	bn.training = training
}

// Forward normalizes the input [N, C, H, W] per channel.
func (bn *BatchNorm2d[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("BatchNorm2d.Forward: expected 4D input [N,C,H,W], got %v", shape))
	}
	if shape[1] != bn.numFeatures {
		panic(fmt.Sprintf("BatchNorm2d.Forward: expected %d channels, got %d", bn.numFeatures, shape[1]))
	}

	var centered, variance *tensor.Tensor[float32, B]
	if bn.training {
		// Batch statistics over N, H, W, kept as [1,C,1,1] for broadcasting.
		mean := reduceNHW(input)
		centered = input.Sub(mean)
		variance = reduceNHW(centered.Mul(centered))

		bn.updateRunningStats(mean, variance, shape)
	} else {
		mean := bn.runningMean.Reshape(1, bn.numFeatures, 1, 1)
		centered = input.Sub(mean)
		variance = bn.runningVar.Reshape(1, bn.numFeatures, 1, 1)
	}

	eps := tensor.Full(tensor.Shape{1}, bn.eps, bn.backend)
	std := variance.Add(eps).Sqrt()
	norm := centered.Div(std)

	g := bn.gamma.Tensor().Reshape(1, bn.numFeatures, 1, 1)
	b := bn.beta.Tensor().Reshape(1, bn.numFeatures, 1, 1)
	return norm.Mul(g).Add(b)
}

// reduceNHW averages over batch and spatial dims, keeping [1,C,1,1].
func reduceNHW[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return x.MeanDim(0, true).MeanDim(2, true).MeanDim(3, true)
}

// updateRunningStats folds the batch statistics into the running estimates.
// Uses the unbiased variance for the running estimate, matching the
// convention of normalizing with the biased one.
func (bn *BatchNorm2d[B]) updateRunningStats(mean, variance *tensor.Tensor[float32, B], shape tensor.Shape) {
	n := float32(shape[0] * shape[2] * shape[3])
	correction := float32(1)
	if n > 1 {
		correction = n / (n - 1)
	}

	meanData := mean.Raw().AsFloat32()
	varData := variance.Raw().AsFloat32()
	rm := bn.runningMean.Raw().AsFloat32()
	rv := bn.runningVar.Raw().AsFloat32()

	for c := 0; c < bn.numFeatures; c++ {
		rm[c] = (1-bn.momentum)*rm[c] + bn.momentum*meanData[c]
		rv[c] = (1-bn.momentum)*rv[c] + bn.momentum*varData[c]*correction
	}
}

// Parameters returns [gamma, beta]. Running statistics are buffers, not
// parameters.
func (bn *BatchNorm2d[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.gamma, bn.beta}
}

// NumFeatures returns the channel count.
func (bn *BatchNorm2d[B]) NumFeatures() int { return bn.numFeatures }

// StateDict returns parameters and running statistics.
func (bn *BatchNorm2d[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight":       bn.gamma.Tensor().Raw(),
		"bias":         bn.beta.Tensor().Raw(),
		"running_mean": bn.runningMean.Raw(),
		"running_var":  bn.runningVar.Raw(),
	}
}

// LoadStateDict restores parameters and running statistics.
func (bn *BatchNorm2d[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadParam(stateDict, "weight", bn.gamma); err != nil {
		return err
	}
	if err := loadParam(stateDict, "bias", bn.beta); err != nil {
		return err
	}
	for name, dst := range map[string]*tensor.Tensor[float32, B]{
		"running_mean": bn.runningMean,
		"running_var":  bn.runningVar,
	} {
		raw, ok := stateDict[name]
		if !ok {
			return fmt.Errorf("missing %q in state dict", name)
		}
		if err := dst.Raw().CopyFrom(raw); err != nil {
			return fmt.Errorf("load %q: %w", name, err)
		}
	}
	return nil
}
