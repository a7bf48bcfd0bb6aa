package nn

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-ml/quanta/internal/autodiff"
	"github.com/quanta-ml/quanta/internal/backend/cpu"
	"github.com/quanta-ml/quanta/internal/tensor"
)

type Backend = *autodiff.Backend[*cpu.Backend]

func newBackend() Backend {
	return autodiff.New(cpu.New())
}

func TestLinearForwardShape(t *testing.T) {
	backend := newBackend()
	init := NewInitializer(42)
	layer := NewLinear(8, 4, init, backend)

	input := tensor.Zeros[float32](tensor.Shape{2, 8}, backend)
	output := layer.Forward(input)

	assert.True(t, output.Shape().Equal(tensor.Shape{2, 4}))
	assert.Len(t, layer.Parameters(), 2)
}

func TestLinearKnownValues(t *testing.T) {
	backend := newBackend()
	layer := NewLinear(2, 2, NewInitializer(0), backend)

	// Overwrite initialized weights with known values: identity weight,
	// bias [1, -1].
	copy(layer.Weight().Tensor().Data(), []float32{1, 0, 0, 1})
	copy(layer.Bias().Tensor().Data(), []float32{1, -1})

	input, err := tensor.FromSlice([]float32{2, 3}, tensor.Shape{1, 2}, backend)
	require.NoError(t, err)

	output := layer.Forward(input)
	assert.Equal(t, []float32{3, 2}, output.Data())
}

func TestConv2dDepthwiseShape(t *testing.T) {
	backend := newBackend()
	init := NewInitializer(42)

	conv := NewConv2d(Conv2dConfig{
		InChannels:  4,
		OutChannels: 4,
		KernelSize:  3,
		Stride:      2,
		Padding:     1,
		Groups:      4,
	}, init, backend)

	input := tensor.Zeros[float32](tensor.Shape{1, 4, 8, 8}, backend)
	output := conv.Forward(input)

	assert.True(t, output.Shape().Equal(tensor.Shape{1, 4, 4, 4}))
	// Depthwise kernel: one input channel per filter.
	assert.True(t, conv.Weight().Tensor().Shape().Equal(tensor.Shape{4, 1, 3, 3}))
	// No bias by default.
	assert.Len(t, conv.Parameters(), 1)
}

func TestBatchNorm2dTrainingNormalizes(t *testing.T) {
	backend := newBackend()
	bn := NewBatchNorm2d(1, backend)

	input, err := tensor.FromSlice(
		[]float32{1, 2, 3, 4},
		tensor.Shape{1, 1, 2, 2}, backend)
	require.NoError(t, err)

	output := bn.Forward(input)
	data := output.Data()

	// Normalized output has zero mean and unit variance (up to eps).
	var mean float64
	for _, v := range data {
		mean += float64(v)
	}
	mean /= float64(len(data))
	assert.InDelta(t, 0, mean, 1e-5)

	var variance float64
	for _, v := range data {
		variance += (float64(v) - mean) * (float64(v) - mean)
	}
	variance /= float64(len(data))
	assert.InDelta(t, 1, variance, 1e-3)
}

func TestBatchNorm2dEvalUsesRunningStats(t *testing.T) {
	backend := newBackend()
	bn := NewBatchNorm2d(1, backend)
	bn.SetTraining(false)

	// Fresh running stats are mean 0, var 1, so eval mode is near-identity.
	input, err := tensor.FromSlice(
		[]float32{1, 2, 3, 4},
		tensor.Shape{1, 1, 2, 2}, backend)
	require.NoError(t, err)

	output := bn.Forward(input)
	for i, v := range output.Data() {
		assert.InDelta(t, input.Data()[i], v, 1e-4, "index %d", i)
	}
}

func TestBatchNorm2dBackwardReachesParams(t *testing.T) {
	backend := newBackend()
	bn := NewBatchNorm2d(2, backend)

	input, err := tensor.FromSlice(
		[]float32{1, 2, 3, 4, 5, 6, 7, 8},
		tensor.Shape{1, 2, 2, 2}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	out := bn.Forward(input)
	out.Mul(out).MeanDim(0, false)
	backend.Tape().StopRecording()

	grad := tensor.Ones[float32](tensor.Shape{2, 2, 2}, backend)
	grads := backend.Tape().Backward(grad.Raw(), backend)

	_, hasGamma := grads[bn.gamma.Tensor().Raw()]
	_, hasBeta := grads[bn.beta.Tensor().Raw()]
	assert.True(t, hasGamma, "no gradient for scale")
	assert.True(t, hasBeta, "no gradient for shift")
}

func TestSequentialStateDictRoundTrip(t *testing.T) {
	backend := newBackend()
	init := NewInitializer(7)

	build := func(init *Initializer) *Sequential[Backend] {
		return NewSequential[Backend](
			NewLinear(4, 8, init, backend),
			NewReLU6[Backend](),
			NewLinear(8, 2, init, backend),
		)
	}

	src := build(init)
	dst := build(NewInitializer(99))

	require.NoError(t, dst.LoadStateDict(src.StateDict()))

	srcState := src.StateDict()
	for name, raw := range dst.StateDict() {
		assert.Equal(t, srcState[name].AsFloat32(), raw.AsFloat32(), name)
	}
}

func TestCrossEntropyLossValue(t *testing.T) {
	backend := newBackend()
	criterion := NewCrossEntropyLoss[Backend](backend)

	// Uniform logits over 4 classes: loss = ln(4).
	logits := tensor.Zeros[float32](tensor.Shape{2, 4}, backend)
	targets, err := tensor.FromSlice([]int32{0, 3}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	loss := criterion.Forward(logits, targets)
	assert.InDelta(t, math.Log(4), float64(loss.Item()), 1e-5)
}

func TestAccuracy(t *testing.T) {
	backend := newBackend()

	logits, err := tensor.FromSlice([]float32{
		5, 1, 0, // predicts 0
		0, 3, 1, // predicts 1
		1, 0, 2, // predicts 2
		9, 0, 0, // predicts 0
	}, tensor.Shape{4, 3}, backend)
	require.NoError(t, err)

	targets, err := tensor.FromSlice([]int32{0, 1, 0, 1}, tensor.Shape{4}, backend)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, Accuracy(logits, targets), 1e-9)
}

func TestCheckpointRoundTrip(t *testing.T) {
	backend := newBackend()
	path := filepath.Join(t.TempDir(), "ckpt.cbor")

	src := NewLinear(4, 2, NewInitializer(1), backend)
	ckpt := &Checkpoint[Backend]{
		Model:  src,
		Arch:   "mobilenetv2",
		Epoch:  3,
		Step:   1200,
		Metric: 0.87,
	}
	require.NoError(t, ckpt.Save(path))

	dst := NewLinear(4, 2, NewInitializer(2), backend)
	loaded, err := LoadCheckpoint(path, backend, dst, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, loaded.Epoch)
	assert.Equal(t, int64(1200), loaded.Step)
	assert.Equal(t, "mobilenetv2", loaded.Arch)
	assert.InDelta(t, 0.87, loaded.Metric, 1e-9)
	assert.Equal(t, src.Weight().Tensor().Data(), dst.Weight().Tensor().Data())

	// Mismatched architecture must fail.
	wrong := NewLinear(5, 2, NewInitializer(3), backend)
	_, err = LoadCheckpoint(path, backend, wrong, nil)
	assert.Error(t, err)
}
