package quant_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-ml/quanta/internal/backend/cpu"
	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/quant"
	"github.com/quanta-ml/quanta/internal/tensor"
	"github.com/quanta-ml/quanta/internal/trainer"
)

type Backend = *cpu.Backend

func fromSlice(t *testing.T, data []float32, shape tensor.Shape, backend Backend) *tensor.Tensor[float32, Backend] {
	t.Helper()
	ts, err := tensor.FromSlice(data, shape, backend)
	require.NoError(t, err)
	return ts
}

func TestReLU6QuantGrid(t *testing.T) {
	backend := cpu.New()
	layer := quant.NewReLU6[Backend](2)

	// 2 bits over [0, 6] leaves the grid {0, 2, 4, 6}.
	input := fromSlice(t, []float32{-1, 0.9, 3.2, 7}, tensor.Shape{1, 4}, backend)
	got := layer.Forward(input).Data()
	assert.Equal(t, []float32{0, 0, 4, 6}, got)
}

func TestReLU6FullPrecisionPassthrough(t *testing.T) {
	backend := cpu.New()
	layer := quant.NewReLU6[Backend](32)

	input := fromSlice(t, []float32{-1, 0.9, 3.2, 7}, tensor.Shape{1, 4}, backend)
	got := layer.Forward(input).Data()
	// Clipping still applies; only the grid snapping is skipped.
	assert.Equal(t, []float32{0, 0.9, 3.2, 6}, got)
}

func TestIdentityQuantization(t *testing.T) {
	backend := cpu.New()

	full := quant.NewIdentity[Backend](32, true)
	input := fromSlice(t, []float32{-1, 0.5, 1}, tensor.Shape{1, 3}, backend)
	assert.Equal(t, input.Data(), full.Forward(input).Data())

	sym := quant.NewIdentity[Backend](8, true)
	got := sym.Forward(input).Data()
	// Symmetric 8-bit: extremes are exactly representable, interior
	// values snap to the nearest of 127 levels.
	assert.InDelta(t, -1, got[0], 1e-6)
	assert.InDelta(t, 0.5, got[1], 1.0/127)
	assert.InDelta(t, 1, got[2], 1e-6)
}

func TestRangeTrackerMerges(t *testing.T) {
	backend := cpu.New()
	q := quant.NewObserving(quant.BitConfig{BitW: 8, BitA: 8, FirstConvBitW: 8, LastFCBitW: 8}, nn.NewInitializer(1), backend)

	id := q.Identity(8)
	id.Forward(fromSlice(t, []float32{-1, 2}, tensor.Shape{1, 2}, backend))
	id.Forward(fromSlice(t, []float32{-3, 1}, tensor.Shape{1, 2}, backend))

	r, ok := q.Tracker().Get("input0")
	require.True(t, ok)
	assert.Equal(t, float32(-3), r.Lo)
	assert.Equal(t, float32(2), r.Hi)

	q.Tracker().Reset()
	_, ok = q.Tracker().Get("input0")
	assert.False(t, ok)
}

func TestObservingLayerNaming(t *testing.T) {
	backend := cpu.New()
	q := quant.NewObserving(quant.BitConfig{BitW: 4, BitA: 4, FirstConvBitW: 8, LastFCBitW: 8}, nn.NewInitializer(1), backend)

	conv := q.Conv2d(nn.Conv2dConfig{InChannels: 2, OutChannels: 2, KernelSize: 1, Stride: 1}, 4)
	fc := q.Linear(3, 2, 8)
	id := q.Identity(4)

	conv.Forward(fromSlice(t, make([]float32, 2*2*2), tensor.Shape{1, 2, 2, 2}, backend))
	fc.Forward(fromSlice(t, make([]float32, 3), tensor.Shape{1, 3}, backend))
	id.Forward(fromSlice(t, []float32{1, -1}, tensor.Shape{1, 2}, backend))

	assert.Equal(t, []string{"conv0.weight", "fc0.weight", "input0"}, q.Tracker().Names())
}

func TestUniformMatchesPlainAtFullPrecision(t *testing.T) {
	backend := cpu.New()
	cfg := nn.Conv2dConfig{InChannels: 2, OutChannels: 3, KernelSize: 3, Stride: 1, Padding: 1}

	quantized := quant.NewConv2d(cfg, 32, false, nn.NewInitializer(9), backend)
	plain := nn.NewConv2d(cfg, nn.NewInitializer(9), backend)

	input := fromSlice(t, make([]float32, 2*4*4), tensor.Shape{1, 2, 4, 4}, backend)
	for i := range input.Data() {
		input.Data()[i] = float32(i%7) - 3
	}
	assert.InDeltaSlice(t, plain.Forward(input).Data(), quantized.Forward(input).Data(), 1e-6)
}

func TestExtenderCapability(t *testing.T) {
	backend := cpu.New()
	init := nn.NewInitializer(1)
	cfg := quant.FullPrecision()

	var observing any = quant.NewObserving(cfg, init, backend)
	_, ok := observing.(trainer.Extender[Backend])
	assert.True(t, ok, "Observing extends the trainer")

	var uniform any = quant.NewUniform(cfg, init, backend)
	_, ok = uniform.(trainer.Extender[Backend])
	assert.False(t, ok, "Uniform registers no hooks")
}
