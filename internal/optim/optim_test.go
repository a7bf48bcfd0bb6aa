package optim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-ml/quanta/internal/backend/cpu"
	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/tensor"
)

func makeParam(t *testing.T, backend *cpu.Backend, values []float32) *nn.Parameter[*cpu.Backend] {
	t.Helper()
	ten, err := tensor.FromSlice(values, tensor.Shape{len(values)}, backend)
	require.NoError(t, err)
	return nn.NewParameter("weight", ten)
}

func gradFor(t *testing.T, backend *cpu.Backend, p *nn.Parameter[*cpu.Backend], values []float32) map[*tensor.RawTensor]*tensor.RawTensor {
	t.Helper()
	g, err := tensor.FromSlice(values, tensor.Shape{len(values)}, backend)
	require.NoError(t, err)
	return map[*tensor.RawTensor]*tensor.RawTensor{p.Tensor().Raw(): g.Raw()}
}

func TestSGDStep(t *testing.T) {
	backend := cpu.New()
	p := makeParam(t, backend, []float32{1, 2})
	opt := NewSGD([]*nn.Parameter[*cpu.Backend]{p}, SGDConfig{LR: 0.1}, backend)

	opt.Step(gradFor(t, backend, p, []float32{1, -1}))

	assert.InDelta(t, 0.9, float64(p.Tensor().Data()[0]), 1e-6)
	assert.InDelta(t, 2.1, float64(p.Tensor().Data()[1]), 1e-6)
}

func TestSGDMomentumAccumulates(t *testing.T) {
	backend := cpu.New()
	p := makeParam(t, backend, []float32{0})
	opt := NewSGD([]*nn.Parameter[*cpu.Backend]{p}, SGDConfig{LR: 1, Momentum: 0.5}, backend)

	// Step 1: v = 1, p = -1. Step 2: v = 1.5, p = -2.5.
	opt.Step(gradFor(t, backend, p, []float32{1}))
	opt.Step(gradFor(t, backend, p, []float32{1}))

	assert.InDelta(t, -2.5, float64(p.Tensor().Data()[0]), 1e-6)
}

func TestSGDWeightDecay(t *testing.T) {
	backend := cpu.New()
	p := makeParam(t, backend, []float32{10})
	opt := NewSGD([]*nn.Parameter[*cpu.Backend]{p}, SGDConfig{LR: 0.1, WeightDecay: 0.1}, backend)

	// Effective gradient: 0 + 0.1*10 = 1, so p -= 0.1.
	opt.Step(gradFor(t, backend, p, []float32{0}))

	assert.InDelta(t, 9.9, float64(p.Tensor().Data()[0]), 1e-6)
}

func TestSGDSkipsParamsWithoutGrad(t *testing.T) {
	backend := cpu.New()
	p := makeParam(t, backend, []float32{5})
	opt := NewSGD([]*nn.Parameter[*cpu.Backend]{p}, SGDConfig{LR: 0.1}, backend)

	opt.Step(map[*tensor.RawTensor]*tensor.RawTensor{})

	assert.Equal(t, float32(5), p.Tensor().Data()[0])
}

func TestAdamFirstStepMovesByLR(t *testing.T) {
	backend := cpu.New()
	p := makeParam(t, backend, []float32{1})
	opt := NewAdam([]*nn.Parameter[*cpu.Backend]{p}, AdamConfig{LR: 0.01}, backend)

	// On the first step the bias-corrected update is lr * sign(grad)
	// (up to eps).
	opt.Step(gradFor(t, backend, p, []float32{3}))

	assert.InDelta(t, 0.99, float64(p.Tensor().Data()[0]), 1e-4)
}

func TestStepLRDecay(t *testing.T) {
	backend := cpu.New()
	p := makeParam(t, backend, []float32{0})
	opt := NewSGD([]*nn.Parameter[*cpu.Backend]{p}, SGDConfig{LR: 1}, backend)
	sched := NewStepLR(opt, 2, 0.1)

	sched.Step()
	assert.InDelta(t, 1.0, sched.LastLR(), 1e-9)
	sched.Step()
	assert.InDelta(t, 0.1, sched.LastLR(), 1e-9)
	sched.Step()
	assert.InDelta(t, 0.1, sched.LastLR(), 1e-9)
	sched.Step()
	assert.InDelta(t, 0.01, sched.LastLR(), 1e-9)
}

func TestMultiStepLRDecaysAtMilestones(t *testing.T) {
	backend := cpu.New()
	p := makeParam(t, backend, []float32{0})
	opt := NewSGD([]*nn.Parameter[*cpu.Backend]{p}, SGDConfig{LR: 1}, backend)
	sched := NewMultiStepLR(opt, []int{3, 1}, 0.5) // unsorted on purpose

	want := []float64{0.5, 0.5, 0.25, 0.25}
	for i, w := range want {
		sched.Step()
		assert.InDelta(t, w, sched.LastLR(), 1e-9, "tick %d", i+1)
	}
}

func TestCosineAnnealingEndpoints(t *testing.T) {
	backend := cpu.New()
	p := makeParam(t, backend, []float32{0})
	opt := NewSGD([]*nn.Parameter[*cpu.Backend]{p}, SGDConfig{LR: 1}, backend)
	sched := NewCosineAnnealingLR(opt, 10, 0)

	for i := 0; i < 5; i++ {
		sched.Step()
	}
	assert.InDelta(t, 0.5, sched.LastLR(), 1e-9)

	for i := 0; i < 5; i++ {
		sched.Step()
	}
	assert.InDelta(t, 0, sched.LastLR(), 1e-9)
}
