package quant

import (
	"fmt"
	"sort"

	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// Quantizer is the factory for quantized layer primitives. The model
// builder asks it for layers instead of constructing them directly, so a
// run can swap quantization behavior (plain, range-observing) without the
// builder knowing.
//
// Conv2d and Linear take the bit-width explicitly because the stem and the
// classifier carry their own overrides from BitConfig.
type Quantizer[B tensor.Backend] interface {
	// Config returns the bit-width assignment this quantizer was built with.
	Config() BitConfig

	// Conv2d creates a weight-quantized convolution at the given bit-width.
	Conv2d(cfg nn.Conv2dConfig, bits int) nn.Module[B]

	// Linear creates a weight-quantized fully connected layer.
	Linear(inFeatures, outFeatures, bits int) nn.Module[B]

	// ReLU6 creates the quantized activation at the configured BitA.
	ReLU6() nn.Module[B]

	// Identity creates an input quantizer at the given bit-width.
	Identity(bits int) nn.Module[B]
}

// Uniform is the plain quantizer: uniform per-tensor grids, no observation
// side channel.
type Uniform[B tensor.Backend] struct {
	cfg     BitConfig
	init    *nn.Initializer
	backend B
}

// NewUniform creates the plain quantizer.
func NewUniform[B tensor.Backend](cfg BitConfig, init *nn.Initializer, backend B) *Uniform[B] {
	return &Uniform[B]{cfg: cfg, init: init, backend: backend}
}

// Config returns the bit-width assignment.
func (u *Uniform[B]) Config() BitConfig { return u.cfg }

// Conv2d creates a weight-quantized convolution.
func (u *Uniform[B]) Conv2d(cfg nn.Conv2dConfig, bits int) nn.Module[B] {
	return NewConv2d(cfg, bits, u.cfg.Symmetric, u.init, u.backend)
}

// Linear creates a weight-quantized fully connected layer.
func (u *Uniform[B]) Linear(inFeatures, outFeatures, bits int) nn.Module[B] {
	return NewLinear(inFeatures, outFeatures, bits, u.cfg.Symmetric, u.init, u.backend)
}

// ReLU6 creates the quantized activation.
func (u *Uniform[B]) ReLU6() nn.Module[B] {
	return NewReLU6[B](u.cfg.BitA)
}

// Identity creates an input quantizer.
func (u *Uniform[B]) Identity(bits int) nn.Module[B] {
	return NewIdentity[B](bits, u.cfg.Symmetric)
}

// Range is an observed [Lo, Hi] interval.
type Range struct {
	Lo, Hi float32
}

// RangeTracker accumulates per-layer observed ranges across forward passes.
// Ranges only widen between resets.
type RangeTracker struct {
	ranges map[string]Range
}

// NewRangeTracker creates an empty tracker.
func NewRangeTracker() *RangeTracker {
	return &RangeTracker{ranges: make(map[string]Range)}
}

func (t *RangeTracker) record(name string, lo, hi float32) {
	r, ok := t.ranges[name]
	if !ok {
		t.ranges[name] = Range{Lo: lo, Hi: hi}
		return
	}
	if lo < r.Lo {
		r.Lo = lo
	}
	if hi > r.Hi {
		r.Hi = hi
	}
	t.ranges[name] = r
}

// Names returns the tracked layer names in sorted order.
func (t *RangeTracker) Names() []string {
	names := make([]string, 0, len(t.ranges))
	for name := range t.ranges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the accumulated range for a layer.
func (t *RangeTracker) Get(name string) (Range, bool) {
	r, ok := t.ranges[name]
	return r, ok
}

// Reset clears all accumulated ranges.
func (t *RangeTracker) Reset() {
	t.ranges = make(map[string]Range)
}

// Observing is the range-observing quantizer. Layers it creates report the
// dynamic ranges they quantize over to a shared tracker, and AddHooks wires
// an epoch-end hook into the trainer that logs and resets them.
type Observing[B tensor.Backend] struct {
	cfg     BitConfig
	init    *nn.Initializer
	backend B
	tracker *RangeTracker

	convs, fcs, ids int // name counters
}

// NewObserving creates the range-observing quantizer.
func NewObserving[B tensor.Backend](cfg BitConfig, init *nn.Initializer, backend B) *Observing[B] {
	return &Observing[B]{
		cfg:     cfg,
		init:    init,
		backend: backend,
		tracker: NewRangeTracker(),
	}
}

// Config returns the bit-width assignment.
func (o *Observing[B]) Config() BitConfig { return o.cfg }

// Tracker returns the shared range tracker.
func (o *Observing[B]) Tracker() *RangeTracker { return o.tracker }

// Conv2d creates an observed weight-quantized convolution.
func (o *Observing[B]) Conv2d(cfg nn.Conv2dConfig, bits int) nn.Module[B] {
	layer := NewConv2d(cfg, bits, o.cfg.Symmetric, o.init, o.backend)
	layer.name = fmt.Sprintf("conv%d.weight", o.convs)
	layer.sink = o.tracker
	o.convs++
	return layer
}

// Linear creates an observed weight-quantized fully connected layer.
func (o *Observing[B]) Linear(inFeatures, outFeatures, bits int) nn.Module[B] {
	layer := NewLinear(inFeatures, outFeatures, bits, o.cfg.Symmetric, o.init, o.backend)
	layer.name = fmt.Sprintf("fc%d.weight", o.fcs)
	layer.sink = o.tracker
	o.fcs++
	return layer
}

// ReLU6 creates the quantized activation. Its grid is fixed, so there is
// nothing to observe.
func (o *Observing[B]) ReLU6() nn.Module[B] {
	return NewReLU6[B](o.cfg.BitA)
}

// Identity creates an observed input quantizer.
func (o *Observing[B]) Identity(bits int) nn.Module[B] {
	layer := NewIdentity[B](bits, o.cfg.Symmetric)
	layer.name = fmt.Sprintf("input%d", o.ids)
	layer.sink = o.tracker
	o.ids++
	return layer
}
