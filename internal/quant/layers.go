package quant

import (
	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// rangeSink receives observed tensor ranges. The Observing quantizer feeds
// them into a tracker; the plain quantizer passes nil.
type rangeSink interface {
	record(name string, lo, hi float32)
}

// Conv2d is a convolution whose weights are fake-quantized each forward
// pass on their observed dynamic range. A bit-width of 32 degenerates to
// the plain layer.
type Conv2d[B tensor.Backend] struct {
	conv      *nn.Conv2d[B]
	bits      int
	symmetric bool
	name      string
	sink      rangeSink
}

// NewConv2d wraps a freshly initialized convolution with weight
// quantization at the given bit-width.
func NewConv2d[B tensor.Backend](cfg nn.Conv2dConfig, bits int, symmetric bool, init *nn.Initializer, backend B) *Conv2d[B] {
	return &Conv2d[B]{
		conv:      nn.NewConv2d(cfg, init, backend),
		bits:      bits,
		symmetric: symmetric,
	}
}

// Forward quantizes the kernel, then convolves.
func (c *Conv2d[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	weight := c.conv.Weight().Tensor()

	p := tensor.QuantParams{Bits: c.bits, Symmetric: c.symmetric, Observe: true}
	if !p.Identity() {
		if c.sink != nil {
			lo, hi := tensor.ObserveRange(weight.Data())
			c.sink.record(c.name, lo, hi)
		}
		weight = weight.FakeQuant(p)
	}

	output := input.Conv2D(weight, c.conv.Stride(), c.conv.Padding(), c.conv.Groups())
	if bias := c.conv.Bias(); bias != nil {
		output = output.Add(bias.Tensor().Reshape(1, c.conv.OutChannels(), 1, 1))
	}
	return output
}

// Parameters returns the wrapped convolution's parameters.
func (c *Conv2d[B]) Parameters() []*nn.Parameter[B] { return c.conv.Parameters() }

// OutChannels returns the number of output channels.
func (c *Conv2d[B]) OutChannels() int { return c.conv.OutChannels() }

// Stride returns the spatial stride.
func (c *Conv2d[B]) Stride() int { return c.conv.Stride() }

// Bits returns the weight bit-width.
func (c *Conv2d[B]) Bits() int { return c.bits }

// StateDict returns the wrapped convolution's state.
func (c *Conv2d[B]) StateDict() map[string]*tensor.RawTensor { return c.conv.StateDict() }

// LoadStateDict restores the wrapped convolution's state.
func (c *Conv2d[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return c.conv.LoadStateDict(sd)
}

// Linear is a fully connected layer with fake-quantized weights, used for
// the classifier head.
type Linear[B tensor.Backend] struct {
	linear    *nn.Linear[B]
	bits      int
	symmetric bool
	name      string
	sink      rangeSink
	backend   B
}

// NewLinear wraps a freshly initialized linear layer with weight
// quantization at the given bit-width.
func NewLinear[B tensor.Backend](inFeatures, outFeatures, bits int, symmetric bool, init *nn.Initializer, backend B) *Linear[B] {
	return &Linear[B]{
		linear:    nn.NewLinear(inFeatures, outFeatures, init, backend),
		bits:      bits,
		symmetric: symmetric,
		backend:   backend,
	}
}

// Forward quantizes the weight matrix, then applies y = x @ Wqᵀ + b.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	weight := l.linear.Weight().Tensor()

	p := tensor.QuantParams{Bits: l.bits, Symmetric: l.symmetric, Observe: true}
	if !p.Identity() {
		if l.sink != nil {
			lo, hi := tensor.ObserveRange(weight.Data())
			l.sink.record(l.name, lo, hi)
		}
		weight = weight.FakeQuant(p)
	}

	output := input.MatMul(weight.T())
	bias := l.linear.Bias().Tensor().Reshape(1, l.linear.OutFeatures())
	return output.Add(bias)
}

// Parameters returns the wrapped layer's parameters.
func (l *Linear[B]) Parameters() []*nn.Parameter[B] { return l.linear.Parameters() }

// Bits returns the weight bit-width.
func (l *Linear[B]) Bits() int { return l.bits }

// StateDict returns the wrapped layer's state.
func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor { return l.linear.StateDict() }

// LoadStateDict restores the wrapped layer's state.
func (l *Linear[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return l.linear.LoadStateDict(sd)
}

// ReLU6 clips to [0, 6] and fake-quantizes the result on that fixed grid.
// The bound makes the activation grid static: no range observation needed.
type ReLU6[B tensor.Backend] struct {
	bits int
}

// NewReLU6 creates the quantized activation with the given activation
// bit-width.
func NewReLU6[B tensor.Backend](bits int) *ReLU6[B] {
	return &ReLU6[B]{bits: bits}
}

// Forward applies relu6 followed by fake quantization on [0, 6].
func (r *ReLU6[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input.ReLU6()
	p := tensor.QuantParams{Bits: r.bits, Min: 0, Max: 6}
	if p.Identity() {
		return output
	}
	return output.FakeQuant(p)
}

// Parameters returns nil; the activation is stateless.
func (r *ReLU6[B]) Parameters() []*nn.Parameter[B] { return nil }

// Bits returns the activation bit-width.
func (r *ReLU6[B]) Bits() int { return r.bits }

// StateDict returns an empty map.
func (r *ReLU6[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op for stateless modules.
func (r *ReLU6[B]) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }

// Identity fake-quantizes its input on the observed range, passing values
// through otherwise. Blocks whose input comes from an unquantized path
// place one of these in front of their first convolution.
type Identity[B tensor.Backend] struct {
	bits      int
	symmetric bool
	name      string
	sink      rangeSink
}

// NewIdentity creates the input quantizer at the given bit-width.
func NewIdentity[B tensor.Backend](bits int, symmetric bool) *Identity[B] {
	return &Identity[B]{bits: bits, symmetric: symmetric}
}

// Forward fake-quantizes the input on its observed range.
func (i *Identity[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	p := tensor.QuantParams{Bits: i.bits, Symmetric: i.symmetric, Observe: true}
	if p.Identity() {
		return input
	}
	if i.sink != nil {
		lo, hi := tensor.ObserveRange(input.Data())
		i.sink.record(i.name, lo, hi)
	}
	return input.FakeQuant(p)
}

// Parameters returns nil; the identity is stateless.
func (i *Identity[B]) Parameters() []*nn.Parameter[B] { return nil }

// Bits returns the bit-width.
func (i *Identity[B]) Bits() int { return i.bits }

// StateDict returns an empty map.
func (i *Identity[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op for stateless modules.
func (i *Identity[B]) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }
