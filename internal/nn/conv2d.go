package nn

import (
	"fmt"

	"github.com/quanta-ml/quanta/internal/tensor"
)

// Conv2d implements a grouped 2D convolution layer.
//
// Kernel shape is [outChannels, inChannels/groups, kernelSize, kernelSize].
// groups == inChannels gives a depthwise convolution. Convolutions in the
// feature extractor carry no bias; the BatchNorm that follows each one
// absorbs the shift.
type Conv2d[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int
	groups      int
	weight      *Parameter[B]
	bias        *Parameter[B] // nil unless WithBias
	backend     B
}

// Conv2dConfig holds the layer hyperparameters.
type Conv2dConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     int
	Groups      int  // 0 means 1
	WithBias    bool // feature-extractor convs leave this false
}

// NewConv2d creates a Conv2d layer with Kaiming-initialized weights.
func NewConv2d[B tensor.Backend](cfg Conv2dConfig, init *Initializer, backend B) *Conv2d[B] {
	groups := cfg.Groups
	if groups == 0 {
		groups = 1
	}
	if cfg.InChannels%groups != 0 || cfg.OutChannels%groups != 0 {
		panic(fmt.Sprintf("NewConv2d: channels (%d in, %d out) not divisible by groups %d",
			cfg.InChannels, cfg.OutChannels, groups))
	}

	kernelShape := tensor.Shape{cfg.OutChannels, cfg.InChannels / groups, cfg.KernelSize, cfg.KernelSize}
	weight := NewParameter("weight", KaimingConv(init, kernelShape, backend))

	conv := &Conv2d[B]{
		inChannels:  cfg.InChannels,
		outChannels: cfg.OutChannels,
		kernelSize:  cfg.KernelSize,
		stride:      cfg.Stride,
		padding:     cfg.Padding,
		groups:      groups,
		weight:      weight,
		backend:     backend,
	}
	if cfg.WithBias {
		conv.bias = NewParameter("bias", Zeros(tensor.Shape{cfg.OutChannels}, backend))
	}
	return conv
}

// Forward applies the convolution.
// Input [N, inChannels, H, W], output [N, outChannels, H', W'].
func (c *Conv2d[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("Conv2d.Forward: expected 4D input [N,C,H,W], got %v", shape))
	}
	if shape[1] != c.inChannels {
		panic(fmt.Sprintf("Conv2d.Forward: expected %d input channels, got %d", c.inChannels, shape[1]))
	}

	output := input.Conv2D(c.weight.Tensor(), c.stride, c.padding, c.groups)

	if c.bias != nil {
		b := c.bias.Tensor().Reshape(1, c.outChannels, 1, 1)
		output = output.Add(b)
	}
	return output
}

// Parameters returns the kernel and, when present, the bias.
func (c *Conv2d[B]) Parameters() []*Parameter[B] {
	if c.bias != nil {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

// Weight returns the kernel parameter.
func (c *Conv2d[B]) Weight() *Parameter[B] { return c.weight }

// OutChannels returns the number of output channels.
func (c *Conv2d[B]) OutChannels() int { return c.outChannels }

// Stride returns the spatial stride.
func (c *Conv2d[B]) Stride() int { return c.stride }

// Padding returns the spatial padding.
func (c *Conv2d[B]) Padding() int { return c.padding }

// Groups returns the group count.
func (c *Conv2d[B]) Groups() int { return c.groups }

// Bias returns the bias parameter, or nil when the layer has none.
func (c *Conv2d[B]) Bias() *Parameter[B] { return c.bias }

// StateDict returns the layer parameters keyed by name.
func (c *Conv2d[B]) StateDict() map[string]*tensor.RawTensor {
	sd := map[string]*tensor.RawTensor{
		"weight": c.weight.Tensor().Raw(),
	}
	if c.bias != nil {
		sd["bias"] = c.bias.Tensor().Raw()
	}
	return sd
}

// LoadStateDict restores the layer parameters.
func (c *Conv2d[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadParam(stateDict, "weight", c.weight); err != nil {
		return err
	}
	if c.bias != nil {
		return loadParam(stateDict, "bias", c.bias)
	}
	return nil
}
