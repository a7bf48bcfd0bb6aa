package model

import (
	"math"

	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/quant"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// blockSpec is one row of the inverted-residual table:
// expansion ratio, output channels, repeat count, stride of the first
// repeat, and whether the block quantizes its own input. Blocks fed by an
// already-quantized path skip the input quantizer.
type blockSpec struct {
	expansion int
	channels  int
	repeats   int
	stride    int
	quantIn   bool
}

// The ImageNet schedule downsamples aggressively for 224×224 inputs. In
// every stage after the first, each repeat re-quantizes its input; the
// first stage is fed directly by the quantized stem.
var imagenetBlocks = []blockSpec{
	{1, 16, 1, 1, false},
	{6, 24, 2, 2, true},
	{6, 32, 3, 2, true},
	{6, 64, 4, 2, true},
	{6, 96, 3, 1, true},
	{6, 160, 3, 2, true},
	{6, 320, 1, 1, true},
}

// The CIFAR schedule keeps spatial resolution high for 32×32 inputs:
// stride-1 stem and only two downsampling stages.
var cifarBlocks = []blockSpec{
	{1, 16, 1, 1, false},
	{6, 24, 2, 1, false},
	{6, 32, 3, 1, false},
	{6, 64, 4, 2, false},
	{6, 96, 3, 1, false},
	{6, 160, 3, 2, false},
	{6, 320, 1, 1, false},
}

// ConvBlock is conv → batch norm → quantized ReLU6, the basic unit of the
// feature extractor. Convolutions carry no bias; batch norm absorbs it.
type ConvBlock[B tensor.Backend] struct {
	seq *nn.Sequential[B]
}

func newConvBlock[B tensor.Backend](q quant.Quantizer[B], backend B, inC, outC, kernel, stride, groups, bits int) *ConvBlock[B] {
	padding := 0
	if kernel > 1 {
		padding = (kernel - 1) / 2
	}
	conv := q.Conv2d(nn.Conv2dConfig{
		InChannels:  inC,
		OutChannels: outC,
		KernelSize:  kernel,
		Stride:      stride,
		Padding:     padding,
		Groups:      groups,
	}, bits)

	return &ConvBlock[B]{seq: nn.NewSequential(
		conv,
		nn.NewBatchNorm2d(outC, backend),
		q.ReLU6(),
	)}
}

// Forward applies conv, norm, activation.
func (c *ConvBlock[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return c.seq.Forward(input)
}

// Parameters returns the block's trainable parameters.
func (c *ConvBlock[B]) Parameters() []*nn.Parameter[B] { return c.seq.Parameters() }

// SetTraining propagates the mode to the batch norm.
func (c *ConvBlock[B]) SetTraining(training bool) { c.seq.SetTraining(training) }

// StateDict returns the block state.
func (c *ConvBlock[B]) StateDict() map[string]*tensor.RawTensor { return c.seq.StateDict() }

// LoadStateDict restores the block state.
func (c *ConvBlock[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return c.seq.LoadStateDict(sd)
}

// QuantInputConvBlock quantizes its input before the convolution. Used
// where the incoming activations come from an unquantized path (residual
// sums, the projection output of the previous stage).
type QuantInputConvBlock[B tensor.Backend] struct {
	input nn.Module[B]
	block *ConvBlock[B]
}

func newQuantInputConvBlock[B tensor.Backend](q quant.Quantizer[B], backend B, inC, outC, kernel, stride, groups, bits int) *QuantInputConvBlock[B] {
	return &QuantInputConvBlock[B]{
		input: q.Identity(bits),
		block: newConvBlock(q, backend, inC, outC, kernel, stride, groups, bits),
	}
}

// Forward quantizes the input, then applies the block.
func (c *QuantInputConvBlock[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return c.block.Forward(c.input.Forward(input))
}

// Parameters returns the block's trainable parameters.
func (c *QuantInputConvBlock[B]) Parameters() []*nn.Parameter[B] { return c.block.Parameters() }

// SetTraining propagates the mode.
func (c *QuantInputConvBlock[B]) SetTraining(training bool) { c.block.SetTraining(training) }

// StateDict returns the block state; the input quantizer is stateless.
func (c *QuantInputConvBlock[B]) StateDict() map[string]*tensor.RawTensor {
	return c.block.StateDict()
}

// LoadStateDict restores the block state.
func (c *QuantInputConvBlock[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return c.block.LoadStateDict(sd)
}

// InvertedResidual is the MobileNetV2 bottleneck block: pointwise expand,
// depthwise, linear pointwise projection, with a skip connection exactly
// when stride == 1 and input and output channel counts match.
type InvertedResidual[B tensor.Backend] struct {
	seq    *nn.Sequential[B]
	inC    int
	outC   int
	stride int
	useRes bool
}

func newInvertedResidual[B tensor.Backend](q quant.Quantizer[B], backend B, inC, outC, stride, expansion int, quantIn bool) *InvertedResidual[B] {
	bits := q.Config().BitW
	hidden := int(math.Round(float64(inC) * float64(expansion)))

	seq := nn.NewSequential[B]()
	if expansion != 1 {
		if quantIn {
			seq.Add(newQuantInputConvBlock(q, backend, inC, hidden, 1, 1, 1, bits))
		} else {
			seq.Add(newConvBlock(q, backend, inC, hidden, 1, 1, 1, bits))
		}
	}
	// Depthwise: its input is the quantized ReLU6 output of the expansion.
	seq.Add(newConvBlock(q, backend, hidden, hidden, 3, stride, hidden, bits))
	// Linear bottleneck: projection without activation.
	seq.Add(q.Conv2d(nn.Conv2dConfig{
		InChannels:  hidden,
		OutChannels: outC,
		KernelSize:  1,
		Stride:      1,
	}, bits))
	seq.Add(nn.NewBatchNorm2d(outC, backend))

	return &InvertedResidual[B]{
		seq:    seq,
		inC:    inC,
		outC:   outC,
		stride: stride,
		useRes: stride == 1 && inC == outC,
	}
}

// Forward applies the block, adding the skip connection when eligible.
func (b *InvertedResidual[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if b.useRes {
		return input.Add(b.seq.Forward(input))
	}
	return b.seq.Forward(input)
}

// UsesResidual reports whether the skip connection is active.
func (b *InvertedResidual[B]) UsesResidual() bool { return b.useRes }

// Parameters returns the block's trainable parameters.
func (b *InvertedResidual[B]) Parameters() []*nn.Parameter[B] { return b.seq.Parameters() }

// SetTraining propagates the mode to the batch norms.
func (b *InvertedResidual[B]) SetTraining(training bool) { b.seq.SetTraining(training) }

// StateDict returns the block state.
func (b *InvertedResidual[B]) StateDict() map[string]*tensor.RawTensor { return b.seq.StateDict() }

// LoadStateDict restores the block state.
func (b *InvertedResidual[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return b.seq.LoadStateDict(sd)
}
