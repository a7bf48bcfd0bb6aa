package model

import (
	"fmt"
	"math"

	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/quant"
	"github.com/quanta-ml/quanta/internal/tensor"
)

const baseLastChannel = 1280

// Options selects the network variant to build.
type Options struct {
	Dataset   string
	WidthMult float64
}

// scaleChannels applies the width multiplier the same way across the
// network: scale then truncate toward zero.
func scaleChannels(channels int, widthMult float64) int {
	return int(float64(channels) * widthMult)
}

// Build constructs a MobileNetV2 for the given dataset. The quantizer
// decides how each conv, linear, and activation is quantized; its
// BitConfig supplies the per-layer bit-width overrides for the stem and
// the classifier.
func Build[B tensor.Backend](opts Options, q quant.Quantizer[B], backend B) (*Network[B], error) {
	var (
		blocks     []blockSpec
		stemStride int
		numClasses int
	)
	switch opts.Dataset {
	case "cifar10":
		blocks, stemStride, numClasses = cifarBlocks, 1, 10
	case "cifar100":
		blocks, stemStride, numClasses = cifarBlocks, 1, 100
	case "imagenet":
		blocks, stemStride, numClasses = imagenetBlocks, 2, 1000
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataset, opts.Dataset)
	}

	widthMult := opts.WidthMult
	if widthMult <= 0 {
		widthMult = 1.0
	}
	cfg := q.Config()

	inC := scaleChannels(32, widthMult)
	lastChannel := int(float64(baseLastChannel) * math.Max(1.0, widthMult))

	features := nn.NewSequential[B]()
	features.Add(newConvBlock(q, backend, 3, inC, 3, stemStride, 1, cfg.FirstConvBitW))

	for _, spec := range blocks {
		outC := scaleChannels(spec.channels, widthMult)
		for i := 0; i < spec.repeats; i++ {
			stride := 1
			if i == 0 {
				stride = spec.stride
			}
			// Residual sums inside the stage are unquantized too, so
			// every repeat of a quantIn stage re-quantizes its input.
			features.Add(newInvertedResidual(q, backend, inC, outC, stride, spec.expansion, spec.quantIn))
			inC = outC
		}
	}

	// Final 1×1 conv up to the embedding width. On ImageNet it follows an
	// unquantized projection, so it re-quantizes its input.
	if opts.Dataset == "imagenet" {
		features.Add(newQuantInputConvBlock(q, backend, inC, lastChannel, 1, 1, 1, cfg.BitW))
	} else {
		features.Add(newConvBlock(q, backend, inC, lastChannel, 1, 1, 1, cfg.BitW))
	}

	return &Network[B]{
		features:    features,
		classifier:  q.Linear(lastChannel, numClasses, cfg.LastFCBitW),
		lastChannel: lastChannel,
		numClasses:  numClasses,
	}, nil
}
