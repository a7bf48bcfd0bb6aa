// Package dataset provides the batch sequences the trainer consumes:
// CIFAR-10/100 binary readers, an ImageNet directory loader, and a
// deterministic synthetic provider for tests.
package dataset

import (
	"fmt"

	"github.com/quanta-ml/quanta/internal/tensor"
)

// Batch is one step's worth of samples: images [n, 3, H, W] and integer
// class labels [n].
type Batch[B tensor.Backend] struct {
	Images *tensor.Tensor[float32, B]
	Labels *tensor.Tensor[int32, B]
	Size   int
}

// Loader yields one epoch of batches at a time. Every call to Batches
// restarts the sequence; shuffling loaders reorder per epoch from a seed
// derived from the epoch number, so runs are reproducible.
type Loader[B tensor.Backend] interface {
	// Batches streams the epoch's batches on the returned channel. The
	// returned wait function blocks until the producer exits and reports
	// the first error; callers must drain the channel before waiting.
	Batches(epoch int) (<-chan Batch[B], func() error)
	NumBatches() int
	NumSamples() int
}

// Loaders bundles the three per-split sequences.
type Loaders[B tensor.Backend] struct {
	Train Loader[B]
	Val   Loader[B]
	Test  Loader[B]
}

// Normalization is the per-channel mean/std applied to float pixels.
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

var (
	cifarNormalization = Normalization{
		Mean: [3]float32{0.4914, 0.4822, 0.4465},
		Std:  [3]float32{0.2470, 0.2435, 0.2616},
	}
	imagenetNormalization = Normalization{
		Mean: [3]float32{0.485, 0.456, 0.406},
		Std:  [3]float32{0.229, 0.224, 0.225},
	}
)

// Options selects which dataset to load and how to batch it.
type Options struct {
	Dataset   string
	Dir       string
	BatchSize int
	Workers   int
	Seed      uint64
}

// Provide builds the train/val/test loaders for the configured dataset.
// The validation split reuses the test split for the CIFAR datasets, which
// ship no separate validation set.
func Provide[B tensor.Backend](opts Options, backend B) (*Loaders[B], error) {
	switch opts.Dataset {
	case "cifar10":
		return loadCIFAR(opts, cifar10Layout, backend)
	case "cifar100":
		return loadCIFAR(opts, cifar100Layout, backend)
	case "imagenet":
		return loadImageNet(opts, backend)
	default:
		return nil, fmt.Errorf("unknown dataset %q", opts.Dataset)
	}
}
