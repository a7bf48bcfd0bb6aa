package dataset

import (
	"fmt"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"github.com/quanta-ml/quanta/internal/tensor"
)

const defaultPrefetch = 2

// SliceLoader serves batches from samples held in memory. CIFAR and the
// synthetic provider both fit comfortably; ImageNet uses the lazy loader
// instead.
type SliceLoader[B tensor.Backend] struct {
	images    [][]float32 // one [3*H*W] row per sample
	labels    []int32
	imageSize int
	batchSize int
	shuffle   bool
	seed      uint64
	backend   B
}

// NewSliceLoader wraps pre-decoded samples. Every image row must hold
// 3*imageSize*imageSize values.
func NewSliceLoader[B tensor.Backend](images [][]float32, labels []int32, imageSize, batchSize int, shuffle bool, seed uint64, backend B) (*SliceLoader[B], error) {
	if len(images) != len(labels) {
		return nil, fmt.Errorf("images/labels length mismatch: %d vs %d", len(images), len(labels))
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("empty dataset")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	want := 3 * imageSize * imageSize
	for i, img := range images {
		if len(img) != want {
			return nil, fmt.Errorf("sample %d has %d values, want %d", i, len(img), want)
		}
	}
	return &SliceLoader[B]{
		images:    images,
		labels:    labels,
		imageSize: imageSize,
		batchSize: batchSize,
		shuffle:   shuffle,
		seed:      seed,
		backend:   backend,
	}, nil
}

// NumSamples returns the dataset size.
func (l *SliceLoader[B]) NumSamples() int { return len(l.images) }

// NumBatches returns the number of batches per epoch, counting the final
// short batch.
func (l *SliceLoader[B]) NumBatches() int {
	return (len(l.images) + l.batchSize - 1) / l.batchSize
}

// Batches streams one epoch. The producer runs ahead of the consumer by a
// small buffer so tensor assembly overlaps the training step.
func (l *SliceLoader[B]) Batches(epoch int) (<-chan Batch[B], func() error) {
	out := make(chan Batch[B], defaultPrefetch)
	g := new(errgroup.Group)
	g.Go(func() error {
		defer close(out)
		order := l.epochOrder(epoch)
		for start := 0; start < len(order); start += l.batchSize {
			end := start + l.batchSize
			if end > len(order) {
				end = len(order)
			}
			batch, err := l.assemble(order[start:end])
			if err != nil {
				return err
			}
			out <- batch
		}
		return nil
	})
	return out, g.Wait
}

func (l *SliceLoader[B]) epochOrder(epoch int) []int {
	order := make([]int, len(l.images))
	for i := range order {
		order[i] = i
	}
	if l.shuffle {
		rng := rand.New(rand.NewSource(l.seed + uint64(epoch)))
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	return order
}

func (l *SliceLoader[B]) assemble(indices []int) (Batch[B], error) {
	n := len(indices)
	sampleLen := 3 * l.imageSize * l.imageSize
	pixels := make([]float32, n*sampleLen)
	labels := make([]int32, n)
	for i, idx := range indices {
		copy(pixels[i*sampleLen:(i+1)*sampleLen], l.images[idx])
		labels[i] = l.labels[idx]
	}

	shape := tensor.Shape{n, 3, l.imageSize, l.imageSize}
	images, err := tensor.FromSlice(pixels, shape, l.backend)
	if err != nil {
		return Batch[B]{}, fmt.Errorf("assembling image batch: %w", err)
	}
	labelTensor, err := tensor.FromSlice(labels, tensor.Shape{n}, l.backend)
	if err != nil {
		return Batch[B]{}, fmt.Errorf("assembling label batch: %w", err)
	}
	return Batch[B]{Images: images, Labels: labelTensor, Size: n}, nil
}
