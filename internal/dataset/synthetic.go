package dataset

import (
	"golang.org/x/exp/rand"

	"github.com/quanta-ml/quanta/internal/tensor"
)

// NewSynthetic builds an in-memory loader of random images with labels
// cycling over the class set. Deterministic for a given seed; used by
// trainer tests and smoke runs without real data on disk.
func NewSynthetic[B tensor.Backend](numSamples, numClasses, imageSize, batchSize int, seed uint64, backend B) (*SliceLoader[B], error) {
	rng := rand.New(rand.NewSource(seed))
	sampleLen := 3 * imageSize * imageSize

	images := make([][]float32, numSamples)
	labels := make([]int32, numSamples)
	for i := range images {
		row := make([]float32, sampleLen)
		for j := range row {
			row[j] = rng.Float32()*2 - 1
		}
		images[i] = row
		labels[i] = int32(i % numClasses)
	}
	return NewSliceLoader(images, labels, imageSize, batchSize, false, seed, backend)
}
