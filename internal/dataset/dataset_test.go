package dataset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-ml/quanta/internal/backend/cpu"
	"github.com/quanta-ml/quanta/internal/dataset"
	"github.com/quanta-ml/quanta/internal/tensor"
)

func drain[B tensor.Backend](t *testing.T, loader dataset.Loader[B], epoch int) []dataset.Batch[B] {
	t.Helper()
	ch, wait := loader.Batches(epoch)
	var batches []dataset.Batch[B]
	for b := range ch {
		batches = append(batches, b)
	}
	require.NoError(t, wait())
	return batches
}

func TestSliceLoaderBatching(t *testing.T) {
	backend := cpu.New()
	loader, err := dataset.NewSynthetic(10, 3, 8, 4, 7, backend)
	require.NoError(t, err)

	assert.Equal(t, 10, loader.NumSamples())
	assert.Equal(t, 3, loader.NumBatches())

	batches := drain[*cpu.Backend](t, loader, 0)
	require.Len(t, batches, 3)
	assert.Equal(t, tensor.Shape{4, 3, 8, 8}, batches[0].Images.Shape())
	assert.Equal(t, tensor.Shape{4}, batches[0].Labels.Shape())
	// Final batch is short.
	assert.Equal(t, 2, batches[2].Size)
	assert.Equal(t, tensor.Shape{2, 3, 8, 8}, batches[2].Images.Shape())
}

func TestSliceLoaderShuffleDeterminism(t *testing.T) {
	backend := cpu.New()
	images := make([][]float32, 16)
	labels := make([]int32, 16)
	for i := range images {
		images[i] = make([]float32, 3*2*2)
		images[i][0] = float32(i)
		labels[i] = int32(i)
	}

	loader, err := dataset.NewSliceLoader(images, labels, 2, 4, true, 99, backend)
	require.NoError(t, err)

	first := labelOrder(t, loader)
	again := labelOrder(t, loader)
	assert.Equal(t, first, again, "same epoch must replay the same order")

	// A different epoch reshuffles.
	ch, wait := loader.Batches(1)
	var other []int32
	for b := range ch {
		other = append(other, b.Labels.Data()...)
	}
	require.NoError(t, wait())
	assert.NotEqual(t, first, other)
	assert.ElementsMatch(t, first, other)
}

func labelOrder(t *testing.T, loader *dataset.SliceLoader[*cpu.Backend]) []int32 {
	t.Helper()
	ch, wait := loader.Batches(0)
	var order []int32
	for b := range ch {
		order = append(order, b.Labels.Data()...)
	}
	require.NoError(t, wait())
	return order
}

func TestSliceLoaderValidation(t *testing.T) {
	backend := cpu.New()
	_, err := dataset.NewSliceLoader[*cpu.Backend](nil, nil, 2, 4, false, 0, backend)
	require.Error(t, err)

	_, err = dataset.NewSliceLoader([][]float32{make([]float32, 5)}, []int32{0}, 2, 4, false, 0, backend)
	require.Error(t, err, "wrong sample length")

	_, err = dataset.NewSliceLoader([][]float32{make([]float32, 12)}, []int32{0}, 2, 0, false, 0, backend)
	require.Error(t, err, "zero batch size")
}

func writeCIFAR10File(t *testing.T, path string, count int) {
	t.Helper()
	record := 1 + 3*32*32
	data := make([]byte, count*record)
	for i := 0; i < count; i++ {
		data[i*record] = byte(i % 10)
		for j := 1; j < record; j++ {
			data[i*record+j] = byte((i + j) % 256)
		}
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestProvideCIFAR10(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin",
		"data_batch_4.bin", "data_batch_5.bin",
	} {
		writeCIFAR10File(t, filepath.Join(dir, name), 4)
	}
	writeCIFAR10File(t, filepath.Join(dir, "test_batch.bin"), 6)

	backend := cpu.New()
	loaders, err := dataset.Provide(dataset.Options{
		Dataset:   "cifar10",
		Dir:       dir,
		BatchSize: 5,
		Seed:      1,
	}, backend)
	require.NoError(t, err)

	assert.Equal(t, 20, loaders.Train.NumSamples())
	assert.Equal(t, 6, loaders.Test.NumSamples())
	assert.Same(t, loaders.Val, loaders.Test)

	batches := drain[*cpu.Backend](t, loaders.Test, 0)
	require.Len(t, batches, 2)
	assert.Equal(t, tensor.Shape{5, 3, 32, 32}, batches[0].Images.Shape())
	// Labels cycle 0..5 in file order for the unshuffled test split.
	assert.Equal(t, []int32{0, 1, 2, 3, 4}, batches[0].Labels.Data())
}

func TestProvideCIFAR10CorruptFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin",
		"data_batch_4.bin", "data_batch_5.bin",
	} {
		writeCIFAR10File(t, filepath.Join(dir, name), 2)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test_batch.bin"), []byte{1, 2, 3}, 0o644))

	_, err := dataset.Provide(dataset.Options{Dataset: "cifar10", Dir: dir, BatchSize: 2, Seed: 1}, cpu.New())
	require.Error(t, err)
}

func TestProvideUnknownDataset(t *testing.T) {
	_, err := dataset.Provide(dataset.Options{Dataset: "svhn"}, cpu.New())
	require.Error(t, err)
}
