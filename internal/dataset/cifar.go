package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quanta-ml/quanta/internal/tensor"
)

const (
	cifarImageSize = 32
	cifarPixels    = 3 * cifarImageSize * cifarImageSize
)

// cifarLayout captures the binary-format differences between CIFAR-10 and
// CIFAR-100: file names and the per-record label prefix. CIFAR-100 records
// carry a coarse label byte before the fine label.
type cifarLayout struct {
	trainFiles []string
	testFile   string
	labelBytes int
	labelIndex int
}

var cifar10Layout = cifarLayout{
	trainFiles: []string{
		"data_batch_1.bin",
		"data_batch_2.bin",
		"data_batch_3.bin",
		"data_batch_4.bin",
		"data_batch_5.bin",
	},
	testFile:   "test_batch.bin",
	labelBytes: 1,
	labelIndex: 0,
}

var cifar100Layout = cifarLayout{
	trainFiles: []string{"train.bin"},
	testFile:   "test.bin",
	labelBytes: 2,
	labelIndex: 1,
}

func loadCIFAR[B tensor.Backend](opts Options, layout cifarLayout, backend B) (*Loaders[B], error) {
	var trainImages [][]float32
	var trainLabels []int32
	for _, name := range layout.trainFiles {
		images, labels, err := readCIFARFile(filepath.Join(opts.Dir, name), layout)
		if err != nil {
			return nil, err
		}
		trainImages = append(trainImages, images...)
		trainLabels = append(trainLabels, labels...)
	}

	testImages, testLabels, err := readCIFARFile(filepath.Join(opts.Dir, layout.testFile), layout)
	if err != nil {
		return nil, err
	}

	train, err := NewSliceLoader(trainImages, trainLabels, cifarImageSize, opts.BatchSize, true, opts.Seed, backend)
	if err != nil {
		return nil, fmt.Errorf("train loader: %w", err)
	}
	test, err := NewSliceLoader(testImages, testLabels, cifarImageSize, opts.BatchSize, false, opts.Seed, backend)
	if err != nil {
		return nil, fmt.Errorf("test loader: %w", err)
	}

	// CIFAR ships no validation split; validate runs against the test set.
	return &Loaders[B]{Train: train, Val: test, Test: test}, nil
}

func readCIFARFile(path string, layout cifarLayout) ([][]float32, []int32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading cifar file: %w", err)
	}
	recordLen := layout.labelBytes + cifarPixels
	if len(data)%recordLen != 0 {
		return nil, nil, fmt.Errorf("%s: size %d is not a multiple of record length %d", path, len(data), recordLen)
	}
	count := len(data) / recordLen

	images := make([][]float32, 0, count)
	labels := make([]int32, 0, count)
	for i := 0; i < count; i++ {
		record := data[i*recordLen : (i+1)*recordLen]
		labels = append(labels, int32(record[layout.labelIndex]))
		images = append(images, decodeCIFARPixels(record[layout.labelBytes:]))
	}
	return images, labels, nil
}

// decodeCIFARPixels converts one record's channel-planar bytes to
// normalized floats. The on-disk layout already matches CHW.
func decodeCIFARPixels(raw []byte) []float32 {
	pixels := make([]float32, cifarPixels)
	perChannel := cifarImageSize * cifarImageSize
	for c := 0; c < 3; c++ {
		mean := cifarNormalization.Mean[c]
		std := cifarNormalization.Std[c]
		for i := 0; i < perChannel; i++ {
			v := float32(raw[c*perChannel+i]) / 255.0
			pixels[c*perChannel+i] = (v - mean) / std
		}
	}
	return pixels
}
