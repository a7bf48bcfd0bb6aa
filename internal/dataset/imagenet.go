package dataset

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/exp/rand"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/quanta-ml/quanta/internal/tensor"
)

const imagenetImageSize = 224

type imageEntry struct {
	path  string
	label int32
}

// ImageLoader decodes image files lazily, one batch at a time. Decoding
// and resizing run on a worker pool so the training step never waits on
// single-threaded JPEG decode.
type ImageLoader[B tensor.Backend] struct {
	entries   []imageEntry
	imageSize int
	batchSize int
	shuffle   bool
	seed      uint64
	workers   int
	backend   B
}

func loadImageNet[B tensor.Backend](opts Options, backend B) (*Loaders[B], error) {
	train, err := newImageLoader(filepath.Join(opts.Dir, "train"), opts, true, backend)
	if err != nil {
		return nil, fmt.Errorf("train loader: %w", err)
	}
	val, err := newImageLoader(filepath.Join(opts.Dir, "val"), opts, false, backend)
	if err != nil {
		return nil, fmt.Errorf("val loader: %w", err)
	}
	// ImageNet evaluation conventionally uses the validation split.
	return &Loaders[B]{Train: train, Val: val, Test: val}, nil
}

// newImageLoader scans a split directory laid out as <dir>/<class>/<image>.
// Class indices are assigned by sorted directory name, so train and val
// agree as long as both contain the same class set.
func newImageLoader[B tensor.Backend](dir string, opts Options, shuffle bool, backend B) (*ImageLoader[B], error) {
	classDirs, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading split dir: %w", err)
	}

	var classes []string
	for _, d := range classDirs {
		if d.IsDir() {
			classes = append(classes, d.Name())
		}
	}
	sort.Strings(classes)

	var entries []imageEntry
	for label, class := range classes {
		files, err := os.ReadDir(filepath.Join(dir, class))
		if err != nil {
			return nil, fmt.Errorf("reading class dir %s: %w", class, err)
		}
		for _, f := range files {
			if f.IsDir() || !isImageFile(f.Name()) {
				continue
			}
			entries = append(entries, imageEntry{
				path:  filepath.Join(dir, class, f.Name()),
				label: int32(label),
			})
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no images under %s", dir)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	return &ImageLoader[B]{
		entries:   entries,
		imageSize: imagenetImageSize,
		batchSize: opts.BatchSize,
		shuffle:   shuffle,
		seed:      opts.Seed,
		workers:   workers,
		backend:   backend,
	}, nil
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// NumSamples returns the dataset size.
func (l *ImageLoader[B]) NumSamples() int { return len(l.entries) }

// NumBatches returns the number of batches per epoch.
func (l *ImageLoader[B]) NumBatches() int {
	return (len(l.entries) + l.batchSize - 1) / l.batchSize
}

// Batches streams one epoch, decoding each batch's images in parallel.
func (l *ImageLoader[B]) Batches(epoch int) (<-chan Batch[B], func() error) {
	out := make(chan Batch[B], defaultPrefetch)
	g := new(errgroup.Group)
	g.Go(func() error {
		defer close(out)
		order := make([]int, len(l.entries))
		for i := range order {
			order[i] = i
		}
		if l.shuffle {
			rng := rand.New(rand.NewSource(l.seed + uint64(epoch)))
			rng.Shuffle(len(order), func(i, j int) {
				order[i], order[j] = order[j], order[i]
			})
		}
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

func (l *ImageLoader[B]) assemble(indices []int) (Batch[B], error) {
	n := len(indices)
	sampleLen := 3 * l.imageSize * l.imageSize
	pixels := make([]float32, n*sampleLen)
	labels := make([]int32, n)

	var g errgroup.Group
	g.SetLimit(l.workers)
	for i, idx := range indices {
		labels[i] = l.entries[idx].label
		row := pixels[i*sampleLen : (i+1)*sampleLen]
		path := l.entries[idx].path
		g.Go(func() error {
			return decodeInto(path, l.imageSize, row)
		})
	}
	if err := g.Wait(); err != nil {
		return Batch[B]{}, err
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

// decodeInto reads, resizes, and normalizes one image into a CHW float row.
func decodeInto(path string, size int, row []float32) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			offset := dst.PixOffset(x, y)
			i := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(dst.Pix[offset+c]) / 255.0
				row[c*plane+i] = (v - imagenetNormalization.Mean[c]) / imagenetNormalization.Std[c]
			}
		}
	}
	return nil
}
