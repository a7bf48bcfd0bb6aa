package nn

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/quanta-ml/quanta/internal/tensor"
)

// Initializer draws parameter values from a seeded source, so two models
// built with the same seed start from identical weights.
type Initializer struct {
	src rand.Source
}

// NewInitializer creates an initializer seeded with the given value.
func NewInitializer(seed uint64) *Initializer {
	return &Initializer{src: rand.NewSource(seed)}
}

// Normal fills a new tensor with samples from N(0, std²).
func Normal[B tensor.Backend](init *Initializer, shape tensor.Shape, std float64, backend B) *tensor.Tensor[float32, B] {
	dist := distuv.Normal{Mu: 0, Sigma: std, Src: init.src}

	raw := tensor.MustRaw(shape, tensor.Float32, backend.Device())
	data := raw.AsFloat32()
	for i := range data {
		data[i] = float32(dist.Rand())
	}
	return tensor.New[float32](raw, backend)
}

// KaimingConv initializes a convolution kernel [outC, inC/groups, k, k]
// with N(0, 2/(k²·outC)), the fan-out variant used for the feature
// extractor before training.
func KaimingConv[B tensor.Backend](init *Initializer, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	if len(shape) != 4 {
		panic("KaimingConv: kernel shape must be 4D [outC, inC/groups, kH, kW]")
	}
	outC := shape[0]
	fanOut := shape[2] * shape[3] * outC
	std := math.Sqrt(2.0 / float64(fanOut))
	return Normal(init, shape, std, backend)
}

// Zeros creates a zero-filled tensor, the default for biases.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Ones creates a tensor filled with ones, the default for BatchNorm scale.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Ones[float32](shape, backend)
}
