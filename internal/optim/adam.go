package optim

import (
	"fmt"
	"math"

	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// Adam implements the Adam optimizer (Kingma & Ba, 2014) with bias-corrected
// first and second moment estimates.
type Adam[B tensor.Backend] struct {
	params      []*nn.Parameter[B]
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	step        int

	m []*tensor.RawTensor // first moments, parallel to params
	v []*tensor.RawTensor // second moments

	backend B
}

// AdamConfig holds the Adam hyperparameters. Zero values take the usual
// defaults: lr 0.001, beta1 0.9, beta2 0.999, eps 1e-8.
type AdamConfig struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64
}

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, backend B) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Beta1 == 0 {
		config.Beta1 = 0.9
	}
	if config.Beta2 == 0 {
		config.Beta2 = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam[B]{
		params:      params,
		lr:          config.LR,
		beta1:       config.Beta1,
		beta2:       config.Beta2,
		eps:         config.Eps,
		weightDecay: config.WeightDecay,
		m:           make([]*tensor.RawTensor, len(params)),
		v:           make([]*tensor.RawTensor, len(params)),
		backend:     backend,
	}
}

// Step applies one Adam update to every parameter with a gradient.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.step++

	// Bias corrections depend only on the step count.
	bc1 := 1 - math.Pow(a.beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.beta2, float64(a.step))
	stepSize := float32(a.lr / bc1)
	b1 := float32(a.beta1)
	b2 := float32(a.beta2)
	eps := float32(a.eps)
	wd := float32(a.weightDecay)

	for i, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		if a.m[i] == nil {
			a.m[i] = tensor.MustRaw(param.Tensor().Shape(), tensor.Float32, a.backend.Device())
			a.v[i] = tensor.MustRaw(param.Tensor().Shape(), tensor.Float32, a.backend.Device())
		}

		p := param.Tensor().Raw().AsFloat32()
		g := grad.AsFloat32()
		m := a.m[i].AsFloat32()
		v := a.v[i].AsFloat32()

		for j := range p {
			gj := g[j] + wd*p[j]
			m[j] = b1*m[j] + (1-b1)*gj
			v[j] = b2*v[j] + (1-b2)*gj*gj
			vHat := float64(v[j]) / bc2
			p[j] -= stepSize * m[j] / (float32(math.Sqrt(vHat)) + eps)
		}
	}
}

// ZeroGrad clears all parameter gradients.
func (a *Adam[B]) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (a *Adam[B]) GetLR() float64 { return a.lr }

// SetLR changes the learning rate.
func (a *Adam[B]) SetLR(lr float64) { a.lr = lr }

// StateDict returns the moment buffers keyed by parameter index.
func (a *Adam[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i := range a.params {
		if a.m[i] != nil {
			stateDict[fmt.Sprintf("m.%d", i)] = a.m[i]
			stateDict[fmt.Sprintf("v.%d", i)] = a.v[i]
		}
	}
	return stateDict
}

// LoadStateDict restores the moment buffers.
func (a *Adam[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, param := range a.params {
		m, okM := stateDict[fmt.Sprintf("m.%d", i)]
		v, okV := stateDict[fmt.Sprintf("v.%d", i)]
		if !okM || !okV {
			continue
		}
		if !m.Shape().Equal(param.Tensor().Shape()) {
			return fmt.Errorf("moment %d: shape %v does not match parameter %v",
				i, m.Shape(), param.Tensor().Shape())
		}
		a.m[i] = m.Clone()
		a.v[i] = v.Clone()
	}
	return nil
}
