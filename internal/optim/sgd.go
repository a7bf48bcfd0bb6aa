package optim

import (
	"fmt"

	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum,
// Nesterov acceleration and decoupled L2 weight decay.
//
// Update rule with momentum:
//
//	g = grad + weightDecay * param
//	v = momentum * v + g
//	param -= lr * v          (or lr * (g + momentum*v) with Nesterov)
type SGD[B tensor.Backend] struct {
	params      []*nn.Parameter[B]
	lr          float64
	momentum    float64
	weightDecay float64
	nesterov    bool
	velocities  []*tensor.RawTensor // parallel to params, lazily allocated
	backend     B
}

// SGDConfig holds the SGD hyperparameters.
type SGDConfig struct {
	LR          float64 // default 0.01
	Momentum    float64
	WeightDecay float64
	Nesterov    bool
}

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig, backend B) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD[B]{
		params:      params,
		lr:          config.LR,
		momentum:    config.Momentum,
		weightDecay: config.WeightDecay,
		nesterov:    config.Nesterov,
		velocities:  make([]*tensor.RawTensor, len(params)),
		backend:     backend,
	}
}

// Step applies one SGD update to every parameter with a gradient.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	lr := float32(s.lr)
	mu := float32(s.momentum)
	wd := float32(s.weightDecay)

	for i, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		p := param.Tensor().Raw().AsFloat32()
		g := grad.AsFloat32()

		if s.momentum == 0 {
			for j := range p {
				gj := g[j] + wd*p[j]
				p[j] -= lr * gj
			}
			continue
		}

		if s.velocities[i] == nil {
			s.velocities[i] = tensor.MustRaw(param.Tensor().Shape(), tensor.Float32, s.backend.Device())
		}
		v := s.velocities[i].AsFloat32()

		for j := range p {
			gj := g[j] + wd*p[j]
			v[j] = mu*v[j] + gj
			if s.nesterov {
				p[j] -= lr * (gj + mu*v[j])
			} else {
				p[j] -= lr * v[j]
			}
		}
	}
}

// ZeroGrad clears all parameter gradients.
func (s *SGD[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGD[B]) GetLR() float64 { return s.lr }

// SetLR changes the learning rate.
func (s *SGD[B]) SetLR(lr float64) { s.lr = lr }

// StateDict returns the momentum buffers keyed by parameter index.
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, v := range s.velocities {
		if v != nil {
			stateDict[fmt.Sprintf("velocity.%d", i)] = v
		}
	}
	return stateDict
}

// LoadStateDict restores the momentum buffers. The parameter list must
// match the one the state was saved from.
func (s *SGD[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, param := range s.params {
		raw, ok := stateDict[fmt.Sprintf("velocity.%d", i)]
		if !ok {
			continue
		}
		if !raw.Shape().Equal(param.Tensor().Shape()) {
			return fmt.Errorf("velocity %d: shape %v does not match parameter %v",
				i, raw.Shape(), param.Tensor().Shape())
		}
		s.velocities[i] = raw.Clone()
	}
	return nil
}
