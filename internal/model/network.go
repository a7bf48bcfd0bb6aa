package model

import (
	"fmt"
	"strings"

	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// Network is a MobileNetV2 classifier: a feature extractor, global average
// pooling, and a quantized linear head.
type Network[B tensor.Backend] struct {
	features    *nn.Sequential[B]
	classifier  nn.Module[B]
	lastChannel int
	numClasses  int
}

// Forward runs the full network and returns class logits [batch, classes].
func (n *Network[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	_, logits := n.Features(input)
	return logits
}

// Features runs the network and returns both the pooled embedding
// [batch, lastChannel] and the logits. The embedding is what analysis
// runs dump to disk.
func (n *Network[B]) Features(input *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	out := n.features.Forward(input)
	// Global average pool over the spatial dims.
	embedding := out.MeanDim(3, false).MeanDim(2, false)
	return embedding, n.classifier.Forward(embedding)
}

// Parameters returns all trainable parameters, features first.
func (n *Network[B]) Parameters() []*nn.Parameter[B] {
	params := n.features.Parameters()
	return append(params, n.classifier.Parameters()...)
}

// SetTraining switches batch norms between batch and running statistics.
func (n *Network[B]) SetTraining(training bool) {
	n.features.SetTraining(training)
	nn.SetTraining(n.classifier, training)
}

// LastChannel returns the embedding width produced by the final conv.
func (n *Network[B]) LastChannel() int { return n.lastChannel }

// NumClasses returns the classifier output width.
func (n *Network[B]) NumClasses() int { return n.numClasses }

// FeatureBlocks returns the feature extractor for inspection.
func (n *Network[B]) FeatureBlocks() *nn.Sequential[B] { return n.features }

// StateDict returns the full network state with features./classifier.
// prefixes.
func (n *Network[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for name, raw := range n.features.StateDict() {
		stateDict["features."+name] = raw
	}
	for name, raw := range n.classifier.StateDict() {
		stateDict["classifier."+name] = raw
	}
	return stateDict
}

// LoadStateDict restores the full network state.
func (n *Network[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	featureState := make(map[string]*tensor.RawTensor)
	classifierState := make(map[string]*tensor.RawTensor)
	for key, raw := range stateDict {
		switch {
		case strings.HasPrefix(key, "features."):
			featureState[strings.TrimPrefix(key, "features.")] = raw
		case strings.HasPrefix(key, "classifier."):
			classifierState[strings.TrimPrefix(key, "classifier.")] = raw
		default:
			return fmt.Errorf("unexpected state dict key %q", key)
		}
	}
	if err := n.features.LoadStateDict(featureState); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	if err := n.classifier.LoadStateDict(classifierState); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	return nil
}
