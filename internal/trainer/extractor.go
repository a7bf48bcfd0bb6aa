package trainer

import (
	"fmt"

	"github.com/quanta-ml/quanta/internal/hook"
	"github.com/quanta-ml/quanta/internal/report"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// FeatureExtractor captures the pooled embedding of every analyze-mode
// batch and flushes the buffer once per epoch. An error anywhere in the
// epoch aborts the run before any partial flush.
type FeatureExtractor[B tensor.Backend] struct {
	width    int
	features []float32
	labels   []int32
}

// NewFeatureExtractor creates an empty extractor.
func NewFeatureExtractor[B tensor.Backend]() *FeatureExtractor[B] {
	return &FeatureExtractor[B]{}
}

// Initialize is the before_epoch hook: it resets the capture buffer.
func (e *FeatureExtractor[B]) Initialize(ctx *Context[B]) error {
	e.width = ctx.Model.LastChannel()
	e.features = e.features[:0]
	e.labels = e.labels[:0]
	return nil
}

// Accumulate is the after_batch hook: it appends the batch's embeddings.
func (e *FeatureExtractor[B]) Accumulate(ctx *Context[B]) error {
	if ctx.Embedding == nil {
		return fmt.Errorf("no embedding captured for batch %d", ctx.Batch)
	}
	e.features = append(e.features, ctx.Embedding.Data()...)
	e.labels = append(e.labels, ctx.Labels.Data()...)
	return nil
}

// Flush is the after_epoch hook: it writes the buffer to the run's
// feature artifact.
func (e *FeatureExtractor[B]) Flush(ctx *Context[B]) error {
	fs := report.FeatureSet{
		Width:    e.width,
		Features: append([]float32(nil), e.features...),
		Labels:   append([]int32(nil), e.labels...),
	}
	if err := ctx.Reporter.SaveFeatures(fs); err != nil {
		return fmt.Errorf("saving features: %w", err)
	}
	ctx.Logger.Info("features saved", "samples", len(fs.Labels), "width", fs.Width)
	return nil
}

// Register attaches the initialize/accumulate/flush triple.
func (e *FeatureExtractor[B]) Register(t *Trainer[B]) error {
	if err := t.Hooks().Register(hook.BeforeEpoch, e.Initialize); err != nil {
		return err
	}
	if err := t.Hooks().Register(hook.AfterBatch, e.Accumulate); err != nil {
		return err
	}
	return t.Hooks().Register(hook.AfterEpoch, e.Flush)
}
