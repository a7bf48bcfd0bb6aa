// Package trainer provides the public API for the hook-driven training
// loop: run modes, the shared hook context, and the built-in hooks.
package trainer

import (
	"io"

	"github.com/quanta-ml/quanta/internal/hook"
	"github.com/quanta-ml/quanta/internal/tensor"
	"github.com/quanta-ml/quanta/internal/trainer"
)

// Mode selects which loop variant the trainer runs.
type Mode = trainer.Mode

// Run modes.
const (
	Train    Mode = trainer.Train
	Validate Mode = trainer.Validate
	Test     Mode = trainer.Test
	Analyze  Mode = trainer.Analyze
)

// ParseMode converts a run-type name to a Mode.
func ParseMode(name string) (Mode, error) { return trainer.ParseMode(name) }

// StepLocation selects scheduler step granularity.
type StepLocation = trainer.StepLocation

// Step granularities.
const (
	StepEpoch StepLocation = trainer.StepEpoch
	StepBatch StepLocation = trainer.StepBatch
)

// Location is a lifecycle point hooks attach to.
type Location = hook.Location

// Hook locations.
const (
	BeforeTrain Location = hook.BeforeTrain
	BeforeEpoch Location = hook.BeforeEpoch
	AfterBatch  Location = hook.AfterBatch
	AfterEpoch  Location = hook.AfterEpoch
)

// Options are the run parameters the trainer consumes.
type Options = trainer.Options

// Context is the mutable record shared by the loop and every hook.
type Context[B tensor.Backend] = trainer.Context[B]

// Model is the network surface the loop drives.
type Model[B tensor.Backend] = trainer.Model[B]

// Trainer owns the model, optimizer, scheduler and loaders for one run.
type Trainer[B tensor.Backend] = trainer.Trainer[B]

// Extender is the optional capability collaborators implement to attach
// hooks before a run starts.
type Extender[B tensor.Backend] = trainer.Extender[B]

// FeatureExtractor captures analyze-mode embeddings.
type FeatureExtractor[B tensor.Backend] = trainer.FeatureExtractor[B]

// NewFeatureExtractor creates an empty extractor.
func NewFeatureExtractor[B tensor.Backend]() *FeatureExtractor[B] {
	return trainer.NewFeatureExtractor[B]()
}

// Built-in hooks.

// LoadInit initializes model weights from a checkpoint before training.
func LoadInit[B tensor.Backend](path string) hook.Func[*Context[B]] {
	return trainer.LoadInit[B](path)
}

// LoadResume restores model and optimizer state and resumes the epoch
// counter.
func LoadResume[B tensor.Backend](path string) hook.Func[*Context[B]] {
	return trainer.LoadResume[B](path)
}

// LoadValid loads model weights for an evaluation run.
func LoadValid[B tensor.Backend](path string) hook.Func[*Context[B]] {
	return trainer.LoadValid[B](path)
}

// SaveTrain writes the latest and best checkpoints after each epoch.
func SaveTrain[B tensor.Backend](dir, arch string) hook.Func[*Context[B]] {
	return trainer.SaveTrain[B](dir, arch)
}

// SavePred dumps test-mode predictions.
func SavePred[B tensor.Backend]() hook.Func[*Context[B]] {
	return trainer.SavePred[B]()
}

// SummarizeReports renders the report table and persists the CSV.
func SummarizeReports[B tensor.Backend](w io.Writer) hook.Func[*Context[B]] {
	return trainer.SummarizeReports[B](w)
}

// RegisterScheduler attaches the scheduler-step hook at exactly one
// location. Trainers without a scheduler get no hook.
func RegisterScheduler[B tensor.Backend](t *Trainer[B], loc StepLocation) error {
	return trainer.RegisterScheduler(t, loc)
}
