package trainer

import (
	"log/slog"

	"github.com/quanta-ml/quanta/internal/dataset"
	"github.com/quanta-ml/quanta/internal/optim"
	"github.com/quanta-ml/quanta/internal/report"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// Context is the mutable record shared by the loop and every hook within
// one run. Hooks may read and write any field; mutations are visible to
// later hooks at the same location and to the loop itself.
type Context[B tensor.Backend] struct {
	Mode  Mode
	Epoch int
	Batch int
	Step  int64

	Backend B

	Model     Model[B]
	Optimizer optim.Optimizer
	Scheduler optim.Scheduler
	Loader    dataset.Loader[B]
	Reporter  *report.Reporter
	Logger    *slog.Logger

	Loss     *report.AverageMeter
	Accuracy *report.AverageMeter

	// StartEpoch is advanced by the resume hook before the epoch loop
	// begins.
	StartEpoch int

	// BestMetric tracks the best epoch accuracy seen so far; the save
	// hook uses it to decide when to refresh the best checkpoint.
	BestMetric float64

	// Per-batch outputs, refreshed before after_batch hooks run.
	Logits    *tensor.Tensor[float32, B]
	Embedding *tensor.Tensor[float32, B] // analyze mode only
	Labels    *tensor.Tensor[int32, B]

	// Per-run prediction accumulation for the test-mode dump.
	Predictions []int32
	TrueLabels  []int32
}
