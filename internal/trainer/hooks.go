package trainer

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/quanta-ml/quanta/internal/hook"
	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// LoadInit returns a before_train hook that initializes model weights from
// a checkpoint, discarding optimizer state and epoch position. Shape or
// dtype mismatches abort the run.
func LoadInit[B tensor.Backend](path string) hook.Func[*Context[B]] {
	return func(ctx *Context[B]) error {
		ckpt, err := nn.LoadCheckpoint(path, ctx.Backend, ctx.Model, nil)
		if err != nil {
			return fmt.Errorf("loading init checkpoint: %w", err)
		}
		ctx.Logger.Info("initialized from checkpoint", "path", path, "arch", ckpt.Arch)
		return nil
	}
}

// LoadResume returns a before_train hook that restores model and optimizer
// state and resumes the epoch counter after the checkpointed epoch.
func LoadResume[B tensor.Backend](path string) hook.Func[*Context[B]] {
	return func(ctx *Context[B]) error {
		ckpt, err := nn.LoadCheckpoint(path, ctx.Backend, ctx.Model, ctx.Optimizer)
		if err != nil {
			return fmt.Errorf("loading resume checkpoint: %w", err)
		}
		ctx.StartEpoch = ckpt.Epoch + 1
		ctx.Step = ckpt.Step
		ctx.BestMetric = ckpt.Metric
		ctx.Logger.Info("resumed from checkpoint",
			"path", path, "epoch", ckpt.Epoch, "metric", ckpt.Metric)
		return nil
	}
}

// LoadValid returns a before_epoch hook that loads model weights for an
// evaluation run.
func LoadValid[B tensor.Backend](path string) hook.Func[*Context[B]] {
	return func(ctx *Context[B]) error {
		if _, err := nn.LoadCheckpoint(path, ctx.Backend, ctx.Model, nil); err != nil {
			return fmt.Errorf("loading eval checkpoint: %w", err)
		}
		return nil
	}
}

// SaveTrain returns an after_epoch hook that writes the latest checkpoint
// and refreshes the best one when epoch accuracy improves.
func SaveTrain[B tensor.Backend](dir, arch string) hook.Func[*Context[B]] {
	return func(ctx *Context[B]) error {
		metric := ctx.Accuracy.Average()
		ckpt := &nn.Checkpoint[B]{
			Model:     ctx.Model,
			Optimizer: ctx.Optimizer,
			Arch:      arch,
			Epoch:     ctx.Epoch,
			Step:      ctx.Step,
			Metric:    metric,
		}
		latest := filepath.Join(dir, arch+"-latest.ckpt")
		if err := ckpt.Save(latest); err != nil {
			return fmt.Errorf("saving checkpoint: %w", err)
		}
		if metric > ctx.BestMetric {
			ctx.BestMetric = metric
			ckpt.Metric = metric
			if err := ckpt.Save(filepath.Join(dir, arch+"-best.ckpt")); err != nil {
				return fmt.Errorf("saving best checkpoint: %w", err)
			}
			ctx.Logger.Info("new best checkpoint", "epoch", ctx.Epoch, "accuracy", metric)
		}
		return nil
	}
}

// SavePred returns an after_epoch hook that dumps test-mode predictions.
func SavePred[B tensor.Backend]() hook.Func[*Context[B]] {
	return func(ctx *Context[B]) error {
		if err := ctx.Reporter.SavePredictions(ctx.Predictions, ctx.TrueLabels); err != nil {
			return fmt.Errorf("saving predictions: %w", err)
		}
		ctx.Logger.Info("predictions saved", "count", len(ctx.Predictions))
		return nil
	}
}

// StepLREpoch returns the after_epoch scheduler hook.
func StepLREpoch[B tensor.Backend]() hook.Func[*Context[B]] {
	return func(ctx *Context[B]) error {
		if ctx.Scheduler == nil {
			return fmt.Errorf("scheduler step hook registered with no scheduler")
		}
		ctx.Scheduler.Step()
		return nil
	}
}

// StepLRBatch returns the after_batch scheduler hook.
func StepLRBatch[B tensor.Backend]() hook.Func[*Context[B]] {
	return func(ctx *Context[B]) error {
		if ctx.Scheduler == nil {
			return fmt.Errorf("scheduler step hook registered with no scheduler")
		}
		ctx.Scheduler.Step()
		return nil
	}
}

// SummarizeReports returns an after_epoch hook that renders the report
// table to w and persists the CSV alongside the other run artifacts.
func SummarizeReports[B tensor.Backend](w io.Writer) hook.Func[*Context[B]] {
	return func(ctx *Context[B]) error {
		ctx.Reporter.Summarize(w)
		if err := ctx.Reporter.SaveCSV(); err != nil {
			return fmt.Errorf("saving reports: %w", err)
		}
		return nil
	}
}

// RegisterScheduler attaches the scheduler-step hook at exactly one
// location per the configured granularity. A trainer running at a fixed
// learning rate has no scheduler and gets no step hook.
func RegisterScheduler[B tensor.Backend](t *Trainer[B], loc StepLocation) error {
	if t.scheduler == nil {
		return nil
	}
	if loc == StepBatch {
		return t.Hooks().Register(hook.AfterBatch, StepLRBatch[B]())
	}
	return t.Hooks().Register(hook.AfterEpoch, StepLREpoch[B]())
}
