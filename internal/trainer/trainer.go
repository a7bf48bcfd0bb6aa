// Package trainer drives the epoch/batch loops for the four run modes and
// exposes the hook locations orthogonal concerns attach to: checkpoint
// loading, LR scheduling, report summarization, feature extraction.
package trainer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/quanta-ml/quanta/internal/autodiff"
	"github.com/quanta-ml/quanta/internal/dataset"
	"github.com/quanta-ml/quanta/internal/hook"
	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/optim"
	"github.com/quanta-ml/quanta/internal/report"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// Options are the run parameters the trainer itself consumes.
type Options struct {
	Epochs       int
	ArchName     string
	SaveDir      string
	LoadPath     string
	StepLocation StepLocation
}

// Model is the network surface the loop needs: module semantics plus the
// embedding accessor analyze mode captures and the train/eval switch.
type Model[B tensor.Backend] interface {
	nn.Module[B]
	Features(input *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B])
	LastChannel() int
	SetTraining(training bool)
}

// Trainer owns the model, optimizer, scheduler, criterion and loaders for
// one run. It is single-threaded: the loop and all hooks execute
// sequentially, so the shared Context needs no locking.
type Trainer[B tensor.Backend] struct {
	opts      Options
	model     Model[B]
	criterion *nn.CrossEntropyLoss[B]
	optimizer optim.Optimizer
	scheduler optim.Scheduler
	loaders   *dataset.Loaders[B]
	hooks     *hook.Registry[*Context[B]]
	reporter  *report.Reporter
	logger    *slog.Logger
	backend   B
}

// recorder is the slice of the autodiff backend the train loop needs.
// Plain backends do not implement it; train mode requires it.
type recorder interface {
	Tape() *autodiff.GradientTape
}

// Extender is the optional capability a quantizer (or any collaborator)
// implements to attach its own hooks before a run starts.
type Extender[B tensor.Backend] interface {
	AddHooks(t *Trainer[B]) error
}

// New assembles a trainer. The optimizer and scheduler may be nil for
// evaluation-only runs.
func New[B tensor.Backend](
	opts Options,
	net Model[B],
	optimizer optim.Optimizer,
	scheduler optim.Scheduler,
	loaders *dataset.Loaders[B],
	reporter *report.Reporter,
	logger *slog.Logger,
	backend B,
) (*Trainer[B], error) {
	if net == nil {
		return nil, fmt.Errorf("trainer requires a model")
	}
	if loaders == nil {
		return nil, fmt.Errorf("trainer requires data loaders")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer[B]{
		opts:      opts,
		model:     net,
		criterion: nn.NewCrossEntropyLoss(backend),
		optimizer: optimizer,
		scheduler: scheduler,
		loaders:   loaders,
		hooks:     hook.NewRegistry[*Context[B]](),
		reporter:  reporter,
		logger:    logger,
		backend:   backend,
	}, nil
}

// Hooks returns the registry run-mode setup registers into.
func (t *Trainer[B]) Hooks() *hook.Registry[*Context[B]] { return t.hooks }

// Logger returns the trainer's logger.
func (t *Trainer[B]) Logger() *slog.Logger { return t.logger }

// Model returns the network under training.
func (t *Trainer[B]) Model() Model[B] { return t.model }

// Run executes the selected mode to completion. Any hook or step error is
// fatal: the run stops and the error propagates to the caller.
func (t *Trainer[B]) Run(mode Mode) error {
	switch mode {
	case Train:
		return t.train()
	case Validate:
		return t.runEval(Validate, t.loaders.Val)
	case Test:
		return t.runEval(Test, t.loaders.Test)
	case Analyze:
		return t.runEval(Analyze, t.loaders.Val)
	default:
		return fmt.Errorf("unknown run mode %d", int(mode))
	}
}

func (t *Trainer[B]) newContext(mode Mode, loader dataset.Loader[B]) *Context[B] {
	return &Context[B]{
		Mode:      mode,
		Backend:   t.backend,
		Model:     t.model,
		Optimizer: t.optimizer,
		Scheduler: t.scheduler,
		Loader:    loader,
		Reporter:  t.reporter,
		Logger:    t.logger,
		Loss:      report.NewAverageMeter("loss"),
		Accuracy:  report.NewAverageMeter("accuracy"),
	}
}

func (t *Trainer[B]) train() error {
	if t.optimizer == nil {
		return fmt.Errorf("train mode requires an optimizer")
	}
	if _, ok := any(t.backend).(recorder); !ok {
		return fmt.Errorf("train mode requires a gradient-recording backend, got %s", t.backend.Name())
	}

	ctx := t.newContext(Train, t.loaders.Train)
	if err := t.hooks.Run(hook.BeforeTrain, ctx); err != nil {
		return err
	}
	for epoch := ctx.StartEpoch; epoch < t.opts.Epochs; epoch++ {
		ctx.Epoch = epoch
		if err := t.runEpoch(ctx, true); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trainer[B]) runEval(mode Mode, loader dataset.Loader[B]) error {
	ctx := t.newContext(mode, loader)
	return t.runEpoch(ctx, false)
}

// runEpoch drives one epoch: before_epoch hooks, the batch loop with
// after_batch hooks, metric reporting, then after_epoch hooks.
func (t *Trainer[B]) runEpoch(ctx *Context[B], training bool) error {
	start := time.Now()
	ctx.Loss.Reset()
	ctx.Accuracy.Reset()
	t.model.SetTraining(training)

	if err := t.hooks.Run(hook.BeforeEpoch, ctx); err != nil {
		return err
	}

	batches, wait := ctx.Loader.Batches(ctx.Epoch)
	ctx.Batch = 0
	for batch := range batches {
		var err error
		if training {
			err = t.trainStep(ctx, batch)
		} else {
			err = t.evalStep(ctx, batch)
		}
		if err == nil {
			err = t.hooks.Run(hook.AfterBatch, ctx)
		}
		if err != nil {
			// Unblock the producer before surfacing the error.
			for range batches {
			}
			_ = wait()
			return err
		}
		ctx.Batch++
	}
	if err := wait(); err != nil {
		return err
	}

	summary := report.EpochReport{
		Mode:     ctx.Mode.String(),
		Epoch:    ctx.Epoch,
		Loss:     ctx.Loss.Average(),
		Accuracy: ctx.Accuracy.Average(),
		Duration: time.Since(start),
	}
	if t.optimizer != nil {
		summary.LR = t.optimizer.GetLR()
	}
	if t.reporter != nil {
		t.reporter.Add(summary)
	}
	t.logger.Info("epoch finished",
		"mode", summary.Mode,
		"epoch", summary.Epoch,
		"loss", summary.Loss,
		"accuracy", summary.Accuracy,
		"lr", summary.LR,
		"duration", summary.Duration,
	)

	return t.hooks.Run(hook.AfterEpoch, ctx)
}

func (t *Trainer[B]) trainStep(ctx *Context[B], batch dataset.Batch[B]) error {
	rec := any(t.backend).(recorder)
	tape := rec.Tape()
	tape.Clear()
	tape.StartRecording()

	logits := t.model.Forward(batch.Images)
	loss := t.criterion.Forward(logits, batch.Labels)

	tape.StopRecording()
	seed := tensor.Ones[float32](tensor.Shape{1}, t.backend)
	grads := tape.Backward(seed.Raw(), t.backend)
	t.optimizer.Step(grads)
	tape.Clear()
	ctx.Step++

	ctx.Loss.Update(float64(loss.Data()[0]), batch.Size)
	ctx.Accuracy.Update(nn.Accuracy(logits, batch.Labels), batch.Size)
	ctx.Logits = logits
	ctx.Labels = batch.Labels
	return nil
}

func (t *Trainer[B]) evalStep(ctx *Context[B], batch dataset.Batch[B]) error {
	if rec, ok := any(t.backend).(recorder); ok {
		rec.Tape().StopRecording()
	}

	var logits *tensor.Tensor[float32, B]
	if ctx.Mode == Analyze {
		ctx.Embedding, logits = t.model.Features(batch.Images)
	} else {
		logits = t.model.Forward(batch.Images)
	}
	loss := t.criterion.Forward(logits, batch.Labels)

	ctx.Loss.Update(float64(loss.Data()[0]), batch.Size)
	ctx.Accuracy.Update(nn.Accuracy(logits, batch.Labels), batch.Size)
	if ctx.Mode == Test {
		ctx.Predictions = append(ctx.Predictions, nn.Predictions(logits)...)
		ctx.TrueLabels = append(ctx.TrueLabels, batch.Labels.Data()...)
	}
	ctx.Logits = logits
	ctx.Labels = batch.Labels
	return nil
}
