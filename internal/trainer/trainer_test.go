package trainer_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-ml/quanta/internal/autodiff"
	"github.com/quanta-ml/quanta/internal/backend/cpu"
	"github.com/quanta-ml/quanta/internal/dataset"
	"github.com/quanta-ml/quanta/internal/hook"
	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/optim"
	"github.com/quanta-ml/quanta/internal/report"
	"github.com/quanta-ml/quanta/internal/tensor"
	"github.com/quanta-ml/quanta/internal/trainer"
)

type Backend = *autodiff.Backend[*cpu.Backend]

const (
	testImageSize  = 4
	testNumClasses = 3
	testFeatures   = 3 * testImageSize * testImageSize
)

// flatModel is a single linear layer over flattened pixels, enough to
// exercise the loop without a full convolutional stack.
type flatModel struct {
	fc *nn.Linear[Backend]
}

func newFlatModel(backend Backend) *flatModel {
	return &flatModel{fc: nn.NewLinear(testFeatures, testNumClasses, nn.NewInitializer(3), backend)}
}

func (m *flatModel) Forward(input *tensor.Tensor[float32, Backend]) *tensor.Tensor[float32, Backend] {
	_, logits := m.Features(input)
	return logits
}

func (m *flatModel) Features(input *tensor.Tensor[float32, Backend]) (*tensor.Tensor[float32, Backend], *tensor.Tensor[float32, Backend]) {
	flat := input.Reshape(input.Shape()[0], testFeatures)
	return flat, m.fc.Forward(flat)
}

func (m *flatModel) Parameters() []*nn.Parameter[Backend] { return m.fc.Parameters() }

func (m *flatModel) StateDict() map[string]*tensor.RawTensor { return m.fc.StateDict() }

func (m *flatModel) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return m.fc.LoadStateDict(sd)
}

func (m *flatModel) LastChannel() int { return testFeatures }

func (m *flatModel) SetTraining(bool) {}

// countingScheduler records how many times Step ran.
type countingScheduler struct {
	steps int
}

func (s *countingScheduler) Step()           { s.steps++ }
func (s *countingScheduler) LastLR() float64 { return 0.1 }

type fixture struct {
	trainer   *trainer.Trainer[Backend]
	model     *flatModel
	optimizer optim.Optimizer
	scheduler *countingScheduler
	reporter  *report.Reporter
	loaders   *dataset.Loaders[Backend]
}

func newFixture(t *testing.T, opts trainer.Options) *fixture {
	t.Helper()
	backend := autodiff.New(cpu.New())

	loader, err := dataset.NewSynthetic(8, testNumClasses, testImageSize, 4, 11, backend)
	require.NoError(t, err)
	loaders := &dataset.Loaders[Backend]{Train: loader, Val: loader, Test: loader}

	m := newFlatModel(backend)
	opt := optim.NewSGD(m.Parameters(), optim.SGDConfig{LR: 0.1}, backend)
	sched := &countingScheduler{}

	rep, err := report.NewReporter(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr, err := trainer.New(opts, m, opt, sched, loaders, rep, logger, backend)
	require.NoError(t, err)

	return &fixture{trainer: tr, model: m, optimizer: opt, scheduler: sched, reporter: rep, loaders: loaders}
}

func TestParseMode(t *testing.T) {
	for _, name := range []string{"train", "validate", "test", "analyze"} {
		m, err := trainer.ParseMode(name)
		require.NoError(t, err)
		assert.Equal(t, name, m.String())
	}
	_, err := trainer.ParseMode("predict")
	require.Error(t, err)
}

func TestTrainRunsEpochsAndBatches(t *testing.T) {
	fx := newFixture(t, trainer.Options{Epochs: 2})

	var batchCalls, epochCalls int
	require.NoError(t, fx.trainer.Hooks().Register(hook.AfterBatch, func(ctx *trainer.Context[Backend]) error {
		batchCalls++
		return nil
	}))
	require.NoError(t, fx.trainer.Hooks().Register(hook.AfterEpoch, func(ctx *trainer.Context[Backend]) error {
		epochCalls++
		return nil
	}))

	require.NoError(t, fx.trainer.Run(trainer.Train))
	// 8 samples / batch 4 = 2 batches per epoch.
	assert.Equal(t, 4, batchCalls)
	assert.Equal(t, 2, epochCalls)
	assert.Len(t, fx.reporter.Reports(), 2)
	assert.Equal(t, "train", fx.reporter.Reports()[0].Mode)
}

func TestSchedulerStepPerEpoch(t *testing.T) {
	fx := newFixture(t, trainer.Options{Epochs: 3, StepLocation: trainer.StepEpoch})
	require.NoError(t, trainer.RegisterScheduler(fx.trainer, trainer.StepEpoch))

	require.NoError(t, fx.trainer.Run(trainer.Train))
	assert.Equal(t, 3, fx.scheduler.steps, "one step per epoch, none per batch")
}

func TestSchedulerStepPerBatch(t *testing.T) {
	fx := newFixture(t, trainer.Options{Epochs: 2, StepLocation: trainer.StepBatch})
	require.NoError(t, trainer.RegisterScheduler(fx.trainer, trainer.StepBatch))

	require.NoError(t, fx.trainer.Run(trainer.Train))
	assert.Equal(t, 4, fx.scheduler.steps, "one step per batch, none per epoch")
}

func TestNilSchedulerSkipsStepHook(t *testing.T) {
	backend := autodiff.New(cpu.New())
	loader, err := dataset.NewSynthetic(8, testNumClasses, testImageSize, 4, 11, backend)
	require.NoError(t, err)
	loaders := &dataset.Loaders[Backend]{Train: loader, Val: loader, Test: loader}

	m := newFlatModel(backend)
	opt := optim.NewSGD(m.Parameters(), optim.SGDConfig{LR: 0.1}, backend)
	rep, err := report.NewReporter(t.TempDir())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tr, err := trainer.New(trainer.Options{Epochs: 2, StepLocation: trainer.StepEpoch},
		m, opt, nil, loaders, rep, logger, backend)
	require.NoError(t, err)

	// A fixed-rate run carries no scheduler; registration is a no-op and
	// training completes without a step hook firing.
	require.NoError(t, trainer.RegisterScheduler(tr, trainer.StepEpoch))
	require.NoError(t, tr.Run(trainer.Train))
}

func TestHookErrorIsFatal(t *testing.T) {
	fx := newFixture(t, trainer.Options{Epochs: 2})
	boom := errors.New("boom")

	var calls int
	require.NoError(t, fx.trainer.Hooks().Register(hook.AfterBatch, func(ctx *trainer.Context[Backend]) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	}))

	err := fx.trainer.Run(trainer.Train)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls, "run stops at the failing batch")
}

func TestValidateDoesNotStep(t *testing.T) {
	fx := newFixture(t, trainer.Options{Epochs: 1})

	before := fx.model.StateDict()["weight"].Clone()
	require.NoError(t, fx.trainer.Run(trainer.Validate))
	after := fx.model.StateDict()["weight"]

	assert.Equal(t, before.Bytes(), after.Bytes(), "validation must not mutate weights")
	require.Len(t, fx.reporter.Reports(), 1)
	assert.Equal(t, "validate", fx.reporter.Reports()[0].Mode)
}

func TestTestModeSavesPredictions(t *testing.T) {
	fx := newFixture(t, trainer.Options{Epochs: 1})
	require.NoError(t, fx.trainer.Hooks().Register(hook.AfterEpoch, trainer.SavePred[Backend]()))

	require.NoError(t, fx.trainer.Run(trainer.Test))

	data, err := os.ReadFile(filepath.Join(fx.reporter.Dir(), "predictions.csv"))
	require.NoError(t, err)
	// Header plus one row per sample.
	assert.Equal(t, 9, bytes.Count(data, []byte("\n")))
}

func TestAnalyzeHookTriple(t *testing.T) {
	fx := newFixture(t, trainer.Options{Epochs: 1})

	var sequence []string
	record := func(event string) hook.Func[*trainer.Context[Backend]] {
		return func(ctx *trainer.Context[Backend]) error {
			sequence = append(sequence, event)
			return nil
		}
	}

	extractor := trainer.NewFeatureExtractor[Backend]()
	require.NoError(t, fx.trainer.Hooks().Register(hook.BeforeEpoch, record("init"), extractor.Initialize))
	require.NoError(t, fx.trainer.Hooks().Register(hook.AfterBatch, extractor.Accumulate, record("batch")))
	require.NoError(t, fx.trainer.Hooks().Register(hook.AfterEpoch, extractor.Flush, record("flush")))

	require.NoError(t, fx.trainer.Run(trainer.Analyze))
	assert.Equal(t, []string{"init", "batch", "batch", "flush"}, sequence)

	_, err := os.Stat(filepath.Join(fx.reporter.Dir(), "features.cbor"))
	require.NoError(t, err)
}

func TestSaveTrainAndResume(t *testing.T) {
	dir := t.TempDir()
	fx := newFixture(t, trainer.Options{Epochs: 2})
	require.NoError(t, fx.trainer.Hooks().Register(hook.AfterEpoch, trainer.SaveTrain[Backend](dir, "mobilenetv2")))
	require.NoError(t, fx.trainer.Run(trainer.Train))

	latest := filepath.Join(dir, "mobilenetv2-latest.ckpt")
	_, err := os.Stat(latest)
	require.NoError(t, err)

	// Resuming from the final checkpoint leaves no epochs to run.
	resumed := newFixture(t, trainer.Options{Epochs: 2})
	require.NoError(t, resumed.trainer.Hooks().Register(hook.BeforeTrain, trainer.LoadResume[Backend](latest)))

	var epochs int
	require.NoError(t, resumed.trainer.Hooks().Register(hook.BeforeEpoch, func(ctx *trainer.Context[Backend]) error {
		epochs++
		return nil
	}))
	require.NoError(t, resumed.trainer.Run(trainer.Train))
	assert.Equal(t, 0, epochs)
}

func TestLoadValidMissingFileIsFatal(t *testing.T) {
	fx := newFixture(t, trainer.Options{Epochs: 1})
	require.NoError(t, fx.trainer.Hooks().Register(hook.BeforeEpoch,
		trainer.LoadValid[Backend](filepath.Join(t.TempDir(), "missing.ckpt"))))

	require.Error(t, fx.trainer.Run(trainer.Validate))
}

func TestSummarizeReports(t *testing.T) {
	fx := newFixture(t, trainer.Options{Epochs: 1})
	var buf bytes.Buffer
	require.NoError(t, fx.trainer.Hooks().Register(hook.AfterEpoch, trainer.SummarizeReports[Backend](&buf)))

	require.NoError(t, fx.trainer.Run(trainer.Validate))
	assert.Contains(t, buf.String(), "validate")

	_, err := os.Stat(filepath.Join(fx.reporter.Dir(), "reports.csv"))
	require.NoError(t, err)
}
