package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/quanta-ml/quanta/internal/autodiff"
	"github.com/quanta-ml/quanta/internal/backend/cpu"
	"github.com/quanta-ml/quanta/internal/config"
	"github.com/quanta-ml/quanta/internal/dataset"
	"github.com/quanta-ml/quanta/internal/hook"
	"github.com/quanta-ml/quanta/internal/model"
	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/optim"
	"github.com/quanta-ml/quanta/internal/quant"
	"github.com/quanta-ml/quanta/internal/report"
	"github.com/quanta-ml/quanta/internal/trainer"
)

// backend is the one concrete backend the CLI drives: the CPU kernels
// wrapped with gradient recording.
type backend = *autodiff.Backend[*cpu.Backend]

func newRunCmd() *cobra.Command {
	cfg := config.Default()
	var configFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run training, validation, testing, or feature analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				// Explicit flags take precedence over the file.
				explicit := make(map[string]bool)
				cmd.Flags().Visit(func(f *pflag.Flag) {
					explicit[strings.ReplaceAll(f.Name, "-", "_")] = true
				})
				if err := cfg.MergeFile(configFile, explicit); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "JSON config file")

	flags.StringVar(&cfg.Arch, "arch", cfg.Arch, "architecture name")
	flags.IntVar(&cfg.Layers, "layers", cfg.Layers, "layer count for depth-parameterized architectures")
	flags.Float64Var(&cfg.WidthMult, "width-mult", cfg.WidthMult, "channel width multiplier")

	flags.StringVar(&cfg.Quantizer, "quantizer", cfg.Quantizer, "quantizer variant (uniform|observing)")
	flags.IntVar(&cfg.BitW, "bitw", cfg.BitW, "weight bit-width")
	flags.IntVar(&cfg.BitA, "bita", cfg.BitA, "activation bit-width")
	flags.IntVar(&cfg.FirstConvBitW, "first-conv-bitw", cfg.FirstConvBitW, "stem convolution weight bit-width")
	flags.IntVar(&cfg.LastFCBitW, "last-fc-bitw", cfg.LastFCBitW, "classifier weight bit-width")
	flags.BoolVar(&cfg.Symmetric, "symmetric", cfg.Symmetric, "use symmetric quantization grids")

	flags.StringVar(&cfg.Dataset, "dataset", cfg.Dataset, "dataset (cifar10|cifar100|imagenet)")
	flags.StringVar(&cfg.DatasetDir, "dataset-dir", cfg.DatasetDir, "dataset root directory")
	flags.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "batch size")
	flags.IntVar(&cfg.Workers, "workers", cfg.Workers, "image decode workers")

	flags.StringVar(&cfg.RunType, "run-type", cfg.RunType, "run mode (train|validate|test|analyze)")
	flags.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "training epochs")
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	flags.StringVar(&cfg.Load, "load", cfg.Load, "checkpoint to load")
	flags.BoolVar(&cfg.Resume, "resume", cfg.Resume, "resume training from the loaded checkpoint")

	flags.StringVar(&cfg.Optimizer, "optimizer", cfg.Optimizer, "optimizer (sgd|adam)")
	flags.Float64Var(&cfg.LR, "lr", cfg.LR, "initial learning rate")
	flags.Float64Var(&cfg.Momentum, "momentum", cfg.Momentum, "SGD momentum")
	flags.Float64Var(&cfg.WeightDecay, "weight-decay", cfg.WeightDecay, "weight decay")
	flags.BoolVar(&cfg.Nesterov, "nesterov", cfg.Nesterov, "Nesterov momentum")
	flags.StringVar(&cfg.Scheduler, "scheduler", cfg.Scheduler, "LR scheduler (step|multistep|cosine|none)")
	flags.IntVar(&cfg.StepSize, "step-size", cfg.StepSize, "StepLR decay interval")
	flags.IntSliceVar(&cfg.Milestones, "milestones", cfg.Milestones, "MultiStepLR milestones")
	flags.Float64Var(&cfg.Gamma, "gamma", cfg.Gamma, "LR decay factor")
	flags.Float64Var(&cfg.EtaMin, "eta-min", cfg.EtaMin, "cosine annealing floor")
	flags.StringVar(&cfg.StepLocation, "step-location", cfg.StepLocation, "scheduler step granularity (epoch|batch)")

	flags.StringVar(&cfg.SaveDir, "save-dir", cfg.SaveDir, "checkpoint directory")
	flags.StringVar(&cfg.ReportDir, "report-dir", cfg.ReportDir, "report artifact directory")

	return cmd
}

func run(cfg config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	archName, err := model.ArchName(cfg.Arch, cfg.Layers, cfg.WidthMult)
	if err != nil {
		return err
	}
	logger.Info("building model", "arch", archName, "dataset", cfg.Dataset)

	b := autodiff.New(cpu.New())
	init := nn.NewInitializer(cfg.Seed)
	bits := quant.BitConfig{
		BitW:          cfg.BitW,
		BitA:          cfg.BitA,
		FirstConvBitW: cfg.FirstConvBitW,
		LastFCBitW:    cfg.LastFCBitW,
		Symmetric:     cfg.Symmetric,
	}

	var quantizer quant.Quantizer[backend]
	switch cfg.Quantizer {
	case "observing":
		quantizer = quant.NewObserving(bits, init, b)
	default:
		quantizer = quant.NewUniform(bits, init, b)
	}

	net, err := model.Build(model.Options{Dataset: cfg.Dataset, WidthMult: cfg.WidthMult}, quantizer, b)
	if err != nil {
		return err
	}

	optimizer, scheduler, err := buildOptimizer(cfg, net, b)
	if err != nil {
		return err
	}

	loaders, err := dataset.Provide(dataset.Options{
		Dataset:   cfg.Dataset,
		Dir:       cfg.DatasetDir,
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
		Seed:      cfg.Seed,
	}, b)
	if err != nil {
		return err
	}

	reporter, err := report.NewReporter(cfg.ReportDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
		return fmt.Errorf("creating save dir: %w", err)
	}

	stepLoc, err := trainer.ParseStepLocation(cfg.StepLocation)
	if err != nil {
		return err
	}
	tr, err := trainer.New(trainer.Options{
		Epochs:       cfg.Epochs,
		ArchName:     archName,
		SaveDir:      cfg.SaveDir,
		LoadPath:     cfg.Load,
		StepLocation: stepLoc,
	}, net, optimizer, scheduler, loaders, reporter, logger, b)
	if err != nil {
		return err
	}

	mode, err := trainer.ParseMode(cfg.RunType)
	if err != nil {
		return err
	}
	if err := registerHooks(tr, mode, cfg, archName, stepLoc, quantizer); err != nil {
		return err
	}

	logger.Info("starting run", "mode", mode.String(), "run_id", reporter.RunID())
	return tr.Run(mode)
}

func buildOptimizer(cfg config.Config, net *model.Network[backend], b backend) (optim.Optimizer, optim.Scheduler, error) {
	var optimizer optim.Optimizer
	switch cfg.Optimizer {
	case "adam":
		optimizer = optim.NewAdam(net.Parameters(), optim.AdamConfig{
			LR:          cfg.LR,
			WeightDecay: cfg.WeightDecay,
		}, b)
	default:
		optimizer = optim.NewSGD(net.Parameters(), optim.SGDConfig{
			LR:          cfg.LR,
			Momentum:    cfg.Momentum,
			WeightDecay: cfg.WeightDecay,
			Nesterov:    cfg.Nesterov,
		}, b)
	}

	var scheduler optim.Scheduler
	switch cfg.Scheduler {
	case "step":
		scheduler = optim.NewStepLR(optimizer, cfg.StepSize, cfg.Gamma)
	case "multistep":
		scheduler = optim.NewMultiStepLR(optimizer, cfg.Milestones, cfg.Gamma)
	case "cosine":
		scheduler = optim.NewCosineAnnealingLR(optimizer, cfg.Epochs, cfg.EtaMin)
	case "none", "":
		scheduler = nil
	}
	return optimizer, scheduler, nil
}

// registerHooks mirrors the per-mode hook setup: checkpoint loading,
// scheduler stepping, saving, summaries, feature extraction.
func registerHooks(
	tr *trainer.Trainer[backend],
	mode trainer.Mode,
	cfg config.Config,
	archName string,
	stepLoc trainer.StepLocation,
	quantizer quant.Quantizer[backend],
) error {
	hooks := tr.Hooks()

	switch mode {
	case trainer.Train:
		if cfg.Load != "" {
			loadHook := trainer.LoadInit[backend](cfg.Load)
			if cfg.Resume {
				loadHook = trainer.LoadResume[backend](cfg.Load)
			}
			if err := hooks.Register(hook.BeforeTrain, loadHook); err != nil {
				return err
			}
		}
		if err := trainer.RegisterScheduler(tr, stepLoc); err != nil {
			return err
		}
		if err := hooks.Register(hook.AfterEpoch,
			trainer.SaveTrain[backend](cfg.SaveDir, archName),
			trainer.SummarizeReports[backend](os.Stdout),
		); err != nil {
			return err
		}
		if ext, ok := quantizer.(trainer.Extender[backend]); ok {
			if err := ext.AddHooks(tr); err != nil {
				return err
			}
		}

	case trainer.Validate:
		if err := registerLoad(hooks, cfg); err != nil {
			return err
		}
		if err := hooks.Register(hook.AfterEpoch, trainer.SummarizeReports[backend](os.Stdout)); err != nil {
			return err
		}

	case trainer.Test:
		if err := registerLoad(hooks, cfg); err != nil {
			return err
		}
		if err := hooks.Register(hook.AfterEpoch, trainer.SavePred[backend]()); err != nil {
			return err
		}

	case trainer.Analyze:
		if err := registerLoad(hooks, cfg); err != nil {
			return err
		}
		if err := trainer.NewFeatureExtractor[backend]().Register(tr); err != nil {
			return err
		}
	}
	return nil
}

func registerLoad(hooks *hook.Registry[*trainer.Context[backend]], cfg config.Config) error {
	if cfg.Load == "" {
		return nil
	}
	return hooks.Register(hook.BeforeEpoch, trainer.LoadValid[backend](cfg.Load))
}
