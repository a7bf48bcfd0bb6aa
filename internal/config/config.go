// Package config holds the flat run configuration: architecture, dataset,
// quantization bit-widths, optimization hyperparameters, and run-mode
// selection. Values come from defaults, an optional JSON file, then CLI
// flags, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
)

// Config is read-only once a run starts.
type Config struct {
	// Model.
	Arch      string  `mapstructure:"arch"`
	Layers    int     `mapstructure:"layers"`
	WidthMult float64 `mapstructure:"width_mult"`

	// Quantization.
	Quantizer     string `mapstructure:"quantizer"`
	BitW          int    `mapstructure:"bitw"`
	BitA          int    `mapstructure:"bita"`
	FirstConvBitW int    `mapstructure:"first_conv_bitw"`
	LastFCBitW    int    `mapstructure:"last_fc_bitw"`
	Symmetric     bool   `mapstructure:"symmetric"`

	// Data.
	Dataset    string `mapstructure:"dataset"`
	DatasetDir string `mapstructure:"dataset_dir"`
	BatchSize  int    `mapstructure:"batch_size"`
	Workers    int    `mapstructure:"workers"`

	// Run.
	RunType string `mapstructure:"run_type"`
	Epochs  int    `mapstructure:"epochs"`
	Seed    uint64 `mapstructure:"seed"`
	Load    string `mapstructure:"load"`
	Resume  bool   `mapstructure:"resume"`

	// Optimization.
	Optimizer    string  `mapstructure:"optimizer"`
	LR           float64 `mapstructure:"lr"`
	Momentum     float64 `mapstructure:"momentum"`
	WeightDecay  float64 `mapstructure:"weight_decay"`
	Nesterov     bool    `mapstructure:"nesterov"`
	Scheduler    string  `mapstructure:"scheduler"`
	StepSize     int     `mapstructure:"step_size"`
	Milestones   []int   `mapstructure:"milestones"`
	Gamma        float64 `mapstructure:"gamma"`
	EtaMin       float64 `mapstructure:"eta_min"`
	StepLocation string  `mapstructure:"step_location"`

	// Output.
	SaveDir   string `mapstructure:"save_dir"`
	ReportDir string `mapstructure:"report_dir"`
}

// Default returns the baseline configuration: full-precision MobileNetV2
// on CIFAR-10 with the original training hyperparameters.
func Default() Config {
	return Config{
		Arch:          "mobilenetv2",
		WidthMult:     1.0,
		Quantizer:     "uniform",
		BitW:          32,
		BitA:          32,
		FirstConvBitW: 32,
		LastFCBitW:    32,
		Dataset:       "cifar10",
		DatasetDir:    "data",
		BatchSize:     128,
		Workers:       4,
		RunType:       "train",
		Epochs:        200,
		Seed:          1,
		Optimizer:     "sgd",
		LR:            0.1,
		Momentum:      0.9,
		WeightDecay:   4e-5,
		Scheduler:     "cosine",
		StepSize:      30,
		Gamma:         0.1,
		StepLocation:  "epoch",
		SaveDir:       "checkpoints",
		ReportDir:     "reports",
	}
}

// LoadFile merges a JSON config file over the receiver. Unknown keys are
// rejected so typos fail instead of silently using defaults.
func (c *Config) LoadFile(path string) error {
	return c.MergeFile(path, nil)
}

// MergeFile merges a JSON config file, skipping keys present in except.
// The CLI passes the set of explicitly given flags so they win over the
// file.
func (c *Config) MergeFile(path string, except map[string]bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	for key := range except {
		delete(raw, key)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      c,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("applying config file: %w", err)
	}
	return nil
}

func validBits(bits int) bool { return bits >= 1 && bits <= 32 }

// Validate checks cross-field consistency. It does not verify dataset or
// architecture names; the builders own those and report their own errors.
func (c *Config) Validate() error {
	switch c.RunType {
	case "train", "validate", "test", "analyze":
	default:
		return fmt.Errorf("unknown run_type %q", c.RunType)
	}
	switch c.Quantizer {
	case "uniform", "observing":
	default:
		return fmt.Errorf("unknown quantizer %q", c.Quantizer)
	}
	for name, bits := range map[string]int{
		"bitw":            c.BitW,
		"bita":            c.BitA,
		"first_conv_bitw": c.FirstConvBitW,
		"last_fc_bitw":    c.LastFCBitW,
	} {
		if !validBits(bits) {
			return fmt.Errorf("%s must be in [1, 32], got %d", name, bits)
		}
	}
	if c.WidthMult <= 0 {
		return fmt.Errorf("width_mult must be positive, got %g", c.WidthMult)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.RunType == "train" {
		if c.Epochs <= 0 {
			return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
		}
		switch c.Optimizer {
		case "sgd", "adam":
		default:
			return fmt.Errorf("unknown optimizer %q", c.Optimizer)
		}
		switch c.Scheduler {
		case "step", "multistep", "cosine", "none":
		default:
			return fmt.Errorf("unknown scheduler %q", c.Scheduler)
		}
		switch c.StepLocation {
		case "epoch", "batch":
		default:
			return fmt.Errorf("unknown step_location %q", c.StepLocation)
		}
	}
	if c.Resume && c.Load == "" {
		return fmt.Errorf("resume requires load to point at a checkpoint")
	}
	return nil
}
