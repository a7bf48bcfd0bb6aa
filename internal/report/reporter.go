package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// EpochReport is one epoch's aggregated metrics for one run mode.
type EpochReport struct {
	Mode     string
	Epoch    int
	Loss     float64
	Accuracy float64
	LR       float64
	Duration time.Duration
}

// Reporter collects epoch reports for one run and persists them under a
// run-scoped directory.
type Reporter struct {
	runID   string
	dir     string
	reports []EpochReport
}

// NewReporter creates a reporter rooted at dir. Each run gets its own
// subdirectory keyed by a fresh UUID so repeated runs never clobber each
// other.
func NewReporter(dir string) (*Reporter, error) {
	runID := uuid.NewString()
	runDir := filepath.Join(dir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report dir: %w", err)
	}
	return &Reporter{runID: runID, dir: runDir}, nil
}

// RunID returns the UUID identifying this run.
func (r *Reporter) RunID() string { return r.runID }

// Dir returns the run-scoped artifact directory.
func (r *Reporter) Dir() string { return r.dir }

// Add appends one epoch's report.
func (r *Reporter) Add(report EpochReport) {
	r.reports = append(r.reports, report)
}

// Reports returns everything recorded so far.
func (r *Reporter) Reports() []EpochReport { return r.reports }

// Summarize renders the collected reports as a table to w.
func (r *Reporter) Summarize(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Mode", "Epoch", "Loss", "Acc", "LR", "Time"})
	for _, rep := range r.reports {
		table.Append([]string{
			rep.Mode,
			strconv.Itoa(rep.Epoch),
			fmt.Sprintf("%.4f", rep.Loss),
			fmt.Sprintf("%.4f", rep.Accuracy),
			fmt.Sprintf("%.6f", rep.LR),
			rep.Duration.Round(time.Millisecond).String(),
		})
	}
	table.Render()
}

// SaveCSV writes the collected reports to reports.csv in the run directory.
func (r *Reporter) SaveCSV() error {
	f, err := os.Create(filepath.Join(r.dir, "reports.csv"))
	if err != nil {
		return fmt.Errorf("creating reports file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"mode", "epoch", "loss", "accuracy", "lr", "duration_ms"}); err != nil {
		return err
	}
	for _, rep := range r.reports {
		record := []string{
			rep.Mode,
			strconv.Itoa(rep.Epoch),
			strconv.FormatFloat(rep.Loss, 'f', 6, 64),
			strconv.FormatFloat(rep.Accuracy, 'f', 6, 64),
			strconv.FormatFloat(rep.LR, 'g', -1, 64),
			strconv.FormatInt(rep.Duration.Milliseconds(), 10),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// SavePredictions writes per-sample predicted and true labels to
// predictions.csv.
func (r *Reporter) SavePredictions(predictions, labels []int32) error {
	if len(predictions) != len(labels) {
		return fmt.Errorf("predictions/labels length mismatch: %d vs %d", len(predictions), len(labels))
	}
	f, err := os.Create(filepath.Join(r.dir, "predictions.csv"))
	if err != nil {
		return fmt.Errorf("creating predictions file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"index", "predicted", "label"}); err != nil {
		return err
	}
	for i := range predictions {
		record := []string{
			strconv.Itoa(i),
			strconv.FormatInt(int64(predictions[i]), 10),
			strconv.FormatInt(int64(labels[i]), 10),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// FeatureSet is the analyze-mode artifact: one embedding row per sample
// plus its label.
type FeatureSet struct {
	Width    int       `cbor:"width"`
	Features []float32 `cbor:"features"`
	Labels   []int32   `cbor:"labels"`
}

// SaveFeatures writes extracted embeddings to features.cbor.
func (r *Reporter) SaveFeatures(fs FeatureSet) error {
	if fs.Width <= 0 {
		return fmt.Errorf("feature width must be positive, got %d", fs.Width)
	}
	if len(fs.Features) != fs.Width*len(fs.Labels) {
		return fmt.Errorf("feature buffer has %d values, want %d", len(fs.Features), fs.Width*len(fs.Labels))
	}
	data, err := cbor.Marshal(fs)
	if err != nil {
		return fmt.Errorf("encoding features: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.dir, "features.cbor"), data, 0o644); err != nil {
		return fmt.Errorf("writing features: %w", err)
	}
	return nil
}
