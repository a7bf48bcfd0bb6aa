package report_test

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-ml/quanta/internal/report"
)

func TestAverageMeterWeighting(t *testing.T) {
	m := report.NewAverageMeter("loss")
	m.Update(2.0, 10)
	m.Update(4.0, 30)
	assert.InDelta(t, 3.5, m.Average(), 1e-9)
	assert.Equal(t, 4.0, m.Last())
	assert.Equal(t, 40, m.Count())

	m.Reset()
	assert.Equal(t, 0.0, m.Average())
	assert.Equal(t, 0, m.Count())
}

func TestReporterCSVRoundTrip(t *testing.T) {
	r, err := report.NewReporter(t.TempDir())
	require.NoError(t, err)
	require.NotEmpty(t, r.RunID())

	r.Add(report.EpochReport{Mode: "train", Epoch: 0, Loss: 2.3, Accuracy: 0.1, LR: 0.1, Duration: time.Second})
	r.Add(report.EpochReport{Mode: "train", Epoch: 1, Loss: 1.8, Accuracy: 0.3, LR: 0.1, Duration: time.Second})
	require.NoError(t, r.SaveCSV())

	f, err := os.Open(filepath.Join(r.Dir(), "reports.csv"))
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "mode", records[0][0])
	assert.Equal(t, "1", records[2][1])
}

func TestReporterSummarize(t *testing.T) {
	r, err := report.NewReporter(t.TempDir())
	require.NoError(t, err)
	r.Add(report.EpochReport{Mode: "validate", Epoch: 0, Loss: 1.0, Accuracy: 0.5})

	var buf bytes.Buffer
	r.Summarize(&buf)
	assert.Contains(t, buf.String(), "validate")
	assert.Contains(t, buf.String(), "0.5000")
}

func TestSavePredictions(t *testing.T) {
	r, err := report.NewReporter(t.TempDir())
	require.NoError(t, err)

	require.Error(t, r.SavePredictions([]int32{1}, []int32{1, 2}))
	require.NoError(t, r.SavePredictions([]int32{1, 0, 2}, []int32{1, 1, 2}))

	f, err := os.Open(filepath.Join(r.Dir(), "predictions.csv"))
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"1", "0", "1"}, records[2])
}

func TestSaveFeatures(t *testing.T) {
	r, err := report.NewReporter(t.TempDir())
	require.NoError(t, err)

	fs := report.FeatureSet{
		Width:    2,
		Features: []float32{0.1, 0.2, 0.3, 0.4},
		Labels:   []int32{7, 3},
	}
	require.Error(t, r.SaveFeatures(report.FeatureSet{Width: 2, Features: fs.Features, Labels: []int32{7}}))
	require.NoError(t, r.SaveFeatures(fs))

	data, err := os.ReadFile(filepath.Join(r.Dir(), "features.cbor"))
	require.NoError(t, err)

	var got report.FeatureSet
	require.NoError(t, cbor.Unmarshal(data, &got))
	assert.Equal(t, fs, got)
}
