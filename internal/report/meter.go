// Package report accumulates per-epoch metrics and persists run artifacts:
// epoch summaries, test predictions, and extracted feature tensors.
package report

import "fmt"

// AverageMeter tracks a running average of a scalar metric. Values are
// weighted by sample count so uneven final batches do not skew the epoch
// average.
type AverageMeter struct {
	name  string
	sum   float64
	count int
	last  float64
}

// NewAverageMeter creates a named meter.
func NewAverageMeter(name string) *AverageMeter {
	return &AverageMeter{name: name}
}

// Update records value averaged over n samples.
func (m *AverageMeter) Update(value float64, n int) {
	m.last = value
	m.sum += value * float64(n)
	m.count += n
}

// Average returns the sample-weighted mean of everything recorded so far.
func (m *AverageMeter) Average() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Last returns the most recently recorded value.
func (m *AverageMeter) Last() float64 { return m.last }

// Count returns the number of samples recorded.
func (m *AverageMeter) Count() int { return m.count }

// Reset clears the meter for the next epoch.
func (m *AverageMeter) Reset() {
	m.sum = 0
	m.count = 0
	m.last = 0
}

// String renders "name: last (avg)" for log lines.
func (m *AverageMeter) String() string {
	return fmt.Sprintf("%s: %.4f (%.4f)", m.name, m.last, m.Average())
}
