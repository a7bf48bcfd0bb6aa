package optim

import (
	"math"
	"sort"
)

// Scheduler adjusts an optimizer's learning rate over the course of
// training. Step is invoked from exactly one trainer hook location, either
// once per epoch or once per batch, depending on configuration.
type Scheduler interface {
	// Step advances the schedule by one tick and updates the optimizer.
	Step()

	// LastLR returns the learning rate set by the most recent Step
	// (or the base rate before the first one).
	LastLR() float64
}

// StepLR decays the learning rate by gamma every stepSize ticks.
type StepLR struct {
	optimizer Optimizer
	baseLR    float64
	stepSize  int
	gamma     float64
	count     int
}

// NewStepLR creates a StepLR schedule bound to the optimizer's current rate.
func NewStepLR(optimizer Optimizer, stepSize int, gamma float64) *StepLR {
	return &StepLR{
		optimizer: optimizer,
		baseLR:    optimizer.GetLR(),
		stepSize:  stepSize,
		gamma:     gamma,
	}
}

func (s *StepLR) Step() {
	s.count++
	decays := s.count / s.stepSize
	s.optimizer.SetLR(s.baseLR * math.Pow(s.gamma, float64(decays)))
}

func (s *StepLR) LastLR() float64 { return s.optimizer.GetLR() }

// MultiStepLR decays the learning rate by gamma at each milestone tick.
type MultiStepLR struct {
	optimizer  Optimizer
	baseLR     float64
	milestones []int
	gamma      float64
	count      int
}

// NewMultiStepLR creates a MultiStepLR schedule. Milestones are sorted and
// compared against the number of Step calls so far.
func NewMultiStepLR(optimizer Optimizer, milestones []int, gamma float64) *MultiStepLR {
	sorted := append([]int(nil), milestones...)
	sort.Ints(sorted)
	return &MultiStepLR{
		optimizer:  optimizer,
		baseLR:     optimizer.GetLR(),
		milestones: sorted,
		gamma:      gamma,
	}
}

func (s *MultiStepLR) Step() {
	s.count++
	decays := 0
	for _, m := range s.milestones {
		if s.count >= m {
			decays++
		}
	}
	s.optimizer.SetLR(s.baseLR * math.Pow(s.gamma, float64(decays)))
}

func (s *MultiStepLR) LastLR() float64 { return s.optimizer.GetLR() }

// CosineAnnealingLR anneals the learning rate from the base rate to etaMin
// over tMax ticks following a half cosine.
type CosineAnnealingLR struct {
	optimizer Optimizer
	baseLR    float64
	tMax      int
	etaMin    float64
	count     int
}

// NewCosineAnnealingLR creates a cosine annealing schedule.
func NewCosineAnnealingLR(optimizer Optimizer, tMax int, etaMin float64) *CosineAnnealingLR {
	return &CosineAnnealingLR{
		optimizer: optimizer,
		baseLR:    optimizer.GetLR(),
		tMax:      tMax,
		etaMin:    etaMin,
	}
}

func (s *CosineAnnealingLR) Step() {
	s.count++
	t := float64(s.count)
	if t > float64(s.tMax) {
		t = float64(s.tMax)
	}
	lr := s.etaMin + (s.baseLR-s.etaMin)*(1+math.Cos(math.Pi*t/float64(s.tMax)))/2
	s.optimizer.SetLR(lr)
}

func (s *CosineAnnealingLR) LastLR() float64 { return s.optimizer.GetLR() }
