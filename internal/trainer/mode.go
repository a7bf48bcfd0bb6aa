package trainer

import "fmt"

// Mode selects which loop variant the trainer runs.
type Mode int

const (
	Train Mode = iota
	Validate
	Test
	Analyze
	numModes
)

func (m Mode) String() string {
	switch m {
	case Train:
		return "train"
	case Validate:
		return "validate"
	case Test:
		return "test"
	case Analyze:
		return "analyze"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a run-type name to a Mode.
func ParseMode(name string) (Mode, error) {
	for m := Train; m < numModes; m++ {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown run mode %q", name)
}

// StepLocation selects whether the scheduler advances per epoch or per
// batch. Exactly one of the two step hooks is attached per run.
type StepLocation int

const (
	StepEpoch StepLocation = iota
	StepBatch
)

func (s StepLocation) String() string {
	if s == StepBatch {
		return "batch"
	}
	return "epoch"
}

// ParseStepLocation converts a step-location name.
func ParseStepLocation(name string) (StepLocation, error) {
	switch name {
	case "epoch":
		return StepEpoch, nil
	case "batch":
		return StepBatch, nil
	default:
		return 0, fmt.Errorf("unknown step location %q", name)
	}
}
