// Package hook provides the lifecycle hook registry driving the training
// loop. Hooks attach behavior (checkpointing, scheduler stepping, report
// summaries, feature extraction) to fixed points of the loop without the
// loop knowing about any of them.
package hook

import "fmt"

// Location identifies a point in the training lifecycle where hooks run.
type Location int

const (
	// BeforeTrain runs once before the first epoch.
	BeforeTrain Location = iota
	// BeforeEpoch runs at the start of every epoch.
	BeforeEpoch
	// AfterBatch runs after every optimizer step.
	AfterBatch
	// AfterEpoch runs at the end of every epoch.
	AfterEpoch

	numLocations
)

// String returns the canonical snake_case name of the location.
func (l Location) String() string {
	switch l {
	case BeforeTrain:
		return "before_train"
	case BeforeEpoch:
		return "before_epoch"
	case AfterBatch:
		return "after_batch"
	case AfterEpoch:
		return "after_epoch"
	default:
		return fmt.Sprintf("Location(%d)", int(l))
	}
}

// ParseLocation converts a snake_case name to a Location.
func ParseLocation(name string) (Location, error) {
	switch name {
	case "before_train":
		return BeforeTrain, nil
	case "before_epoch":
		return BeforeEpoch, nil
	case "after_batch":
		return AfterBatch, nil
	case "after_epoch":
		return AfterEpoch, nil
	default:
		return 0, fmt.Errorf("unknown hook location %q", name)
	}
}

// Func is a hook callback. It receives the shared, mutable loop context
// and may fail, which aborts the run.
type Func[C any] func(ctx C) error

// Registry holds ordered hook lists per location. Registration appends,
// never replaces: multiple hooks at one location run in the exact order
// they were registered.
type Registry[C any] struct {
	hooks [numLocations][]Func[C]
}

// NewRegistry creates an empty registry.
func NewRegistry[C any]() *Registry[C] {
	return &Registry[C]{}
}

// Register appends hooks at a location. Returns an error for an unknown
// location so misconfiguration surfaces at registration time, not when the
// location is first reached mid-run.
func (r *Registry[C]) Register(loc Location, fns ...Func[C]) error {
	if loc < 0 || loc >= numLocations {
		return fmt.Errorf("register hook: unknown location %v", loc)
	}
	r.hooks[loc] = append(r.hooks[loc], fns...)
	return nil
}

// Run executes all hooks at a location in registration order. The first
// error stops the chain and is returned, wrapped with the location.
func (r *Registry[C]) Run(loc Location, ctx C) error {
	if loc < 0 || loc >= numLocations {
		return fmt.Errorf("run hooks: unknown location %v", loc)
	}
	for i, fn := range r.hooks[loc] {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s hook %d: %w", loc, i, err)
		}
	}
	return nil
}

// Count returns the number of hooks registered at a location.
func (r *Registry[C]) Count(loc Location) int {
	if loc < 0 || loc >= numLocations {
		return 0
	}
	return len(r.hooks[loc])
}
