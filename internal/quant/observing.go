package quant

import (
	"github.com/quanta-ml/quanta/internal/hook"
	"github.com/quanta-ml/quanta/internal/trainer"
)

// AddHooks attaches an after_epoch hook that logs every observed tensor
// range and resets the tracker for the next epoch. Implementing
// trainer.Extender is what distinguishes Observing from Uniform at run
// setup.
func (o *Observing[B]) AddHooks(t *trainer.Trainer[B]) error {
	return t.Hooks().Register(hook.AfterEpoch, func(ctx *trainer.Context[B]) error {
		for _, name := range o.tracker.Names() {
			r, ok := o.tracker.Get(name)
			if !ok {
				continue
			}
			ctx.Logger.Info("observed range",
				"tensor", name, "min", r.Lo, "max", r.Hi)
		}
		o.tracker.Reset()
		return nil
	})
}
