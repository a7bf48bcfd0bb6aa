// Package quant provides the public API for the quantized layer
// primitives and the quantizer factories that assemble them.
package quant

import (
	"github.com/quanta-ml/quanta/internal/nn"
	"github.com/quanta-ml/quanta/internal/quant"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// BitConfig assigns bit-widths per layer role.
type BitConfig = quant.BitConfig

// FullPrecision returns a BitConfig with every width at 32 bits.
func FullPrecision() BitConfig { return quant.FullPrecision() }

// Quantizer is the factory interface for quantized layer primitives.
type Quantizer[B tensor.Backend] = quant.Quantizer[B]

// Uniform is the plain quantizer: fixed grids, no observation.
type Uniform[B tensor.Backend] = quant.Uniform[B]

// NewUniform creates the plain quantizer.
func NewUniform[B tensor.Backend](cfg BitConfig, init *nn.Initializer, backend B) *Uniform[B] {
	return quant.NewUniform(cfg, init, backend)
}

// Observing is the range-observing quantizer; it extends the trainer with
// an epoch-end range report.
type Observing[B tensor.Backend] = quant.Observing[B]

// NewObserving creates the range-observing quantizer.
func NewObserving[B tensor.Backend](cfg BitConfig, init *nn.Initializer, backend B) *Observing[B] {
	return quant.NewObserving(cfg, init, backend)
}

// Range is an observed [Lo, Hi] interval.
type Range = quant.Range

// RangeTracker accumulates per-layer observed ranges across forward
// passes.
type RangeTracker = quant.RangeTracker
