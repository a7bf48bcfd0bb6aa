// Package quant implements the quantized layer primitives for
// quantization-aware training: convolution, linear, activation and identity
// operators that fake-quantize their weights or outputs to a configurable
// bit-width during the forward pass while gradients flow through the
// straight-through estimator.
package quant

// BitConfig carries the per-layer bit-width assignment for a model. It is
// threaded explicitly through quantizer and model construction; there is no
// ambient quantization state.
//
// First and last layers usually keep higher precision than the body, hence
// the dedicated overrides. A bit-width of 32 (or 0) disables quantization
// for that layer class.
type BitConfig struct {
	BitW          int  // weight bits for body layers
	BitA          int  // activation bits
	FirstConvBitW int  // weight bits for the stem convolution
	LastFCBitW    int  // weight bits for the classifier
	Symmetric     bool // zero-point-free grids for weights and identities
}

// FullPrecision is the BitConfig that disables all quantization.
func FullPrecision() BitConfig {
	return BitConfig{BitW: 32, BitA: 32, FirstConvBitW: 32, LastFCBitW: 32}
}
