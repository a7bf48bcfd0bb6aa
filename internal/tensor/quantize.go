package tensor

import "math"

// QuantParams describes a simulated-quantization grid.
//
// When Observe is true the grid range is derived from the data itself
// (per-tensor dynamic range); otherwise Min/Max fix the range, which is the
// usual setup for activations with a known bound (e.g. ReLU6 outputs in
// [0, 6]).
//
// Symmetric grids are zero-point-free: values map to integers in
// [-(2^(b-1)-1), 2^(b-1)-1]. Asymmetric grids use the full unsigned range
// [0, 2^b-1] with an affine zero point.
type QuantParams struct {
	Bits      int
	Symmetric bool
	Min, Max  float32
	Observe   bool
}

// Identity reports whether quantization is a no-op for these parameters.
// Bit-widths of 32 and above (or non-positive) are treated as full precision.
func (p QuantParams) Identity() bool {
	return p.Bits <= 0 || p.Bits >= 32
}

// ObserveRange returns the min and max of data. An empty slice yields (0, 0).
func ObserveRange(data []float32) (lo, hi float32) {
	if len(data) == 0 {
		return 0, 0
	}
	lo, hi = data[0], data[0]
	for _, v := range data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// QuantizeF32 writes the fake-quantized values of src into dst: each value
// is mapped to the nearest representable grid point and back to float32.
// dst and src may alias. Degenerate ranges quantize to zero-scale identity.
func QuantizeF32(dst, src []float32, p QuantParams) {
	if p.Identity() {
		copy(dst, src)
		return
	}

	lo, hi := p.Min, p.Max
	if p.Observe {
		lo, hi = ObserveRange(src)
	}

	var scale, zero float64
	var qmin, qmax float64
	if p.Symmetric {
		maxAbs := math.Max(math.Abs(float64(lo)), math.Abs(float64(hi)))
		qmax = float64(int64(1)<<(p.Bits-1)) - 1
		qmin = -qmax
		if maxAbs == 0 {
			copy(dst, src)
			return
		}
		scale = maxAbs / qmax
		zero = 0
	} else {
		qmin = 0
		qmax = float64(int64(1)<<p.Bits) - 1
		if hi <= lo {
			copy(dst, src)
			return
		}
		scale = (float64(hi) - float64(lo)) / qmax
		zero = math.Round(-float64(lo) / scale)
	}

	for i, v := range src {
		q := math.Round(float64(v)/scale + zero)
		if q < qmin {
			q = qmin
		}
		if q > qmax {
			q = qmax
		}
		dst[i] = float32((q - zero) * scale)
	}
}
