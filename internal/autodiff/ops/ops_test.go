package ops_test

import (
	"testing"

	"github.com/quanta-ml/quanta/internal/autodiff/ops"
	"github.com/quanta-ml/quanta/internal/backend/cpu"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// Helper to check float32 slices are equal within epsilon.
func float32Equal(a, b []float32, epsilon float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		diff := a[i] - b[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > epsilon {
			return false
		}
	}
	return true
}

func rawFromSlice(t *testing.T, data []float32, shape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	t.Helper()
	ten, err := tensor.FromSlice(data, shape, backend)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	return ten.Raw()
}

func TestAddOpBackward(t *testing.T) {
	backend := cpu.New()

	a := rawFromSlice(t, []float32{1, 2, 3}, tensor.Shape{3}, backend)
	b := rawFromSlice(t, []float32{4, 5, 6}, tensor.Shape{3}, backend)
	result := backend.Add(a, b)

	op := ops.NewAddOp(a, b, result)
	outputGrad := rawFromSlice(t, []float32{1, 2, 3}, tensor.Shape{3}, backend)

	grads := op.Backward(outputGrad, backend)

	want := []float32{1, 2, 3}
	if !float32Equal(grads[0].AsFloat32(), want, 1e-6) {
		t.Errorf("grad_a: got %v, want %v", grads[0].AsFloat32(), want)
	}
	if !float32Equal(grads[1].AsFloat32(), want, 1e-6) {
		t.Errorf("grad_b: got %v, want %v", grads[1].AsFloat32(), want)
	}
}

func TestAddOpBackwardBroadcast(t *testing.T) {
	backend := cpu.New()

	// Bias-style broadcast: [1,3] added to [2,3].
	a := rawFromSlice(t, []float32{1, 2, 3}, tensor.Shape{1, 3}, backend)
	b := rawFromSlice(t, []float32{1, 1, 1, 1, 1, 1}, tensor.Shape{2, 3}, backend)
	result := backend.Add(a, b)

	op := ops.NewAddOp(a, b, result)
	outputGrad := rawFromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)

	grads := op.Backward(outputGrad, backend)

	// Broadcast dim is summed away for a.
	wantA := []float32{5, 7, 9}
	if !float32Equal(grads[0].AsFloat32(), wantA, 1e-6) {
		t.Errorf("grad_a: got %v, want %v", grads[0].AsFloat32(), wantA)
	}
	if got := grads[0].Shape(); !got.Equal(tensor.Shape{1, 3}) {
		t.Errorf("grad_a shape: got %v, want [1 3]", got)
	}
	wantB := []float32{1, 2, 3, 4, 5, 6}
	if !float32Equal(grads[1].AsFloat32(), wantB, 1e-6) {
		t.Errorf("grad_b: got %v, want %v", grads[1].AsFloat32(), wantB)
	}
}

func TestMulOpBackward(t *testing.T) {
	backend := cpu.New()

	a := rawFromSlice(t, []float32{1, 2, 3}, tensor.Shape{3}, backend)
	b := rawFromSlice(t, []float32{4, 5, 6}, tensor.Shape{3}, backend)
	result := backend.Mul(a, b)

	op := ops.NewMulOp(a, b, result)
	outputGrad := rawFromSlice(t, []float32{1, 1, 1}, tensor.Shape{3}, backend)

	grads := op.Backward(outputGrad, backend)

	if want := []float32{4, 5, 6}; !float32Equal(grads[0].AsFloat32(), want, 1e-6) {
		t.Errorf("grad_a: got %v, want %v", grads[0].AsFloat32(), want)
	}
	if want := []float32{1, 2, 3}; !float32Equal(grads[1].AsFloat32(), want, 1e-6) {
		t.Errorf("grad_b: got %v, want %v", grads[1].AsFloat32(), want)
	}
}

func TestDivOpBackward(t *testing.T) {
	backend := cpu.New()

	a := rawFromSlice(t, []float32{4, 9}, tensor.Shape{2}, backend)
	b := rawFromSlice(t, []float32{2, 3}, tensor.Shape{2}, backend)
	result := backend.Div(a, b)

	op := ops.NewDivOp(a, b, result)
	outputGrad := rawFromSlice(t, []float32{1, 1}, tensor.Shape{2}, backend)

	grads := op.Backward(outputGrad, backend)

	// d(a/b)/da = 1/b, d(a/b)/db = -a/b².
	if want := []float32{0.5, 1.0 / 3}; !float32Equal(grads[0].AsFloat32(), want, 1e-6) {
		t.Errorf("grad_a: got %v, want %v", grads[0].AsFloat32(), want)
	}
	if want := []float32{-1, -1}; !float32Equal(grads[1].AsFloat32(), want, 1e-6) {
		t.Errorf("grad_b: got %v, want %v", grads[1].AsFloat32(), want)
	}
}

func TestMatMulOpBackward(t *testing.T) {
	backend := cpu.New()

	// a[2,2] @ b[2,2]
	a := rawFromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	b := rawFromSlice(t, []float32{5, 6, 7, 8}, tensor.Shape{2, 2}, backend)
	result := backend.MatMul(a, b)

	op := ops.NewMatMulOp(a, b, result)
	outputGrad := rawFromSlice(t, []float32{1, 1, 1, 1}, tensor.Shape{2, 2}, backend)

	grads := op.Backward(outputGrad, backend)

	// grad_a = grad @ bᵀ, grad_b = aᵀ @ grad.
	if want := []float32{11, 15, 11, 15}; !float32Equal(grads[0].AsFloat32(), want, 1e-5) {
		t.Errorf("grad_a: got %v, want %v", grads[0].AsFloat32(), want)
	}
	if want := []float32{4, 4, 6, 6}; !float32Equal(grads[1].AsFloat32(), want, 1e-5) {
		t.Errorf("grad_b: got %v, want %v", grads[1].AsFloat32(), want)
	}
}

func TestReLU6OpBackward(t *testing.T) {
	backend := cpu.New()

	x := rawFromSlice(t, []float32{-1, 0, 3, 6, 7}, tensor.Shape{5}, backend)
	result := backend.ReLU6(x)

	op := ops.NewReLU6Op(x, result)
	outputGrad := rawFromSlice(t, []float32{1, 1, 1, 1, 1}, tensor.Shape{5}, backend)

	grads := op.Backward(outputGrad, backend)

	// Gradient passes only on the open interval (0, 6).
	want := []float32{0, 0, 1, 0, 0}
	if !float32Equal(grads[0].AsFloat32(), want, 1e-6) {
		t.Errorf("grad: got %v, want %v", grads[0].AsFloat32(), want)
	}
}

func TestFakeQuantOpBackwardStraightThrough(t *testing.T) {
	backend := cpu.New()

	x := rawFromSlice(t, []float32{0.1, 0.5, 0.9}, tensor.Shape{3}, backend)
	p := tensor.QuantParams{Bits: 4, Symmetric: true, Min: -1, Max: 1}
	result := backend.FakeQuant(x, p)

	op := ops.NewFakeQuantOp(x, result)
	outputGrad := rawFromSlice(t, []float32{1, 2, 3}, tensor.Shape{3}, backend)

	grads := op.Backward(outputGrad, backend)

	// Straight-through: the quantizer is transparent to gradients.
	want := []float32{1, 2, 3}
	if !float32Equal(grads[0].AsFloat32(), want, 1e-6) {
		t.Errorf("grad: got %v, want %v", grads[0].AsFloat32(), want)
	}
}

func TestSqrtOpBackward(t *testing.T) {
	backend := cpu.New()

	x := rawFromSlice(t, []float32{4, 16}, tensor.Shape{2}, backend)
	result := backend.Sqrt(x)

	op := ops.NewSqrtOp(x, result)
	outputGrad := rawFromSlice(t, []float32{1, 1}, tensor.Shape{2}, backend)

	grads := op.Backward(outputGrad, backend)

	// d(√x)/dx = 1/(2√x).
	want := []float32{0.25, 0.125}
	if !float32Equal(grads[0].AsFloat32(), want, 1e-6) {
		t.Errorf("grad: got %v, want %v", grads[0].AsFloat32(), want)
	}
}

func TestMeanDimOpBackward(t *testing.T) {
	backend := cpu.New()

	x := rawFromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	result := backend.MeanDim(x, 1, false)

	op := ops.NewMeanDimOp(x, result, 1)
	outputGrad := rawFromSlice(t, []float32{3, 6}, tensor.Shape{2}, backend)

	grads := op.Backward(outputGrad, backend)

	// Each element of a row receives grad/n.
	want := []float32{1, 1, 1, 2, 2, 2}
	if !float32Equal(grads[0].AsFloat32(), want, 1e-6) {
		t.Errorf("grad: got %v, want %v", grads[0].AsFloat32(), want)
	}
}

func TestSumDimOpBackward(t *testing.T) {
	backend := cpu.New()

	x := rawFromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	result := backend.SumDim(x, 0, true)

	op := ops.NewSumDimOp(x, result, 0)
	outputGrad := rawFromSlice(t, []float32{1, 2, 3}, tensor.Shape{1, 3}, backend)

	grads := op.Backward(outputGrad, backend)

	want := []float32{1, 2, 3, 1, 2, 3}
	if !float32Equal(grads[0].AsFloat32(), want, 1e-6) {
		t.Errorf("grad: got %v, want %v", grads[0].AsFloat32(), want)
	}
}

func TestTransposeOpBackward(t *testing.T) {
	backend := cpu.New()

	x := rawFromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	result := backend.Transpose(x, 1, 0)

	op := ops.NewTransposeOp(x, result, []int{1, 0})
	outputGrad := rawFromSlice(t, []float32{1, 4, 2, 5, 3, 6}, tensor.Shape{3, 2}, backend)

	grads := op.Backward(outputGrad, backend)

	if got := grads[0].Shape(); !got.Equal(tensor.Shape{2, 3}) {
		t.Fatalf("grad shape: got %v, want [2 3]", got)
	}
	want := []float32{1, 2, 3, 4, 5, 6}
	if !float32Equal(grads[0].AsFloat32(), want, 1e-6) {
		t.Errorf("grad: got %v, want %v", grads[0].AsFloat32(), want)
	}
}

func TestCrossEntropyOpBackward(t *testing.T) {
	backend := cpu.New()

	// Uniform logits: softmax is 0.25 everywhere.
	logits := rawFromSlice(t, []float32{0, 0, 0, 0, 0, 0, 0, 0}, tensor.Shape{2, 4}, backend)
	targets, err := tensor.FromSlice([]int32{1, 3}, tensor.Shape{2}, backend)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	result := backend.CrossEntropy(logits, targets.Raw())

	op := ops.NewCrossEntropyOp(logits, targets.Raw(), result)
	outputGrad := rawFromSlice(t, []float32{1}, tensor.Shape{1}, backend)

	grads := op.Backward(outputGrad, backend)

	// (softmax - onehot) / batch
	want := []float32{
		0.125, -0.375, 0.125, 0.125,
		0.125, 0.125, 0.125, -0.375,
	}
	if !float32Equal(grads[0].AsFloat32(), want, 1e-6) {
		t.Errorf("grad: got %v, want %v", grads[0].AsFloat32(), want)
	}
}
