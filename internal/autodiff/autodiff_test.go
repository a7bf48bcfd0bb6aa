package autodiff_test

import (
	"testing"

	"github.com/quanta-ml/quanta/internal/autodiff"
	"github.com/quanta-ml/quanta/internal/backend/cpu"
	"github.com/quanta-ml/quanta/internal/tensor"
)

func raw(t *testing.T, data []float32, shape tensor.Shape, b tensor.Backend) *tensor.RawTensor {
	t.Helper()
	ten, err := tensor.FromSlice(data, shape, b)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	return ten.Raw()
}

func TestTapeRecordsOnlyWhileRecording(t *testing.T) {
	backend := autodiff.New(cpu.New())

	x := raw(t, []float32{1, 2}, tensor.Shape{2}, backend)
	y := raw(t, []float32{3, 4}, tensor.Shape{2}, backend)

	backend.Add(x, y)
	if got := backend.Tape().NumOps(); got != 0 {
		t.Fatalf("ops recorded before StartRecording: %d", got)
	}

	backend.Tape().StartRecording()
	backend.Add(x, y)
	backend.Mul(x, y)
	backend.Tape().StopRecording()
	backend.Add(x, y)

	if got := backend.Tape().NumOps(); got != 2 {
		t.Fatalf("recorded ops: got %d, want 2", got)
	}

	backend.Tape().Clear()
	if got := backend.Tape().NumOps(); got != 0 {
		t.Fatalf("ops after Clear: %d", got)
	}
}

// y = x² via Mul: dy/dx = 2x, with gradient accumulation across both uses of x.
func TestBackwardSquare(t *testing.T) {
	backend := autodiff.New(cpu.New())

	x := raw(t, []float32{2, 3}, tensor.Shape{2}, backend)

	backend.Tape().StartRecording()
	backend.Mul(x, x)
	backend.Tape().StopRecording()

	ones := raw(t, []float32{1, 1}, tensor.Shape{2}, backend)
	grads := backend.Tape().Backward(ones, backend)

	grad, ok := grads[x]
	if !ok {
		t.Fatal("no gradient for x")
	}
	got := grad.AsFloat32()
	want := []float32{4, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("grad[%d]: got %v, want %v", i, got[i], want[i])
		}
	}
}

// Chained ops: loss = mean over batch of cross-entropy on w-scaled logits.
// Checks that gradients reach a "parameter" through several recorded ops.
func TestBackwardThroughChain(t *testing.T) {
	backend := autodiff.New(cpu.New())

	x := raw(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	w := raw(t, []float32{1, 0, 0, 1}, tensor.Shape{2, 2}, backend)
	targets := raw32i(t, []int32{0, 1}, tensor.Shape{2}, backend)

	backend.Tape().StartRecording()
	logits := backend.MatMul(x, w)
	backend.CrossEntropy(logits, targets)
	backend.Tape().StopRecording()

	one := raw(t, []float32{1}, tensor.Shape{1}, backend)
	grads := backend.Tape().Backward(one, backend)

	if _, ok := grads[w]; !ok {
		t.Fatal("no gradient for weight")
	}
	if _, ok := grads[x]; !ok {
		t.Fatal("no gradient for input")
	}
	if got := grads[w].Shape(); !got.Equal(tensor.Shape{2, 2}) {
		t.Errorf("weight grad shape: got %v, want [2 2]", got)
	}
}

// Numerical gradient check for a composite expression:
// f(x) = sum(relu6(x * x)) checked against central differences.
func TestGradientCheckReLU6Square(t *testing.T) {
	backend := autodiff.New(cpu.New())

	values := []float32{0.5, 1.2, 2.0, -0.7}
	x := raw(t, values, tensor.Shape{4}, backend)

	backend.Tape().StartRecording()
	sq := backend.Mul(x, x)
	y := backend.ReLU6(sq)
	backend.SumDim(y, 0, false)
	backend.Tape().StopRecording()

	one := raw(t, []float32{1}, tensor.Shape{1}, backend)
	grads := backend.Tape().Backward(one, backend)
	analytic := grads[x].AsFloat32()

	const eps = 1e-3
	f := func(vals []float32) float32 {
		var sum float32
		for _, v := range vals {
			s := v * v
			if s < 0 {
				s = 0
			} else if s > 6 {
				s = 6
			}
			sum += s
		}
		return sum
	}

	for i := range values {
		plus := append([]float32(nil), values...)
		minus := append([]float32(nil), values...)
		plus[i] += eps
		minus[i] -= eps
		numeric := (f(plus) - f(minus)) / (2 * eps)

		diff := analytic[i] - numeric
		if diff < 0 {
			diff = -diff
		}
		if diff > 1e-2 {
			t.Errorf("grad[%d]: analytic %v, numeric %v", i, analytic[i], numeric)
		}
	}
}

func raw32i(t *testing.T, data []int32, shape tensor.Shape, b tensor.Backend) *tensor.RawTensor {
	t.Helper()
	ten, err := tensor.FromSlice(data, shape, b)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	return ten.Raw()
}
