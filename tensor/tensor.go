// Package tensor provides the public API for tensor operations in quanta.
//
// The package re-exports the core types for type-safe tensor math:
//   - Tensor[T, B]: generic tensor over element type T and backend B
//   - RawTensor: untyped storage shared with backends and the autodiff tape
//   - Backend: the compute interface device implementations satisfy
//   - Shape, DataType, Device: core definitions
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	z := x.Add(y)
package tensor

import (
	"github.com/quanta-ml/quanta/internal/tensor"
)

// DType is the constraint for supported tensor element types.
type DType = tensor.DType

// DataType carries runtime type information for tensors.
type DataType = tensor.DataType

// Supported data types.
const (
	Float32 DataType = tensor.Float32
	Int32   DataType = tensor.Int32
)

// Device identifies where tensor data lives.
type Device = tensor.Device

// Supported compute devices.
const (
	CPU Device = tensor.CPU
)

// Shape describes tensor dimensions.
type Shape = tensor.Shape

// RawTensor is the untyped tensor storage backends operate on.
type RawTensor = tensor.RawTensor

// Backend is the compute interface implemented by device backends.
type Backend = tensor.Backend

// Tensor is a type-safe tensor over element type T and backend B.
type Tensor[T DType, B Backend] = tensor.Tensor[T, B]

// QuantParams describes a simulated-quantization grid for FakeQuant.
type QuantParams = tensor.QuantParams

// New wraps a RawTensor in a typed Tensor.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return tensor.New[T, B](raw, b)
}

// NewRaw allocates an untyped tensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromSlice creates a tensor from a flat slice of values.
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	return tensor.FromSlice(data, shape, b)
}

// Zeros creates a tensor filled with zeros.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Zeros[T, B](shape, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Ones[T, B](shape, b)
}

// Full creates a tensor filled with a specific value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	return tensor.Full[T, B](shape, value, b)
}

// Scalar creates a one-element tensor holding value.
func Scalar[T DType, B Backend](value T, b B) *Tensor[T, B] {
	return tensor.Scalar[T, B](value, b)
}
