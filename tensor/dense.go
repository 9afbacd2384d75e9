// Package tensor provides a minimal dense buffer implementing the
// types.Tensor contract. It exists so the in-process backend and the test
// suite have a concrete data representation; production backends are free
// to operate on their own buffer types.
package tensor

import (
	"github.com/BaSui01/commflow/types"
)

// Dense is a flat float64 buffer placed on a device.
type Dense struct {
	device types.Device
	data   []float64
}

// NewDense allocates a zeroed buffer of n elements on device.
func NewDense(device types.Device, n int) *Dense {
	return &Dense{device: device, data: make([]float64, n)}
}

// FromSlice wraps data (not copied) as a tensor on device.
func FromSlice(device types.Device, data []float64) *Dense {
	return &Dense{device: device, data: data}
}

// Device implements types.Tensor.
func (d *Dense) Device() types.Device {
	return d.device
}

// Numel implements types.Tensor.
func (d *Dense) Numel() int {
	return len(d.data)
}

// Data exposes the underlying buffer. Collectives mutate it in place.
func (d *Dense) Data() []float64 {
	return d.data
}

// Fill sets every element to v.
func (d *Dense) Fill(v float64) {
	for i := range d.data {
		d.data[i] = v
	}
}

// Clone returns a deep copy on the same device.
func (d *Dense) Clone() *Dense {
	out := NewDense(d.device, len(d.data))
	copy(out.data, d.data)
	return out
}

// CopyFrom copies src's contents into d; the element counts must match.
func (d *Dense) CopyFrom(src *Dense) error {
	if len(src.data) != len(d.data) {
		return types.Errorf(types.ErrInvalidOptions,
			"copy size mismatch: src %d elements, dst %d", len(src.data), len(d.data))
	}
	copy(d.data, src.data)
	return nil
}

var _ types.Tensor = (*Dense)(nil)
