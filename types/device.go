package types

import "fmt"

// DeviceType identifies a device kind for which a backend can be registered.
type DeviceType int8

const (
	DeviceCPU DeviceType = iota
	DeviceCUDA
)

// String returns the lowercase device type name.
func (dt DeviceType) String() string {
	switch dt {
	case DeviceCPU:
		return "cpu"
	case DeviceCUDA:
		return "cuda"
	default:
		return fmt.Sprintf("devicetype(%d)", int8(dt))
	}
}

// ParseDeviceType parses a device type name as produced by String.
func ParseDeviceType(s string) (DeviceType, error) {
	switch s {
	case "cpu":
		return DeviceCPU, nil
	case "cuda":
		return DeviceCUDA, nil
	default:
		return DeviceCPU, Errorf(ErrUnknownDeviceType, "unknown device type %q", s)
	}
}

// UnsetDeviceIndex marks a Device whose concrete index has not been chosen.
const UnsetDeviceIndex = -1

// Device is a device type plus an optional concrete index ("cuda:0").
type Device struct {
	Type  DeviceType
	Index int
}

// NewDevice returns a Device with no index set.
func NewDevice(dt DeviceType) Device {
	return Device{Type: dt, Index: UnsetDeviceIndex}
}

// NewIndexedDevice returns a Device bound to a concrete index.
func NewIndexedDevice(dt DeviceType, index int) Device {
	return Device{Type: dt, Index: index}
}

// HasIndex reports whether the device carries a concrete index.
func (d Device) HasIndex() bool {
	return d.Index != UnsetDeviceIndex
}

// String renders "cpu" or "cuda:1" style names.
func (d Device) String() string {
	if !d.HasIndex() {
		return d.Type.String()
	}
	return fmt.Sprintf("%s:%d", d.Type, d.Index)
}
