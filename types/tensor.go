package types

// Tensor is the minimal buffer contract the dispatch layer depends on.
// The actual data representation belongs to the caller and the backends;
// the group only inspects device placement and element counts to route and
// validate calls. Concrete backends type-assert to the representations
// they support and fail synchronously for those they do not.
type Tensor interface {
	// Device reports where the buffer lives.
	Device() Device

	// Numel returns the number of elements in the buffer.
	Numel() int
}

// DeviceTypeOf resolves the device type a collective call targets from its
// buffer list. All buffers of one call must live on the same device type.
func DeviceTypeOf(tensors []Tensor) (DeviceType, error) {
	if len(tensors) == 0 {
		return DeviceCPU, NewError(ErrInvalidOptions, "collective requires at least one tensor")
	}
	dt := tensors[0].Device().Type
	for _, t := range tensors[1:] {
		if t.Device().Type != dt {
			return dt, Errorf(ErrInvalidOptions,
				"mixed device types in one collective: %s and %s", dt, t.Device().Type)
		}
	}
	return dt, nil
}
