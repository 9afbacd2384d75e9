package types

import "time"

// DefaultTimeout is the default per-collective timeout applied when an
// option struct is default-constructed.
const DefaultTimeout = 30 * time.Minute

// GroupOptions carries the immutable per-group defaults: the backend name
// label and the timeout applied to collectives that do not override it.
type GroupOptions struct {
	// Backend is the default backend name, e.g. "gloo" or "nccl".
	Backend string
	// Timeout is the default collective timeout.
	Timeout time.Duration
	// GroupName and GroupDesc seed the group identity metadata.
	GroupName string
	GroupDesc string
}

// DefaultGroupOptions returns group options with the default timeout.
func DefaultGroupOptions(backend string) GroupOptions {
	return GroupOptions{Backend: backend, Timeout: DefaultTimeout}
}

// BroadcastOptions configures a broadcast.
type BroadcastOptions struct {
	RootRank   int
	RootTensor int
	AsyncOp    bool
	Timeout    time.Duration
}

// DefaultBroadcastOptions returns broadcast options rooted at rank 0.
func DefaultBroadcastOptions() BroadcastOptions {
	return BroadcastOptions{AsyncOp: true, Timeout: DefaultTimeout}
}

// AllreduceOptions configures an allreduce.
type AllreduceOptions struct {
	ReduceOp ReduceOp
	Timeout  time.Duration
}

// DefaultAllreduceOptions returns sum-reduction allreduce options.
func DefaultAllreduceOptions() AllreduceOptions {
	return AllreduceOptions{ReduceOp: OpSum, Timeout: DefaultTimeout}
}

// AllreduceCoalescedOptions configures a coalesced allreduce.
type AllreduceCoalescedOptions struct {
	ReduceOp ReduceOp
	Timeout  time.Duration
}

// DefaultAllreduceCoalescedOptions returns sum-reduction options.
func DefaultAllreduceCoalescedOptions() AllreduceCoalescedOptions {
	return AllreduceCoalescedOptions{ReduceOp: OpSum, Timeout: DefaultTimeout}
}

// ReduceOptions configures a reduce.
type ReduceOptions struct {
	ReduceOp   ReduceOp
	RootRank   int
	RootTensor int
	Timeout    time.Duration
}

// DefaultReduceOptions returns sum-reduction reduce options rooted at rank 0.
func DefaultReduceOptions() ReduceOptions {
	return ReduceOptions{ReduceOp: OpSum, Timeout: DefaultTimeout}
}

// AllgatherOptions configures the allgather family.
type AllgatherOptions struct {
	AsyncOp bool
	Timeout time.Duration
}

// DefaultAllgatherOptions returns allgather options.
func DefaultAllgatherOptions() AllgatherOptions {
	return AllgatherOptions{AsyncOp: true, Timeout: DefaultTimeout}
}

// GatherOptions configures a gather.
type GatherOptions struct {
	RootRank int
	Timeout  time.Duration
}

// DefaultGatherOptions returns gather options rooted at rank 0.
func DefaultGatherOptions() GatherOptions {
	return GatherOptions{Timeout: DefaultTimeout}
}

// ScatterOptions configures a scatter.
type ScatterOptions struct {
	RootRank int
	AsyncOp  bool
	Timeout  time.Duration
}

// DefaultScatterOptions returns scatter options rooted at rank 0.
func DefaultScatterOptions() ScatterOptions {
	return ScatterOptions{AsyncOp: true, Timeout: DefaultTimeout}
}

// ReduceScatterOptions configures the reduce-scatter family.
type ReduceScatterOptions struct {
	ReduceOp ReduceOp
	AsyncOp  bool
	Timeout  time.Duration
}

// DefaultReduceScatterOptions returns sum-reduction options.
func DefaultReduceScatterOptions() ReduceScatterOptions {
	return ReduceScatterOptions{ReduceOp: OpSum, AsyncOp: true, Timeout: DefaultTimeout}
}

// AllToAllOptions configures the all-to-all family.
type AllToAllOptions struct {
	Timeout time.Duration
}

// DefaultAllToAllOptions returns all-to-all options.
func DefaultAllToAllOptions() AllToAllOptions {
	return AllToAllOptions{Timeout: DefaultTimeout}
}

// BarrierOptions configures a barrier. Device pins the barrier to a
// concrete device; DeviceIDs restricts participating devices for backends
// that support it.
type BarrierOptions struct {
	DeviceIDs []int
	Device    *Device
	Timeout   time.Duration
}

// DefaultBarrierOptions returns barrier options.
func DefaultBarrierOptions() BarrierOptions {
	return BarrierOptions{Timeout: DefaultTimeout}
}

// ValidateTimeout rejects non-positive timeouts.
func ValidateTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return Errorf(ErrInvalidOptions, "timeout must be positive, got %v", timeout)
	}
	return nil
}

// ValidateRootRank checks that rootRank addresses a rank inside the group.
func ValidateRootRank(rootRank, size int) error {
	if rootRank < 0 || rootRank >= size {
		return Errorf(ErrInvalidOptions, "root rank %d outside group of size %d", rootRank, size)
	}
	return nil
}

// ValidateRootTensor checks that rootTensor indexes the supplied tensor list.
func ValidateRootTensor(rootTensor, numTensors int) error {
	if rootTensor < 0 || rootTensor >= numTensors {
		return Errorf(ErrInvalidOptions, "root tensor %d outside tensor list of length %d", rootTensor, numTensors)
	}
	return nil
}

// ValidateSplitSizes checks that splits is either empty (even split) or
// sums to total.
func ValidateSplitSizes(splits []int64, total int) error {
	if len(splits) == 0 {
		return nil
	}
	var sum int64
	for _, s := range splits {
		if s < 0 {
			return Errorf(ErrInvalidOptions, "negative split size %d", s)
		}
		sum += s
	}
	if sum != int64(total) {
		return Errorf(ErrInvalidOptions, "split sizes sum to %d, buffer has %d elements", sum, total)
	}
	return nil
}
