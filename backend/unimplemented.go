package backend

import (
	"context"
	"sync"

	"github.com/BaSui01/commflow/types"
	"github.com/BaSui01/commflow/work"
)

// Unimplemented satisfies the full Backend contract by returning an
// UNSUPPORTED_OPERATION error for every collective and feature, while
// providing the shared lifecycle plumbing (identity, bound device,
// timing flag). Concrete backends embed it and override what they
// actually support.
type Unimplemented struct {
	BackendName string
	BackendType types.BackendType
	BackendRank int
	BackendSize int

	mu          sync.Mutex
	boundDevice *types.Device
	timing      bool
}

// NewUnimplemented returns the embeddable base for a backend identity.
func NewUnimplemented(name string, bt types.BackendType, rank, size int) Unimplemented {
	return Unimplemented{BackendName: name, BackendType: bt, BackendRank: rank, BackendSize: size}
}

func (u *Unimplemented) unsupported(op string) *types.Error {
	return types.Errorf(types.ErrUnsupportedOp,
		"backend %s does not support %s", u.BackendName, op).WithBackend(u.BackendName)
}

// Name implements Backend.
func (u *Unimplemented) Name() string { return u.BackendName }

// Type implements Backend.
func (u *Unimplemented) Type() types.BackendType { return u.BackendType }

// Rank implements Backend.
func (u *Unimplemented) Rank() int { return u.BackendRank }

// Size implements Backend.
func (u *Unimplemented) Size() int { return u.BackendSize }

func (u *Unimplemented) Broadcast(context.Context, []types.Tensor, types.BroadcastOptions) (*work.Work, error) {
	return nil, u.unsupported("broadcast")
}

func (u *Unimplemented) Allreduce(context.Context, []types.Tensor, types.AllreduceOptions) (*work.Work, error) {
	return nil, u.unsupported("allreduce")
}

func (u *Unimplemented) AllreduceCoalesced(context.Context, []types.Tensor, types.AllreduceCoalescedOptions) (*work.Work, error) {
	return nil, u.unsupported("allreduce_coalesced")
}

func (u *Unimplemented) Reduce(context.Context, []types.Tensor, types.ReduceOptions) (*work.Work, error) {
	return nil, u.unsupported("reduce")
}

func (u *Unimplemented) Allgather(context.Context, [][]types.Tensor, []types.Tensor, types.AllgatherOptions) (*work.Work, error) {
	return nil, u.unsupported("allgather")
}

func (u *Unimplemented) AllgatherBase(context.Context, types.Tensor, types.Tensor, types.AllgatherOptions) (*work.Work, error) {
	return nil, u.unsupported("allgather_base")
}

func (u *Unimplemented) AllgatherCoalesced(context.Context, [][]types.Tensor, []types.Tensor, types.AllgatherOptions) (*work.Work, error) {
	return nil, u.unsupported("allgather_coalesced")
}

func (u *Unimplemented) AllgatherIntoTensorCoalesced(context.Context, []types.Tensor, []types.Tensor, types.AllgatherOptions) (*work.Work, error) {
	return nil, u.unsupported("allgather_into_tensor_coalesced")
}

func (u *Unimplemented) Gather(context.Context, [][]types.Tensor, []types.Tensor, types.GatherOptions) (*work.Work, error) {
	return nil, u.unsupported("gather")
}

func (u *Unimplemented) Scatter(context.Context, []types.Tensor, [][]types.Tensor, types.ScatterOptions) (*work.Work, error) {
	return nil, u.unsupported("scatter")
}

func (u *Unimplemented) ReduceScatter(context.Context, []types.Tensor, [][]types.Tensor, types.ReduceScatterOptions) (*work.Work, error) {
	return nil, u.unsupported("reduce_scatter")
}

func (u *Unimplemented) ReduceScatterBase(context.Context, types.Tensor, types.Tensor, types.ReduceScatterOptions) (*work.Work, error) {
	return nil, u.unsupported("reduce_scatter_base")
}

func (u *Unimplemented) ReduceScatterTensorCoalesced(context.Context, []types.Tensor, []types.Tensor, types.ReduceScatterOptions) (*work.Work, error) {
	return nil, u.unsupported("reduce_scatter_tensor_coalesced")
}

func (u *Unimplemented) AllToAllBase(context.Context, types.Tensor, types.Tensor, []int64, []int64, types.AllToAllOptions) (*work.Work, error) {
	return nil, u.unsupported("alltoall_base")
}

func (u *Unimplemented) AllToAll(context.Context, []types.Tensor, []types.Tensor, types.AllToAllOptions) (*work.Work, error) {
	return nil, u.unsupported("alltoall")
}

func (u *Unimplemented) Barrier(context.Context, types.BarrierOptions) (*work.Work, error) {
	return nil, u.unsupported("barrier")
}

func (u *Unimplemented) MonitoredBarrier(context.Context, types.BarrierOptions, bool) error {
	return u.unsupported("monitored_barrier")
}

func (u *Unimplemented) Send(context.Context, []types.Tensor, int, int) (*work.Work, error) {
	return nil, u.unsupported("send")
}

func (u *Unimplemented) Recv(context.Context, []types.Tensor, int, int) (*work.Work, error) {
	return nil, u.unsupported("recv")
}

func (u *Unimplemented) RecvAnysource(context.Context, []types.Tensor, int) (*work.Work, error) {
	return nil, u.unsupported("recv_anysource")
}

func (u *Unimplemented) StartCoalescing(context.Context) error {
	return u.unsupported("coalescing")
}

func (u *Unimplemented) EndCoalescing(context.Context) (*work.Work, error) {
	return nil, u.unsupported("coalescing")
}

func (u *Unimplemented) SetSequenceNumberForGroup(context.Context) error {
	return u.unsupported("sequence numbers")
}

func (u *Unimplemented) GetSequenceNumberForGroup() (uint64, error) {
	return 0, u.unsupported("sequence numbers")
}

// SetBoundDeviceID implements the bind-once protocol: the first call wins,
// a repeated call with an equal device is a no-op, and a conflicting
// device is a consistency error.
func (u *Unimplemented) SetBoundDeviceID(device *types.Device) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if device == nil {
		return nil
	}
	if !device.HasIndex() {
		return types.Errorf(types.ErrBoundDeviceNoIndex,
			"bound device %s must carry a device index", device).WithBackend(u.BackendName)
	}
	if u.boundDevice != nil && *u.boundDevice != *device {
		return types.Errorf(types.ErrBoundDeviceMismatch,
			"backend %s already bound to %s, refusing rebind to %s",
			u.BackendName, u.boundDevice, device).WithBackend(u.BackendName)
	}
	d := *device
	u.boundDevice = &d
	return nil
}

// BoundDeviceID implements Backend.
func (u *Unimplemented) BoundDeviceID() *types.Device {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.boundDevice == nil {
		return nil
	}
	d := *u.boundDevice
	return &d
}

func (u *Unimplemented) RegisterOnCompletionHook(work.Hook) error {
	return u.unsupported("completion hooks")
}

// HasHooks implements Backend.
func (u *Unimplemented) HasHooks() bool { return false }

func (u *Unimplemented) WaitForPendingWorks(context.Context) error {
	return u.unsupported("pending-work drain")
}

// EnableCollectivesTiming implements Backend.
func (u *Unimplemented) EnableCollectivesTiming() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.timing = true
}

// TimingEnabled reports whether collective timing was requested.
func (u *Unimplemented) TimingEnabled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.timing
}

// Close implements Backend.
func (u *Unimplemented) Close() error { return nil }

var _ Backend = (*Unimplemented)(nil)
