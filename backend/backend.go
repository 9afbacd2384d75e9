// Package backend defines the capability contract every communication
// backend must implement to be attached to a group, plus an Unimplemented
// base that concrete backends embed to inherit lifecycle plumbing and
// unsupported-feature errors for the operations they do not provide.
package backend

import (
	"context"

	"github.com/BaSui01/commflow/types"
	"github.com/BaSui01/commflow/work"
)

// Backend is the polymorphic contract for one communication backend
// serving one or more device types inside a group.
//
// Every collective returns a pending or terminal work handle and never
// blocks on data movement; operational failures are captured into the
// handle. A non-nil error return is reserved for synchronous failures:
// invalid arguments, unsupported device/op combinations, or a closed
// backend.
type Backend interface {
	// Name returns the backend's short name, e.g. "gloo" or "inproc".
	Name() string

	// Type returns the backend kind tag.
	Type() types.BackendType

	// Rank returns this process's rank within the group.
	Rank() int

	// Size returns the group cardinality.
	Size() int

	// Collectives.

	Broadcast(ctx context.Context, tensors []types.Tensor, opts types.BroadcastOptions) (*work.Work, error)
	Allreduce(ctx context.Context, tensors []types.Tensor, opts types.AllreduceOptions) (*work.Work, error)
	AllreduceCoalesced(ctx context.Context, tensors []types.Tensor, opts types.AllreduceCoalescedOptions) (*work.Work, error)
	Reduce(ctx context.Context, tensors []types.Tensor, opts types.ReduceOptions) (*work.Work, error)
	Allgather(ctx context.Context, outputs [][]types.Tensor, inputs []types.Tensor, opts types.AllgatherOptions) (*work.Work, error)
	AllgatherBase(ctx context.Context, output, input types.Tensor, opts types.AllgatherOptions) (*work.Work, error)
	AllgatherCoalesced(ctx context.Context, outputLists [][]types.Tensor, inputs []types.Tensor, opts types.AllgatherOptions) (*work.Work, error)
	AllgatherIntoTensorCoalesced(ctx context.Context, outputs, inputs []types.Tensor, opts types.AllgatherOptions) (*work.Work, error)
	Gather(ctx context.Context, outputs [][]types.Tensor, inputs []types.Tensor, opts types.GatherOptions) (*work.Work, error)
	Scatter(ctx context.Context, outputs []types.Tensor, inputs [][]types.Tensor, opts types.ScatterOptions) (*work.Work, error)
	ReduceScatter(ctx context.Context, outputs []types.Tensor, inputs [][]types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error)
	ReduceScatterBase(ctx context.Context, output, input types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error)
	ReduceScatterTensorCoalesced(ctx context.Context, outputs, inputs []types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error)
	AllToAllBase(ctx context.Context, output, input types.Tensor, outputSplits, inputSplits []int64, opts types.AllToAllOptions) (*work.Work, error)
	AllToAll(ctx context.Context, outputs, inputs []types.Tensor, opts types.AllToAllOptions) (*work.Work, error)
	Barrier(ctx context.Context, opts types.BarrierOptions) (*work.Work, error)

	// MonitoredBarrier is a synchronous barrier that reports which ranks
	// failed to join within the timeout. waitAllRanks collects every
	// missing rank instead of failing on the first.
	MonitoredBarrier(ctx context.Context, opts types.BarrierOptions, waitAllRanks bool) error

	// Point-to-point.

	Send(ctx context.Context, tensors []types.Tensor, dstRank, tag int) (*work.Work, error)
	Recv(ctx context.Context, tensors []types.Tensor, srcRank, tag int) (*work.Work, error)
	RecvAnysource(ctx context.Context, tensors []types.Tensor, tag int) (*work.Work, error)

	// Coalescing bracket. StartCoalescing begins accumulating subsequent
	// collectives as one logical batch; EndCoalescing flushes it and
	// returns a single work handle for the whole batch.

	StartCoalescing(ctx context.Context) error
	EndCoalescing(ctx context.Context) (*work.Work, error)

	// Sequence-number protocol. The counter increments once per completed
	// collective; SetSequenceNumberForGroup agrees on a baseline across
	// ranks via the bootstrap store.

	SetSequenceNumberForGroup(ctx context.Context) error
	GetSequenceNumberForGroup() (uint64, error)

	// Bound device. SetBoundDeviceID is invoked at most once per backend
	// instance by the owning group; a second call with a conflicting
	// device is a consistency error.

	SetBoundDeviceID(device *types.Device) error
	BoundDeviceID() *types.Device

	// Completion hooks and pending-work drain.

	RegisterOnCompletionHook(hook work.Hook) error
	HasHooks() bool
	WaitForPendingWorks(ctx context.Context) error

	// EnableCollectivesTiming asks the backend to stamp completion times
	// on the works it emits.
	EnableCollectivesTiming()

	// Close releases backend resources. Collectives issued after Close
	// fail synchronously.
	Close() error
}
