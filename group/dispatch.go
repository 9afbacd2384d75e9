package group

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/commflow/backend"
	"github.com/BaSui01/commflow/internal/telemetry"
	"github.com/BaSui01/commflow/ops"
	"github.com/BaSui01/commflow/types"
	"github.com/BaSui01/commflow/work"
)

// Named-operation keys. Every collective is routed through the ops
// registry under a stable name so alternative implementations can be
// swapped in during process setup without touching the Group's surface.
const (
	OpBroadcast                    = "commflow.broadcast"
	OpAllreduce                    = "commflow.allreduce"
	OpAllreduceCoalesced           = "commflow.allreduce_coalesced"
	OpReduce                       = "commflow.reduce"
	OpAllgather                    = "commflow.allgather"
	OpAllgatherBase                = "commflow.allgather_base"
	OpAllgatherCoalesced           = "commflow.allgather_coalesced"
	OpAllgatherIntoTensorCoalesced = "commflow.allgather_into_tensor_coalesced"
	OpGather                       = "commflow.gather"
	OpScatter                      = "commflow.scatter"
	OpReduceScatter                = "commflow.reduce_scatter"
	OpReduceScatterBase            = "commflow.reduce_scatter_base"
	OpReduceScatterTensorCoalesced = "commflow.reduce_scatter_tensor_coalesced"
	OpAllToAllBase                 = "commflow.alltoall_base"
	OpAllToAll                     = "commflow.alltoall"
	OpSend                         = "commflow.send"
	OpRecv                         = "commflow.recv"
	OpRecvAnysource                = "commflow.recv_anysource"
	OpBarrier                      = "commflow.barrier"
)

// Operation signatures resolvable through the ops registry.
type (
	BroadcastFunc          func(ctx context.Context, b backend.Backend, tensors []types.Tensor, opts types.BroadcastOptions) (*work.Work, error)
	AllreduceFunc          func(ctx context.Context, b backend.Backend, tensors []types.Tensor, opts types.AllreduceOptions) (*work.Work, error)
	AllreduceCoalescedFunc func(ctx context.Context, b backend.Backend, tensors []types.Tensor, opts types.AllreduceCoalescedOptions) (*work.Work, error)
	ReduceFunc             func(ctx context.Context, b backend.Backend, tensors []types.Tensor, opts types.ReduceOptions) (*work.Work, error)
	AllgatherFunc          func(ctx context.Context, b backend.Backend, outputs [][]types.Tensor, inputs []types.Tensor, opts types.AllgatherOptions) (*work.Work, error)
	AllgatherBaseFunc      func(ctx context.Context, b backend.Backend, output, input types.Tensor, opts types.AllgatherOptions) (*work.Work, error)
	AllgatherListFunc      func(ctx context.Context, b backend.Backend, outputs, inputs []types.Tensor, opts types.AllgatherOptions) (*work.Work, error)
	GatherFunc             func(ctx context.Context, b backend.Backend, outputs [][]types.Tensor, inputs []types.Tensor, opts types.GatherOptions) (*work.Work, error)
	ScatterFunc            func(ctx context.Context, b backend.Backend, outputs []types.Tensor, inputs [][]types.Tensor, opts types.ScatterOptions) (*work.Work, error)
	ReduceScatterFunc      func(ctx context.Context, b backend.Backend, outputs []types.Tensor, inputs [][]types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error)
	ReduceScatterBaseFunc  func(ctx context.Context, b backend.Backend, output, input types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error)
	ReduceScatterListFunc  func(ctx context.Context, b backend.Backend, outputs, inputs []types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error)
	AllToAllBaseFunc       func(ctx context.Context, b backend.Backend, output, input types.Tensor, outputSplits, inputSplits []int64, opts types.AllToAllOptions) (*work.Work, error)
	AllToAllFunc           func(ctx context.Context, b backend.Backend, outputs, inputs []types.Tensor, opts types.AllToAllOptions) (*work.Work, error)
	SendFunc               func(ctx context.Context, b backend.Backend, tensors []types.Tensor, dstRank, tag int) (*work.Work, error)
	RecvFunc               func(ctx context.Context, b backend.Backend, tensors []types.Tensor, srcRank, tag int) (*work.Work, error)
	RecvAnysourceFunc      func(ctx context.Context, b backend.Backend, tensors []types.Tensor, tag int) (*work.Work, error)
	BarrierFunc            func(ctx context.Context, b backend.Backend, opts types.BarrierOptions) (*work.Work, error)
)

// The default implementations forward straight to the resolved backend.
func init() {
	ops.Register(OpBroadcast, BroadcastFunc(func(ctx context.Context, b backend.Backend, tensors []types.Tensor, opts types.BroadcastOptions) (*work.Work, error) {
		return b.Broadcast(ctx, tensors, opts)
	}))
	ops.Register(OpAllreduce, AllreduceFunc(func(ctx context.Context, b backend.Backend, tensors []types.Tensor, opts types.AllreduceOptions) (*work.Work, error) {
		return b.Allreduce(ctx, tensors, opts)
	}))
	ops.Register(OpAllreduceCoalesced, AllreduceCoalescedFunc(func(ctx context.Context, b backend.Backend, tensors []types.Tensor, opts types.AllreduceCoalescedOptions) (*work.Work, error) {
		return b.AllreduceCoalesced(ctx, tensors, opts)
	}))
	ops.Register(OpReduce, ReduceFunc(func(ctx context.Context, b backend.Backend, tensors []types.Tensor, opts types.ReduceOptions) (*work.Work, error) {
		return b.Reduce(ctx, tensors, opts)
	}))
	ops.Register(OpAllgather, AllgatherFunc(func(ctx context.Context, b backend.Backend, outputs [][]types.Tensor, inputs []types.Tensor, opts types.AllgatherOptions) (*work.Work, error) {
		return b.Allgather(ctx, outputs, inputs, opts)
	}))
	ops.Register(OpAllgatherBase, AllgatherBaseFunc(func(ctx context.Context, b backend.Backend, output, input types.Tensor, opts types.AllgatherOptions) (*work.Work, error) {
		return b.AllgatherBase(ctx, output, input, opts)
	}))
	ops.Register(OpAllgatherCoalesced, AllgatherFunc(func(ctx context.Context, b backend.Backend, outputs [][]types.Tensor, inputs []types.Tensor, opts types.AllgatherOptions) (*work.Work, error) {
		return b.AllgatherCoalesced(ctx, outputs, inputs, opts)
	}))
	ops.Register(OpAllgatherIntoTensorCoalesced, AllgatherListFunc(func(ctx context.Context, b backend.Backend, outputs, inputs []types.Tensor, opts types.AllgatherOptions) (*work.Work, error) {
		return b.AllgatherIntoTensorCoalesced(ctx, outputs, inputs, opts)
	}))
	ops.Register(OpGather, GatherFunc(func(ctx context.Context, b backend.Backend, outputs [][]types.Tensor, inputs []types.Tensor, opts types.GatherOptions) (*work.Work, error) {
		return b.Gather(ctx, outputs, inputs, opts)
	}))
	ops.Register(OpScatter, ScatterFunc(func(ctx context.Context, b backend.Backend, outputs []types.Tensor, inputs [][]types.Tensor, opts types.ScatterOptions) (*work.Work, error) {
		return b.Scatter(ctx, outputs, inputs, opts)
	}))
	ops.Register(OpReduceScatter, ReduceScatterFunc(func(ctx context.Context, b backend.Backend, outputs []types.Tensor, inputs [][]types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error) {
		return b.ReduceScatter(ctx, outputs, inputs, opts)
	}))
	ops.Register(OpReduceScatterBase, ReduceScatterBaseFunc(func(ctx context.Context, b backend.Backend, output, input types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error) {
		return b.ReduceScatterBase(ctx, output, input, opts)
	}))
	ops.Register(OpReduceScatterTensorCoalesced, ReduceScatterListFunc(func(ctx context.Context, b backend.Backend, outputs, inputs []types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error) {
		return b.ReduceScatterTensorCoalesced(ctx, outputs, inputs, opts)
	}))
	ops.Register(OpAllToAllBase, AllToAllBaseFunc(func(ctx context.Context, b backend.Backend, output, input types.Tensor, outputSplits, inputSplits []int64, opts types.AllToAllOptions) (*work.Work, error) {
		return b.AllToAllBase(ctx, output, input, outputSplits, inputSplits, opts)
	}))
	ops.Register(OpAllToAll, AllToAllFunc(func(ctx context.Context, b backend.Backend, outputs, inputs []types.Tensor, opts types.AllToAllOptions) (*work.Work, error) {
		return b.AllToAll(ctx, outputs, inputs, opts)
	}))
	ops.Register(OpSend, SendFunc(func(ctx context.Context, b backend.Backend, tensors []types.Tensor, dstRank, tag int) (*work.Work, error) {
		return b.Send(ctx, tensors, dstRank, tag)
	}))
	ops.Register(OpRecv, RecvFunc(func(ctx context.Context, b backend.Backend, tensors []types.Tensor, srcRank, tag int) (*work.Work, error) {
		return b.Recv(ctx, tensors, srcRank, tag)
	}))
	ops.Register(OpRecvAnysource, RecvAnysourceFunc(func(ctx context.Context, b backend.Backend, tensors []types.Tensor, tag int) (*work.Work, error) {
		return b.RecvAnysource(ctx, tensors, tag)
	}))
	ops.Register(OpBarrier, BarrierFunc(func(ctx context.Context, b backend.Backend, opts types.BarrierOptions) (*work.Work, error) {
		return b.Barrier(ctx, opts)
	}))
}

// Handles are resolved once on first use and cached.
var (
	broadcastOp          = sync.OnceValue(func() BroadcastFunc { return ops.MustLookup[BroadcastFunc](OpBroadcast) })
	allreduceOp          = sync.OnceValue(func() AllreduceFunc { return ops.MustLookup[AllreduceFunc](OpAllreduce) })
	allreduceCoalescedOp = sync.OnceValue(func() AllreduceCoalescedFunc {
		return ops.MustLookup[AllreduceCoalescedFunc](OpAllreduceCoalesced)
	})
	reduceOp           = sync.OnceValue(func() ReduceFunc { return ops.MustLookup[ReduceFunc](OpReduce) })
	allgatherOp        = sync.OnceValue(func() AllgatherFunc { return ops.MustLookup[AllgatherFunc](OpAllgather) })
	allgatherBaseOp    = sync.OnceValue(func() AllgatherBaseFunc { return ops.MustLookup[AllgatherBaseFunc](OpAllgatherBase) })
	allgatherCoalOp    = sync.OnceValue(func() AllgatherFunc { return ops.MustLookup[AllgatherFunc](OpAllgatherCoalesced) })
	allgatherIntoOp    = sync.OnceValue(func() AllgatherListFunc { return ops.MustLookup[AllgatherListFunc](OpAllgatherIntoTensorCoalesced) })
	gatherOp           = sync.OnceValue(func() GatherFunc { return ops.MustLookup[GatherFunc](OpGather) })
	scatterOp          = sync.OnceValue(func() ScatterFunc { return ops.MustLookup[ScatterFunc](OpScatter) })
	reduceScatterOp    = sync.OnceValue(func() ReduceScatterFunc { return ops.MustLookup[ReduceScatterFunc](OpReduceScatter) })
	reduceScatterBase  = sync.OnceValue(func() ReduceScatterBaseFunc { return ops.MustLookup[ReduceScatterBaseFunc](OpReduceScatterBase) })
	reduceScatterCoal  = sync.OnceValue(func() ReduceScatterListFunc { return ops.MustLookup[ReduceScatterListFunc](OpReduceScatterTensorCoalesced) })
	allToAllBaseOp     = sync.OnceValue(func() AllToAllBaseFunc { return ops.MustLookup[AllToAllBaseFunc](OpAllToAllBase) })
	allToAllOp         = sync.OnceValue(func() AllToAllFunc { return ops.MustLookup[AllToAllFunc](OpAllToAll) })
	sendOp             = sync.OnceValue(func() SendFunc { return ops.MustLookup[SendFunc](OpSend) })
	recvOp             = sync.OnceValue(func() RecvFunc { return ops.MustLookup[RecvFunc](OpRecv) })
	recvAnysourceOp    = sync.OnceValue(func() RecvAnysourceFunc { return ops.MustLookup[RecvAnysourceFunc](OpRecvAnysource) })
	barrierOp          = sync.OnceValue(func() BarrierFunc { return ops.MustLookup[BarrierFunc](OpBarrier) })
)

// issue resolves the backend for a device type, opens a dispatch span and
// forwards the call. Issuing never blocks on completion; the returned work
// handle owns all completion semantics.
func (g *Group) issue(ctx context.Context, opName string, deviceType types.DeviceType, call func(context.Context, backend.Backend) (*work.Work, error)) (*work.Work, error) {
	b, err := g.Backend(deviceType)
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartCollective(ctx, g.tracer, opName, b.Name(), g.rank, g.size)
	defer span.End()

	w, err := call(ctx, b)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	g.observe(opName, b.Name(), w)
	return w, nil
}

// observe feeds the metrics collector; completion is recorded from a
// watcher goroutine since the group never blocks on the work itself.
func (g *Group) observe(opName, backendName string, w *work.Work) {
	if g.metrics == nil {
		return
	}
	g.metrics.ObserveIssued(opName, backendName)
	start := time.Now()
	go func() {
		<-w.Done()
		g.metrics.ObserveFinished(opName, backendName, w.Status().String(), time.Since(start))
	}()
}

// Broadcast copies the root rank's chosen tensor to every rank.
func (g *Group) Broadcast(ctx context.Context, tensors []types.Tensor, opts types.BroadcastOptions) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(tensors)
	if err != nil {
		return nil, err
	}
	if err := g.validateRoot(opts.Timeout, opts.RootRank, opts.RootTensor, len(tensors)); err != nil {
		return nil, err
	}
	return g.issue(ctx, "broadcast", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return broadcastOp()(ctx, b, tensors, opts)
	})
}

// Allreduce reduces every rank's tensors elementwise; all ranks observe
// the result.
func (g *Group) Allreduce(ctx context.Context, tensors []types.Tensor, opts types.AllreduceOptions) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(tensors)
	if err != nil {
		return nil, err
	}
	if err := types.ValidateTimeout(opts.Timeout); err != nil {
		return nil, err
	}
	return g.issue(ctx, "allreduce", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return allreduceOp()(ctx, b, tensors, opts)
	})
}

// AllreduceCoalesced reduces a whole tensor list as one logical unit.
func (g *Group) AllreduceCoalesced(ctx context.Context, tensors []types.Tensor, opts types.AllreduceCoalescedOptions) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(tensors)
	if err != nil {
		return nil, err
	}
	if err := types.ValidateTimeout(opts.Timeout); err != nil {
		return nil, err
	}
	return g.issue(ctx, "allreduce_coalesced", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return allreduceCoalescedOp()(ctx, b, tensors, opts)
	})
}

// Reduce reduces onto the root rank only.
func (g *Group) Reduce(ctx context.Context, tensors []types.Tensor, opts types.ReduceOptions) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(tensors)
	if err != nil {
		return nil, err
	}
	if err := g.validateRoot(opts.Timeout, opts.RootRank, opts.RootTensor, len(tensors)); err != nil {
		return nil, err
	}
	return g.issue(ctx, "reduce", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return reduceOp()(ctx, b, tensors, opts)
	})
}

// Allgather collects every rank's inputs into per-rank output slots.
func (g *Group) Allgather(ctx context.Context, outputs [][]types.Tensor, inputs []types.Tensor, opts types.AllgatherOptions) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(inputs)
	if err != nil {
		return nil, err
	}
	if err := types.ValidateTimeout(opts.Timeout); err != nil {
		return nil, err
	}
	return g.issue(ctx, "allgather", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return allgatherOp()(ctx, b, outputs, inputs, opts)
	})
}

// AllgatherBase gathers a single input buffer into one contiguous output
// of size*numel(input) elements.
func (g *Group) AllgatherBase(ctx context.Context, output, input types.Tensor, opts types.AllgatherOptions) (*work.Work, error) {
	if err := types.ValidateTimeout(opts.Timeout); err != nil {
		return nil, err
	}
	return g.issue(ctx, "allgather_base", input.Device().Type, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return allgatherBaseOp()(ctx, b, output, input, opts)
	})
}

// AllgatherCoalesced is the list-of-lists allgather variant.
func (g *Group) AllgatherCoalesced(ctx context.Context, outputLists [][]types.Tensor, inputs []types.Tensor, opts types.AllgatherOptions) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(inputs)
	if err != nil {
		return nil, err
	}
	if err := types.ValidateTimeout(opts.Timeout); err != nil {
		return nil, err
	}
	return g.issue(ctx, "allgather_coalesced", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return allgatherCoalOp()(ctx, b, outputLists, inputs, opts)
	})
}

// AllgatherIntoTensorCoalesced runs pairwise allgather_base over matching
// output/input lists as one batch.
func (g *Group) AllgatherIntoTensorCoalesced(ctx context.Context, outputs, inputs []types.Tensor, opts types.AllgatherOptions) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(inputs)
	if err != nil {
		return nil, err
	}
	if err := types.ValidateTimeout(opts.Timeout); err != nil {
		return nil, err
	}
	return g.issue(ctx, "allgather_into_tensor_coalesced", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return allgatherIntoOp()(ctx, b, outputs, inputs, opts)
	})
}

// Gather collects every rank's inputs onto the root rank.
func (g *Group) Gather(ctx context.Context, outputs [][]types.Tensor, inputs []types.Tensor, opts types.GatherOptions) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(inputs)
	if err != nil {
		return nil, err
	}
	if err := g.validateRoot(opts.Timeout, opts.RootRank, 0, 1); err != nil {
		return nil, err
	}
	return g.issue(ctx, "gather", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return gatherOp()(ctx, b, outputs, inputs, opts)
	})
}

// Scatter distributes the root rank's input slots across the group.
func (g *Group) Scatter(ctx context.Context, outputs []types.Tensor, inputs [][]types.Tensor, opts types.ScatterOptions) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(outputs)
	if err != nil {
		return nil, err
	}
	if err := g.validateRoot(opts.Timeout, opts.RootRank, 0, 1); err != nil {
		return nil, err
	}
	return g.issue(ctx, "scatter", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return scatterOp()(ctx, b, outputs, inputs, opts)
	})
}

// ReduceScatter reduces per-slot inputs across ranks; each rank keeps its
// own slot.
func (g *Group) ReduceScatter(ctx context.Context, outputs []types.Tensor, inputs [][]types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(outputs)
	if err != nil {
		return nil, err
	}
	if err := types.ValidateTimeout(opts.Timeout); err != nil {
		return nil, err
	}
	return g.issue(ctx, "reduce_scatter", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return reduceScatterOp()(ctx, b, outputs, inputs, opts)
	})
}

// ReduceScatterBase is the single-buffer reduce-scatter variant.
func (g *Group) ReduceScatterBase(ctx context.Context, output, input types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error) {
	if err := types.ValidateTimeout(opts.Timeout); err != nil {
		return nil, err
	}
	return g.issue(ctx, "reduce_scatter_base", input.Device().Type, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return reduceScatterBase()(ctx, b, output, input, opts)
	})
}

// ReduceScatterTensorCoalesced runs pairwise reduce_scatter_base over
// matching output/input lists as one batch.
func (g *Group) ReduceScatterTensorCoalesced(ctx context.Context, outputs, inputs []types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(inputs)
	if err != nil {
		return nil, err
	}
	if err := types.ValidateTimeout(opts.Timeout); err != nil {
		return nil, err
	}
	return g.issue(ctx, "reduce_scatter_tensor_coalesced", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return reduceScatterCoal()(ctx, b, outputs, inputs, opts)
	})
}

// AllToAllBase exchanges split chunks of a single buffer between all
// ranks. Empty split lists mean equal chunks.
func (g *Group) AllToAllBase(ctx context.Context, output, input types.Tensor, outputSplits, inputSplits []int64, opts types.AllToAllOptions) (*work.Work, error) {
	if err := types.ValidateTimeout(opts.Timeout); err != nil {
		return nil, err
	}
	if err := types.ValidateSplitSizes(inputSplits, input.Numel()); err != nil {
		return nil, err
	}
	if err := types.ValidateSplitSizes(outputSplits, output.Numel()); err != nil {
		return nil, err
	}
	return g.issue(ctx, "alltoall_base", input.Device().Type, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return allToAllBaseOp()(ctx, b, output, input, outputSplits, inputSplits, opts)
	})
}

// AllToAll exchanges one tensor per rank in both directions.
func (g *Group) AllToAll(ctx context.Context, outputs, inputs []types.Tensor, opts types.AllToAllOptions) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(inputs)
	if err != nil {
		return nil, err
	}
	if err := types.ValidateTimeout(opts.Timeout); err != nil {
		return nil, err
	}
	return g.issue(ctx, "alltoall", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return allToAllOp()(ctx, b, outputs, inputs, opts)
	})
}

// Send transfers tensors to dstRank under a tag.
func (g *Group) Send(ctx context.Context, tensors []types.Tensor, dstRank, tag int) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(tensors)
	if err != nil {
		return nil, err
	}
	return g.issue(ctx, "send", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return sendOp()(ctx, b, tensors, dstRank, tag)
	})
}

// Recv receives tensors from srcRank under a tag.
func (g *Group) Recv(ctx context.Context, tensors []types.Tensor, srcRank, tag int) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(tensors)
	if err != nil {
		return nil, err
	}
	return g.issue(ctx, "recv", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return recvOp()(ctx, b, tensors, srcRank, tag)
	})
}

// RecvAnysource receives tensors from any rank under a tag.
func (g *Group) RecvAnysource(ctx context.Context, tensors []types.Tensor, tag int) (*work.Work, error) {
	dt, err := types.DeviceTypeOf(tensors)
	if err != nil {
		return nil, err
	}
	return g.issue(ctx, "recv_anysource", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return recvAnysourceOp()(ctx, b, tensors, tag)
	})
}

// Barrier blocks (asynchronously) until every rank arrives. The device
// resolution follows the default rules: an explicit device in the options
// wins, an NCCL default backend implies CUDA, otherwise CPU.
func (g *Group) Barrier(ctx context.Context, opts types.BarrierOptions) (*work.Work, error) {
	if err := types.ValidateTimeout(opts.Timeout); err != nil {
		return nil, err
	}
	dt := g.barrierDeviceType(opts)
	return g.issue(ctx, "barrier", dt, func(ctx context.Context, b backend.Backend) (*work.Work, error) {
		return barrierOp()(ctx, b, opts)
	})
}

func (g *Group) barrierDeviceType(opts types.BarrierOptions) types.DeviceType {
	if opts.Device != nil {
		return opts.Device.Type
	}
	if g.backendType == types.BackendNCCL {
		return types.DeviceCUDA
	}
	return types.DeviceCPU
}

func (g *Group) validateRoot(timeout time.Duration, rootRank, rootTensor, numTensors int) error {
	if err := types.ValidateTimeout(timeout); err != nil {
		return err
	}
	if err := types.ValidateRootRank(rootRank, g.size); err != nil {
		return err
	}
	return types.ValidateRootTensor(rootTensor, numTensors)
}
