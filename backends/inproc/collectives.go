package inproc

import (
	"context"

	"github.com/BaSui01/commflow/tensor"
	"github.com/BaSui01/commflow/types"
	"github.com/BaSui01/commflow/work"
)

// asDense asserts that every buffer is a dense tensor this backend can
// move. Other representations fail synchronously.
func asDense(tensors []types.Tensor) ([]*tensor.Dense, error) {
	out := make([]*tensor.Dense, len(tensors))
	for i, t := range tensors {
		d, ok := t.(*tensor.Dense)
		if !ok {
			return nil, types.Errorf(types.ErrUnsupportedDevice,
				"inproc backend requires dense tensors, got %T", t)
		}
		out[i] = d
	}
	return out, nil
}

func asDenseOne(t types.Tensor) (*tensor.Dense, error) {
	d, ok := t.(*tensor.Dense)
	if !ok {
		return nil, types.Errorf(types.ErrUnsupportedDevice,
			"inproc backend requires dense tensors, got %T", t)
	}
	return d, nil
}

// snapshot contributes copies, never live buffers.
func snapshot(tensors []*tensor.Dense) payload {
	p := make(payload, len(tensors))
	for i, t := range tensors {
		p[i] = append([]float64(nil), t.Data()...)
	}
	return p
}

// Broadcast implements backend.Backend: the root rank's chosen tensor is
// copied into every tensor of every rank.
func (b *Backend) Broadcast(_ context.Context, tensors []types.Tensor, opts types.BroadcastOptions) (*work.Work, error) {
	dense, err := asDense(tensors)
	if err != nil {
		return nil, err
	}
	root, rootTensor := opts.RootRank, opts.RootTensor
	return b.runCollective("broadcast", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		contribs, err := b.exchange.rendezvous(ctx, ticket, b.Rank(), payload{append([]float64(nil), dense[rootTensor].Data()...)})
		if err != nil {
			return err
		}
		src := contribs[root][0]
		for _, t := range dense {
			if len(src) != t.Numel() {
				return types.Errorf(types.ErrInvalidOptions,
					"broadcast size mismatch: root sent %d elements, local buffer has %d", len(src), t.Numel())
			}
			copy(t.Data(), src)
		}
		return nil
	})
}

// Allreduce implements backend.Backend.
func (b *Backend) Allreduce(_ context.Context, tensors []types.Tensor, opts types.AllreduceOptions) (*work.Work, error) {
	dense, err := asDense(tensors)
	if err != nil {
		return nil, err
	}
	if err := validReduceOp(opts.ReduceOp); err != nil {
		return nil, err
	}
	return b.runCollective("allreduce", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		return b.allreduceRound(ctx, ticket, dense, opts.ReduceOp)
	})
}

// AllreduceCoalesced implements backend.Backend: one round reduces the
// whole tensor list.
func (b *Backend) AllreduceCoalesced(_ context.Context, tensors []types.Tensor, opts types.AllreduceCoalescedOptions) (*work.Work, error) {
	dense, err := asDense(tensors)
	if err != nil {
		return nil, err
	}
	if err := validReduceOp(opts.ReduceOp); err != nil {
		return nil, err
	}
	return b.runCollective("allreduce_coalesced", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		return b.allreduceRound(ctx, ticket, dense, opts.ReduceOp)
	})
}

func (b *Backend) allreduceRound(ctx context.Context, ticket uint64, dense []*tensor.Dense, op types.ReduceOp) error {
	contribs, err := b.exchange.rendezvous(ctx, ticket, b.Rank(), snapshot(dense))
	if err != nil {
		return err
	}
	for i, t := range dense {
		acc, err := reduceAcross(op, contribs, i)
		if err != nil {
			return err
		}
		copy(t.Data(), acc)
	}
	return nil
}

// Reduce implements backend.Backend: only the root rank observes the
// reduced value, in its tensor at the root-tensor index.
func (b *Backend) Reduce(_ context.Context, tensors []types.Tensor, opts types.ReduceOptions) (*work.Work, error) {
	dense, err := asDense(tensors)
	if err != nil {
		return nil, err
	}
	if err := validReduceOp(opts.ReduceOp); err != nil {
		return nil, err
	}
	root, rootTensor, op := opts.RootRank, opts.RootTensor, opts.ReduceOp
	return b.runCollective("reduce", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		contribs, err := b.exchange.rendezvous(ctx, ticket, b.Rank(), payload{append([]float64(nil), dense[rootTensor].Data()...)})
		if err != nil {
			return err
		}
		if b.Rank() != root {
			return nil
		}
		acc, err := reduceAcross(op, contribs, 0)
		if err != nil {
			return err
		}
		copy(dense[rootTensor].Data(), acc)
		return nil
	})
}

// Allgather implements backend.Backend: outputs[i][r] receives rank r's
// inputs[i].
func (b *Backend) Allgather(_ context.Context, outputs [][]types.Tensor, inputs []types.Tensor, opts types.AllgatherOptions) (*work.Work, error) {
	in, err := asDense(inputs)
	if err != nil {
		return nil, err
	}
	out, err := b.gatherOutputs(outputs, len(inputs))
	if err != nil {
		return nil, err
	}
	return b.runCollective("allgather", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		return b.allgatherRound(ctx, ticket, out, in)
	})
}

// AllgatherCoalesced implements backend.Backend. Semantically identical to
// Allgather over the full list, executed as one round.
func (b *Backend) AllgatherCoalesced(_ context.Context, outputLists [][]types.Tensor, inputs []types.Tensor, opts types.AllgatherOptions) (*work.Work, error) {
	in, err := asDense(inputs)
	if err != nil {
		return nil, err
	}
	out, err := b.gatherOutputs(outputLists, len(inputs))
	if err != nil {
		return nil, err
	}
	return b.runCollective("allgather_coalesced", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		return b.allgatherRound(ctx, ticket, out, in)
	})
}

func (b *Backend) allgatherRound(ctx context.Context, ticket uint64, out [][]*tensor.Dense, in []*tensor.Dense) error {
	contribs, err := b.exchange.rendezvous(ctx, ticket, b.Rank(), snapshot(in))
	if err != nil {
		return err
	}
	for i := range in {
		for r := 0; r < b.Size(); r++ {
			if err := copyInto(out[i][r], contribs[r][i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// AllgatherBase implements backend.Backend: input chunks from all ranks
// are laid out contiguously in output, rank order.
func (b *Backend) AllgatherBase(_ context.Context, output, input types.Tensor, opts types.AllgatherOptions) (*work.Work, error) {
	out, err := asDenseOne(output)
	if err != nil {
		return nil, err
	}
	in, err := asDenseOne(input)
	if err != nil {
		return nil, err
	}
	if out.Numel() != in.Numel()*b.Size() {
		return nil, types.Errorf(types.ErrInvalidOptions,
			"allgather_base output must have %d elements, got %d", in.Numel()*b.Size(), out.Numel())
	}
	return b.runCollective("allgather_base", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		return b.allgatherBaseRound(ctx, ticket, out, in)
	})
}

// AllgatherIntoTensorCoalesced implements backend.Backend: pairwise
// allgather_base over the two lists as one round.
func (b *Backend) AllgatherIntoTensorCoalesced(_ context.Context, outputs, inputs []types.Tensor, opts types.AllgatherOptions) (*work.Work, error) {
	out, err := asDense(outputs)
	if err != nil {
		return nil, err
	}
	in, err := asDense(inputs)
	if err != nil {
		return nil, err
	}
	if len(out) != len(in) {
		return nil, types.Errorf(types.ErrInvalidOptions,
			"coalesced allgather needs matching lists, got %d outputs and %d inputs", len(out), len(in))
	}
	for i := range in {
		if out[i].Numel() != in[i].Numel()*b.Size() {
			return nil, types.Errorf(types.ErrInvalidOptions,
				"coalesced allgather output %d must have %d elements, got %d",
				i, in[i].Numel()*b.Size(), out[i].Numel())
		}
	}
	return b.runCollective("allgather_into_tensor_coalesced", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		contribs, err := b.exchange.rendezvous(ctx, ticket, b.Rank(), snapshot(in))
		if err != nil {
			return err
		}
		for i := range in {
			chunk := in[i].Numel()
			dst := out[i].Data()
			for r := 0; r < b.Size(); r++ {
				copy(dst[r*chunk:(r+1)*chunk], contribs[r][i])
			}
		}
		return nil
	})
}

func (b *Backend) allgatherBaseRound(ctx context.Context, ticket uint64, out, in *tensor.Dense) error {
	contribs, err := b.exchange.rendezvous(ctx, ticket, b.Rank(), snapshot([]*tensor.Dense{in}))
	if err != nil {
		return err
	}
	chunk := in.Numel()
	dst := out.Data()
	for r := 0; r < b.Size(); r++ {
		copy(dst[r*chunk:(r+1)*chunk], contribs[r][0])
	}
	return nil
}

// Gather implements backend.Backend: the root rank collects inputs[i] of
// every rank into outputs[i]; other ranks pass empty outputs.
func (b *Backend) Gather(_ context.Context, outputs [][]types.Tensor, inputs []types.Tensor, opts types.GatherOptions) (*work.Work, error) {
	in, err := asDense(inputs)
	if err != nil {
		return nil, err
	}
	var out [][]*tensor.Dense
	if b.Rank() == opts.RootRank {
		out, err = b.gatherOutputs(outputs, len(inputs))
		if err != nil {
			return nil, err
		}
	}
	root := opts.RootRank
	return b.runCollective("gather", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		contribs, err := b.exchange.rendezvous(ctx, ticket, b.Rank(), snapshot(in))
		if err != nil {
			return err
		}
		if b.Rank() != root {
			return nil
		}
		for i := range in {
			for r := 0; r < b.Size(); r++ {
				if err := copyInto(out[i][r], contribs[r][i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Scatter implements backend.Backend: the root rank's inputs[i][r] lands
// in rank r's outputs[i]; non-root ranks pass empty inputs.
func (b *Backend) Scatter(_ context.Context, outputs []types.Tensor, inputs [][]types.Tensor, opts types.ScatterOptions) (*work.Work, error) {
	out, err := asDense(outputs)
	if err != nil {
		return nil, err
	}
	root := opts.RootRank
	var in [][]*tensor.Dense
	if b.Rank() == root {
		in, err = b.gatherOutputs(inputs, len(outputs))
		if err != nil {
			return nil, err
		}
	}
	return b.runCollective("scatter", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		var contrib payload
		if b.Rank() == root {
			// Root contributes size slices per output, flattened in rank order.
			contrib = make(payload, 0, len(in)*b.Size())
			for i := range in {
				for r := 0; r < b.Size(); r++ {
					contrib = append(contrib, append([]float64(nil), in[i][r].Data()...))
				}
			}
		} else {
			contrib = payload{}
		}
		contribs, err := b.exchange.rendezvous(ctx, ticket, b.Rank(), contrib)
		if err != nil {
			return err
		}
		for i, t := range out {
			if err := copyInto(t, contribs[root][i*b.Size()+b.Rank()]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReduceScatter implements backend.Backend: inputs[i] (one tensor per
// rank) are reduced elementwise across ranks and each rank keeps its slot
// in outputs[i].
func (b *Backend) ReduceScatter(_ context.Context, outputs []types.Tensor, inputs [][]types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error) {
	out, err := asDense(outputs)
	if err != nil {
		return nil, err
	}
	in, err := b.gatherOutputs(inputs, len(outputs))
	if err != nil {
		return nil, err
	}
	if err := validReduceOp(opts.ReduceOp); err != nil {
		return nil, err
	}
	op := opts.ReduceOp
	return b.runCollective("reduce_scatter", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		contrib := make(payload, 0, len(in)*b.Size())
		for i := range in {
			for r := 0; r < b.Size(); r++ {
				contrib = append(contrib, append([]float64(nil), in[i][r].Data()...))
			}
		}
		contribs, err := b.exchange.rendezvous(ctx, ticket, b.Rank(), contrib)
		if err != nil {
			return err
		}
		for i, t := range out {
			acc, err := reduceAcross(op, contribs, i*b.Size()+b.Rank())
			if err != nil {
				return err
			}
			if err := copyInto(t, acc); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReduceScatterBase implements backend.Backend: input is size*numel(output)
// elements; chunk r is reduced across ranks into rank r's output.
func (b *Backend) ReduceScatterBase(_ context.Context, output, input types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error) {
	out, err := asDenseOne(output)
	if err != nil {
		return nil, err
	}
	in, err := asDenseOne(input)
	if err != nil {
		return nil, err
	}
	if in.Numel() != out.Numel()*b.Size() {
		return nil, types.Errorf(types.ErrInvalidOptions,
			"reduce_scatter_base input must have %d elements, got %d", out.Numel()*b.Size(), in.Numel())
	}
	if err := validReduceOp(opts.ReduceOp); err != nil {
		return nil, err
	}
	op := opts.ReduceOp
	return b.runCollective("reduce_scatter_base", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		return b.reduceScatterBaseRound(ctx, ticket, out, in, op)
	})
}

// ReduceScatterTensorCoalesced implements backend.Backend: pairwise
// reduce_scatter_base over the two lists as one round.
func (b *Backend) ReduceScatterTensorCoalesced(_ context.Context, outputs, inputs []types.Tensor, opts types.ReduceScatterOptions) (*work.Work, error) {
	out, err := asDense(outputs)
	if err != nil {
		return nil, err
	}
	in, err := asDense(inputs)
	if err != nil {
		return nil, err
	}
	if len(out) != len(in) {
		return nil, types.Errorf(types.ErrInvalidOptions,
			"coalesced reduce_scatter needs matching lists, got %d outputs and %d inputs", len(out), len(in))
	}
	for i := range in {
		if in[i].Numel() != out[i].Numel()*b.Size() {
			return nil, types.Errorf(types.ErrInvalidOptions,
				"coalesced reduce_scatter input %d must have %d elements, got %d",
				i, out[i].Numel()*b.Size(), in[i].Numel())
		}
	}
	if err := validReduceOp(opts.ReduceOp); err != nil {
		return nil, err
	}
	op := opts.ReduceOp
	return b.runCollective("reduce_scatter_tensor_coalesced", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		contribs, err := b.exchange.rendezvous(ctx, ticket, b.Rank(), snapshot(in))
		if err != nil {
			return err
		}
		for i := range in {
			if err := b.reduceScatterChunk(contribs, i, out[i], op); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) reduceScatterBaseRound(ctx context.Context, ticket uint64, out, in *tensor.Dense, op types.ReduceOp) error {
	contribs, err := b.exchange.rendezvous(ctx, ticket, b.Rank(), snapshot([]*tensor.Dense{in}))
	if err != nil {
		return err
	}
	return b.reduceScatterChunk(contribs, 0, out, op)
}

// reduceScatterChunk reduces this rank's chunk of contribution slot idx
// across all ranks into out.
func (b *Backend) reduceScatterChunk(contribs []payload, idx int, out *tensor.Dense, op types.ReduceOp) error {
	chunk := out.Numel()
	lo, hi := b.Rank()*chunk, (b.Rank()+1)*chunk
	acc := append([]float64(nil), contribs[0][idx][lo:hi]...)
	for _, c := range contribs[1:] {
		if err := reduceInto(op, acc, c[idx][lo:hi]); err != nil {
			return err
		}
	}
	finishReduce(op, acc, len(contribs))
	copy(out.Data(), acc)
	return nil
}

// AllToAllBase implements backend.Backend: input split j of every rank is
// sent to rank j; output split r holds rank r's chunk for this rank.
// Empty split lists mean equal chunks.
func (b *Backend) AllToAllBase(_ context.Context, output, input types.Tensor, outputSplits, inputSplits []int64, opts types.AllToAllOptions) (*work.Work, error) {
	out, err := asDenseOne(output)
	if err != nil {
		return nil, err
	}
	in, err := asDenseOne(input)
	if err != nil {
		return nil, err
	}
	if err := types.ValidateSplitSizes(inputSplits, in.Numel()); err != nil {
		return nil, err
	}
	if err := types.ValidateSplitSizes(outputSplits, out.Numel()); err != nil {
		return nil, err
	}
	inSizes, err := splitSizes(inputSplits, in.Numel(), b.Size())
	if err != nil {
		return nil, err
	}
	outSizes, err := splitSizes(outputSplits, out.Numel(), b.Size())
	if err != nil {
		return nil, err
	}
	return b.runCollective("alltoall_base", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		// Contribute pre-split chunks so peers need not know our split sizes.
		contrib := make(payload, b.Size())
		data := in.Data()
		off := 0
		for j := 0; j < b.Size(); j++ {
			contrib[j] = append([]float64(nil), data[off:off+inSizes[j]]...)
			off += inSizes[j]
		}
		contribs, err := b.exchange.rendezvous(ctx, ticket, b.Rank(), contrib)
		if err != nil {
			return err
		}
		dst := out.Data()
		off = 0
		for r := 0; r < b.Size(); r++ {
			chunk := contribs[r][b.Rank()]
			if len(chunk) != outSizes[r] {
				return types.Errorf(types.ErrInvalidOptions,
					"alltoall split mismatch: rank %d sent %d elements, output split expects %d",
					r, len(chunk), outSizes[r])
			}
			copy(dst[off:off+outSizes[r]], chunk)
			off += outSizes[r]
		}
		return nil
	})
}

// AllToAll implements backend.Backend: outputs[r] receives rank r's
// inputs[this rank].
func (b *Backend) AllToAll(_ context.Context, outputs, inputs []types.Tensor, opts types.AllToAllOptions) (*work.Work, error) {
	out, err := asDense(outputs)
	if err != nil {
		return nil, err
	}
	in, err := asDense(inputs)
	if err != nil {
		return nil, err
	}
	if len(in) != b.Size() || len(out) != b.Size() {
		return nil, types.Errorf(types.ErrInvalidOptions,
			"alltoall needs one tensor per rank: got %d inputs and %d outputs for size %d",
			len(in), len(out), b.Size())
	}
	return b.runCollective("alltoall", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		contribs, err := b.exchange.rendezvous(ctx, ticket, b.Rank(), snapshot(in))
		if err != nil {
			return err
		}
		for r := 0; r < b.Size(); r++ {
			if err := copyInto(out[r], contribs[r][b.Rank()]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Barrier implements backend.Backend: a data-free rendezvous.
func (b *Backend) Barrier(_ context.Context, opts types.BarrierOptions) (*work.Work, error) {
	return b.runCollective("barrier", opts.Timeout, func(ctx context.Context, ticket uint64) error {
		_, err := b.exchange.rendezvous(ctx, ticket, b.Rank(), payload{})
		return err
	})
}

// MonitoredBarrier implements backend.Backend: a synchronous barrier that
// names the ranks missing at timeout. waitAllRanks reports every straggler
// instead of the first.
func (b *Backend) MonitoredBarrier(ctx context.Context, opts types.BarrierOptions, waitAllRanks bool) error {
	if b.closed.Load() {
		return types.Errorf(types.ErrBackendClosed, "backend %s is closed", b.Name()).WithBackend(b.Name())
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = types.DefaultTimeout
	}
	ticket := b.issueSeq.Add(1)
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := b.exchange.rendezvous(tctx, ticket, b.Rank(), payload{})
	if err == nil {
		b.completedSeq.Add(1)
		return nil
	}
	missing := b.exchange.missingRanks(ticket)
	if len(missing) == 0 {
		return err
	}
	if !waitAllRanks {
		missing = missing[:1]
	}
	return types.Errorf(types.ErrTimeout,
		"monitored barrier timed out after %v waiting for ranks %v", timeout, missing).WithBackend(b.Name())
}

// gatherOutputs asserts the nested tensor lists used by gather-family ops:
// want lists, each holding one tensor per rank.
func (b *Backend) gatherOutputs(lists [][]types.Tensor, want int) ([][]*tensor.Dense, error) {
	if len(lists) != want {
		return nil, types.Errorf(types.ErrInvalidOptions,
			"expected %d tensor lists, got %d", want, len(lists))
	}
	out := make([][]*tensor.Dense, len(lists))
	for i, list := range lists {
		if len(list) != b.Size() {
			return nil, types.Errorf(types.ErrInvalidOptions,
				"tensor list %d must hold one tensor per rank (%d), got %d", i, b.Size(), len(list))
		}
		dense, err := asDense(list)
		if err != nil {
			return nil, err
		}
		out[i] = dense
	}
	return out, nil
}

func copyInto(dst *tensor.Dense, src []float64) error {
	if dst.Numel() != len(src) {
		return types.Errorf(types.ErrInvalidOptions,
			"buffer size mismatch: got %d elements for a %d-element buffer", len(src), dst.Numel())
	}
	copy(dst.Data(), src)
	return nil
}

// splitSizes expands an optional split list to concrete per-rank sizes.
func splitSizes(splits []int64, total, size int) ([]int, error) {
	out := make([]int, size)
	if len(splits) == 0 {
		if total%size != 0 {
			return nil, types.Errorf(types.ErrInvalidOptions,
				"buffer of %d elements does not split evenly across %d ranks", total, size)
		}
		for i := range out {
			out[i] = total / size
		}
		return out, nil
	}
	if len(splits) != size {
		return nil, types.Errorf(types.ErrInvalidOptions,
			"split list must have one entry per rank (%d), got %d", size, len(splits))
	}
	for i, s := range splits {
		out[i] = int(s)
	}
	return out, nil
}
