package inproc

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/commflow/tensor"
	"github.com/BaSui01/commflow/types"
	"github.com/BaSui01/commflow/work"
)

// p2pTimeout bounds point-to-point operations, which carry no option
// struct of their own.
const p2pTimeout = types.DefaultTimeout

// Send implements backend.Backend: tensors are copied into the (dst, tag)
// mailbox. The work completes once the message is queued.
func (b *Backend) Send(_ context.Context, tensors []types.Tensor, dstRank, tag int) (*work.Work, error) {
	dense, err := asDense(tensors)
	if err != nil {
		return nil, err
	}
	if err := b.validatePeer(dstRank); err != nil {
		return nil, err
	}
	return b.runP2P("send", func(ctx context.Context) error {
		return b.exchange.sendMail(ctx, b.Rank(), dstRank, tag, snapshot(dense))
	})
}

// Recv implements backend.Backend: blocks (asynchronously) on the next
// message for (this rank, tag) and requires it to originate from srcRank.
func (b *Backend) Recv(_ context.Context, tensors []types.Tensor, srcRank, tag int) (*work.Work, error) {
	dense, err := asDense(tensors)
	if err != nil {
		return nil, err
	}
	if err := b.validatePeer(srcRank); err != nil {
		return nil, err
	}
	return b.runP2P("recv", func(ctx context.Context) error {
		msg, err := b.exchange.recvMail(ctx, b.Rank(), tag)
		if err != nil {
			return err
		}
		if msg.src != srcRank {
			// Put the message back for a receiver that does match it.
			if reqErr := b.exchange.sendMail(ctx, msg.src, b.Rank(), tag, msg.data); reqErr != nil {
				b.logger.Warn("dropping mismatched message, requeue failed",
					zap.Int("src", msg.src), zap.Int("tag", tag), zap.Error(reqErr))
			}
			return types.Errorf(types.ErrRankMismatch,
				"recv expected a message from rank %d, got one from rank %d on tag %d",
				srcRank, msg.src, tag)
		}
		return deliver(dense, msg.data)
	})
}

// RecvAnysource implements backend.Backend: accepts the next message for
// (this rank, tag) from any peer.
func (b *Backend) RecvAnysource(_ context.Context, tensors []types.Tensor, tag int) (*work.Work, error) {
	dense, err := asDense(tensors)
	if err != nil {
		return nil, err
	}
	return b.runP2P("recv_anysource", func(ctx context.Context) error {
		msg, err := b.exchange.recvMail(ctx, b.Rank(), tag)
		if err != nil {
			return err
		}
		return deliver(dense, msg.data)
	})
}

// runP2P issues a point-to-point op. P2P traffic does not consume
// collective tickets and does not advance the sequence-number counter, so
// it bypasses runCollective.
func (b *Backend) runP2P(opName string, fn func(ctx context.Context) error) (*work.Work, error) {
	if b.closed.Load() {
		return nil, types.Errorf(types.ErrBackendClosed, "backend %s is closed", b.Name()).WithBackend(b.Name())
	}
	w := work.New(opName)
	b.addPending(w)
	if err := b.pool.Submit(context.Background(), func(context.Context) {
		ctx, cancel := context.WithTimeout(context.Background(), p2pTimeout)
		defer cancel()
		err := fn(ctx)
		switch {
		case err == nil:
			w.Complete()
		case types.IsErrorCode(err, types.ErrTimeout):
			w.Cancel(err)
		default:
			w.Fail(err)
		}
		b.removePending(w)
		b.runHooks(w)
	}); err != nil {
		submitErr := types.WrapError(types.ErrOpFailed, "submit "+opName, err)
		w.Fail(submitErr)
		b.removePending(w)
		b.runHooks(w)
	}
	return w, nil
}

func (b *Backend) validatePeer(rank int) error {
	if rank < 0 || rank >= b.Size() {
		return types.Errorf(types.ErrInvalidRank, "peer rank %d outside group of size %d", rank, b.Size())
	}
	if rank == b.Rank() {
		return types.Errorf(types.ErrInvalidRank, "rank %d cannot send to or receive from itself", rank)
	}
	return nil
}

func deliver(dst []*tensor.Dense, src payload) error {
	if len(src) != len(dst) {
		return types.Errorf(types.ErrInvalidOptions,
			"message carries %d tensors, receiver supplied %d buffers", len(src), len(dst))
	}
	for i, t := range dst {
		if err := copyInto(t, src[i]); err != nil {
			return err
		}
	}
	return nil
}
