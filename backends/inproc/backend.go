// Package inproc implements the gloo-kind in-process backend: every rank
// of the group lives in the same process and meets its peers through a
// shared Exchange. It executes collectives on its own goroutine pool,
// tracks sequence numbers, supports coalescing, completion hooks and the
// pending-work drain, making it the reference backend for the dispatch
// layer and its test suite.
package inproc

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/commflow/backend"
	"github.com/BaSui01/commflow/internal/pool"
	"github.com/BaSui01/commflow/store"
	"github.com/BaSui01/commflow/types"
	"github.com/BaSui01/commflow/work"
)

// Config configures one rank's backend instance.
type Config struct {
	// Rank and Size identify this process within the group.
	Rank int
	Size int

	// Exchange is the shared meeting point; all ranks of the group must
	// receive the same instance.
	Exchange *Exchange

	// Store is the bootstrap rendezvous, used by the sequence-number
	// protocol. Optional when sequence numbers are never seeded.
	Store store.Store

	// SeqKey namespaces the sequence-number baseline in the store.
	SeqKey string

	// BackendType reported to the group; defaults to gloo.
	BackendType types.BackendType

	// Pool sizes the execution pool.
	Pool pool.Config

	Logger *zap.Logger
}

type queuedOp struct {
	opName  string
	timeout time.Duration
	w       *work.Work
	fn      func(ctx context.Context, ticket uint64) error
}

// Backend is one rank's view of the in-process group.
type Backend struct {
	backend.Unimplemented

	exchange *Exchange
	store    store.Store
	seqKey   string
	pool     *pool.Pool
	logger   *zap.Logger

	// issueSeq tickets collective rounds; aligned across ranks by the
	// SPMD issue-order contract.
	issueSeq     atomic.Uint64
	completedSeq atomic.Uint64

	closed atomic.Bool

	pendingMu     sync.Mutex
	pending       map[*work.Work]struct{}
	pendingNotify chan struct{}

	hookMu sync.Mutex
	hook   work.Hook

	coalesceMu sync.Mutex
	coalescing bool
	queue      []queuedOp
}

// New creates the backend instance for one rank.
func New(cfg Config) (*Backend, error) {
	if cfg.Exchange == nil {
		return nil, types.NewError(types.ErrInvalidOptions, "inproc backend requires an exchange")
	}
	if cfg.Size != cfg.Exchange.Size() {
		return nil, types.Errorf(types.ErrInvalidOptions,
			"group size %d does not match exchange size %d", cfg.Size, cfg.Exchange.Size())
	}
	if cfg.Rank < 0 || cfg.Rank >= cfg.Size {
		return nil, types.Errorf(types.ErrInvalidRank, "rank %d outside group of size %d", cfg.Rank, cfg.Size)
	}
	if cfg.BackendType == types.BackendUndefined {
		cfg.BackendType = types.BackendGloo
	}
	if cfg.SeqKey == "" {
		cfg.SeqKey = "inproc/seq"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	b := &Backend{
		Unimplemented: backend.NewUnimplemented("inproc", cfg.BackendType, cfg.Rank, cfg.Size),
		exchange:      cfg.Exchange,
		store:         cfg.Store,
		seqKey:        cfg.SeqKey,
		pool:          pool.New(cfg.Pool),
		logger:        cfg.Logger.With(zap.Int("rank", cfg.Rank)),
		pending:       make(map[*work.Work]struct{}),
		pendingNotify: make(chan struct{}),
	}
	return b, nil
}

// runCollective issues one collective: it allocates a round ticket, creates
// the work handle and hands the body to the pool. While a coalescing
// bracket is open the op is queued instead and its ticket is allocated at
// flush time so queue order stays aligned across ranks.
func (b *Backend) runCollective(opName string, timeout time.Duration, fn func(ctx context.Context, ticket uint64) error) (*work.Work, error) {
	if b.closed.Load() {
		return nil, types.Errorf(types.ErrBackendClosed, "backend %s is closed", b.Name()).WithBackend(b.Name())
	}

	b.coalesceMu.Lock()
	if b.coalescing {
		w := work.New(opName)
		b.queue = append(b.queue, queuedOp{opName: opName, timeout: timeout, w: w, fn: fn})
		b.coalesceMu.Unlock()
		b.addPending(w)
		return w, nil
	}
	b.coalesceMu.Unlock()

	ticket := b.issueSeq.Add(1)
	w := work.NewSeq(opName, ticket)
	b.addPending(w)

	if err := b.pool.Submit(context.Background(), func(context.Context) {
		b.execute(w, timeout, ticket, fn)
	}); err != nil {
		b.finish(w, types.WrapError(types.ErrOpFailed, "submit "+opName, err))
		return w, nil
	}
	return w, nil
}

// execute runs one op body under its timeout and drives the work handle to
// a terminal state.
func (b *Backend) execute(w *work.Work, timeout time.Duration, ticket uint64, fn func(ctx context.Context, ticket uint64) error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	b.finish(w, fn(ctx, ticket))
}

// finish transitions w, maintains the completed-collective counter, removes
// it from the pending set and delivers completion hooks in order.
func (b *Backend) finish(w *work.Work, err error) {
	switch {
	case err == nil:
		w.Complete()
		b.completedSeq.Add(1)
	case types.IsErrorCode(err, types.ErrTimeout):
		// Timeout watchdog: a timed-out collective is canceled, not failed.
		w.Cancel(err)
	default:
		w.Fail(err)
	}
	b.removePending(w)
	b.runHooks(w)
}

func (b *Backend) addPending(w *work.Work) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	b.pending[w] = struct{}{}
}

func (b *Backend) removePending(w *work.Work) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	delete(b.pending, w)
	close(b.pendingNotify)
	b.pendingNotify = make(chan struct{})
}

func (b *Backend) runHooks(w *work.Work) {
	b.hookMu.Lock()
	defer b.hookMu.Unlock()
	if b.hook == nil {
		return
	}
	b.hook(w.Snapshot())
}

// StartCoalescing implements backend.Backend. Nesting is rejected.
func (b *Backend) StartCoalescing(context.Context) error {
	b.coalesceMu.Lock()
	defer b.coalesceMu.Unlock()
	if b.coalescing {
		return types.Errorf(types.ErrCoalesceNested,
			"backend %s already has an open coalescing bracket", b.Name()).WithBackend(b.Name())
	}
	b.coalescing = true
	b.queue = nil
	return nil
}

// EndCoalescing implements backend.Backend: it flushes the accumulated
// batch as one unit and returns a single work handle for it. An empty
// bracket yields an already-successful work.
func (b *Backend) EndCoalescing(context.Context) (*work.Work, error) {
	b.coalesceMu.Lock()
	if !b.coalescing {
		b.coalesceMu.Unlock()
		return nil, types.Errorf(types.ErrCoalesceInactive,
			"backend %s has no open coalescing bracket", b.Name()).WithBackend(b.Name())
	}
	batch := b.queue
	b.queue = nil
	b.coalescing = false
	b.coalesceMu.Unlock()

	if len(batch) == 0 {
		return work.Completed("coalesced"), nil
	}

	batchWork := work.New("coalesced")
	b.addPending(batchWork)
	if err := b.pool.Submit(context.Background(), func(context.Context) {
		var firstErr error
		for _, op := range batch {
			ticket := b.issueSeq.Add(1)
			ctx := context.Background()
			var cancel context.CancelFunc
			if op.timeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, op.timeout)
			}
			err := op.fn(ctx, ticket)
			if cancel != nil {
				cancel()
			}
			b.finish(op.w, err)
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		b.finish(batchWork, firstErr)
	}); err != nil {
		submitErr := types.WrapError(types.ErrOpFailed, "submit coalesced batch", err)
		for _, op := range batch {
			b.finish(op.w, submitErr)
		}
		b.finish(batchWork, submitErr)
	}
	return batchWork, nil
}

// SetSequenceNumberForGroup implements the baseline agreement: rank 0
// publishes its counter through the store and every other rank adopts it.
func (b *Backend) SetSequenceNumberForGroup(ctx context.Context) error {
	if b.store == nil {
		return types.Errorf(types.ErrStoreFailed,
			"backend %s has no bootstrap store for sequence numbers", b.Name()).WithBackend(b.Name())
	}
	if b.Rank() == 0 {
		baseline := b.completedSeq.Load()
		return b.store.Set(ctx, b.seqKey, []byte(strconv.FormatUint(baseline, 10)))
	}
	if err := b.store.Wait(ctx, b.seqKey); err != nil {
		return err
	}
	v, err := b.store.Get(ctx, b.seqKey)
	if err != nil {
		return err
	}
	baseline, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return types.WrapError(types.ErrStoreFailed, "malformed sequence baseline", err)
	}
	b.completedSeq.Store(baseline)
	return nil
}

// GetSequenceNumberForGroup returns the locally tracked counter of
// completed collectives.
func (b *Backend) GetSequenceNumberForGroup() (uint64, error) {
	return b.completedSeq.Load(), nil
}

// RegisterOnCompletionHook implements backend.Backend. The hook runs in
// completion order, serialized per backend. At most one hook can be
// registered per backend instance.
func (b *Backend) RegisterOnCompletionHook(hook work.Hook) error {
	if hook == nil {
		return types.NewError(types.ErrInvalidOptions, "nil completion hook")
	}
	b.hookMu.Lock()
	defer b.hookMu.Unlock()
	if b.hook != nil {
		return types.Errorf(types.ErrInvalidOptions,
			"backend %s already has a completion hook registered", b.Name()).WithBackend(b.Name())
	}
	b.hook = hook
	return nil
}

// HasHooks implements backend.Backend.
func (b *Backend) HasHooks() bool {
	b.hookMu.Lock()
	defer b.hookMu.Unlock()
	return b.hook != nil
}

// WaitForPendingWorks blocks until every outstanding work reaches a
// terminal state. It drains; it never cancels.
func (b *Backend) WaitForPendingWorks(ctx context.Context) error {
	for {
		b.pendingMu.Lock()
		n := len(b.pending)
		ch := b.pendingNotify
		b.pendingMu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return types.WrapError(types.ErrTimeout, "draining pending works", ctx.Err())
		}
	}
}

// PendingWorks reports the number of outstanding works.
func (b *Backend) PendingWorks() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.pending)
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.pool.Close()
	return nil
}

var _ backend.Backend = (*Backend)(nil)
