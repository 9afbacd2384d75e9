package group

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/commflow/backend"
	"github.com/BaSui01/commflow/types"
	"github.com/BaSui01/commflow/work"
)

// MonitoredBarrier is the synchronous, diagnosing barrier: it blocks the
// caller until every rank joins or the timeout expires, and on failure
// names the ranks that never arrived. Only gloo-kind backends provide it,
// and it always runs on the CPU backend regardless of the group's default.
func (g *Group) MonitoredBarrier(ctx context.Context, opts types.BarrierOptions, waitAllRanks bool) error {
	if err := types.ValidateTimeout(opts.Timeout); err != nil {
		return err
	}
	b, err := g.Backend(types.DeviceCPU)
	if err != nil {
		return err
	}
	if b.Type() != types.BackendGloo {
		return types.Errorf(types.ErrUnsupportedOp,
			"monitored barrier is only implemented by gloo-kind backends, got %s", b.Type()).WithBackend(b.Name())
	}
	g.logger.Debug("monitored barrier", zap.Bool("wait_all_ranks", waitAllRanks))
	return b.MonitoredBarrier(ctx, opts, waitAllRanks)
}

// SetSequenceNumberForGroup agrees on a collective sequence baseline
// across all ranks via the bootstrap store. Only backend kinds that track
// sequence numbers participate.
func (g *Group) SetSequenceNumberForGroup(ctx context.Context) error {
	b, err := g.seqnumBackend()
	if err != nil {
		return err
	}
	return b.SetSequenceNumberForGroup(ctx)
}

// GetSequenceNumberForGroup returns the current collective sequence
// number of the default backend.
func (g *Group) GetSequenceNumberForGroup() (uint64, error) {
	b, err := g.seqnumBackend()
	if err != nil {
		return 0, err
	}
	return b.GetSequenceNumberForGroup()
}

func (g *Group) seqnumBackend() (backend.Backend, error) {
	b, err := g.DefaultBackend()
	if err != nil {
		return nil, err
	}
	if !b.Type().SupportsSequenceNumbers() {
		return nil, types.Errorf(types.ErrUnsupportedOp,
			"sequence numbers are not tracked by %s-kind backends", b.Type()).WithBackend(b.Name())
	}
	return b, nil
}

// RegisterOnCompletionHook installs the completion hook on the group's
// default backend. The hook observes a snapshot of each finished work, in
// completion order. Missing default backend is the documented failure.
func (g *Group) RegisterOnCompletionHook(hook work.Hook) error {
	b, err := g.DefaultBackend()
	if err != nil {
		return err
	}
	return b.RegisterOnCompletionHook(hook)
}

// HasHooks reports whether the default backend carries a completion hook.
func (g *Group) HasHooks() bool {
	b, err := g.DefaultBackend()
	if err != nil {
		return false
	}
	return b.HasHooks()
}

// WaitForPendingWorks blocks until the default backend has drained its
// in-flight works, or the context expires.
func (g *Group) WaitForPendingWorks(ctx context.Context) error {
	b, err := g.DefaultBackend()
	if err != nil {
		return err
	}
	return b.WaitForPendingWorks(ctx)
}
