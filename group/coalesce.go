package group

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/commflow/types"
	"github.com/BaSui01/commflow/work"
)

// StartCoalescing opens a coalescing bracket on the backend serving
// deviceType. Collectives issued inside the bracket are accumulated and
// flushed as one batch by EndCoalescing. Brackets do not nest: opening a
// second bracket for the same device type is rejected.
func (g *Group) StartCoalescing(ctx context.Context, deviceType types.DeviceType) error {
	b, err := g.Backend(deviceType)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if g.coalescing[deviceType] {
		g.mu.Unlock()
		return types.Errorf(types.ErrCoalesceNested,
			"coalescing already active for device type %s", deviceType)
	}
	g.coalescing[deviceType] = true
	g.mu.Unlock()

	if err := b.StartCoalescing(ctx); err != nil {
		g.mu.Lock()
		delete(g.coalescing, deviceType)
		g.mu.Unlock()
		return err
	}
	g.logger.Debug("coalescing started", zap.String("device_type", deviceType.String()))
	return nil
}

// EndCoalescing flushes the bracket for deviceType and returns one work
// handle covering the whole batch. An empty bracket yields an already
// successful handle.
func (g *Group) EndCoalescing(ctx context.Context, deviceType types.DeviceType) (*work.Work, error) {
	b, err := g.Backend(deviceType)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if !g.coalescing[deviceType] {
		g.mu.Unlock()
		return nil, types.Errorf(types.ErrCoalesceInactive,
			"no coalescing bracket active for device type %s", deviceType)
	}
	delete(g.coalescing, deviceType)
	g.mu.Unlock()

	w, err := b.EndCoalescing(ctx)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("coalescing flushed", zap.String("device_type", deviceType.String()))
	g.observe("coalesced", b.Name(), w)
	return w, nil
}
