package group_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"

	"github.com/BaSui01/commflow/backends/inproc"
	"github.com/BaSui01/commflow/group"
	"github.com/BaSui01/commflow/store"
	"github.com/BaSui01/commflow/tensor"
	"github.com/BaSui01/commflow/types"
	"github.com/BaSui01/commflow/work"
)

// localGroups builds size groups over a shared in-process exchange, each
// with its inproc backend attached as the gloo CPU backend.
func localGroups(t *testing.T, size int) []*group.Group {
	t.Helper()
	ex := inproc.NewExchange(size)
	st := store.NewMemStore()
	logger := zaptest.NewLogger(t)

	groups := make([]*group.Group, size)
	for rank := 0; rank < size; rank++ {
		g, err := group.New(group.Config{
			Rank:    rank,
			Size:    size,
			Store:   st,
			Options: types.DefaultGroupOptions("gloo"),
			Logger:  logger,
		})
		require.NoError(t, err)

		b, err := inproc.New(inproc.Config{
			Rank:     rank,
			Size:     size,
			Exchange: ex,
			Store:    st,
			Logger:   logger,
		})
		require.NoError(t, err)
		require.NoError(t, g.SetBackend(types.DeviceCPU, types.BackendGloo, b))
		groups[rank] = g
	}
	t.Cleanup(func() {
		for _, g := range groups {
			g.Close()
		}
	})
	return groups
}

func runGroups(t *testing.T, groups []*group.Group, fn func(g *group.Group) error) {
	t.Helper()
	var eg errgroup.Group
	for _, g := range groups {
		eg.Go(func() error {
			if err := fn(g); err != nil {
				return fmt.Errorf("rank %d: %w", g.Rank(), err)
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
}

func cpu(data ...float64) *tensor.Dense {
	return tensor.FromSlice(types.NewDevice(types.DeviceCPU), data)
}

func TestNew_Validation(t *testing.T) {
	_, err := group.New(group.Config{Rank: 0, Size: 0})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRank))

	_, err = group.New(group.Config{Rank: 4, Size: 4})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRank))

	_, err = group.New(group.Config{Rank: -1, Size: 4})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRank))

	opts := types.DefaultGroupOptions("gloo")
	opts.Timeout = -time.Second
	_, err = group.New(group.Config{Rank: 0, Size: 1, Options: opts})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidOptions))
}

func TestNew_Defaults(t *testing.T) {
	g, err := group.New(group.Config{Rank: 1, Size: 4, Options: types.GroupOptions{Backend: "nccl"}})
	require.NoError(t, err)

	assert.Equal(t, 1, g.Rank())
	assert.Equal(t, 4, g.Size())
	assert.Equal(t, types.BackendNCCL, g.BackendType())
	assert.Equal(t, types.DefaultTimeout, g.Options().Timeout)
	assert.NotEmpty(t, g.ID())
	assert.False(t, g.HasBackends())
	assert.Empty(t, g.DeviceTypes())
}

func TestNew_RankSizeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(-2, 8).Draw(t, "size")
		rank := rapid.IntRange(-2, 10).Draw(t, "rank")
		g, err := group.New(group.Config{Rank: rank, Size: size})
		if size > 0 && rank >= 0 && rank < size {
			if err != nil {
				t.Fatalf("valid rank %d of %d rejected: %v", rank, size, err)
			}
			if g.Rank() != rank || g.Size() != size {
				t.Fatalf("group reports %d/%d, want %d/%d", g.Rank(), g.Size(), rank, size)
			}
		} else if err == nil {
			t.Fatalf("invalid rank %d of %d accepted", rank, size)
		}
	})
}

func TestSetBackend_ReusesInstancePerBackendType(t *testing.T) {
	groups := localGroups(t, 1)
	g := groups[0]

	cpuBackend, err := g.Backend(types.DeviceCPU)
	require.NoError(t, err)

	// Attaching the same backend type for another device type must reuse
	// the existing instance, even with no instance supplied.
	require.NoError(t, g.SetBackend(types.DeviceCUDA, types.BackendGloo, nil))
	cudaBackend, err := g.Backend(types.DeviceCUDA)
	require.NoError(t, err)
	assert.Same(t, cpuBackend, cudaBackend)

	byType, err := g.BackendByType(types.BackendGloo)
	require.NoError(t, err)
	assert.Same(t, cpuBackend, byType)

	assert.True(t, g.HasBackends())
	assert.Len(t, g.DeviceTypes(), 2)

	id, err := g.BackendID(types.BackendGloo)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestSetBackend_BoundDeviceMismatch(t *testing.T) {
	groups := localGroups(t, 1)
	g := groups[0]

	ex := inproc.NewExchange(1)
	other, err := inproc.New(inproc.Config{Rank: 0, Size: 1, Exchange: ex})
	require.NoError(t, err)
	dev := types.NewIndexedDevice(types.DeviceCUDA, 1)
	require.NoError(t, other.SetBoundDeviceID(&dev))

	err = g.SetBackend(types.DeviceCUDA, types.BackendGloo, other)
	assert.True(t, types.IsErrorCode(err, types.ErrBoundDeviceMismatch))
}

func TestBackend_NotFound(t *testing.T) {
	g, err := group.New(group.Config{Rank: 0, Size: 1})
	require.NoError(t, err)

	_, err = g.Backend(types.DeviceCUDA)
	assert.True(t, types.IsErrorCode(err, types.ErrBackendNotFound))

	_, err = g.BackendByType(types.BackendNCCL)
	assert.True(t, types.IsErrorCode(err, types.ErrBackendNotFound))

	_, err = g.DefaultBackend()
	assert.True(t, types.IsErrorCode(err, types.ErrBackendNotFound))

	_, err = g.BackendID(types.BackendGloo)
	assert.True(t, types.IsErrorCode(err, types.ErrBackendNotFound))
}

func TestSetBoundDeviceID(t *testing.T) {
	groups := localGroups(t, 1)
	g := groups[0]

	noIndex := types.NewDevice(types.DeviceCUDA)
	err := g.SetBoundDeviceID(&noIndex)
	assert.True(t, types.IsErrorCode(err, types.ErrBoundDeviceNoIndex))
	assert.Nil(t, g.BoundDeviceID())

	dev := types.NewIndexedDevice(types.DeviceCPU, 0)
	require.NoError(t, g.SetBoundDeviceID(&dev))
	got := g.BoundDeviceID()
	require.NotNil(t, got)
	assert.Equal(t, dev, *got)
}

func TestGroupNameAndDesc(t *testing.T) {
	groups := localGroups(t, 1)
	g := groups[0]

	g.SetGroupName("trainers")
	g.SetGroupDesc("data parallel ranks")
	assert.Equal(t, "trainers", g.GroupName())
	assert.Equal(t, "data parallel ranks", g.GroupDesc())
}

func TestGroup_BroadcastAllreduce(t *testing.T) {
	groups := localGroups(t, 4)

	runGroups(t, groups, func(g *group.Group) error {
		buf := cpu(float64(g.Rank()))
		opts := types.DefaultBroadcastOptions()
		opts.RootRank = 3
		w, err := g.Broadcast(context.Background(), []types.Tensor{buf}, opts)
		if err != nil {
			return err
		}
		if err := w.Wait(context.Background()); err != nil {
			return err
		}
		assert.Equal(t, []float64{3}, buf.Data(), "rank %d", g.Rank())

		sum := cpu(float64(g.Rank() + 1))
		w, err = g.Allreduce(context.Background(), []types.Tensor{sum}, types.DefaultAllreduceOptions())
		if err != nil {
			return err
		}
		if err := w.Wait(context.Background()); err != nil {
			return err
		}
		assert.Equal(t, []float64{10}, sum.Data(), "rank %d", g.Rank())
		return nil
	})
}

func TestGroup_Barrier(t *testing.T) {
	groups := localGroups(t, 3)

	runGroups(t, groups, func(g *group.Group) error {
		w, err := g.Barrier(context.Background(), types.DefaultBarrierOptions())
		if err != nil {
			return err
		}
		return w.Wait(context.Background())
	})
}

func TestGroup_BarrierExplicitDevice(t *testing.T) {
	groups := localGroups(t, 1)
	opts := types.DefaultBarrierOptions()
	dev := types.NewDevice(types.DeviceCUDA)
	opts.Device = &dev

	// No CUDA backend is registered, so the explicit device must fail the
	// lookup instead of silently falling back to CPU.
	_, err := groups[0].Barrier(context.Background(), opts)
	assert.True(t, types.IsErrorCode(err, types.ErrBackendNotFound))
}

func TestGroup_SendRecv(t *testing.T) {
	groups := localGroups(t, 2)
	const tag = 3

	var eg errgroup.Group
	eg.Go(func() error {
		w, err := groups[0].Send(context.Background(), []types.Tensor{cpu(7, 8)}, 1, tag)
		if err != nil {
			return err
		}
		return w.Wait(context.Background())
	})
	eg.Go(func() error {
		buf := cpu(0, 0)
		w, err := groups[1].Recv(context.Background(), []types.Tensor{buf}, 0, tag)
		if err != nil {
			return err
		}
		if err := w.Wait(context.Background()); err != nil {
			return err
		}
		assert.Equal(t, []float64{7, 8}, buf.Data())
		return nil
	})
	require.NoError(t, eg.Wait())
}

func TestGroup_RootValidation(t *testing.T) {
	groups := localGroups(t, 2)
	g := groups[0]

	opts := types.DefaultBroadcastOptions()
	opts.RootRank = 5
	_, err := g.Broadcast(context.Background(), []types.Tensor{cpu(1)}, opts)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidOptions))

	opts = types.DefaultBroadcastOptions()
	opts.RootTensor = 2
	_, err = g.Broadcast(context.Background(), []types.Tensor{cpu(1)}, opts)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidOptions))

	_, err = g.Broadcast(context.Background(), nil, types.DefaultBroadcastOptions())
	assert.Error(t, err, "empty tensor list has no device to dispatch on")
}

func TestGroup_MixedDevicesRejected(t *testing.T) {
	groups := localGroups(t, 1)
	mixed := []types.Tensor{
		cpu(1),
		tensor.NewDense(types.NewDevice(types.DeviceCUDA), 1),
	}
	_, err := groups[0].Allreduce(context.Background(), mixed, types.DefaultAllreduceOptions())
	assert.Error(t, err)
}

func TestGroup_MonitoredBarrier(t *testing.T) {
	groups := localGroups(t, 2)

	runGroups(t, groups, func(g *group.Group) error {
		return g.MonitoredBarrier(context.Background(), types.DefaultBarrierOptions(), false)
	})
}

func TestGroup_MonitoredBarrierRequiresGloo(t *testing.T) {
	ex := inproc.NewExchange(1)
	b, err := inproc.New(inproc.Config{Rank: 0, Size: 1, Exchange: ex, BackendType: types.BackendNCCL})
	require.NoError(t, err)

	g, err := group.New(group.Config{Rank: 0, Size: 1, Options: types.DefaultGroupOptions("nccl")})
	require.NoError(t, err)
	require.NoError(t, g.SetBackend(types.DeviceCPU, types.BackendNCCL, b))

	err = g.MonitoredBarrier(context.Background(), types.DefaultBarrierOptions(), false)
	assert.True(t, types.IsErrorCode(err, types.ErrUnsupportedOp))
}

func TestGroup_SequenceNumbers(t *testing.T) {
	groups := localGroups(t, 2)

	runGroups(t, groups, func(g *group.Group) error {
		if err := g.SetSequenceNumberForGroup(context.Background()); err != nil {
			return err
		}
		w, err := g.Barrier(context.Background(), types.DefaultBarrierOptions())
		if err != nil {
			return err
		}
		if err := w.Wait(context.Background()); err != nil {
			return err
		}
		seq, err := g.GetSequenceNumberForGroup()
		if err != nil {
			return err
		}
		assert.Equal(t, uint64(1), seq, "rank %d", g.Rank())
		return nil
	})
}

func TestGroup_SequenceNumbersUnsupportedKind(t *testing.T) {
	ex := inproc.NewExchange(1)
	b, err := inproc.New(inproc.Config{Rank: 0, Size: 1, Exchange: ex, BackendType: types.BackendMPI})
	require.NoError(t, err)

	g, err := group.New(group.Config{Rank: 0, Size: 1, Options: types.DefaultGroupOptions("mpi")})
	require.NoError(t, err)
	require.NoError(t, g.SetBackend(types.DeviceCPU, types.BackendMPI, b))

	_, err = g.GetSequenceNumberForGroup()
	assert.True(t, types.IsErrorCode(err, types.ErrUnsupportedOp))
	err = g.SetSequenceNumberForGroup(context.Background())
	assert.True(t, types.IsErrorCode(err, types.ErrUnsupportedOp))
}

func TestGroup_Coalescing(t *testing.T) {
	groups := localGroups(t, 2)

	runGroups(t, groups, func(g *group.Group) error {
		if err := g.StartCoalescing(context.Background(), types.DeviceCPU); err != nil {
			return err
		}
		if err := g.StartCoalescing(context.Background(), types.DeviceCPU); !types.IsErrorCode(err, types.ErrCoalesceNested) {
			return fmt.Errorf("nested bracket accepted: %v", err)
		}

		buf := cpu(float64(g.Rank() + 1))
		w, err := g.Allreduce(context.Background(), []types.Tensor{buf}, types.DefaultAllreduceOptions())
		if err != nil {
			return err
		}

		batch, err := g.EndCoalescing(context.Background(), types.DeviceCPU)
		if err != nil {
			return err
		}
		if err := batch.Wait(context.Background()); err != nil {
			return err
		}
		if err := w.Wait(context.Background()); err != nil {
			return err
		}
		assert.Equal(t, []float64{3}, buf.Data())
		return nil
	})
}

func TestGroup_CoalescingInactive(t *testing.T) {
	groups := localGroups(t, 1)
	_, err := groups[0].EndCoalescing(context.Background(), types.DeviceCPU)
	assert.True(t, types.IsErrorCode(err, types.ErrCoalesceInactive))
}

func TestGroup_Hooks(t *testing.T) {
	groups := localGroups(t, 1)
	g := groups[0]

	gNoBackends, err := group.New(group.Config{Rank: 0, Size: 1})
	require.NoError(t, err)
	err = gNoBackends.RegisterOnCompletionHook(func(*work.Info) {})
	assert.True(t, types.IsErrorCode(err, types.ErrBackendNotFound))

	assert.False(t, g.HasHooks())
	done := make(chan *work.Info, 1)
	require.NoError(t, g.RegisterOnCompletionHook(func(info *work.Info) {
		select {
		case done <- info:
		default:
		}
	}))
	assert.True(t, g.HasHooks())

	w, err := g.Barrier(context.Background(), types.DefaultBarrierOptions())
	require.NoError(t, err)
	require.NoError(t, w.Wait(context.Background()))

	select {
	case info := <-done:
		assert.Equal(t, work.StatusCompleted, info.Status)
	case <-time.After(time.Second):
		t.Fatal("completion hook never fired")
	}
}

func TestGroup_HooksAndDrainRequireDefaultBackend(t *testing.T) {
	// Per-device lookups still resolve the gloo instance, but the default
	// backend kind is nccl with nothing attached for it, so the entry
	// points that delegate to the default backend must say so instead of
	// silently doing nothing.
	ex := inproc.NewExchange(1)
	b, err := inproc.New(inproc.Config{Rank: 0, Size: 1, Exchange: ex})
	require.NoError(t, err)

	g, err := group.New(group.Config{Rank: 0, Size: 1, Options: types.DefaultGroupOptions("nccl")})
	require.NoError(t, err)
	require.NoError(t, g.SetBackend(types.DeviceCPU, types.BackendGloo, b))
	defer g.Close()

	err = g.RegisterOnCompletionHook(func(*work.Info) {})
	assert.True(t, types.IsErrorCode(err, types.ErrBackendNotFound))
	assert.False(t, g.HasHooks())

	err = g.WaitForPendingWorks(context.Background())
	assert.True(t, types.IsErrorCode(err, types.ErrBackendNotFound))
}

func TestGroup_WaitForPendingWorks(t *testing.T) {
	groups := localGroups(t, 2)

	runGroups(t, groups, func(g *group.Group) error {
		if _, err := g.Barrier(context.Background(), types.DefaultBarrierOptions()); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return g.WaitForPendingWorks(ctx)
	})
}

func TestGroup_EnableCollectivesTiming(t *testing.T) {
	groups := localGroups(t, 1)
	g := groups[0]
	g.EnableCollectivesTiming()

	b, err := g.Backend(types.DeviceCPU)
	require.NoError(t, err)
	inb, ok := b.(*inproc.Backend)
	require.True(t, ok)
	assert.True(t, inb.TimingEnabled())
}

func TestGroup_CloseReleasesBackends(t *testing.T) {
	groups := localGroups(t, 1)
	g := groups[0]

	b, err := g.Backend(types.DeviceCPU)
	require.NoError(t, err)
	require.NoError(t, g.Close())

	_, err = b.Barrier(context.Background(), types.DefaultBarrierOptions())
	assert.True(t, types.IsErrorCode(err, types.ErrBackendClosed))

	_, err = g.DefaultBackend()
	assert.True(t, types.IsErrorCode(err, types.ErrBackendNotFound))
}
