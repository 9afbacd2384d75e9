package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/commflow/types"
)

// storeConformance runs the Store contract against any implementation.
func storeConformance(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	// Missing keys wrap the sentinel.
	_, err := s.Get(ctx, "absent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.True(t, types.IsErrorCode(err, types.ErrStoreFailed))

	// Set / Get round trip, including overwrite.
	require.NoError(t, s.Set(ctx, "addr/0", []byte("10.0.0.1:2048")))
	v, err := s.Get(ctx, "addr/0")
	require.NoError(t, err)
	assert.Equal(t, []byte("10.0.0.1:2048"), v)

	require.NoError(t, s.Set(ctx, "addr/0", []byte("10.0.0.2:2048")))
	v, err = s.Get(ctx, "addr/0")
	require.NoError(t, err)
	assert.Equal(t, []byte("10.0.0.2:2048"), v)

	// Add creates at zero and accumulates.
	n, err := s.Add(ctx, "joined", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.Add(ctx, "joined", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	// CompareSet creates the key when it is missing and expected is empty.
	v, err = s.CompareSet(ctx, "leader", nil, []byte("rank0"))
	require.NoError(t, err)
	assert.Equal(t, []byte("rank0"), v)

	// Matching expected swaps the value in.
	v, err = s.CompareSet(ctx, "leader", []byte("rank0"), []byte("rank1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("rank1"), v)

	// A stale expected leaves the current value in place and reports it.
	v, err = s.CompareSet(ctx, "leader", []byte("rank0"), []byte("rank2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("rank1"), v)
	v, err = s.Get(ctx, "leader")
	require.NoError(t, err)
	assert.Equal(t, []byte("rank1"), v)

	// Missing key with a non-empty expected matches nothing.
	v, err = s.CompareSet(ctx, "no-leader", []byte("rank0"), []byte("rank1"))
	require.NoError(t, err)
	assert.Empty(t, v)
	_, err = s.Get(ctx, "no-leader")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// Wait returns once every key exists.
	var eg errgroup.Group
	eg.Go(func() error {
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.Wait(waitCtx, "addr/0", "addr/1")
	})
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Set(ctx, "addr/1", []byte("10.0.0.3:2048")))
	require.NoError(t, eg.Wait())

	// Wait times out on a key that never appears.
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err = s.Wait(waitCtx, "never")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrTimeout))
}

func TestMemStore_Conformance(t *testing.T) {
	storeConformance(t, NewMemStore())
}

func TestMemStore_AddRejectsNonInteger(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("not a number")))
	_, err := s.Add(ctx, "k", 1)
	assert.True(t, types.IsErrorCode(err, types.ErrStoreFailed))
}

func TestRedisStore_Conformance(t *testing.T) {
	srv := miniredis.RunT(t)

	s, err := NewRedisStore(RedisConfig{
		Addr:         srv.Addr(),
		Prefix:       "test",
		PollInterval: 5 * time.Millisecond,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	storeConformance(t, s)
}

func TestRedisStore_PrefixIsolation(t *testing.T) {
	srv := miniredis.RunT(t)
	logger := zaptest.NewLogger(t)

	a, err := NewRedisStore(RedisConfig{Addr: srv.Addr(), Prefix: "group-a", PollInterval: 5 * time.Millisecond}, logger)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedisStore(RedisConfig{Addr: srv.Addr(), Prefix: "group-b", PollInterval: 5 * time.Millisecond}, logger)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, a.Set(ctx, "seq", []byte("7")))

	_, err = b.Get(ctx, "seq")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRedisStore_ConnectFailure(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{Addr: "127.0.0.1:1"}, nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrStoreFailed))
}
