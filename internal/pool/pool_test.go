package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsTasks(t *testing.T) {
	p := New(Config{MaxWorkers: 4, QueueSize: 16})
	defer p.Close()

	var mu sync.Mutex
	ran := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(context.Context) {
			mu.Lock()
			ran++
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()

	mu.Lock()
	assert.Equal(t, 10, ran)
	mu.Unlock()
}

func TestPool_SubmitNeverBlocks(t *testing.T) {
	p := New(Config{MaxWorkers: 1, QueueSize: 1})
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	// Fill the queue, then overflow it.
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {}))
	err := p.Submit(context.Background(), func(context.Context) {})
	assert.ErrorIs(t, err, ErrPoolFull)

	close(release)
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := New(Config{})
	p.Close()
	p.Close() // idempotent

	err := p.Submit(context.Background(), func(context.Context) {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_SubmitDuringCloseDoesNotPanic(t *testing.T) {
	for i := 0; i < 50; i++ {
		p := New(Config{MaxWorkers: 4, QueueSize: 64})

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					switch err := p.Submit(context.Background(), func(context.Context) {}); err {
					case nil, ErrPoolFull:
					case ErrPoolClosed:
						return
					default:
						t.Errorf("unexpected Submit error: %v", err)
						return
					}
				}
			}()
		}
		p.Close()
		wg.Wait()

		err := p.Submit(context.Background(), func(context.Context) {})
		assert.ErrorIs(t, err, ErrPoolClosed)
	}
}

func TestPool_CloseWaitsForInflight(t *testing.T) {
	p := New(Config{MaxWorkers: 2, QueueSize: 8})

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		time.Sleep(20 * time.Millisecond)
		close(done)
	}))
	p.Close()

	select {
	case <-done:
	default:
		t.Fatal("Close returned before the in-flight task finished")
	}
}

func TestPool_Stats(t *testing.T) {
	p := New(Config{MaxWorkers: 2, QueueSize: 4})
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(context.Context) { wg.Done() }))
	}
	wg.Wait()

	stats := p.Stats()
	assert.Equal(t, int64(3), stats.Submitted)
	assert.Zero(t, stats.Rejected)
}

func TestPool_ZeroConfigUsesDefaults(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	def := DefaultConfig()
	assert.Equal(t, int32(def.MaxWorkers), p.maxWorkers)
	assert.Equal(t, def.QueueSize, cap(p.taskQueue))
}
