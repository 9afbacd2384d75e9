// Package pool provides the goroutine pool backends use to execute
// collectives off the caller's thread.
// This package is internal and should not be imported by external projects.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task is one unit of collective execution. Tasks may block on peer
// rendezvous; the ctx they receive carries the collective timeout.
type Task func(ctx context.Context)

// Pool runs submitted tasks on up to maxWorkers goroutines. Workers are
// spawned on demand and exit when the pool closes.
type Pool struct {
	maxWorkers  int32
	taskQueue   chan taskWrapper
	workerCount atomic.Int32
	activeCount atomic.Int32
	closed      atomic.Bool
	// closeMu serializes Close against in-flight Submits so no Submit
	// can send on the closed task queue.
	closeMu sync.RWMutex
	wg      sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
}

type taskWrapper struct {
	ctx  context.Context
	task Task
}

// Config sizes the pool.
type Config struct {
	MaxWorkers int
	QueueSize  int
}

// DefaultConfig returns sizing suitable for one backend instance.
func DefaultConfig() Config {
	return Config{MaxWorkers: 32, QueueSize: 256}
}

// New creates a pool; zero config fields fall back to defaults.
func New(config Config) *Pool {
	def := DefaultConfig()
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = def.MaxWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	return &Pool{
		maxWorkers: int32(config.MaxWorkers),
		taskQueue:  make(chan taskWrapper, config.QueueSize),
	}
}

// Submit enqueues a task for asynchronous execution. It never blocks:
// when the queue is full and no worker slot is free it returns ErrPoolFull.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	wrapper := taskWrapper{ctx: ctx, task: task}
	select {
	case p.taskQueue <- wrapper:
		p.ensureWorker()
		return nil
	default:
		if p.trySpawnWorker() {
			select {
			case p.taskQueue <- wrapper:
				return nil
			default:
			}
		}
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *Pool) ensureWorker() {
	if p.workerCount.Load() < p.maxWorkers {
		p.trySpawnWorker()
	}
}

func (p *Pool) trySpawnWorker() bool {
	for {
		current := p.workerCount.Load()
		if current >= p.maxWorkers {
			return false
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return true
		}
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	defer p.workerCount.Add(-1)

	for wrapper := range p.taskQueue {
		p.activeCount.Add(1)
		wrapper.task(wrapper.ctx)
		p.activeCount.Add(-1)
		p.completed.Add(1)
	}
}

// Close stops accepting tasks and waits for in-flight ones to finish.
func (p *Pool) Close() {
	p.closeMu.Lock()
	if p.closed.Swap(true) {
		p.closeMu.Unlock()
		return
	}
	close(p.taskQueue)
	p.closeMu.Unlock()
	p.wg.Wait()
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.taskQueue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Stats contains pool counters.
type Stats struct {
	Workers   int
	Active    int
	Queued    int
	Submitted int64
	Completed int64
	Rejected  int64
}
