// Package work provides the asynchronous completion handle returned by
// every collective and point-to-point call. A Work is shared between the
// issuing backend, which drives it to a terminal state exactly once, and
// the caller, which waits on it or polls it.
package work

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/commflow/types"
)

// Status is the Work state machine: Pending transitions to exactly one of
// the terminal states and never reverts.
type Status int8

const (
	StatusPending Status = iota
	StatusCompleted
	StatusFailed
	StatusCanceled
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Info is the post-completion observation passed to completion hooks.
type Info struct {
	OpName      string
	Seq         uint64
	Status      Status
	Err         error
	CompletedAt time.Time
}

// Hook observes completed Works. A backend invokes its registered hooks in
// completion order; ordering across backends is unspecified.
type Hook func(*Info)

// Work represents one in-flight or completed operation.
type Work struct {
	opName string
	seq    uint64

	mu          sync.Mutex
	status      Status
	err         error
	completedAt time.Time
	done        chan struct{}
}

// New returns a pending Work for the named operation.
func New(opName string) *Work {
	return &Work{opName: opName, done: make(chan struct{})}
}

// NewSeq returns a pending Work tagged with a backend sequence number.
func NewSeq(opName string, seq uint64) *Work {
	w := New(opName)
	w.seq = seq
	return w
}

// Completed returns an already-successful Work. Used for degenerate cases
// such as flushing an empty coalescing batch.
func Completed(opName string) *Work {
	w := New(opName)
	w.Complete()
	return w
}

// OpName returns the operation the Work belongs to.
func (w *Work) OpName() string {
	return w.opName
}

// Seq returns the backend sequence number assigned at issue time, or zero
// when the backend does not track sequence numbers.
func (w *Work) Seq() uint64 {
	return w.seq
}

// Status returns the current status.
func (w *Work) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Err returns the captured error for failed or canceled Works.
func (w *Work) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// CompletedAt returns the completion timestamp; ok is false while pending.
func (w *Work) CompletedAt() (t time.Time, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.completedAt, w.status.Terminal()
}

// Done returns a channel closed when the Work reaches a terminal state.
func (w *Work) Done() <-chan struct{} {
	return w.done
}

// Complete transitions the Work to Completed. No-op once terminal.
func (w *Work) Complete() bool {
	return w.transition(StatusCompleted, nil)
}

// Fail transitions the Work to Failed, capturing err. No-op once terminal.
func (w *Work) Fail(err error) bool {
	return w.transition(StatusFailed, err)
}

// Cancel transitions the Work to Canceled, capturing err (typically a
// timeout raised by a backend watchdog). No-op once terminal.
func (w *Work) Cancel(err error) bool {
	return w.transition(StatusCanceled, err)
}

func (w *Work) transition(to Status, err error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status.Terminal() {
		return false
	}
	w.status = to
	w.err = err
	w.completedAt = time.Now()
	close(w.done)
	return true
}

// Wait blocks until the Work reaches a terminal state or ctx expires.
// On ctx expiry the Work stays pending; it is not implicitly canceled.
// Returns nil on success, the captured error on failure or cancellation,
// and a TIMEOUT error when ctx expired first.
func (w *Work) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.result()
	case <-ctx.Done():
		return types.WrapError(types.ErrTimeout,
			"timed out waiting for "+w.opName, ctx.Err())
	}
}

// WaitTimeout is Wait with a duration instead of a context. A zero or
// negative timeout waits indefinitely.
func (w *Work) WaitTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		<-w.done
		return w.result()
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return w.Wait(ctx)
}

func (w *Work) result() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == StatusCompleted {
		return nil
	}
	if w.err != nil {
		return w.err
	}
	return types.Errorf(types.ErrOpFailed, "%s finished with status %s", w.opName, w.status)
}

// Snapshot captures the current state as an Info for hook delivery.
func (w *Work) Snapshot() *Info {
	w.mu.Lock()
	defer w.mu.Unlock()
	return &Info{
		OpName:      w.opName,
		Seq:         w.seq,
		Status:      w.status,
		Err:         w.err,
		CompletedAt: w.completedAt,
	}
}
