package inproc

import (
	"context"
	"sync"

	"github.com/BaSui01/commflow/types"
)

// payload is the data one rank contributes to one collective round: one
// float64 slice per tensor (or per destination chunk, for the all-to-all
// family). Contributions are snapshots; ranks never alias each other's
// live buffers.
type payload [][]float64

// mailMsg is one point-to-point message.
type mailMsg struct {
	src  int
	data payload
}

type mailKey struct {
	dst int
	tag int
}

// round is one collective rendezvous: every rank deposits its payload and
// blocks until all have arrived.
type round struct {
	contrib  []payload
	arrived  int
	released int
	done     chan struct{}
}

// Exchange is the shared meeting point for all ranks of one in-process
// group. Collective rounds are keyed by a ticket that every rank derives
// from its local issue counter, which stays aligned across ranks as long
// as all ranks issue collectives in the same order (the usual SPMD
// contract).
type Exchange struct {
	size int

	mu     sync.Mutex
	rounds map[uint64]*round
	mail   map[mailKey]chan mailMsg
}

// NewExchange creates the shared exchange for a group of the given size.
func NewExchange(size int) *Exchange {
	return &Exchange{
		size:   size,
		rounds: make(map[uint64]*round),
		mail:   make(map[mailKey]chan mailMsg),
	}
}

// Size returns the group cardinality.
func (e *Exchange) Size() int {
	return e.size
}

// rendezvous deposits rank's payload for the ticketed round and blocks
// until every rank has arrived or ctx expires. The returned slice is
// indexed by rank and must be treated as read-only.
func (e *Exchange) rendezvous(ctx context.Context, ticket uint64, rank int, p payload) ([]payload, error) {
	e.mu.Lock()
	r, ok := e.rounds[ticket]
	if !ok {
		r = &round{contrib: make([]payload, e.size), done: make(chan struct{})}
		e.rounds[ticket] = r
	}
	r.contrib[rank] = p
	r.arrived++
	if r.arrived == e.size {
		close(r.done)
	}
	e.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		// A timed-out rank will never read contribs, so it releases its
		// slot here; the entry is reclaimed once the stragglers (if they
		// ever arrive) release theirs. The contribution stays so that
		// missingRanks keeps reporting who was actually absent.
		e.mu.Lock()
		r.released++
		if r.released == e.size {
			delete(e.rounds, ticket)
		}
		e.mu.Unlock()
		return nil, types.WrapError(types.ErrTimeout, "collective rendezvous timed out", ctx.Err())
	}

	contribs := r.contrib
	e.mu.Lock()
	r.released++
	if r.released == e.size {
		delete(e.rounds, ticket)
	}
	e.mu.Unlock()
	return contribs, nil
}

// missingRanks reports which ranks have not arrived at the ticketed round.
// Used by the monitored barrier to name stragglers.
func (e *Exchange) missingRanks(ticket uint64) []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rounds[ticket]
	if !ok {
		return nil
	}
	var missing []int
	for rank, c := range r.contrib {
		if c == nil && rank < e.size {
			missing = append(missing, rank)
		}
	}
	return missing
}

const mailboxDepth = 1024

func (e *Exchange) mailbox(dst, tag int) chan mailMsg {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := mailKey{dst: dst, tag: tag}
	ch, ok := e.mail[key]
	if !ok {
		ch = make(chan mailMsg, mailboxDepth)
		e.mail[key] = ch
	}
	return ch
}

// sendMail queues a point-to-point message for (dst, tag).
func (e *Exchange) sendMail(ctx context.Context, src, dst, tag int, data payload) error {
	select {
	case e.mailbox(dst, tag) <- mailMsg{src: src, data: data}:
		return nil
	case <-ctx.Done():
		return types.WrapError(types.ErrTimeout, "send timed out", ctx.Err())
	}
}

// recvMail dequeues the next message for (dst, tag).
func (e *Exchange) recvMail(ctx context.Context, dst, tag int) (mailMsg, error) {
	select {
	case msg := <-e.mailbox(dst, tag):
		return msg, nil
	case <-ctx.Done():
		return mailMsg{}, types.WrapError(types.ErrTimeout, "recv timed out", ctx.Err())
	}
}
