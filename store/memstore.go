package store

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/BaSui01/commflow/types"
)

// MemStore is the in-process Store used by tests and by single-process
// backends. Waiters are woken through a broadcast channel replaced on
// every mutation.
type MemStore struct {
	mu     sync.Mutex
	kv     map[string][]byte
	notify chan struct{}
}

// NewMemStore returns an empty in-process store.
func NewMemStore() *MemStore {
	return &MemStore{
		kv:     make(map[string][]byte),
		notify: make(chan struct{}),
	}
}

// Set implements Store.
func (s *MemStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = append([]byte(nil), value...)
	s.broadcast()
	return nil
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	if !ok {
		return nil, types.WrapError(types.ErrStoreFailed, fmt.Sprintf("key %q", key), ErrKeyNotFound)
	}
	return append([]byte(nil), v...), nil
}

// Add implements Store.
func (s *MemStore) Add(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur int64
	if v, ok := s.kv[key]; ok {
		parsed, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, types.WrapError(types.ErrStoreFailed,
				fmt.Sprintf("key %q does not hold an integer", key), err)
		}
		cur = parsed
	}
	cur += delta
	s.kv[key] = []byte(strconv.FormatInt(cur, 10))
	s.broadcast()
	return cur, nil
}

// CompareSet implements Store.
func (s *MemStore) CompareSet(_ context.Context, key string, expected, desired []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.kv[key]
	if (!ok && len(expected) == 0) || (ok && bytes.Equal(cur, expected)) {
		s.kv[key] = append([]byte(nil), desired...)
		s.broadcast()
		return append([]byte(nil), desired...), nil
	}
	return append([]byte(nil), cur...), nil
}

// Wait implements Store.
func (s *MemStore) Wait(ctx context.Context, keys ...string) error {
	for {
		s.mu.Lock()
		missing := ""
		for _, k := range keys {
			if _, ok := s.kv[k]; !ok {
				missing = k
				break
			}
		}
		if missing == "" {
			s.mu.Unlock()
			return nil
		}
		ch := s.notify
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return types.WrapError(types.ErrTimeout,
				fmt.Sprintf("waiting for key %q", missing), ctx.Err())
		}
	}
}

// broadcast wakes all waiters; callers must hold s.mu.
func (s *MemStore) broadcast() {
	close(s.notify)
	s.notify = make(chan struct{})
}

var _ Store = (*MemStore)(nil)
