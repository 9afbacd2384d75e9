// Package store defines the bootstrap key-value rendezvous contract used
// by backends to exchange addresses and by the group sequence-number
// protocol to distribute rank 0's baseline, plus two implementations: an
// in-process MemStore and a redis-backed RedisStore.
package store

import (
	"context"

	"github.com/BaSui01/commflow/types"
)

// Store is the rendezvous service contract. Keys are strings, values are
// opaque byte blobs. Implementations must be safe for concurrent use by
// every rank of a group.
type Store interface {
	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Get returns the value under key, or a STORE_FAILED error wrapping
	// ErrKeyNotFound when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Add atomically adds delta to the integer counter stored under key,
	// creating it at zero first, and returns the new value.
	Add(ctx context.Context, key string, delta int64) (int64, error)

	// CompareSet atomically replaces the value under key with desired
	// when the current value equals expected (a missing key matches an
	// empty expected). It returns the value stored under key afterwards:
	// desired on success, the unchanged current value otherwise.
	CompareSet(ctx context.Context, key string, expected, desired []byte) ([]byte, error)

	// Wait blocks until every key exists or ctx expires.
	Wait(ctx context.Context, keys ...string) error
}

// ErrKeyNotFound is the sentinel wrapped by Get for missing keys.
var ErrKeyNotFound = types.NewError(types.ErrStoreFailed, "key not found")
