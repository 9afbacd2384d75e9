// Package commflow provides a top-level convenience entry point for
// creating process groups with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/commflow"
//
//	g, err := commflow.New(commflow.WithWorld(rank, size))
//	groups, err := commflow.LocalGroups(4)
//
// This is a thin wrapper around [quick.New]; both produce identical
// results. Use this package when you prefer the shorter import path.
package commflow

import (
	"github.com/BaSui01/commflow/group"
	"github.com/BaSui01/commflow/quick"
)

// Option configures the group created by [New].
type Option = quick.Option

// New creates a [group.Group] with minimal configuration: a single-rank
// in-process group unless [WithWorld] or [FromConfig] say otherwise.
func New(opts ...Option) (*group.Group, error) {
	return quick.New(opts...)
}

// LocalGroups creates one group per rank inside this process, joined
// through a shared in-process exchange. The slice index is the rank.
var LocalGroups = quick.LocalGroups

// Re-export option shortcuts so callers never need to import quick/.

// WithWorld sets this process's rank and the group size.
var WithWorld = quick.WithWorld

// WithStore sets a pre-built rendezvous store.
var WithStore = quick.WithStore

// WithRedis builds a redis-backed rendezvous store.
var WithRedis = quick.WithRedis

// WithExchange shares an existing in-process exchange between ranks.
var WithExchange = quick.WithExchange

// WithName sets the group identity label.
var WithName = quick.WithName

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger

// WithGroupOptions overrides the group defaults wholesale.
var WithGroupOptions = quick.WithGroupOptions

// WithPool bounds the backend's collective executor.
var WithPool = quick.WithPool

// WithMetrics registers prometheus collectors for dispatch metrics.
var WithMetrics = quick.WithMetrics

// FromConfig derives options from a loaded configuration.
var FromConfig = quick.FromConfig
