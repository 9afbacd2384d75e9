// Package quick provides one-line group construction for tests and
// single-process deployments. It delegates to group.New, the in-process
// backend and the store implementations internally.
//
// The package lives under quick/ (not root) so the root package can
// re-export it without an import cycle.
//
// Usage:
//
//	import "github.com/BaSui01/commflow/quick"
//
//	groups, err := quick.LocalGroups(4)
//	g, err := quick.New(quick.WithWorld(rank, size), quick.WithRedis(redisCfg))
package quick

import (
	"go.uber.org/zap"

	"github.com/BaSui01/commflow/backends/inproc"
	"github.com/BaSui01/commflow/config"
	"github.com/BaSui01/commflow/group"
	"github.com/BaSui01/commflow/internal/pool"
	"github.com/BaSui01/commflow/store"
	"github.com/BaSui01/commflow/types"
)

// Option configures the group created by New.
type Option func(*options)

type options struct {
	rank     int
	size     int
	name     string
	desc     string
	st       store.Store
	exchange *inproc.Exchange
	logger   *zap.Logger
	pool     pool.Config
	metrics  bool

	// Redis shortcut fields, used when st is nil.
	redis *store.RedisConfig

	groupOpts types.GroupOptions
}

// WithWorld sets this process's rank and the group size.
func WithWorld(rank, size int) Option {
	return func(o *options) {
		o.rank = rank
		o.size = size
	}
}

// WithStore sets a pre-built rendezvous store.
func WithStore(s store.Store) Option {
	return func(o *options) { o.st = s }
}

// WithRedis builds a redis-backed rendezvous store from cfg.
func WithRedis(cfg store.RedisConfig) Option {
	return func(o *options) { o.redis = &cfg }
}

// WithExchange shares an existing in-process exchange. All ranks of the
// group must receive the same instance.
func WithExchange(ex *inproc.Exchange) Option {
	return func(o *options) { o.exchange = ex }
}

// WithName sets the group identity label.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithGroupOptions overrides the group defaults wholesale.
func WithGroupOptions(opts types.GroupOptions) Option {
	return func(o *options) { o.groupOpts = opts }
}

// WithPool bounds the backend's collective executor.
func WithPool(cfg pool.Config) Option {
	return func(o *options) { o.pool = cfg }
}

// WithMetrics registers prometheus collectors for dispatch metrics.
func WithMetrics() Option {
	return func(o *options) { o.metrics = true }
}

// FromConfig derives options from a loaded configuration.
func FromConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.rank = cfg.Group.Rank
		o.size = cfg.Group.Size
		o.name = cfg.Group.Name
		o.desc = cfg.Group.Desc
		o.groupOpts = types.GroupOptions{
			Backend:   cfg.Group.Backend,
			Timeout:   cfg.Group.Timeout,
			GroupName: cfg.Group.Name,
			GroupDesc: cfg.Group.Desc,
		}
		o.pool = pool.Config{MaxWorkers: cfg.Pool.MaxWorkers, QueueSize: cfg.Pool.QueueSize}
		o.metrics = cfg.Telemetry.EnableMetrics
		if cfg.Store.Kind == "redis" {
			o.redis = &store.RedisConfig{
				Addr:         cfg.Store.Redis.Addr,
				Password:     cfg.Store.Redis.Password,
				DB:           cfg.Store.Redis.DB,
				Prefix:       cfg.Store.Redis.Prefix,
				PollInterval: cfg.Store.Redis.PollInterval,
			}
		}
	}
}

// New builds a ready-to-use group: store, in-process backend and
// CPU registration. Defaults to a single-rank group over the in-memory
// store.
func New(opts ...Option) (*group.Group, error) {
	o := &options{
		size:      1,
		groupOpts: types.DefaultGroupOptions("gloo"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	st := o.st
	if st == nil {
		if o.redis != nil {
			rs, err := store.NewRedisStore(*o.redis, o.logger)
			if err != nil {
				return nil, err
			}
			st = rs
		} else {
			st = store.NewMemStore()
		}
	}

	ex := o.exchange
	if ex == nil {
		ex = inproc.NewExchange(o.size)
	}

	if o.name != "" {
		o.groupOpts.GroupName = o.name
	}
	if o.desc != "" {
		o.groupOpts.GroupDesc = o.desc
	}

	g, err := group.New(group.Config{
		Rank:          o.rank,
		Size:          o.size,
		Store:         st,
		Options:       o.groupOpts,
		Logger:        o.logger,
		EnableMetrics: o.metrics,
	})
	if err != nil {
		return nil, err
	}

	b, err := inproc.New(inproc.Config{
		Rank:     o.rank,
		Size:     o.size,
		Exchange: ex,
		Store:    st,
		Pool:     o.pool,
		Logger:   o.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := g.SetBackend(types.DeviceCPU, types.BackendGloo, b); err != nil {
		return nil, err
	}
	return g, nil
}

// LocalGroups builds one group per rank inside this process, all joined
// through a shared exchange and in-memory store. The slice index is the
// rank.
func LocalGroups(size int, opts ...Option) ([]*group.Group, error) {
	ex := inproc.NewExchange(size)
	st := store.NewMemStore()
	groups := make([]*group.Group, size)
	for rank := 0; rank < size; rank++ {
		all := append([]Option{
			WithWorld(rank, size),
			WithExchange(ex),
			WithStore(st),
		}, opts...)
		g, err := New(all...)
		if err != nil {
			return nil, err
		}
		groups[rank] = g
	}
	return groups, nil
}
