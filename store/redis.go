package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/commflow/types"
)

// RedisConfig configures the redis-backed store.
type RedisConfig struct {
	// Addr is the redis server address.
	Addr string `yaml:"addr" json:"addr"`

	// Password, empty when the server requires none.
	Password string `yaml:"password" json:"password"`

	// DB is the redis database number.
	DB int `yaml:"db" json:"db"`

	// Prefix namespaces every key so multiple groups can share one server.
	Prefix string `yaml:"prefix" json:"prefix"`

	// PollInterval is how often Wait re-checks missing keys.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// DefaultRedisConfig returns a local single-node configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Prefix:       "commflow",
		PollInterval: 50 * time.Millisecond,
	}
}

// RedisStore is a Store backed by a redis server; it is the rendezvous
// used when group members live in different processes or hosts.
type RedisStore struct {
	client *redis.Client
	config RedisConfig
	logger *zap.Logger
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(config RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 50 * time.Millisecond
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, types.WrapError(types.ErrStoreFailed, "failed to connect to redis", err)
	}

	logger.Info("redis store connected", zap.String("addr", config.Addr), zap.String("prefix", config.Prefix))
	return &RedisStore{client: client, config: config, logger: logger}, nil
}

func (s *RedisStore) key(k string) string {
	if s.config.Prefix == "" {
		return k
	}
	return s.config.Prefix + "/" + k
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return types.WrapError(types.ErrStoreFailed, fmt.Sprintf("set %q", key), err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.WrapError(types.ErrStoreFailed, fmt.Sprintf("key %q", key), ErrKeyNotFound)
	}
	if err != nil {
		return nil, types.WrapError(types.ErrStoreFailed, fmt.Sprintf("get %q", key), err)
	}
	return v, nil
}

// Add implements Store.
func (s *RedisStore) Add(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := s.client.IncrBy(ctx, s.key(key), delta).Result()
	if err != nil {
		return 0, types.WrapError(types.ErrStoreFailed, fmt.Sprintf("add %q", key), err)
	}
	return v, nil
}

// compareSetScript runs the compare-and-swap server-side so concurrent
// ranks cannot interleave between the read and the write.
var compareSetScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if (cur == false and ARGV[1] == '') or cur == ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[2])
  return ARGV[2]
end
return cur
`)

// CompareSet implements Store.
func (s *RedisStore) CompareSet(ctx context.Context, key string, expected, desired []byte) ([]byte, error) {
	v, err := compareSetScript.Run(ctx, s.client, []string{s.key(key)}, expected, desired).Text()
	if errors.Is(err, redis.Nil) {
		// Missing key that did not match a non-empty expected value.
		return nil, nil
	}
	if err != nil {
		return nil, types.WrapError(types.ErrStoreFailed, fmt.Sprintf("compare-set %q", key), err)
	}
	return []byte(v), nil
}

// Wait implements Store. Redis has no native key-wait, so missing keys are
// polled at the configured interval until ctx expires.
func (s *RedisStore) Wait(ctx context.Context, keys ...string) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	pending := make([]string, len(keys))
	copy(pending, keys)
	for {
		remaining := pending[:0]
		for _, k := range pending {
			n, err := s.client.Exists(ctx, s.key(k)).Result()
			if err != nil {
				return types.WrapError(types.ErrStoreFailed, fmt.Sprintf("exists %q", k), err)
			}
			if n == 0 {
				remaining = append(remaining, k)
			}
		}
		pending = remaining
		if len(pending) == 0 {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return types.WrapError(types.ErrTimeout,
				fmt.Sprintf("waiting for key %q", pending[0]), ctx.Err())
		}
	}
}

// Close releases the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
