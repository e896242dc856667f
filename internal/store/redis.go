package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/tutormux/pkg/types"
)

// RedisConfig holds configuration for the Redis durable store.
type RedisConfig struct {
	// Single node configuration
	Addr     string `yaml:"addr"`     // Redis address (e.g., "localhost:6379")
	Password string `yaml:"password"` // Redis password
	DB       int    `yaml:"db"`       // Redis database number

	// Cluster configuration
	ClusterAddrs []string `yaml:"cluster_addrs"` // Redis cluster addresses

	// Sentinel configuration
	SentinelAddrs  []string `yaml:"sentinel_addrs"`  // Sentinel addresses
	SentinelMaster string   `yaml:"sentinel_master"` // Sentinel master name

	// Common configuration
	Namespace    string        `yaml:"namespace"`      // Key namespace prefix
	DialTimeout  time.Duration `yaml:"dial_timeout"`   // Connection timeout
	ReadTimeout  time.Duration `yaml:"read_timeout"`   // Read timeout
	WriteTimeout time.Duration `yaml:"write_timeout"`  // Write timeout
	PoolSize     int           `yaml:"pool_size"`      // Connection pool size
	MinIdleConns int           `yaml:"min_idle_conns"` // Minimum idle connections
	MaxRetries   int           `yaml:"max_retries"`    // Maximum retries
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		Namespace:    "tutormux",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
}

// RedisStore implements DurableStore on Redis. Entries live as JSON strings
// under namespaced keys; a recency ZSET scored by last-accessed time gives
// the range-scan-by-recency that eviction needs.
type RedisStore struct {
	client    goredis.UniversalClient
	namespace string
}

// NewRedisStore creates a Redis durable store. Cluster and sentinel
// topologies are selected from the configuration the same way as single
// node.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	base := DefaultRedisConfig()
	if cfg.Namespace == "" {
		cfg.Namespace = base.Namespace
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = base.DialTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = base.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = base.WriteTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = base.PoolSize
	}

	var client goredis.UniversalClient

	switch {
	case len(cfg.ClusterAddrs) > 0:
		client = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:        cfg.ClusterAddrs,
			Password:     cfg.Password,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
		})
	case len(cfg.SentinelAddrs) > 0:
		client = goredis.NewFailoverClient(&goredis.FailoverOptions{
			MasterName:    cfg.SentinelMaster,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			MaxRetries:    cfg.MaxRetries,
		})
	default:
		client = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
		})
	}

	return &RedisStore{client: client, namespace: cfg.Namespace}, nil
}

func (s *RedisStore) entryKey(key string) string {
	return s.namespace + ":entry:" + key
}

func (s *RedisStore) recencyKey() string {
	return s.namespace + ":recency"
}

func (s *RedisStore) accessKey() string {
	return s.namespace + ":access"
}

// Get returns the entry for a key, or nil, nil on miss. Access bookkeeping
// is read from the recency index so Touch updates are visible without
// rewriting the entry blob.
func (s *RedisStore) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, s.entryKey(key))
	scoreCmd := pipe.ZScore(ctx, s.recencyKey(), key)
	countCmd := pipe.HGet(ctx, s.accessKey(), key)
	_, err := pipe.Exec(ctx)

	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	data, err := getCmd.Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var entry types.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}

	if score, err := scoreCmd.Result(); err == nil {
		entry.LastAccessedAt = time.Unix(0, int64(score))
	}
	if count, err := countCmd.Int64(); err == nil {
		entry.AccessCount = count
	}

	return &entry, nil
}

// Put inserts or replaces an entry and registers it in the recency index.
func (s *RedisStore) Put(ctx context.Context, entry *types.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.entryKey(entry.Key), data, 0)
	pipe.ZAdd(ctx, s.recencyKey(), goredis.Z{
		Score:  float64(entry.LastAccessedAt.UnixNano()),
		Member: entry.Key,
	})
	pipe.HSet(ctx, s.accessKey(), entry.Key, entry.AccessCount)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Touch bumps access bookkeeping without rewriting the entry blob. A key
// can already be evicted here while still resident in the fast tier, so
// the update must not re-create index members for a missing entry.
func (s *RedisStore) Touch(ctx context.Context, key string, at time.Time) error {
	exists, err := s.client.Exists(ctx, s.entryKey(key)).Result()
	if err != nil {
		return fmt.Errorf("cache touch: %w", err)
	}
	if exists == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	pipe.ZAddXX(ctx, s.recencyKey(), goredis.Z{
		Score:  float64(at.UnixNano()),
		Member: key,
	})
	pipe.HIncrBy(ctx, s.accessKey(), key, 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache touch: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.recencyKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return int(n), nil
}

// EvictLRU removes the oldest entries by recency score until the count is
// at or below capacity.
func (s *RedisStore) EvictLRU(ctx context.Context, capacity int) (int, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	excess := count - capacity
	if excess <= 0 {
		return 0, nil
	}

	victims, err := s.client.ZRange(ctx, s.recencyKey(), 0, int64(excess-1)).Result()
	if err != nil {
		return 0, fmt.Errorf("cache evict scan: %w", err)
	}
	if len(victims) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	for _, key := range victims {
		pipe.Del(ctx, s.entryKey(key))
	}
	pipe.ZRem(ctx, s.recencyKey(), toMembers(victims)...)
	pipe.HDel(ctx, s.accessKey(), victims...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("cache evict: %w", err)
	}

	return len(victims), nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func toMembers(keys []string) []interface{} {
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	return members
}
