package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = fmt.Errorf("cache miss")

// IsCacheMiss reports whether err is a cache miss.
func IsCacheMiss(err error) bool {
	return err == ErrCacheMiss
}

// Store is a TTL key-value store. Values are immutable once written;
// concurrent writes are last-writer-wins and TTL is the only mutation path.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Config configures the cache layer.
type Config struct {
	// Addr is the redis address. Empty disables the redis tier and the
	// cache runs purely in-process.
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`

	// DefaultTTL applies when Set is called with ttl 0.
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	PoolSize     int `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "",
		DefaultTTL:   5 * time.Minute,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// =============================================================================
// Redis tier
// =============================================================================

// RedisStore is the redis-backed cache tier.
type RedisStore struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewRedisStore creates a redis store and verifies connectivity.
func NewRedisStore(config Config, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis cache tier initialized", zap.String("addr", config.Addr))

	return &RedisStore{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
	}, nil
}

// Get returns the value for key, or ErrCacheMiss.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", fmt.Errorf("cache store is closed")
	}

	val, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrCacheMiss
	}
	if err != nil {
		s.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get failed: %w", err)
	}
	return val, nil
}

// Set stores value under key. A zero ttl uses the configured default.
func (s *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("cache store is closed")
	}

	if ttl == 0 {
		ttl = s.config.DefaultTTL
	}

	if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Delete removes the given keys.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("cache store is closed")
	}
	if len(keys) == 0 {
		return nil
	}

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		s.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// Close shuts down the redis client.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.redis.Close()
}

// =============================================================================
// In-process tier
// =============================================================================

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is the in-process TTL tier. It is safe for concurrent use and
// evicts lazily on read plus on a periodic sweep.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	defaultTTL time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryStore creates an in-process store with the given default TTL.
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	s := &MemoryStore{
		entries:    make(map[string]memoryEntry),
		defaultTTL: defaultTTL,
		stop:       make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Get returns the value for key, or ErrCacheMiss when absent or expired.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return "", ErrCacheMiss
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return "", ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores value under key. A zero ttl uses the configured default.
func (s *MemoryStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	s.mu.Lock()
	s.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Delete removes the given keys.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	s.mu.Unlock()
	return nil
}

// Close stops the sweep loop.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// Len returns the number of live entries, counting expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for k, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

// =============================================================================
// Tiered store
// =============================================================================

// TieredStore reads through a primary tier and falls back to a secondary
// tier when the primary errors. Writes go to both tiers best-effort.
type TieredStore struct {
	primary   Store
	secondary Store
	logger    *zap.Logger
}

// NewTieredStore composes two tiers. Either may be nil; at least one must
// be present.
func NewTieredStore(primary, secondary Store, logger *zap.Logger) *TieredStore {
	return &TieredStore{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With(zap.String("component", "cache")),
	}
}

// Get reads from the primary tier, falling back on error (not on miss: a miss
// in the primary is authoritative, both tiers see every write).
func (t *TieredStore) Get(ctx context.Context, key string) (string, error) {
	if t.primary != nil {
		val, err := t.primary.Get(ctx, key)
		if err == nil {
			return val, nil
		}
		if IsCacheMiss(err) {
			return "", ErrCacheMiss
		}
		t.logger.Warn("primary cache tier failed, falling back", zap.Error(err))
	}
	if t.secondary != nil {
		return t.secondary.Get(ctx, key)
	}
	return "", ErrCacheMiss
}

// Set writes to both tiers; a primary-tier failure is logged, not returned.
func (t *TieredStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if t.primary != nil {
		if err := t.primary.Set(ctx, key, value, ttl); err != nil {
			t.logger.Warn("primary cache tier set failed", zap.Error(err))
		}
	}
	if t.secondary != nil {
		return t.secondary.Set(ctx, key, value, ttl)
	}
	return nil
}

// Delete removes keys from both tiers.
func (t *TieredStore) Delete(ctx context.Context, keys ...string) error {
	if t.primary != nil {
		if err := t.primary.Delete(ctx, keys...); err != nil {
			t.logger.Warn("primary cache tier delete failed", zap.Error(err))
		}
	}
	if t.secondary != nil {
		return t.secondary.Delete(ctx, keys...)
	}
	return nil
}

// Close closes both tiers.
func (t *TieredStore) Close() error {
	var firstErr error
	if t.primary != nil {
		firstErr = t.primary.Close()
	}
	if t.secondary != nil {
		if err := t.secondary.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// =============================================================================
// JSON helpers
// =============================================================================

// GetJSON reads key and unmarshals the value into dest.
func GetJSON(ctx context.Context, s Store, key string, dest any) error {
	val, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// SetJSON marshals value and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.Set(ctx, key, string(data), ttl)
}
