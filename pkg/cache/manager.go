package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss is returned when no live export is stored under a key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry is returned for a stored export that cannot be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Hash fields of a stored export. The CSV body is stored raw next to its
// metadata so large exports are not re-encoded.
const (
	fieldData     = "data"
	fieldMeta     = "meta"
	fieldETag     = "etag"
	fieldExpires  = "expires_ms"
	fieldCachedAt = "cached_at_ms"
)

// Manager stores rendered exports as Redis hashes that expire with the entry.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a cache manager. It panics on a nil client.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{redis: redisClient}
}

// Get returns the export stored under key, or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	fields, err := m.redis.HGetAll(ctx, key.String()).Result()
	if err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		cacheLookups.WithLabelValues("miss").Inc()
		return nil, ErrCacheMiss
	}

	entry, err := decodeEntry(fields)
	if err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis expiry has millisecond precision but a clock skew between
	// instances can still leave a stale hash behind
	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		cacheLookups.WithLabelValues("expired").Inc()
		return nil, ErrCacheMiss
	}

	cacheLookups.WithLabelValues("hit").Inc()
	return entry, nil
}

// Set stores entry under key until entry.Expires. Entries that already
// expired are dropped silently.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal export meta: %w", err)
	}

	k := key.String()
	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			fieldData, entry.Data,
			fieldMeta, meta,
			fieldETag, entry.ETag,
			fieldExpires, entry.Expires.UnixMilli(),
			fieldCachedAt, entry.CachedAt.UnixMilli(),
		)
		pipe.PExpire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis store export: %w", err)
	}

	cachedBytes.Observe(float64(len(entry.Data)))
	return nil
}

// Delete removes the export stored under key.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func decodeEntry(fields map[string]string) (*CacheEntry, error) {
	data, ok := fields[fieldData]
	if !ok {
		return nil, fmt.Errorf("missing %s field", fieldData)
	}

	entry := &CacheEntry{
		Data: []byte(data),
		ETag: fields[fieldETag],
	}
	if err := json.Unmarshal([]byte(fields[fieldMeta]), &entry.Meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", fieldMeta, err)
	}

	expires, err := strconv.ParseInt(fields[fieldExpires], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fieldExpires, err)
	}
	entry.Expires = time.UnixMilli(expires)

	if v, ok := fields[fieldCachedAt]; ok {
		cachedAt, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", fieldCachedAt, err)
		}
		entry.CachedAt = time.UnixMilli(cachedAt)
	}

	return entry, nil
}
