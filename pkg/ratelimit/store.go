package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists the latest bucket state.
type Store interface {
	// Load returns the stored state, or nil when nothing was stored yet.
	Load(ctx context.Context) (*BucketState, error)
	Save(ctx context.Context, state *BucketState) error
}

// MemoryStore keeps the state in process.
type MemoryStore struct {
	mu    sync.RWMutex
	state *BucketState
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context) (*BucketState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == nil {
		return nil, nil
	}
	cp := *m.state
	return &cp, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, state *BucketState) error {
	cp := *state

	m.mu.Lock()
	m.state = &cp
	m.mu.Unlock()
	return nil
}

// RedisStore shares the state between instances exporting from the same shop.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (*BucketState, error) {
	used, err := r.client.Get(ctx, RedisKeyCallsUsed).Int()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get calls used: %w", err)
	}

	limit, err := r.client.Get(ctx, RedisKeyCallsLimit).Int()
	if err != nil {
		return nil, fmt.Errorf("get calls limit: %w", err)
	}

	lastUpdateStr, err := r.client.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &BucketState{
		CallsUsed:  used,
		CallsLimit: limit,
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()
	return state, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, state *BucketState) error {
	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, RedisKeyCallsUsed, state.CallsUsed, 0)
	pipe.Set(ctx, RedisKeyCallsLimit, state.CallsLimit, 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}
