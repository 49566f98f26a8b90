package cache

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips the test when none is
// running. The integration build tag runs the shared checks against a container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	testSetAndGet(t, NewManager(setupTestRedis(t)))
}

func TestManager_Delete(t *testing.T) {
	testDelete(t, NewManager(setupTestRedis(t)))
}

func TestManager_StoresRawCSV(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()
	key := CacheKey{Shop: "my-store", Mode: "basic", Strategy: "page_info", PageSize: 250}

	csv := "SKU,Nome do Produto,Variação,Quantidade em Estoque\nB1,\"Product B\",,5\n"
	if err := manager.Set(ctx, key, NewEntry([]byte(csv), Meta{Products: 1, Rows: 1}, time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, err := client.HGet(ctx, key.String(), fieldData).Result()
	if err != nil {
		t.Fatalf("HGET failed: %v", err)
	}
	if raw != csv {
		t.Errorf("stored data = %q, want raw CSV %q", raw, csv)
	}

	ttl, err := client.PTTL(ctx, key.String()).Result()
	if err != nil {
		t.Fatalf("PTTL failed: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("PTTL = %v, want within (0, 1m]", ttl)
	}
}

func TestManager_SetReplaces(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()
	key := CacheKey{Shop: "s", Mode: "full"}

	for _, body := range []string{"first", "second"} {
		if err := manager.Set(ctx, key, NewEntry([]byte(body), Meta{}, time.Minute)); err != nil {
			t.Fatalf("Set(%s) failed: %v", body, err)
		}
	}

	entry, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(entry.Data) != "second" || entry.ETag != ETag([]byte("second")) {
		t.Errorf("Get() = %q %s, want the second export", entry.Data, entry.ETag)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	manager := NewManager(setupTestRedis(t))

	_, err := manager.Get(context.Background(), CacheKey{Shop: "s", Mode: "basic"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Set_ExpiredEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()
	key := CacheKey{Shop: "s", Mode: "basic"}

	entry := &CacheEntry{Data: []byte("csv"), Expires: time.Now().Add(-time.Hour)}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if n := client.Exists(ctx, key.String()).Val(); n != 0 {
		t.Errorf("expired entry was stored")
	}
}

func TestManager_Get_StaleHash(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()
	key := CacheKey{Shop: "s", Mode: "full"}

	past := strconv.FormatInt(time.Now().Add(-time.Second).UnixMilli(), 10)
	client.HSet(ctx, key.String(), fieldData, "csv", fieldMeta, "{}", fieldExpires, past)

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for stale hash, got %v", err)
	}
	if n := client.Exists(ctx, key.String()).Val(); n != 0 {
		t.Error("stale hash was not removed")
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	manager := NewManager(setupTestRedis(t))

	if err := manager.Set(context.Background(), CacheKey{}, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}

func TestManager_Get_InvalidEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()
	future := strconv.FormatInt(time.Now().Add(time.Hour).UnixMilli(), 10)

	tests := []struct {
		name   string
		fields []any
	}{
		{"missing data", []any{fieldMeta, "{}", fieldExpires, future}},
		{"bad meta", []any{fieldData, "csv", fieldMeta, "not json", fieldExpires, future}},
		{"bad expiry", []any{fieldData, "csv", fieldMeta, "{}", fieldExpires, "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := CacheKey{Shop: tt.name, Mode: "full"}
			if err := client.HSet(ctx, key.String(), tt.fields...).Err(); err != nil {
				t.Fatalf("seed failed: %v", err)
			}

			if _, err := manager.Get(ctx, key); !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Expected ErrInvalidEntry, got %v", err)
			}
		})
	}
}

func testSetAndGet(t *testing.T, manager *Manager) {
	t.Helper()
	ctx := context.Background()
	key := CacheKey{Shop: "my-store", Mode: "full", Strategy: "page_info", PageSize: 250, Start: 1, End: 1000}

	entry := NewEntry([]byte("ID,Variant_ID\n1,2\n"), Meta{Products: 1, Rows: 1, Pages: 1, Truncated: true}, 5*time.Minute)
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != string(entry.Data) {
		t.Errorf("Data = %s, want %s", got.Data, entry.Data)
	}
	if got.ETag != entry.ETag {
		t.Errorf("ETag = %s, want %s", got.ETag, entry.ETag)
	}
	if got.Meta != entry.Meta {
		t.Errorf("Meta = %+v, want %+v", got.Meta, entry.Meta)
	}
	if !got.Expires.Equal(entry.Expires.Truncate(time.Millisecond)) {
		t.Errorf("Expires = %v, want %v", got.Expires, entry.Expires)
	}

	other := key
	other.Mode = "basic"
	if _, err := manager.Get(ctx, other); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for other mode, got %v", err)
	}
}

func testDelete(t *testing.T, manager *Manager) {
	t.Helper()
	ctx := context.Background()
	key := CacheKey{Shop: "s", Mode: "basic", Strategy: "page_info", PageSize: 250}

	if err := manager.Set(ctx, key, NewEntry([]byte("csv"), Meta{}, 5*time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}
