// Package cache stores rendered catalog exports in Redis.
//
// A full catalog export can take minutes and hundreds of API calls, so a
// finished CSV is kept for a short TTL and served to repeated requests for
// the same shop, mode, strategy and range. The cache is optional: without a
// Redis URL the export endpoints always fetch.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{Shop: "my-store", Mode: "full", Strategy: "page_info", PageSize: 250}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// run the export, then
//		manager.Set(ctx, key, cache.NewEntry(csv, meta, 5*time.Minute))
//	}
//
// # Conditional Requests
//
// Every entry carries a strong ETag derived from the CSV bytes.
// NotModified reports whether a request's If-None-Match already names it,
// and WriteHeaders sets ETag and Expires on the response.
//
// # Storage
//
// Each export is one Redis hash holding the raw CSV bytes, the JSON encoded
// Meta, the ETag and the expiry, written in a MULTI block together with its
// PEXPIRE.
//
// # Metrics
//
//   - export_cache_lookups_total{result} - Lookups by result (hit, miss, expired)
//   - export_cache_entry_bytes - Size of stored CSV bodies
//   - export_cache_not_modified_total - 304 responses served from an ETag match
//   - export_cache_errors_total{operation} - Cache operation errors
package cache
