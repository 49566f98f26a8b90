package cache

import (
	"time"
)

// Meta describes the export an entry holds.
type Meta struct {
	Products  int  `json:"products"`
	Rows      int  `json:"rows"`
	Pages     int  `json:"pages"`
	Truncated bool `json:"truncated"`
}

// CacheEntry is a cached export.
type CacheEntry struct {
	// Data is the CSV body
	Data []byte

	Meta Meta

	// ETag identifies Data for If-None-Match
	ETag string

	// Expires is when the entry becomes stale
	Expires time.Time

	// CachedAt is when the export was stored
	CachedAt time.Time
}

// NewEntry creates an entry expiring after ttl.
func NewEntry(data []byte, meta Meta, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Data:     data,
		Meta:     meta,
		ETag:     ETag(data),
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
