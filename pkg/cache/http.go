package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// ETag returns a strong entity tag for data.
func ETag(data []byte) string {
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// NotModified reports whether the request's If-None-Match matches the entry.
func NotModified(r *http.Request, entry *CacheEntry) bool {
	if entry == nil || entry.ETag == "" {
		return false
	}

	header := r.Header.Get("If-None-Match")
	if header == "" {
		return false
	}
	if strings.TrimSpace(header) == "*" {
		return true
	}

	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
		if tag == entry.ETag {
			notModifiedTotal.Inc()
			return true
		}
	}
	return false
}

// WriteHeaders sets ETag and Expires for the entry.
func WriteHeaders(w http.ResponseWriter, entry *CacheEntry) {
	if entry == nil {
		return
	}
	if entry.ETag != "" {
		w.Header().Set("ETag", entry.ETag)
	}
	if !entry.Expires.IsZero() {
		w.Header().Set("Expires", entry.Expires.UTC().Format(http.TimeFormat))
	}
}
