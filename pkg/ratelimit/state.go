// Package ratelimit tracks the Shopify Admin API call bucket.
// Every REST response carries X-Shopify-Shop-Api-Call-Limit ("used/limit");
// the tracker keeps the latest value so operators can see how close exports
// run to the leaky-bucket ceiling. Requests are never delayed or blocked here.
package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HeaderCallLimit is the response header reporting the call bucket.
const HeaderCallLimit = "X-Shopify-Shop-Api-Call-Limit"

// Redis keys for bucket state storage.
const (
	RedisKeyCallsUsed  = "shopify:rate_limit:calls_used"
	RedisKeyCallsLimit = "shopify:rate_limit:calls_limit"
	RedisKeyLastUpdate = "shopify:rate_limit:last_update"
)

// DefaultBucketSize is the bucket of a standard Shopify plan.
const DefaultBucketSize = 40

// Usage thresholds, as a fraction of the bucket.
const (
	// UsageWarning marks a bucket that is filling up.
	UsageWarning = 0.8

	// UsageCritical marks a bucket that will reject the next burst with 429.
	UsageCritical = 0.95
)

// BucketState is the last observed call bucket.
type BucketState struct {
	CallsUsed  int       `json:"calls_used"`
	CallsLimit int       `json:"calls_limit"`
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true while usage stays below UsageWarning.
	IsHealthy bool `json:"is_healthy"`
}

// DefaultState is reported before any response has been observed.
func DefaultState() *BucketState {
	return &BucketState{
		CallsUsed:  0,
		CallsLimit: DefaultBucketSize,
		IsHealthy:  true,
	}
}

// IsStale returns true if the state is older than maxAge. The bucket leaks
// two calls per second, so old readings overstate usage.
func (s *BucketState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// Remaining returns the number of calls left in the bucket.
func (s *BucketState) Remaining() int {
	if r := s.CallsLimit - s.CallsUsed; r > 0 {
		return r
	}
	return 0
}

// Usage returns the bucket fill level between 0 and 1.
func (s *BucketState) Usage() float64 {
	if s.CallsLimit <= 0 {
		return 0
	}
	return float64(s.CallsUsed) / float64(s.CallsLimit)
}

// NearLimit reports whether usage reached UsageWarning.
func (s *BucketState) NearLimit() bool {
	return s.Usage() >= UsageWarning
}

// Saturated reports whether usage reached UsageCritical.
func (s *BucketState) Saturated() bool {
	return s.Usage() >= UsageCritical
}

// UpdateHealth updates IsHealthy from the current usage.
func (s *BucketState) UpdateHealth() {
	s.IsHealthy = !s.NearLimit()
}

// ParseCallLimit parses a "used/limit" header value.
func ParseCallLimit(value string) (used, limit int, err error) {
	usedStr, limitStr, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		return 0, 0, fmt.Errorf("parse %s %q: missing '/'", HeaderCallLimit, value)
	}

	used, err = strconv.Atoi(usedStr)
	if err != nil {
		return 0, 0, fmt.Errorf("parse %s used: %w", HeaderCallLimit, err)
	}
	limit, err = strconv.Atoi(limitStr)
	if err != nil {
		return 0, 0, fmt.Errorf("parse %s limit: %w", HeaderCallLimit, err)
	}
	if used < 0 || limit <= 0 {
		return 0, 0, fmt.Errorf("parse %s %q: out of range", HeaderCallLimit, value)
	}
	return used, limit, nil
}
