package cache

import (
	"fmt"
	"strings"
)

// CacheKey identifies one export.
type CacheKey struct {
	// Shop is the store the export was taken from
	Shop string

	// Mode is the CSV column set ("basic" or "full")
	Mode string

	// Strategy is the pagination strategy name
	Strategy string

	// PageSize is the page limit used while fetching
	PageSize int

	// Start and End select a 1-based product range; zero means the whole catalog
	Start int
	End   int
}

// String generates a deterministic cache key string.
// Format: export:shop:mode:strategy:limit=N:range
//
// Example:
//
//	export:my-store:full:page_info:limit=250:10-15
func (k CacheKey) String() string {
	rng := "all"
	if k.Start > 0 || k.End > 0 {
		rng = fmt.Sprintf("%d-%d", k.Start, k.End)
	}

	parts := []string{
		"export",
		strings.ToLower(strings.TrimSuffix(k.Shop, ".myshopify.com")),
		k.Mode,
		k.Strategy,
		fmt.Sprintf("limit=%d", k.PageSize),
		rng,
	}
	return strings.Join(parts, ":")
}
