package pagination

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/shopify-catalog-export/pkg/catalog"
)

// Cursor identifies where the next page fetch resumes.
// Exactly one field is meaningful for a given request; Token wins over Page
// when both are set.
type Cursor struct {
	// Page is the 1-based page number.
	Page int

	// SinceID returns products with an id greater than this watermark.
	SinceID int64

	// Token is the opaque page_info continuation token.
	Token string
}

// Page is one page of products returned by a Source.
type Page struct {
	Products []catalog.Product

	// NextToken is the continuation token reported by the upstream,
	// empty when there is no next page.
	NextToken string
}

// Strategy decides how the cursor moves from one page to the next.
type Strategy interface {
	// Name identifies the strategy in logs, metrics and configuration.
	Name() string

	// Start returns the cursor for the first request. firstPage is the
	// 1-based page a ranged fetch would like to begin at; strategies that
	// cannot jump ahead return a cursor for the beginning and seeked=false.
	Start(firstPage int) (cursor Cursor, seeked bool)

	// Next returns the cursor following page, or false when the strategy
	// knows there is nothing left.
	Next(current Cursor, page Page) (Cursor, bool)
}

// Strategy names accepted by ParseStrategy.
const (
	StrategyPageNumber = "page"
	StrategyPageInfo   = "page_info"
	StrategySinceID    = "since_id"
)

// ParseStrategy returns the strategy registered under name.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case StrategyPageNumber, "offset":
		return PageNumberStrategy{}, nil
	case StrategyPageInfo, "cursor", "":
		return PageInfoStrategy{}, nil
	case StrategySinceID:
		return SinceIDStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown pagination strategy %q (want %s, %s or %s)",
			name, StrategyPageNumber, StrategyPageInfo, StrategySinceID)
	}
}

// PageNumberStrategy walks the catalog by page number. If the upstream
// answers with a continuation token, the token is followed instead.
type PageNumberStrategy struct{}

// Name implements Strategy.
func (PageNumberStrategy) Name() string { return StrategyPageNumber }

// Start implements Strategy.
func (PageNumberStrategy) Start(firstPage int) (Cursor, bool) {
	if firstPage < 1 {
		firstPage = 1
	}
	return Cursor{Page: firstPage}, true
}

// Next implements Strategy.
func (PageNumberStrategy) Next(current Cursor, page Page) (Cursor, bool) {
	if page.NextToken != "" {
		return Cursor{Token: page.NextToken}, true
	}
	if current.Token != "" {
		// already following tokens and the chain ended
		return Cursor{}, false
	}
	return Cursor{Page: current.Page + 1}, true
}

// PageInfoStrategy follows the opaque continuation token.
type PageInfoStrategy struct{}

// Name implements Strategy.
func (PageInfoStrategy) Name() string { return StrategyPageInfo }

// Start implements Strategy.
func (PageInfoStrategy) Start(int) (Cursor, bool) {
	return Cursor{}, false
}

// Next implements Strategy.
func (PageInfoStrategy) Next(_ Cursor, page Page) (Cursor, bool) {
	if page.NextToken == "" {
		return Cursor{}, false
	}
	return Cursor{Token: page.NextToken}, true
}

// SinceIDStrategy uses the id of the last product seen as a watermark.
// It relies on the upstream returning products in ascending id order.
type SinceIDStrategy struct{}

// Name implements Strategy.
func (SinceIDStrategy) Name() string { return StrategySinceID }

// Start implements Strategy.
func (SinceIDStrategy) Start(int) (Cursor, bool) {
	return Cursor{}, false
}

// Next implements Strategy.
func (SinceIDStrategy) Next(_ Cursor, page Page) (Cursor, bool) {
	if len(page.Products) == 0 {
		return Cursor{}, false
	}
	return Cursor{SinceID: page.Products[len(page.Products)-1].ID}, true
}
