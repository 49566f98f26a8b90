// Package pagination assembles a complete product list from a paginated
// catalog source.
//
// The Shopify Admin API exposes several ways to walk the product list: the
// legacy page number, the since_id watermark and the opaque page_info
// continuation token returned in the Link header. Each is a Strategy; the
// Aggregator depends only on the interface and drives a single sequential
// fetch loop:
//
//	strategy, _ := pagination.ParseStrategy("page_info")
//	agg := pagination.NewAggregator(shopifyClient, strategy, pagination.DefaultConfig())
//	result, err := agg.FetchAll(ctx, nil)
//
// The loop stops on a short page, on the end of the continuation chain, on a
// covered range, or when Config.MaxPages pages have been fetched (the result
// is then marked Truncated). A failure after the first page is reported as a
// *catalog.PartialDataError; collected products are never returned alongside
// an error.
package pagination
