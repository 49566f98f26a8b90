package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/shopify-catalog-export/pkg/catalog"
)

// MaxPageSize is the largest page the Shopify Admin API will return.
const MaxPageSize = 250

// Prometheus metrics for the fetch loop.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_export_pages_fetched_total",
		Help: "Total product pages fetched by pagination strategy",
	}, []string{"strategy"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_export_fetch_duration_seconds",
		Help:    "Duration of a complete catalog fetch by pagination strategy",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"strategy"})

	truncatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_export_truncated_total",
		Help: "Total catalog fetches stopped by the page safety bound",
	})
)

// Config holds aggregator configuration.
type Config struct {
	// PageSize is the number of products requested per page.
	// Capped at MaxPageSize.
	PageSize int

	// MaxPages bounds the number of page fetches of a single run.
	// 100 pages of 250 covers a 25k product catalog.
	MaxPages int
}

// DefaultConfig returns the default aggregator configuration.
func DefaultConfig() Config {
	return Config{
		PageSize: MaxPageSize,
		MaxPages: 100,
	}
}

// Source is the catalog adapter the aggregator pulls pages from.
type Source interface {
	ListProducts(ctx context.Context, limit int, cursor Cursor) (Page, error)
}

// Counter is implemented by sources that can report the catalog size.
// It is only used for progress logging.
type Counter interface {
	CountProducts(ctx context.Context) (int, error)
}

// ErrInvalidRange is returned for ranges that do not select any product.
var ErrInvalidRange = errors.New("invalid range")

// ErrRangeUnreachable is returned when a strategy that walks from the first
// product cannot reach the start of a range within Config.MaxPages.
var ErrRangeUnreachable = errors.New("range unreachable")

// Range selects products by 1-based position, both ends inclusive.
type Range struct {
	Start int
	End   int
}

// Validate checks that the range selects at least one product.
func (r Range) Validate() error {
	if r.Start < 1 {
		return fmt.Errorf("%w: start must be >= 1 (got %d)", ErrInvalidRange, r.Start)
	}
	if r.End < r.Start {
		return fmt.Errorf("%w: end must be >= start (got %d-%d)", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// Len returns the number of products the range selects.
func (r Range) Len() int {
	return r.End - r.Start + 1
}

// Result is the outcome of a successful fetch.
type Result struct {
	Products []catalog.Product

	// Pages is the number of page requests made.
	Pages int

	// Truncated is set when the loop stopped at Config.MaxPages while the
	// upstream still had pages to give. A page-number walk whose last page
	// is full cannot tell the end from more pages; it is only cleared then
	// when the source is a Counter whose count has been reached.
	Truncated bool
}

// Aggregator drives a Source until the requested products are collected.
type Aggregator struct {
	source   Source
	strategy Strategy
	config   Config
	logger   zerolog.Logger
}

// NewAggregator creates a new aggregator.
func NewAggregator(source Source, strategy Strategy, config Config) *Aggregator {
	if config.PageSize <= 0 || config.PageSize > MaxPageSize {
		config.PageSize = MaxPageSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultConfig().MaxPages
	}
	if strategy == nil {
		strategy = PageInfoStrategy{}
	}

	return &Aggregator{
		source:   source,
		strategy: strategy,
		config:   config,
		logger:   log.With().Str("component", "pagination").Logger(),
	}
}

// WithLogger returns a copy of the aggregator that logs to logger.
func (a *Aggregator) WithLogger(logger zerolog.Logger) *Aggregator {
	cp := *a
	cp.logger = logger.With().Str("component", "pagination").Logger()
	return &cp
}

// Config returns the effective configuration.
func (a *Aggregator) Config() Config {
	return a.config
}

// FetchAll collects the whole catalog, or only the products selected by rng
// when it is non-nil. Products are returned in source order without
// duplicates.
func (a *Aggregator) FetchAll(ctx context.Context, rng *Range) (*Result, error) {
	start := time.Now()
	name := a.strategy.Name()
	limit := a.config.PageSize

	want, skip, firstPage := 0, 0, 1
	if rng != nil {
		if err := rng.Validate(); err != nil {
			return nil, err
		}
		want = rng.Len()
		skip = rng.Start - 1
		firstPage = (rng.Start-1)/limit + 1
	}

	cursor, seeked := a.strategy.Start(firstPage)
	passed := 0
	if rng != nil && seeked {
		// the pages before firstPage were never requested
		skip = (rng.Start - 1) % limit
		passed = (firstPage - 1) * limit
	}
	if rng != nil && !seeked && rng.Start > a.config.MaxPages*limit {
		return nil, fmt.Errorf("%w: start %d lies past the first %d products the %s strategy can walk in %d pages of %d",
			ErrRangeUnreachable, rng.Start, a.config.MaxPages*limit, name, a.config.MaxPages, limit)
	}

	total := a.countProducts(ctx)

	a.logger.Info().
		Str("strategy", name).
		Int("page_size", limit).
		Int("max_pages", a.config.MaxPages).
		Int("first_page", cursor.Page).
		Int("skip", skip).
		Int("want", want).
		Int("total_products", total).
		Msg("Starting catalog fetch")

	seen := make(map[int64]struct{})
	var products []catalog.Product
	pages := 0
	truncated := false

	for {
		if err := ctx.Err(); err != nil {
			a.logger.Warn().
				Err(err).
				Int("pages", pages).
				Msg("Catalog fetch cancelled")
			return nil, fmt.Errorf("fetch catalog: %w", err)
		}

		if pages >= a.config.MaxPages {
			if total > 0 && passed+len(seen) >= total {
				// a full last page looks like more to come under the page
				// number strategy; the count says nothing is left
				a.logger.Debug().
					Int("pages", pages).
					Int("total_products", total).
					Msg("Page safety bound reached after the last product")
				break
			}
			truncated = true
			truncatedTotal.Inc()
			a.logger.Warn().
				Str("strategy", name).
				Int("pages", pages).
				Int("products", len(products)).
				Msg("Page safety bound reached - stopping fetch")
			break
		}

		page, err := a.source.ListProducts(ctx, limit, cursor)
		if err != nil {
			if pages == 0 {
				return nil, fmt.Errorf("fetch first page: %w", err)
			}
			a.logger.Error().
				Err(err).
				Int("pages", pages).
				Int("products", len(products)).
				Msg("Page fetch failed - discarding partial data")
			return nil, &catalog.PartialDataError{
				Pages:    pages,
				Products: len(products),
				Err:      err,
			}
		}
		pages++
		pagesFetchedTotal.WithLabelValues(name).Inc()

		fresh := 0
		for _, p := range page.Products {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			fresh++

			if skip > 0 {
				skip--
				continue
			}
			products = append(products, p)
		}

		event := a.logger.Debug().
			Int("page", pages).
			Int("page_products", len(page.Products)).
			Int("collected", len(products))
		if total > 0 {
			event = event.Float64("progress_pct", float64(len(seen))/float64(total)*100)
		}
		event.Msg("Fetched page")

		if want > 0 && len(products) >= want {
			products = products[:want]
			break
		}

		if len(page.Products) < limit {
			break
		}

		if fresh == 0 {
			a.logger.Warn().
				Int("page", pages).
				Msg("Page contained no new products - upstream is repeating itself, stopping")
			break
		}

		next, more := a.strategy.Next(cursor, page)
		if !more {
			break
		}
		cursor = next
	}

	fetchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	a.logger.Info().
		Str("strategy", name).
		Int("pages", pages).
		Int("products", len(products)).
		Bool("truncated", truncated).
		Dur("duration", time.Since(start)).
		Msg("Catalog fetch complete")

	return &Result{
		Products:  products,
		Pages:     pages,
		Truncated: truncated,
	}, nil
}

// countProducts asks the source for the catalog size, -1 if unknown.
func (a *Aggregator) countProducts(ctx context.Context) int {
	counter, ok := a.source.(Counter)
	if !ok {
		return -1
	}

	total, err := counter.CountProducts(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Product count unavailable - progress will not be reported")
		return -1
	}
	return total
}
