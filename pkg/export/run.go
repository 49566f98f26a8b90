package export

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/shopify-catalog-export/pkg/pagination"
)

// Prometheus metrics for export runs.
var (
	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_exports_total",
		Help: "Total catalog exports by mode and result",
	}, []string{"mode", "result"})

	exportRows = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_export_rows",
		Help:    "Number of CSV rows per successful export",
		Buckets: prometheus.ExponentialBuckets(10, 4, 8),
	}, []string{"mode"})
)

// Fetcher is the part of the aggregator an export run needs.
type Fetcher interface {
	FetchAll(ctx context.Context, rng *pagination.Range) (*pagination.Result, error)
}

// Request describes one export run.
type Request struct {
	Mode  Mode
	Range *pagination.Range
}

// Result is a rendered export.
type Result struct {
	CSV       []byte
	Products  int
	Rows      int
	Pages     int
	Truncated bool
	Duration  time.Duration
}

// Run fetches the catalog, flattens it and renders the CSV.
func Run(ctx context.Context, fetcher Fetcher, req Request, logger zerolog.Logger) (*Result, error) {
	start := time.Now()
	mode := req.Mode
	if mode == "" {
		mode = ModeBasic
	}

	fetched, err := fetcher.FetchAll(ctx, req.Range)
	if err != nil {
		exportsTotal.WithLabelValues(string(mode), "fetch_error").Inc()
		return nil, err
	}

	rows := Flatten(fetched.Products)
	logger.Debug().
		Int("products", len(fetched.Products)).
		Int("rows", len(rows)).
		Msg("Flattened products into rows")

	data, err := Serialize(mode, rows)
	if err != nil {
		exportsTotal.WithLabelValues(string(mode), "serialize_error").Inc()
		return nil, err
	}

	result := "ok"
	if fetched.Truncated {
		result = "truncated"
	}
	exportsTotal.WithLabelValues(string(mode), result).Inc()
	exportRows.WithLabelValues(string(mode)).Observe(float64(len(rows)))

	return &Result{
		CSV:       data,
		Products:  len(fetched.Products),
		Rows:      len(rows),
		Pages:     fetched.Pages,
		Truncated: fetched.Truncated,
		Duration:  time.Since(start),
	}, nil
}
