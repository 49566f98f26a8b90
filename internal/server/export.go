package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/shopify-catalog-export/pkg/cache"
	"github.com/Sternrassler/shopify-catalog-export/pkg/export"
	"github.com/Sternrassler/shopify-catalog-export/pkg/logging"
	"github.com/Sternrassler/shopify-catalog-export/pkg/pagination"
)

// Response headers set on exports.
const (
	headerExportID        = "X-Export-ID"
	headerExportProducts  = "X-Export-Products"
	headerExportRows      = "X-Export-Rows"
	headerExportTruncated = "X-Export-Truncated"
	headerCache           = "X-Cache"
)

// Defaults of /export-chunk.
const (
	defaultChunkStart = 1
	defaultChunkEnd   = 1000
)

// exportJob is one export request after parameter validation.
type exportJob struct {
	mode     export.Mode
	rng      *pagination.Range
	pageSize int
	filename string
}

func (s *Server) handleExportProducts(w http.ResponseWriter, r *http.Request) {
	mode, err := export.ParseMode(r.URL.Query().Get("mode"), export.ModeBasic)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	s.runExport(w, r, exportJob{
		mode:     mode,
		pageSize: s.cfg.Pagination.PageSize,
		filename: "shopify-products.csv",
	})
}

func (s *Server) handleExportChunk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode, err := export.ParseMode(q.Get("mode"), export.ModeFull)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	start, err := intParam(q.Get("start"), "start", defaultChunkStart)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	end, err := intParam(q.Get("end"), "end", defaultChunkEnd)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	limit, err := intParam(q.Get("limit"), "limit", pagination.MaxPageSize)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if limit < 1 {
		badRequest(w, fmt.Sprintf("limit must be >= 1 (got %d)", limit))
		return
	}
	limit = min(limit, pagination.MaxPageSize)

	rng := pagination.Range{Start: start, End: end}
	if err := rng.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}

	s.runExport(w, r, exportJob{
		mode:     mode,
		rng:      &rng,
		pageSize: limit,
		filename: fmt.Sprintf("produtos-shopify-%d-%d.csv", start, end),
	})
}

// runExport checks the credentials, serves from the cache when possible and
// otherwise fetches, flattens and renders the catalog.
func (s *Server) runExport(w http.ResponseWriter, r *http.Request, job exportJob) {
	ctx := r.Context()
	exportID := uuid.NewString()

	logger := logging.FromContext(ctx).With().
		Str("export_id", exportID).
		Str("mode", string(job.mode)).
		Logger()
	ctx = logger.WithContext(ctx)
	r = r.WithContext(ctx)
	w.Header().Set(headerExportID, exportID)

	if err := s.cfg.Shopify.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	key := s.cacheKey(job)
	if entry := s.cachedExport(r, key, logger); entry != nil {
		w.Header().Set(headerCache, "HIT")
		cache.WriteHeaders(w, entry)
		if cache.NotModified(r, entry) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		s.writeCSV(w, job, entry.Meta, entry.Data)
		return
	}

	src, err := s.newSource(s.cfg.Shopify)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	aggCfg := s.cfg.AggregatorConfig()
	aggCfg.PageSize = job.pageSize
	agg := pagination.NewAggregator(src, s.cfg.Strategy(), aggCfg).WithLogger(logger)

	logger.Info().
		Str("strategy", s.cfg.Strategy().Name()).
		Int("page_size", aggCfg.PageSize).
		Interface("range", job.rng).
		Msg("Export started")

	result, err := export.Run(ctx, agg, export.Request{Mode: job.mode, Range: job.rng}, logger)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	logger.Info().
		Int("products", result.Products).
		Int("rows", result.Rows).
		Int("pages", result.Pages).
		Bool("truncated", result.Truncated).
		Dur("duration", result.Duration).
		Msg("Export completed")

	meta := cache.Meta{
		Products:  result.Products,
		Rows:      result.Rows,
		Pages:     result.Pages,
		Truncated: result.Truncated,
	}

	if s.cache != nil {
		w.Header().Set(headerCache, "MISS")
		entry := cache.NewEntry(result.CSV, meta, s.cfg.ExportCacheTTL)
		if err := s.cache.Set(ctx, key, entry); err != nil {
			logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache export")
		}
		cache.WriteHeaders(w, entry)
	}

	s.writeCSV(w, job, meta, result.CSV)
}

func (s *Server) cacheKey(job exportJob) cache.CacheKey {
	key := cache.CacheKey{
		Shop:     s.cfg.Shopify.ShopName,
		Mode:     string(job.mode),
		Strategy: s.cfg.Strategy().Name(),
		PageSize: job.pageSize,
	}
	if job.rng != nil {
		key.Start, key.End = job.rng.Start, job.rng.End
	}
	return key
}

// cachedExport returns the cached export for key, or nil on a miss, a cache
// failure or when the cache is disabled.
func (s *Server) cachedExport(r *http.Request, key cache.CacheKey, logger zerolog.Logger) *cache.CacheEntry {
	if s.cache == nil || s.cfg.ExportCacheTTL <= 0 {
		return nil
	}

	entry, err := s.cache.Get(r.Context(), key)
	switch {
	case err == nil:
		logger.Debug().Str("key", key.String()).Msg("Export cache hit")
		return entry
	case errors.Is(err, cache.ErrCacheMiss):
		logger.Debug().Str("key", key.String()).Msg("Export cache miss")
	default:
		logger.Warn().Err(err).Str("key", key.String()).Msg("Export cache unavailable")
	}
	return nil
}

func (s *Server) writeCSV(w http.ResponseWriter, job exportJob, meta cache.Meta, data []byte) {
	h := w.Header()
	h.Set("Content-Type", "text/csv; charset=utf-8")
	h.Set("Content-Disposition", "attachment; filename="+job.filename)
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set(headerExportProducts, strconv.Itoa(meta.Products))
	h.Set(headerExportRows, strconv.Itoa(meta.Rows))
	if meta.Truncated {
		h.Set(headerExportTruncated, "true")
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// intParam parses an optional integer query parameter.
func intParam(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", name, raw)
	}
	return n, nil
}
