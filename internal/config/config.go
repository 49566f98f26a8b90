// Package config loads and validates the service configuration from
// environment variables.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/shopify-catalog-export/pkg/pagination"
	"github.com/Sternrassler/shopify-catalog-export/pkg/shopify"
)

// ShopifyConfig holds the store credentials. Missing credentials are not a
// load error; Validate reports them when an export needs them.
type ShopifyConfig = shopify.Config

// PaginationConfig controls how the catalog is walked.
type PaginationConfig struct {
	// Strategy is one of page, page_info or since_id.
	Strategy string

	// PageSize is the page limit, clamped to 1..250.
	PageSize int

	// MaxPages bounds the fetches of a single export.
	MaxPages int
}

// Config holds all configuration values of the export service.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "3000".
	Port string

	// Environment is "development" or "production". Error responses carry
	// stack traces outside production.
	Environment string

	// LogLevel controls the minimum log level. Defaults to "info".
	LogLevel  string
	LogPretty bool

	Shopify    ShopifyConfig
	Pagination PaginationConfig

	// RedisURL enables the export cache and shared call bucket state.
	// Empty disables both.
	RedisURL       string
	ExportCacheTTL time.Duration

	// CORSOrigins is the list of allowed cross-origin request origins.
	CORSOrigins []string

	// HTTPWriteTimeout bounds how long a response may take; full exports of
	// large catalogs need minutes.
	HTTPWriteTimeout time.Duration
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error for values that are set but malformed.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "3000")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", "false")
	v.SetDefault("SHOPIFY_API_VERSION", shopify.DefaultAPIVersion)
	v.SetDefault("SHOPIFY_TIMEOUT", "2m")
	v.SetDefault("PAGINATION_STRATEGY", pagination.StrategyPageInfo)
	v.SetDefault("PAGE_SIZE", strconv.Itoa(pagination.MaxPageSize))
	v.SetDefault("MAX_PAGES", strconv.Itoa(pagination.DefaultConfig().MaxPages))
	v.SetDefault("EXPORT_CACHE_TTL", "5m")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("HTTP_WRITE_TIMEOUT", "5m")

	cfg := Config{
		Port:        v.GetString("PORT"),
		Environment: v.GetString("ENVIRONMENT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		Shopify: ShopifyConfig{
			ShopName:   strings.TrimSpace(v.GetString(shopify.EnvShopName)),
			APIKey:     strings.TrimSpace(v.GetString(shopify.EnvAPIKey)),
			Password:   strings.TrimSpace(v.GetString(shopify.EnvPassword)),
			APIVersion: v.GetString("SHOPIFY_API_VERSION"),
		},
		RedisURL:    strings.TrimSpace(v.GetString("REDIS_URL")),
		CORSOrigins: splitCSV(v.GetString("CORS_ORIGINS")),
	}

	var errs []string
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	var err error
	cfg.LogPretty, err = getBool(v, "LOG_PRETTY")
	collect(err)
	cfg.Shopify.Timeout, err = getDuration(v, "SHOPIFY_TIMEOUT")
	collect(err)
	cfg.ExportCacheTTL, err = getDuration(v, "EXPORT_CACHE_TTL")
	collect(err)
	cfg.HTTPWriteTimeout, err = getDuration(v, "HTTP_WRITE_TIMEOUT")
	collect(err)

	strategy, err := pagination.ParseStrategy(v.GetString("PAGINATION_STRATEGY"))
	collect(err)
	if strategy != nil {
		cfg.Pagination.Strategy = strategy.Name()
	}

	cfg.Pagination.PageSize, err = getInt(v, "PAGE_SIZE")
	collect(err)
	cfg.Pagination.PageSize = clamp(cfg.Pagination.PageSize, 1, pagination.MaxPageSize)

	cfg.Pagination.MaxPages, err = getInt(v, "MAX_PAGES")
	collect(err)
	if err == nil && cfg.Pagination.MaxPages < 1 {
		collect(fmt.Errorf("MAX_PAGES must be >= 1 (got %d)", cfg.Pagination.MaxPages))
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// Strategy returns the configured pagination strategy.
func (c Config) Strategy() pagination.Strategy {
	s, err := pagination.ParseStrategy(c.Pagination.Strategy)
	if err != nil {
		return pagination.PageInfoStrategy{}
	}
	return s
}

// AggregatorConfig returns the aggregator settings.
func (c Config) AggregatorConfig() pagination.Config {
	return pagination.Config{
		PageSize: c.Pagination.PageSize,
		MaxPages: c.Pagination.MaxPages,
	}
}

func getInt(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", key, raw)
	}
	return n, nil
}

func getBool(v *viper.Viper, key string) (bool, error) {
	raw := strings.TrimSpace(v.GetString(key))
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean (got %q)", key, raw)
	}
	return b, nil
}

func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s or 5m (got %q)", key, raw)
	}
	return d, nil
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
