package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/shopify-catalog-export/internal/config"
	"github.com/Sternrassler/shopify-catalog-export/internal/server"
	"github.com/Sternrassler/shopify-catalog-export/pkg/cache"
	"github.com/Sternrassler/shopify-catalog-export/pkg/logging"
	"github.com/Sternrassler/shopify-catalog-export/pkg/ratelimit"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Service: "catalog-export",
	})

	opts, cleanup, err := serverOptions(context.Background(), cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise dependencies")
	}
	defer cleanup()

	if err := cfg.Shopify.Validate(); err != nil {
		// exports answer 500 until the credentials are set
		logger.Warn().Err(err).Msg("Shopify credentials incomplete")
	}

	srv := newHTTPServer(cfg, server.New(cfg, opts...).Handler())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("environment", cfg.Environment).
			Str("strategy", cfg.Pagination.Strategy).
			Int("page_size", cfg.Pagination.PageSize).
			Msg("Starting catalog export server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-stop
	logger.Info().Msg("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Shutdown error")
		return
	}
	logger.Info().Msg("Server stopped")
}

// newHTTPServer wraps h with explicit timeouts. The write timeout comes from
// the configuration because full exports of large catalogs take minutes.
func newHTTPServer(cfg config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

// serverOptions builds the server dependencies. With REDIS_URL set the call
// bucket state is shared through Redis and exports are cached; otherwise the
// state stays in memory and the cache is off.
func serverOptions(ctx context.Context, cfg config.Config, logger zerolog.Logger) ([]server.Option, func(), error) {
	opts := []server.Option{server.WithLogger(logger)}

	if cfg.RedisURL == "" {
		logger.Info().Msg("REDIS_URL not set - export cache disabled")
		tracker := ratelimit.NewTracker(nil, logger.With().Str("component", "ratelimit").Logger())
		return append(opts, server.WithTracker(tracker)), func() {}, nil
	}

	rdb, err := connectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Str("addr", rdb.Options().Addr).Msg("Connected to Redis")

	tracker := ratelimit.NewTracker(
		ratelimit.NewRedisStore(rdb),
		logger.With().Str("component", "ratelimit").Logger(),
	)
	opts = append(opts,
		server.WithTracker(tracker),
		server.WithReadyCheck(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
	)
	if cfg.ExportCacheTTL > 0 {
		opts = append(opts, server.WithCache(cache.NewManager(rdb)))
	}

	cleanup := func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	return opts, cleanup, nil
}

// connectRedis parses a redis:// URL and pings the server.
func connectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opt.Addr, err)
	}
	return rdb, nil
}
