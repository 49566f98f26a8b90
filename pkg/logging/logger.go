// Package logging configures the zerolog loggers shared by the export
// server, the CLI and the library packages.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name as read from LOG_LEVEL.
type LogLevel string

// Level names accepted by Setup. Unknown names fall back to LevelInfo.
const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config selects level, format and destination of the process logger.
type Config struct {
	Level   LogLevel
	Pretty  bool      // console format instead of JSON lines
	Output  io.Writer // nil means os.Stderr
	Service string    // "service" field on every line, omitted when empty
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// Setup builds the process logger from cfg and installs it as the global
// logger and as the fallback for zerolog.Ctx.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	fields := zerolog.New(w).With().Timestamp()
	if cfg.Service != "" {
		fields = fields.Str("service", cfg.Service)
	}

	log.Logger = fields.Logger()
	zerolog.DefaultContextLogger = &log.Logger
	return log.Logger
}

func parseLevel(name LogLevel) zerolog.Level {
	s := strings.ToLower(strings.TrimSpace(string(name)))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// NewLogger derives a logger tagged with component from the global logger.
// Call it after Setup; loggers derived earlier keep the old output.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// FromContext returns the request logger stored in ctx, falling back to the
// global logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return log.Logger
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Every fetched page (page number, page size, collected count)
//   - Cache hit/miss and keys
//   - Call bucket updates while healthy
//
// Info: Normal operation events
//   - Export start and completion (mode, products, rows, duration)
//   - One access log line per HTTP request
//   - Requests that succeeded after a retry
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Page safety bound reached (export truncated)
//   - Upstream repeating pages
//   - Call bucket saturated
//   - Retry attempts exhausted, cache errors
//
// Error: Error conditions requiring attention
//   - Failed exports (configuration, upstream, partial data, serialization)
//   - Panics recovered by the HTTP middleware
//
// Context Fields:
//   - component: package emitting the line
//   - export_id: id returned in the X-Export-ID header
//   - request_id: chi request id
//   - strategy: pagination strategy
//   - page, products, rows: progress counters
//   - endpoint, status, error_class: Shopify call outcome
//   - calls_used, calls_limit: Shopify call bucket
//   - duration: elapsed time
