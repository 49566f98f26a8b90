// Command catalog-export writes the Shopify catalog CSV to a file or stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/Sternrassler/shopify-catalog-export/internal/config"
	"github.com/Sternrassler/shopify-catalog-export/pkg/export"
	"github.com/Sternrassler/shopify-catalog-export/pkg/logging"
	"github.com/Sternrassler/shopify-catalog-export/pkg/pagination"
	"github.com/Sternrassler/shopify-catalog-export/pkg/shopify"
)

// sourceFactory builds the catalog source from validated credentials.
type sourceFactory func(cfg config.ShopifyConfig) (pagination.Source, error)

func shopifySource(cfg config.ShopifyConfig) (pagination.Source, error) {
	return shopify.New(cfg, shopify.WithLogger(logging.NewLogger("shopify")))
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(shopifySource).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "catalog-export: %v\n", err)
		os.Exit(1)
	}
}

func newApp(newSource sourceFactory) *cli.App {
	return &cli.App{
		Name:  "catalog-export",
		Usage: "Export the Shopify product catalog as CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: string(export.ModeBasic), Usage: "column set: basic or full"},
			&cli.IntFlag{Name: "start", Usage: "first product position (1-based); 0 exports the whole catalog"},
			&cli.IntFlag{Name: "end", Usage: "last product position, inclusive"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "products per page, at most 250 (default PAGE_SIZE)"},
			&cli.StringFlag{Name: "strategy", Aliases: []string{"s"}, Usage: "pagination strategy: page, page_info or since_id (default PAGINATION_STRATEGY)"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (leave empty for stdout)"},
			&cli.DurationFlag{Name: "timeout", Value: 30 * time.Minute, Usage: "abort the export after this long"},
		},
		Action: func(c *cli.Context) error {
			return runExport(c, newSource)
		},
	}
}

func runExport(c *cli.Context, newSource sourceFactory) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Output:  c.App.ErrWriter,
		Service: "catalog-export-cli",
	})

	mode, err := export.ParseMode(c.String("mode"), export.ModeBasic)
	if err != nil {
		return err
	}

	var rng *pagination.Range
	if c.IsSet("start") || c.IsSet("end") {
		rng = &pagination.Range{Start: c.Int("start"), End: c.Int("end")}
		if rng.Start == 0 {
			rng.Start = 1
		}
		if err := rng.Validate(); err != nil {
			return err
		}
	}

	strategy := cfg.Strategy()
	if name := c.String("strategy"); name != "" {
		if strategy, err = pagination.ParseStrategy(name); err != nil {
			return err
		}
	}

	aggCfg := cfg.AggregatorConfig()
	if c.IsSet("limit") {
		aggCfg.PageSize = min(max(c.Int("limit"), 1), pagination.MaxPageSize)
	}

	if err := cfg.Shopify.Validate(); err != nil {
		return err
	}
	src, err := newSource(cfg.Shopify)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	agg := pagination.NewAggregator(src, strategy, aggCfg).WithLogger(logger)
	result, err := export.Run(ctx, agg, export.Request{Mode: mode, Range: rng}, logger)
	if err != nil {
		return err
	}

	if err := writeOutput(c.App.Writer, c.String("out"), result.CSV); err != nil {
		return err
	}

	event := log.Info()
	if result.Truncated {
		event = log.Warn()
	}
	event.
		Str("mode", string(mode)).
		Int("products", result.Products).
		Int("rows", result.Rows).
		Int("pages", result.Pages).
		Bool("truncated", result.Truncated).
		Dur("duration", result.Duration).
		Msg("Export written")
	return nil
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
