// Package shopify adapts the Shopify Admin REST API, through
// github.com/bold-commerce/go-shopify, to the catalog source the export
// pipeline pulls pages from.
package shopify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	goshopify "github.com/bold-commerce/go-shopify/v3"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Sternrassler/shopify-catalog-export/pkg/catalog"
	"github.com/Sternrassler/shopify-catalog-export/pkg/pagination"
	"github.com/Sternrassler/shopify-catalog-export/pkg/ratelimit"
)

// DefaultAPIVersion is the Admin API version used when none is configured.
const DefaultAPIVersion = "2023-10"

// productFields limits product payloads to what the export uses.
const productFields = "id,title,variants"

// Environment variable names of the credentials, reported by ConfigurationError.
const (
	EnvShopName = "SHOPIFY_SHOP_NAME"
	EnvAPIKey   = "SHOPIFY_API_KEY"
	EnvPassword = "SHOPIFY_PASSWORD"
)

// Config holds the store credentials.
type Config struct {
	// ShopName is the store handle ("my-store") or full domain
	// ("my-store.myshopify.com").
	ShopName string

	// APIKey and Password are the private app credentials, sent as HTTP
	// basic auth.
	APIKey   string
	Password string

	APIVersion string

	// Timeout bounds a single adapter call, retries included.
	Timeout time.Duration
}

// Validate reports every missing credential at once.
func (c Config) Validate() error {
	var missing []string
	if c.ShopName == "" {
		missing = append(missing, EnvShopName)
	}
	if c.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if c.Password == "" {
		missing = append(missing, EnvPassword)
	}
	if len(missing) > 0 {
		return &catalog.ConfigurationError{Missing: missing}
	}
	return nil
}

// Option configures a Client.
type Option func(*Client)

// WithBaseTransport sets the transport the retrying transport sends through.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.base = rt }
}

// WithTracker records the call bucket of every response.
func WithTracker(tracker *ratelimit.Tracker) Option {
	return func(c *Client) { c.tracker = tracker }
}

// WithRetryPolicy overrides RetryConfigForErrorClass.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) { c.policy = policy }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger.With().Str("component", "shopify").Logger() }
}

// Client is the catalog source backed by the Shopify Admin API.
// It holds no per-request state and is safe for concurrent use.
type Client struct {
	config    Config
	base      http.RoundTripper
	tracker   *ratelimit.Tracker
	policy    RetryPolicy
	logger    zerolog.Logger
	transport *Transport
}

// New creates a new client. It returns a *catalog.ConfigurationError when a
// credential is missing and never touches the network.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	c := &Client{
		config: cfg,
		logger: log.With().Str("component", "shopify").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.transport = NewTransport(c.base, c.tracker, c.policy, c.logger)

	return c, nil
}

// api returns a go-shopify client whose requests carry ctx. The retrying
// transport sees ctx too, so the deadline of a call covers its backoffs.
func (c *Client) api(ctx context.Context) *goshopify.Client {
	httpClient := &http.Client{
		Transport: contextTransport{ctx: ctx, next: c.transport},
	}
	app := goshopify.App{
		ApiKey:   c.config.APIKey,
		Password: c.config.Password,
	}
	return goshopify.NewClient(app, c.config.ShopName, "",
		goshopify.WithVersion(c.config.APIVersion),
		goshopify.WithHTTPClient(httpClient),
	)
}

// ListProducts fetches one page of products. A continuation token takes
// precedence over since_id, which takes precedence over a page number.
func (c *Client) ListProducts(ctx context.Context, limit int, cursor pagination.Cursor) (pagination.Page, error) {
	opts := &goshopify.ProductListOptions{
		ListOptions: goshopify.ListOptions{
			Limit:  limit,
			Fields: productFields,
		},
	}
	switch {
	case cursor.Token != "":
		// Shopify rejects any other filter next to page_info
		opts.PageInfo = cursor.Token
	case cursor.SinceID > 0:
		opts.SinceID = cursor.SinceID
	case cursor.Page > 0:
		opts.Page = cursor.Page
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	products, pg, err := c.api(callCtx).Product.ListWithPagination(opts)
	if err != nil {
		return pagination.Page{}, c.wrap(ctx, "list products", err)
	}

	page := pagination.Page{Products: convertProducts(products)}
	if pg != nil && pg.NextPageOptions != nil {
		page.NextToken = pg.NextPageOptions.PageInfo
	}

	c.logger.Debug().
		Int("products", len(page.Products)).
		Bool("has_next", page.NextToken != "").
		Msg("Listed products")

	return page, nil
}

// CountProducts returns the number of products in the store.
func (c *Client) CountProducts(ctx context.Context) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	n, err := c.api(callCtx).Product.Count(nil)
	if err != nil {
		return 0, c.wrap(ctx, "count products", err)
	}
	return n, nil
}

// ShopInfo returns the store behind the credentials.
func (c *Client) ShopInfo(ctx context.Context) (catalog.Shop, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	shop, err := c.api(callCtx).Shop.Get(nil)
	if err != nil {
		return catalog.Shop{}, c.wrap(ctx, "get shop", err)
	}
	if shop == nil {
		return catalog.Shop{}, nil
	}
	return catalog.Shop{
		Name:     shop.Name,
		Email:    shop.Email,
		PlanName: shop.PlanName,
	}, nil
}

// wrap turns a go-shopify error into a *catalog.UpstreamError carrying op
// and a stack trace. ctx is the caller's context: its errors are passed
// through so callers can tell a departed client from a failing upstream,
// while running out of Config.Timeout is a network failure.
func (c *Client) wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return pkgerrors.Wrap(err, op)
	}

	var upErr *catalog.UpstreamError
	if errors.As(err, &upErr) {
		upErr.Op = op
		return pkgerrors.WithStack(upErr)
	}

	if isTimeout(err) {
		return pkgerrors.WithStack(&catalog.UpstreamError{
			Op:      op,
			Class:   catalog.ErrorClassNetwork,
			Message: fmt.Sprintf("no response within %s", c.config.Timeout),
			Err:     err,
		})
	}

	// the transport accepted the response, so go-shopify failed to read it
	return pkgerrors.WithStack(&catalog.UpstreamError{
		Op:    op,
		Class: catalog.ErrorClassDecode,
		Err:   err,
	})
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func convertProducts(in []goshopify.Product) []catalog.Product {
	out := make([]catalog.Product, 0, len(in))
	for _, p := range in {
		product := catalog.Product{
			ID:    p.ID,
			Title: p.Title,
		}
		for _, v := range p.Variants {
			product.Variants = append(product.Variants, catalog.Variant{
				ID:                v.ID,
				SKU:               v.Sku,
				Title:             v.Title,
				InventoryQuantity: v.InventoryQuantity,
				Price:             formatPrice(v.Price),
			})
		}
		out = append(out, product)
	}
	return out
}

func formatPrice(p *decimal.Decimal) string {
	if p == nil {
		return catalog.DefaultPrice
	}
	return p.StringFixed(2)
}
