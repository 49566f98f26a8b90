package shopify

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/shopify-catalog-export/pkg/catalog"
	"github.com/Sternrassler/shopify-catalog-export/pkg/ratelimit"
)

// Prometheus metrics for Shopify API calls.
var (
	shopifyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_requests_total",
		Help: "Total Shopify API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	shopifyRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopify_request_duration_seconds",
		Help:    "Shopify API request duration in seconds by endpoint, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	shopifyErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_errors_total",
		Help: "Total Shopify API errors by class",
	}, []string{"class"})
)

// maxErrorBody bounds how much of an error response ends up in the error message.
const maxErrorBody = 512

// Transport is the http.RoundTripper under the go-shopify client. It records
// the call bucket, retries transient failures and turns final error
// responses into *catalog.UpstreamError.
type Transport struct {
	base    http.RoundTripper
	tracker *ratelimit.Tracker
	policy  RetryPolicy
	logger  zerolog.Logger
}

// NewTransport wraps base. A nil base uses http.DefaultTransport, a nil
// tracker skips bucket tracking and a nil policy uses RetryConfigForErrorClass.
func NewTransport(base http.RoundTripper, tracker *ratelimit.Tracker, policy RetryPolicy, logger zerolog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if policy == nil {
		policy = RetryConfigForErrorClass
	}
	return &Transport{
		base:    base,
		tracker: tracker,
		policy:  policy,
		logger:  logger,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointName(req.URL.Path)

	startTime := time.Now()
	defer func() {
		shopifyRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// a consumed body cannot be replayed
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	var resp *http.Response
	err := retryWithBackoff(ctx, t.policy, t.logger, func() (catalog.ErrorClass, time.Duration, error) {
		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return "", 0, err
			}
			attemptReq.Body = body
		}

		r, err := t.base.RoundTrip(attemptReq)
		if err != nil {
			if ctx.Err() != nil {
				// caller went away, not an upstream failure
				return "", 0, ctx.Err()
			}
			t.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			shopifyErrorsTotal.WithLabelValues(string(catalog.ErrorClassNetwork)).Inc()
			shopifyRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()

			class := catalog.ErrorClassNetwork
			if !replayable {
				class = ""
			}
			return class, 0, &catalog.UpstreamError{
				Class:   catalog.ErrorClassNetwork,
				Message: "request failed",
				Err:     err,
			}
		}

		if t.tracker != nil {
			if err := t.tracker.UpdateFromHeaders(ctx, r.Header); err != nil {
				t.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
			}
		}

		shopifyRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()

		if r.StatusCode < 400 {
			resp = r
			return "", 0, nil
		}

		class := classifyStatus(r.StatusCode)
		shopifyErrorsTotal.WithLabelValues(string(class)).Inc()

		upErr := &catalog.UpstreamError{
			StatusCode: r.StatusCode,
			Class:      class,
			Message:    readErrorBody(r),
		}
		retryAfter := parseRetryAfter(r.Header)

		t.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", r.StatusCode).
			Str("error_class", string(class)).
			Msg("Shopify request error")

		if !replayable {
			return "", 0, upErr
		}
		return class, retryAfter, upErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// classifyStatus categorizes an error status.
func classifyStatus(status int) catalog.ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return catalog.ErrorClassRateLimit
	case status >= 500:
		return catalog.ErrorClassServer
	default:
		return catalog.ErrorClassClient
	}
}

// readErrorBody returns a trimmed excerpt of the response body and closes it.
func readErrorBody(r *http.Response) string {
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return r.Status
	}
	// drain so the connection can be reused
	io.Copy(io.Discard, r.Body)

	for !utf8.Valid(data) && len(data) > 0 {
		data = data[:len(data)-1]
	}
	return strings.TrimSpace(string(data))
}

// endpointName reduces /admin/api/2023-10/products/count.json to
// products/count.json so metric labels stay stable across API versions.
func endpointName(path string) string {
	path = strings.TrimPrefix(path, "/")
	if rest, ok := strings.CutPrefix(path, "admin/api/"); ok {
		if _, after, found := strings.Cut(rest, "/"); found {
			return after
		}
		return rest
	}
	return strings.TrimPrefix(path, "admin/")
}

// contextTransport binds every request to ctx. go-shopify builds its
// requests without a context, so each adapter call gets its own binding.
type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (c contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.next.RoundTrip(req.WithContext(c.ctx))
}
