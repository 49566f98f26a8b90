package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for call bucket tracking.
var (
	shopifyCallsUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shopify_api_calls_used",
		Help: "Calls currently in the Shopify API leaky bucket",
	})

	shopifyCallsLimit = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shopify_api_calls_limit",
		Help: "Size of the Shopify API leaky bucket",
	})
)

// Tracker records the call bucket reported by Shopify responses.
type Tracker struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a new tracker. A nil store keeps state in memory.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// GetState returns the last observed bucket, or DefaultState when no
// response was recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*BucketState, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rate limit state: %w", err)
	}
	if state == nil {
		return DefaultState(), nil
	}
	return state, nil
}

// UpdateFromHeaders records the bucket from a response. Responses without
// the call-limit header are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	value := headers.Get(HeaderCallLimit)
	if value == "" {
		return nil
	}

	used, limit, err := ParseCallLimit(value)
	if err != nil {
		return err
	}

	state := &BucketState{
		CallsUsed:  used,
		CallsLimit: limit,
		LastUpdate: t.now(),
	}
	state.UpdateHealth()

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	shopifyCallsUsed.Set(float64(used))
	shopifyCallsLimit.Set(float64(limit))

	switch {
	case state.Saturated():
		t.logger.Warn().
			Int("calls_used", used).
			Int("calls_limit", limit).
			Msg("Shopify call bucket saturated - expect 429 responses")
	case state.NearLimit():
		t.logger.Info().
			Int("calls_used", used).
			Int("calls_limit", limit).
			Msg("Shopify call bucket filling up")
	default:
		t.logger.Debug().
			Int("calls_used", used).
			Int("calls_limit", limit).
			Msg("Shopify call bucket updated")
	}

	return nil
}
