package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/Sternrassler/shopify-catalog-export/pkg/logging"
	"github.com/Sternrassler/shopify-catalog-export/pkg/ratelimit"
)

// diagnosticsTimeout bounds the live Shopify check.
const diagnosticsTimeout = 15 * time.Second

const (
	configured    = "Configurado"
	notConfigured = "Não configurado"
)

type diagnostics struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Runtime   runtimeInfo            `json:"runtime"`
	Ambiente  credentialStatus       `json:"ambiente"`
	RateLimit *ratelimit.BucketState `json:"rate_limit,omitempty"`
	Shopify   *shopStatus            `json:"shopify,omitempty"`
}

type runtimeInfo struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	Uptime     string `json:"uptime"`
	Strategy   string `json:"pagination_strategy"`
	Cache      bool   `json:"cache_enabled"`
}

type credentialStatus struct {
	ShopName string `json:"shopName"`
	APIKey   string `json:"apiKey"`
	Password string `json:"password"`
}

type shopStatus struct {
	Conectado bool   `json:"conectado"`
	Nome      string `json:"nome,omitempty"`
	Email     string `json:"email,omitempty"`
	Plano     string `json:"plano,omitempty"`
	Erro      string `json:"erro,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("API de exportação de produtos Shopify funcionando!"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// readyTimeout bounds the readiness check.
const readyTimeout = 2 * time.Second

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := s.ready(ctx); err != nil {
			logger := logging.FromContext(r.Context())
			logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// handleDiagnostics reports credential presence, the call bucket and, when
// every credential is set, whether Shopify accepts them.
func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	creds := s.cfg.Shopify

	out := diagnostics{
		Status:    "online",
		Timestamp: time.Now().UTC(),
		Runtime: runtimeInfo{
			GoVersion:  runtime.Version(),
			Goroutines: runtime.NumGoroutine(),
			Uptime:     time.Since(s.started).Round(time.Second).String(),
			Strategy:   s.cfg.Strategy().Name(),
			Cache:      s.cache != nil,
		},
		Ambiente: credentialStatus{
			ShopName: presence(creds.ShopName),
			APIKey:   presence(creds.APIKey),
			Password: presence(creds.Password),
		},
	}

	state, err := s.tracker.GetState(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read call bucket state")
	} else {
		out.RateLimit = state
	}

	if creds.Validate() == nil {
		out.Shopify = s.checkShop(ctx)
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) checkShop(ctx context.Context) *shopStatus {
	ctx, cancel := context.WithTimeout(ctx, diagnosticsTimeout)
	defer cancel()

	src, err := s.newSource(s.cfg.Shopify)
	if err != nil {
		return &shopStatus{Erro: err.Error()}
	}
	shop, err := src.ShopInfo(ctx)
	if err != nil {
		logger := logging.FromContext(ctx)
		logger.Warn().Err(err).Msg("Shopify connection check failed")
		return &shopStatus{Erro: err.Error()}
	}
	return &shopStatus{
		Conectado: true,
		Nome:      shop.Name,
		Email:     shop.Email,
		Plano:     shop.PlanName,
	}
}

func presence(v string) string {
	if v == "" {
		return notConfigured
	}
	return configured
}
