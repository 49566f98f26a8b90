package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/Sternrassler/shopify-catalog-export/pkg/catalog"
	"github.com/Sternrassler/shopify-catalog-export/pkg/logging"
	"github.com/Sternrassler/shopify-catalog-export/pkg/pagination"
)

// errorBody is the JSON body of every failed request.
type errorBody struct {
	Error        string   `json:"error"`
	Message      string   `json:"message"`
	Missing      []string `json:"missing,omitempty"`
	Status       int      `json:"status,omitempty"`
	PagesFetched *int     `json:"pages_fetched,omitempty"`
	Stack        string   `json:"stack,omitempty"`
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// badRequest rejects malformed query parameters.
func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error:   "Parâmetros inválidos",
		Message: message,
	})
}

// writeError maps an export failure to its response. A request whose client
// went away gets no body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromContext(r.Context())

	if r.Context().Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		logger.Warn().Err(err).Msg("Export aborted, client disconnected")
		return
	}

	status := http.StatusInternalServerError
	body := errorBody{
		Error:   "Falha ao exportar produtos",
		Message: err.Error(),
	}

	var (
		cfgErr     *catalog.ConfigurationError
		partialErr *catalog.PartialDataError
		upErr      *catalog.UpstreamError
		serErr     *catalog.SerializationError
	)
	switch {
	case errors.Is(err, pagination.ErrInvalidRange), errors.Is(err, pagination.ErrRangeUnreachable):
		status = http.StatusBadRequest
		body.Error = "Parâmetros inválidos"
	case errors.As(err, &cfgErr):
		body.Error = "Configuração incompleta"
		body.Message = "Credenciais do Shopify não configuradas: " + strings.Join(cfgErr.Missing, ", ")
		body.Missing = cfgErr.Missing
	case errors.As(err, &partialErr):
		status = http.StatusBadGateway
		body.Error = "Exportação incompleta"
		pages := partialErr.Pages
		body.PagesFetched = &pages
	case errors.As(err, &upErr):
		status = http.StatusBadGateway
		body.Error = "Falha ao comunicar com a Shopify"
		body.Status = upErr.StatusCode
	case errors.As(err, &serErr):
		body.Error = "Falha ao gerar CSV"
	}

	if !s.cfg.IsProduction() {
		var st stackTracer
		if errors.As(err, &st) {
			body.Stack = strings.TrimSpace(fmt.Sprintf("%+v", st.StackTrace()))
		}
	}

	logger.Error().Err(err).Int("status", status).Msg("Export failed")
	writeJSON(w, status, body)
}
