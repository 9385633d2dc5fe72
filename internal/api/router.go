// Package api wires HTTP routes to the cache interceptor. It is thin
// plumbing: each route resolves its parameters into an endpoint category,
// an argument list and a fetch closure, and hands them to the interceptor.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/quantlytic/market-proxy/pkg/cache"
	"github.com/quantlytic/market-proxy/pkg/logging"
	"github.com/quantlytic/market-proxy/pkg/upstream"
)

// Server holds the route dependencies.
type Server struct {
	interceptor *cache.Interceptor
	admin       *cache.Admin
	upstream    *upstream.Client
	adminToken  string
	logger      zerolog.Logger
}

// NewServer creates the API server.
func NewServer(interceptor *cache.Interceptor, admin *cache.Admin, up *upstream.Client, adminToken string) *Server {
	return &Server{
		interceptor: interceptor,
		admin:       admin,
		upstream:    up,
		adminToken:  adminToken,
		logger:      logging.NewLogger("api"),
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ticker/{symbol}", func(r chi.Router) {
			r.Get("/info", s.handleTickerInfo)
			r.Get("/history", s.handleTickerHistory)
			r.Get("/dividends", s.handleTickerDividends)
			r.Get("/financials", s.handleTickerFinancials)
			r.Get("/indicators/sma", s.handleTickerSMA)
			r.Get("/indicators/rsi", s.handleTickerRSI)
		})
		r.Get("/tickers", s.handleBatchQuotes)
		r.Get("/search", s.handleSearch)
		r.Get("/market/summary", s.handleMarketSummary)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/strategy", s.handleCacheStrategy)
			r.Get("/stats", s.handleCacheStats)
			r.With(s.requireAdminToken).Post("/clear", s.handleCacheClear)
		})
	})

	return r
}

// requestLogger logs each request with its outcome at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

// requireAdminToken gates destructive admin routes behind a bearer token.
// Real access control belongs to the deployment's auth layer; this is the
// minimal operator gate.
func (s *Server) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeError(w, http.StatusForbidden, "admin routes disabled: no ADMIN_TOKEN configured")
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.adminToken {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
