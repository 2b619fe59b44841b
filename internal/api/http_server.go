package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"barangay/internal/config"
	"barangay/internal/domain"
	"barangay/internal/metrics"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HTTPServer exposes the borrowing API over JSON.
type HTTPServer struct {
	cfg       config.APIConfig
	borrow    domain.BorrowService
	items     domain.ItemService
	store     Pinger
	exportDir string
	server    *http.Server
	auth      *HTTPAuth
	log       zerolog.Logger
	now       func() time.Time
	location  *time.Location
}

func NewHTTPServer(
	cfg config.APIConfig,
	borrow domain.BorrowService,
	items domain.ItemService,
	store Pinger,
	exportDir string,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:       cfg,
		borrow:    borrow,
		items:     items,
		store:     store,
		exportDir: exportDir,
		auth:      NewHTTPAuth(cfg),
		log:       zerolog.Nop(),
		now:       time.Now,
		location:  time.UTC,
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	require := s.auth.Require
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.RateLimit)

		r.Route("/items", func(r chi.Router) {
			r.With(require(permReadItems)).Get("/", s.handleListItems)
			r.With(require(permWriteItems)).Post("/", s.handleCreateItem)
			r.With(require(permWriteItems)).Put("/{id}", s.handleUpdateItem)
			r.With(require(permReadAvailability)).Get("/{id}/availability", s.handleAvailability)
		})

		r.Route("/requests", func(r chi.Router) {
			r.With(require(permWriteRequests)).Post("/", s.handleCreateRequest)
			r.With(require(permReadRequests)).Get("/", s.handleListRequests)
			r.With(require(permReadRequests)).Get("/export", s.handleExport)
			r.With(require(permReadRequests)).Get("/{id}", s.handleGetRequest)
			r.With(require(permManageRequests)).Put("/{id}/status", s.handleUpdateStatus)
		})
	})

	return r
}

// Handler is the routed handler, for embedding and tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// SetLocation sets the zone whose calendar date is "today" for export defaults.
func (s *HTTPServer) SetLocation(loc *time.Location) {
	if loc != nil {
		s.location = loc
	}
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type ctxKey int

const (
	requestIDCtxKey ctxKey = iota
	clientCtxKey
)

// accessLog assigns the request id and writes one line per request.
func (s *HTTPServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFromHeader(r.Header.Get(requestIDMetadataKey))
		w.Header().Set(requestIDMetadataKey, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(context.WithValue(r.Context(), requestIDCtxKey, requestID)))

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = r.Method + " " + rctx.RoutePattern()
		}
		metrics.IncHTTP(route)

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", recorder.status).
			Str("remote", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

// clientFromContext is the API client name set by Require.
func clientFromContext(ctx context.Context) string {
	name, _ := ctx.Value(clientCtxKey).(string)
	return name
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	enabled bool
	keys    *keyring
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		enabled: cfg.Auth.Enabled,
		keys:    newKeyring(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

// Require rejects callers without valid keys or without the permission.
func (a *HTTPAuth) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.enabled {
				next.ServeHTTP(w, r)
				return
			}

			client, err := a.keys.authenticate(
				strings.TrimSpace(r.Header.Get(a.keys.apiKeyHeader)),
				strings.TrimSpace(r.Header.Get(a.keys.extraHeader)),
			)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			if !allowed(client, permission) {
				writeError(w, http.StatusForbidden, errPermissionDenied.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientCtxKey, client.Name)))
		})
	}
}

func (a *HTTPAuth) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errRateLimitExceeded.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.keys.apiKeyHeader)); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

// writeServiceError maps engine errors onto status codes and logs the ones
// that are not the caller's fault.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code, resp := newErrorResponse(err)
	if code >= http.StatusInternalServerError {
		s.log.Error().
			Err(err).
			Str("request_id", requestIDFromContext(r.Context())).
			Str("client", clientFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeJSON(w, code, resp)
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
