// Package api serves the client state to local UI processes: a chi router with huma
// operations over the session, tag and mission components, plus the SSE stream.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mapflag/mapflag-client/internal/http/response"
	"github.com/mapflag/mapflag-client/internal/ratelimit"
	"github.com/mapflag/mapflag-client/internal/sse"
)

// Options configures the server. SSEHandler, SSEManager and RateLimiter are optional.
type Options struct {
	Services        *Services
	SSEHandler      http.Handler
	SSEManager      *sse.Manager
	RateLimiter     *ratelimit.KeyedRateLimiter
	AllowedOrigins  []string
	DefaultLanguage string
	Logger          *slog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services    *Services
	sseHandler  http.Handler
	sseManager  *sse.Manager
	rateLimiter *ratelimit.KeyedRateLimiter
	defaultLang string
	router      *chi.Mux
	api         huma.API
	logger      *slog.Logger
}

// NewServer creates a server with all routes configured.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "zh-Hant"
	}

	s := &Server{
		services:    opts.Services,
		sseHandler:  opts.SSEHandler,
		sseManager:  opts.SSEManager,
		rateLimiter: opts.RateLimiter,
		defaultLang: opts.DefaultLanguage,
		router:      chi.NewRouter(),
		logger:      opts.Logger,
	}

	s.setupMiddleware(opts.AllowedOrigins)

	humaConfig := huma.DefaultConfig("mapflag local API", "1.0.0")
	humaConfig.Info.Description = "Client state for map UIs: session, tags, filters and missions."
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(recoverer(s.logger))
	s.router.Use(requestLogger(s.logger))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Content-Type", "Last-Event-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.router.Use(withLanguage)
	if s.rateLimiter != nil {
		s.router.Use(RateLimitMiddleware(s.rateLimiter, s.logger))
	}
}

func (s *Server) setupRoutes() {
	s.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w, "no such route", s.logger)
	})

	s.registerHealthRoutes()
	s.registerSessionRoutes()
	s.registerTagRoutes()
	s.registerFilterRoutes()
	s.registerMissionRoutes()

	if s.sseHandler != nil {
		s.router.Get("/api/v1/events", s.sseHandler.ServeHTTP)
	}
}

// requestLogger logs one line per request at debug level; failures log at warn.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
