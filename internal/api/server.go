// Package api provides the HTTP API server and handlers for the Tally application.
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
	"github.com/tallyapp/tally-server/internal/http/response"
	"github.com/tallyapp/tally-server/internal/sse"
	"github.com/tallyapp/tally-server/internal/store"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store           *store.Store
	services        *Services
	router          *chi.Mux
	api             huma.API
	sseHandler      *sse.Handler
	authRateLimiter *RateLimiter
	logger          *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(
	store *store.Store,
	services *Services,
	sseHandler *sse.Handler,
	logger *slog.Logger,
) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))

	// Clients are native apps plus the occasional browser on the LAN,
	// so the CORS policy is permissive.
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Auth runs before huma so handlers can pull the user ID from context.
	router.Use(authMiddleware(services.Auth))

	humaConfig := huma.DefaultConfig("Tally API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	api := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		store:           store,
		services:        services,
		router:          router,
		api:             api,
		sseHandler:      sseHandler,
		authRateLimiter: NewRateLimiter(20, time.Minute, 5),
		logger:          logger,
	}

	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerTrackerRoutes()
	s.registerSharingRoutes()
	s.registerIconRoutes()
	s.registerProfileRoutes()
	s.registerSyncRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) registerSyncRoutes() {
	// NOTE: SSE endpoint registered directly on chi (not Huma) because Huma doesn't support SSE.
	s.router.Get("/api/v1/sync/stream", s.handleSyncStream)
}

// handleSyncStream gates the SSE stream behind authentication before handing
// the connection to the SSE handler. The auth middleware is optimistic, so
// anonymous requests reach this point and must be rejected here.
func (s *Server) handleSyncStream(w http.ResponseWriter, r *http.Request) {
	if UserIDFromRequest(r) == "" {
		response.Unauthorized(w, "Authentication required", s.logger)
		return
	}
	s.sseHandler.ServeHTTP(w, r)
}
