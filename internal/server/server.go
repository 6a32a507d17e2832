package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/fedsim/fedsim/internal/config"
	"github.com/fedsim/fedsim/internal/crypto"
	"github.com/fedsim/fedsim/internal/oauth"
	"github.com/fedsim/fedsim/internal/saml"
	"github.com/fedsim/fedsim/internal/store"
)

// Server is the HTTP face of the simulator: OAuth endpoints, SAML
// endpoints, and key publication.
type Server struct {
	config  *config.Config
	store   store.Store
	engine  *oauth.Engine
	keys    *crypto.KeySet
	builder *saml.Builder
	limiter Limiter
	logger  zerolog.Logger
	router  chi.Router
}

// New wires the simulator's engines behind a chi router.
func New(cfg *config.Config, st store.Store, engine *oauth.Engine, keys *crypto.KeySet, builder *saml.Builder, limiter Limiter, logger zerolog.Logger) *Server {
	s := &Server{
		config:  cfg,
		store:   st,
		engine:  engine,
		keys:    keys,
		builder: builder,
		limiter: limiter,
		logger:  logger,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(Recovery(s.logger))
	r.Use(RequestLogger(s.logger))
	r.Use(SecurityHeaders)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(RateLimit(s.limiter))

	r.Get("/health", s.handleHealth)
	r.Get("/.well-known/jwks.json", s.handleJWKS)

	r.Route("/oauth2", func(r chi.Router) {
		r.Get("/authorize", s.handleAuthorize)
		r.Post("/authorize", s.handleAuthorize)
		r.Post("/token", s.handleToken)
		r.Post("/introspect", s.handleIntrospect)
		r.Post("/revoke", s.handleRevoke)
	})

	r.Route("/saml", func(r chi.Router) {
		r.Get("/sso", s.handleSSO)
		r.Post("/sso", s.handleSSO)
		r.Post("/acs", s.handleACS)
		r.Get("/metadata", s.handleMetadata)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.keys.PublicJWKS())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
