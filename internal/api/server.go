package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/dealgate/dealgate/internal/config"
	"github.com/dealgate/dealgate/internal/dispatch"
	"github.com/dealgate/dealgate/internal/ingest"
	"github.com/dealgate/dealgate/internal/registry"
	"github.com/dealgate/dealgate/internal/storage"
)

type Server struct {
	cfg        config.ServerConfig
	store      storage.Store
	registry   *registry.Registry
	gateway    *ingest.Gateway
	dispatcher *dispatch.Dispatcher
	router     *chi.Mux
	log        zerolog.Logger
	http       *http.Server
}

func NewServer(cfg config.ServerConfig, store storage.Store, reg *registry.Registry, gw *ingest.Gateway, disp *dispatch.Dispatcher, log zerolog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		registry:   reg,
		gateway:    gw,
		dispatcher: disp,
		log:        log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	webhookHandler := NewWebhookHandler(s.gateway)
	sourceHandler := NewSourceHandler(s.registry, s.store)
	epHandler := NewEndpointHandler(s.registry)
	eventHandler := NewEventHandler(s.dispatcher)
	dlvHandler := NewDeliveryHandler(s.store)
	statsHandler := NewStatsHandler(s.store)

	// Public surface: inbound ingestion authenticates per source.
	r.Get("/health", statsHandler.Health)
	r.Post("/webhook-in/{sourceID}", webhookHandler.Ingest)

	// Configuration surface for the settings UI and the pipeline domain.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AdminAuthMiddleware(s.cfg.AdminToken))

		r.Route("/orgs/{orgID}", func(r chi.Router) {
			r.Post("/sources", sourceHandler.Create)
			r.Get("/sources", sourceHandler.List)
			r.Get("/sources/{id}", sourceHandler.Get)
			r.Put("/sources/{id}", sourceHandler.Update)
			r.Delete("/sources/{id}", sourceHandler.Delete)
			r.Patch("/sources/{id}/toggle", sourceHandler.Toggle)
			r.Post("/sources/{id}/rotate-secret", sourceHandler.RotateSecret)
			r.Get("/sources/{id}/url", sourceHandler.URL)
			r.Get("/sources/{id}/records", sourceHandler.Records)

			r.Post("/endpoints", epHandler.Create)
			r.Get("/endpoints", epHandler.List)
			r.Get("/endpoints/{id}", epHandler.Get)
			r.Put("/endpoints/{id}", epHandler.Update)
			r.Delete("/endpoints/{id}", epHandler.Delete)
			r.Patch("/endpoints/{id}/toggle", epHandler.Toggle)
			r.Post("/endpoints/{id}/rotate-secret", epHandler.RotateSecret)

			r.Post("/events/stage-changed", eventHandler.StageChanged)

			r.Get("/deliveries", dlvHandler.List)
			r.Get("/deliveries/{id}", dlvHandler.Get)
			r.Get("/deliveries/{id}/attempts", dlvHandler.ListAttempts)

			r.Get("/stats", statsHandler.Stats)
		})
	})

	return r
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
