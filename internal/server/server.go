package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sozercan/gee-gateway/internal/analyzer"
	"github.com/sozercan/gee-gateway/internal/config"
	"github.com/sozercan/gee-gateway/internal/logging"
)

type Server struct {
	cfg      config.ServerConfig
	server   *http.Server
	analyzer *analyzer.Analyzer
}

func New(cfg config.Config, analyzer *analyzer.Analyzer) *Server {
	s := &Server{
		cfg:      cfg.Server,
		analyzer: analyzer,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

// Handler returns the root handler, for use in tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         86400,
	}))
	if s.cfg.RateLimitRequests > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))
	}

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Tiles
	r.Get("/gee-tile-url", withIndex("ndvi", s.handleTile))
	r.Get("/gee-{index}-tile-url", withIndex("", s.handleTile))

	// Regional statistics
	r.Get("/gee-{index}-stats", withIndex("", s.handleStats))
	r.Post("/gee-{index}-stats-from-geojson", withIndex("", s.handleStats))

	// Temporal difference
	r.Get("/gee-{index}-diff", withIndex("", s.handleDiff))
	r.Post("/gee-{index}-diff-from-geojson", withIndex("", s.handleDiff))

	// Change zones
	r.Get("/gee-deforestation-zones", withIndex("ndvi", s.handleZones))
	r.Post("/gee-deforestation-zones-from-geojson", withIndex("ndvi", s.handleZones))
	r.Get("/gee-{index}-change-zones", withIndex("", s.handleZones))
	r.Post("/gee-{index}-change-zones-from-geojson", withIndex("", s.handleZones))

	r.Post("/gee-{index}-histogram", withIndex("", s.handleHistogram))

	// Scene discovery
	r.Get("/gee-landsat-dates", s.handleDates)
	r.Get("/find-best-image-date", s.handleBestImage)
	r.Post("/find-best-image-date", s.handleBestImage)
	r.Get("/gee-cloudiness-in-view", s.handleCloudiness)

	return r
}

func (s *Server) Run() error {
	// Create a channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	// Start the server
	go func() {
		logging.Info().Str("address", s.server.Addr).Msg("Starting server")
		serverErrors <- s.server.ListenAndServe()
	}()

	// Create channel for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt or error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logging.Info().Str("signal", sig.String()).Msg("Starting shutdown")

		// Give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		// Trigger graceful shutdown
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	return nil
}
