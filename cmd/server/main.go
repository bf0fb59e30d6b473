// cmd/server/main.go
package main

import (
	"context"

	"github.com/sozercan/gee-gateway/internal/analyzer"
	"github.com/sozercan/gee-gateway/internal/config"
	"github.com/sozercan/gee-gateway/internal/earthengine"
	"github.com/sozercan/gee-gateway/internal/logging"
	"github.com/sozercan/gee-gateway/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})

	// the client refreshes tokens with this context for the life of the process
	client, err := earthengine.NewClient(context.Background(), cfg.EarthEngine)
	if err != nil {
		logging.Fatal().Err(err).Str("project", cfg.EarthEngine.Project).Msg("Failed to create Earth Engine client")
	}

	a := analyzer.New(earthengine.NewBackend(client), cfg.Analysis)

	srv := server.New(*cfg, a)
	logging.Info().Str("host", cfg.Server.Host).Str("port", cfg.Server.Port).Str("project", cfg.EarthEngine.Project).Msg("Earth Engine gateway configured")
	if err := srv.Run(); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}
