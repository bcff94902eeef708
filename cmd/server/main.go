// Package main provides the entry point for the Onset API server
//
// @title Onset API
// @version 0.3.0
// @description Ontology exploration and LLM-grounded query API
// @host localhost:3002
// @BasePath /
// @schemes http https
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/onset-project/onset/domain/catalog"
	"github.com/onset-project/onset/domain/guidance"
	"github.com/onset-project/onset/domain/health"
	"github.com/onset-project/onset/domain/llmquery"
	"github.com/onset-project/onset/domain/ontology"
	"github.com/onset-project/onset/internal/config"
	"github.com/onset-project/onset/internal/database"
	"github.com/onset-project/onset/internal/migrate"
	"github.com/onset-project/onset/internal/server"
	"github.com/onset-project/onset/pkg/embeddings"
	"github.com/onset-project/onset/pkg/llm"
	"github.com/onset-project/onset/pkg/logger"
)

func main() {
	// Load .env files if present (for local development)
	// Note: Load() won't overwrite existing vars, Overload() will
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(appOptions()...).Run()
}

func appOptions() []fx.Option {
	return []fx.Option{
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		migrate.Module,
		server.Module,

		// Model clients
		embeddings.Module,
		llm.Module,

		// Ontology snapshot (parsed once at startup, shared read-only)
		ontology.Module,

		// Domain modules
		health.Module,
		catalog.Module,
		guidance.Module,
		llmquery.Module,
	}
}
