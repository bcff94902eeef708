package llm

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/onset-project/onset/internal/config"
	llmgenai "github.com/onset-project/onset/pkg/llm/genai"
)

// Module provides the llm fx.Module
var Module = fx.Module("llm",
	fx.Provide(NewService),
)

// Service provides structured generation with automatic client selection
type Service struct {
	client  Client
	log     *slog.Logger
	enabled bool
}

// NewNoopService creates a service with a noop client (for testing)
func NewNoopService(log *slog.Logger) *Service {
	return &Service{
		client:  NewNoopClient(),
		log:     log,
		enabled: false,
	}
}

// NewService creates a new llm service
func NewService(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) *Service {
	llmCfg := cfg.LLM

	if !llmCfg.IsEnabled() {
		log.Info("llm service disabled - no configuration provided")
		return &Service{
			client:  NewNoopClient(),
			log:     log,
			enabled: false,
		}
	}

	svc := &Service{
		client:  NewNoopClient(), // Will be replaced on start
		log:     log,
		enabled: false,
	}

	// Initialize client on startup
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("initializing Google Generative AI generation client",
				slog.String("model", llmCfg.Model),
			)

			client, err := llmgenai.NewClient(ctx, llmgenai.Config{
				APIKey:          llmCfg.GoogleAPIKey,
				Model:           llmCfg.Model,
				Temperature:     llmCfg.Temperature,
				MaxOutputTokens: llmCfg.MaxOutputTokens,
				Timeout:         llmCfg.Timeout,
			}, llmgenai.WithLogger(log))
			if err != nil {
				log.Error("failed to initialize generation client", slog.String("error", err.Error()))
				// Keep noop client, don't fail startup
				return nil
			}
			svc.client = client
			svc.enabled = true
			log.Info("Google Generative AI generation client initialized")
			return nil
		},
	})

	return svc
}

// IsEnabled returns true if generation is available
func (s *Service) IsEnabled() bool {
	return s.enabled
}

// GenerateJSON runs one generation and returns the raw JSON text
func (s *Service) GenerateJSON(ctx context.Context, req Request) (string, error) {
	return s.client.GenerateJSON(ctx, req)
}
