package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3002"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// Database settings
	Database DatabaseConfig

	// Ontology source (SPARQL endpoint)
	Ontology OntologyConfig

	// Embeddings configuration
	Embeddings EmbeddingsConfig

	// LLM configuration (for structured query generation)
	LLM LLMConfig

	// Query progress cache configuration
	Cache CacheConfig

	// Fuzzy search configuration
	Search SearchConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"300s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"300s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"onset"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"onset"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// OntologyConfig holds settings for the SPARQL ontology source
type OntologyConfig struct {
	// Endpoint is the SPARQL query endpoint URL
	Endpoint string `env:"SPARQL_ENDPOINT" envDefault:"http://localhost:3030/onto/sparql"`

	// Timeout is the per-request timeout against the endpoint
	Timeout time.Duration `env:"SPARQL_TIMEOUT" envDefault:"30s"`

	// RootClass is the class IRI treated as the hierarchy root
	RootClass string `env:"ONTOLOGY_ROOT_CLASS" envDefault:"owl:Thing"`

	// Prefixes maps extra prefix names to namespace IRIs, e.g.
	// ONTOLOGY_PREFIXES=bto=https://w3id.org/brainteaser/ontology/schema/
	Prefixes map[string]string `env:"ONTOLOGY_PREFIXES" envSeparator:"," envKeyValSeparator:"="`

	// SampleSize is the number of triples sampled for the snapshot hash
	SampleSize int `env:"ONTOLOGY_SAMPLE_SIZE" envDefault:"200"`
}

// IsConfigured returns true if an ontology endpoint is set
func (o *OntologyConfig) IsConfigured() bool {
	return o.Endpoint != ""
}

// EmbeddingsConfig holds embedding service configuration
type EmbeddingsConfig struct {
	// Embedding model name
	Model string `env:"EMBEDDING_MODEL" envDefault:"gemini-embedding-001"`

	// Embedding dimension; must match the vector columns in the database
	Dimension int `env:"EMBEDDING_DIMENSION" envDefault:"1024"`

	// Google API Key for Generative AI
	GoogleAPIKey string `env:"GOOGLE_API_KEY" envDefault:""`

	// Disable embeddings network calls (for testing)
	NetworkDisabled bool `env:"EMBEDDINGS_NETWORK_DISABLED" envDefault:"false"`
}

// IsEnabled returns true if embeddings are configured
func (e *EmbeddingsConfig) IsEnabled() bool {
	if e.NetworkDisabled {
		return false
	}
	return e.GoogleAPIKey != ""
}

// LLMConfig holds LLM (structured generation) configuration
type LLMConfig struct {
	// Chat model name
	Model string `env:"LLM_MODEL" envDefault:"gemini-2.5-flash"`

	// Max output tokens for generations
	MaxOutputTokens int `env:"LLM_MAX_OUTPUT_TOKENS" envDefault:"8192"`

	// Temperature for generations (0.0-1.0)
	Temperature float64 `env:"LLM_TEMPERATURE" envDefault:"0"`

	// Request timeout
	Timeout time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`

	// Google API Key for Generative AI
	GoogleAPIKey string `env:"GOOGLE_API_KEY" envDefault:""`

	// Disable LLM network calls (for testing)
	NetworkDisabled bool `env:"LLM_NETWORK_DISABLED" envDefault:"false"`
}

// IsEnabled returns true if LLM is configured
func (l *LLMConfig) IsEnabled() bool {
	if l.NetworkDisabled {
		return false
	}
	return l.GoogleAPIKey != ""
}

// CacheConfig holds query progress cache configuration
type CacheConfig struct {
	// RedisURL is the Redis connection URL; empty falls back to in-memory
	RedisURL string `env:"REDIS_URL" envDefault:""`

	// TTL is how long finished query results stay retrievable
	TTL time.Duration `env:"QUERY_CACHE_TTL" envDefault:"10m"`
}

// UseRedis returns true if a Redis URL is configured
func (c *CacheConfig) UseRedis() bool {
	return c.RedisURL != ""
}

// SearchConfig holds fuzzy retrieval tuning knobs
type SearchConfig struct {
	// DefaultLimit is the result count used when the request omits one
	DefaultLimit int `env:"SEARCH_DEFAULT_LIMIT" envDefault:"10"`

	// MaxLimit caps the per-request result count
	MaxLimit int `env:"SEARCH_MAX_LIMIT" envDefault:"100"`

	// TopicAlpha is the default blend weight for topic centroids
	TopicAlpha float64 `env:"SEARCH_TOPIC_ALPHA" envDefault:"0.3"`

	// CandidateLimit is the per-slot candidate count in query pipelines.
	// Kept small on purpose: the constrained-generation schema enumerates
	// every candidate label.
	CandidateLimit int `env:"SEARCH_CANDIDATE_LIMIT" envDefault:"3"`
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.String("sparql_endpoint", cfg.Ontology.Endpoint),
	)

	return cfg, nil
}
