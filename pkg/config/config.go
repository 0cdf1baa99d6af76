package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for saplens-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Application database (PostgreSQL) for metadata, relationships,
	// ground truth versions and the query audit log.
	Database DatabaseConfig `yaml:"database"`

	// Simulated SAP source database that sample data is extracted from
	// and generated SQL is executed against.
	SAPSource SAPSourceConfig `yaml:"sap_source"`

	// AI endpoint configuration for chat completion and embeddings.
	AI AIConfig `yaml:"ai"`

	// Pipeline tuning knobs.
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatabaseConfig holds PostgreSQL application database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"saplens"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"saplens_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// SAPSourceConfig holds connection settings for the simulated SAP database.
// Driver selects the adapter: "postgres" or "mssql".
type SAPSourceConfig struct {
	Driver   string `yaml:"driver" env:"SAP_DRIVER" env-default:"postgres"`
	Host     string `yaml:"host" env:"SAP_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"SAP_PORT" env-default:"5433"`
	User     string `yaml:"user" env:"SAP_USER" env-default:"sap_reader"`
	Password string `yaml:"-" env:"SAP_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"SAP_DATABASE" env-default:"sap_sim"`
	SSLMode  string `yaml:"ssl_mode" env:"SAP_SSLMODE" env-default:"disable"`

	// SampleRowLimit bounds sample rows pulled per table during extraction.
	SampleRowLimit int `yaml:"sample_row_limit" env:"SAP_SAMPLE_ROW_LIMIT" env-default:"20"`
	// DistinctValueLimit bounds distinct sample values pulled per column.
	DistinctValueLimit int `yaml:"distinct_value_limit" env:"SAP_DISTINCT_VALUE_LIMIT" env-default:"50"`
	// DebugDumpPath, when non-empty, is where extraction writes a JSON dump
	// of sample data for debugging.
	DebugDumpPath string `yaml:"debug_dump_path" env:"SAP_DEBUG_DUMP_PATH" env-default:""`
}

// AIConfig holds LLM endpoint configuration.
// Provider selects the client: "openai" (any OpenAI-compatible endpoint) or "anthropic".
type AIConfig struct {
	Provider       string  `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`
	Endpoint       string  `yaml:"endpoint" env:"AI_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model          string  `yaml:"model" env:"AI_MODEL" env-default:"gpt-4o"`
	APIKey         string  `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML
	EmbeddingModel string  `yaml:"embedding_model" env:"AI_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	Temperature    float64 `yaml:"temperature" env:"AI_TEMPERATURE" env-default:"0.2"`
}

// PipelineConfig holds tuning knobs for the AI pipeline.
type PipelineConfig struct {
	// MaxConcurrentLLMCalls bounds parallel LLM requests in batch stages.
	MaxConcurrentLLMCalls int `yaml:"max_concurrent_llm_calls" env:"PIPELINE_MAX_CONCURRENT_LLM_CALLS" env-default:"4"`
	// UseLLMRelationshipPass enables the LLM review of heuristic relationship candidates.
	UseLLMRelationshipPass bool `yaml:"use_llm_relationship_pass" env:"PIPELINE_USE_LLM_RELATIONSHIP_PASS" env-default:"true"`
	// ExecutionRowLimit caps rows returned when executing generated SQL.
	ExecutionRowLimit int `yaml:"execution_row_limit" env:"PIPELINE_EXECUTION_ROW_LIMIT" env-default:"500"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.SAPSource.Driver) {
	case "postgres", "mssql":
	default:
		return fmt.Errorf("unsupported sap_source.driver %q (expected postgres or mssql)", c.SAPSource.Driver)
	}

	switch strings.ToLower(c.AI.Provider) {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported ai.provider %q (expected openai or anthropic)", c.AI.Provider)
	}

	if c.AI.Endpoint == "" {
		return fmt.Errorf("ai.endpoint is required")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("ai.model is required")
	}

	if c.SAPSource.SampleRowLimit <= 0 {
		return fmt.Errorf("sap_source.sample_row_limit must be positive")
	}
	if c.SAPSource.DistinctValueLimit <= 0 {
		return fmt.Errorf("sap_source.distinct_value_limit must be positive")
	}
	if c.Pipeline.ExecutionRowLimit <= 0 {
		return fmt.Errorf("pipeline.execution_row_limit must be positive")
	}

	return nil
}

// ConnectionString returns a PostgreSQL connection string for the app database.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ConnectionString returns a driver-appropriate connection string for the SAP source.
func (c *SAPSourceConfig) ConnectionString() string {
	switch strings.ToLower(c.Driver) {
	case "mssql":
		u := &url.URL{
			Scheme: "sqlserver",
			User:   url.UserPassword(c.User, c.Password),
			Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		}
		q := u.Query()
		q.Set("database", c.Database)
		u.RawQuery = q.Encode()
		return u.String()
	default:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
		)
	}
}
