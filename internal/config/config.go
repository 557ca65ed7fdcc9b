// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.petrel/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model selection, temperature, embedder (ai.go)
//   - Storage: PostgreSQL connection for the vector store (storage.go)
//   - Cache: Redis connection and response TTL
//   - Auth: LDAP directory and token settings
//   - Use cases: correspondence templates, consultation profiles (usecases.go)
//
// Sensitive data (passwords, secrets) is masked in MarshalJSON and never
// logged. Validation lives in validation.go with sentinel errors for
// errors.Is checks.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidChunking indicates chunk size/overlap settings are unusable.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidCacheTTL indicates the response cache TTL is out of range.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL")

	// ErrMissingTokenSecret indicates the token signing secret is not set.
	ErrMissingTokenSecret = errors.New("missing token secret")

	// ErrInvalidTokenSecret indicates the token signing secret is too short.
	ErrInvalidTokenSecret = errors.New("invalid token secret")

	// ErrMissingLDAPServer indicates the LDAP server address is not set.
	ErrMissingLDAPServer = errors.New("missing LDAP server")

	// ErrInvalidTemplate indicates a correspondence template is malformed.
	ErrInvalidTemplate = errors.New("invalid correspondence template")

	// ErrInvalidProfile indicates a consultation profile is malformed.
	ErrInvalidProfile = errors.New("invalid consultation profile")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// DefaultOllamaEmbedderModel is the default embedding model served by the
// local Ollama runtime. Outputs 768-dimensional vectors; the pgvector schema
// must match (see db/migrations).
const DefaultOllamaEmbedderModel = "nomic-embed-text"

// DefaultCacheTTL is the default response cache lifetime in seconds.
const DefaultCacheTTL = 3600

// DefaultTokenTTL is the default bearer token lifetime.
const DefaultTokenTTL = 480 * time.Minute

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider      string  `mapstructure:"provider" json:"provider"`       // "ollama" (default) or "gemini"
	ModelName     string  `mapstructure:"model_name" json:"model_name"`   // e.g. "llama3.2:latest", "mistral:7b-instruct"
	Temperature   float64 `mapstructure:"temperature" json:"temperature"` // default sampling temperature for ad-hoc queries
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	// Chunking configuration
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Response cache configuration. RedisAddr empty = in-memory cache.
	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"` // SENSITIVE: masked in MarshalJSON
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`
	CacheTTL      int    `mapstructure:"cache_ttl" json:"cache_ttl"` // seconds

	// Directory authentication (see auth package)
	LDAPServer     string   `mapstructure:"ldap_server" json:"ldap_server"`
	LDAPDomain     string   `mapstructure:"ldap_domain" json:"ldap_domain"`
	AdminGroups    []string `mapstructure:"admin_groups" json:"admin_groups"`
	EngineerGroups []string `mapstructure:"engineer_groups" json:"engineer_groups"`
	TokenSecret    string   `mapstructure:"token_secret" json:"token_secret"` // SENSITIVE: masked in MarshalJSON
	TokenTTL       int      `mapstructure:"token_ttl_minutes" json:"token_ttl_minutes"`

	// Use-case configuration (see usecases.go)
	Correspondence map[string]Template            `mapstructure:"correspondence" json:"correspondence"`
	Consultation   map[string]ConsultationProfile `mapstructure:"consultation" json:"consultation"`

	// Observability configuration
	Otel OtelConfig `mapstructure:"otel" json:"otel"`
}

// OtelConfig configures OTLP trace export to a local collector agent.
// Empty AgentHost disables tracing.
type OtelConfig struct {
	AgentHost   string `mapstructure:"agent_host" json:"agent_host"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".petrel")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use defaults
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	cfg.applyUseCaseDefaults()

	// Fail fast on invalid configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults: local Ollama runtime
	viper.SetDefault("provider", ProviderOllama)
	viper.SetDefault("model_name", "llama3.2:latest")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("embedder_model", DefaultOllamaEmbedderModel)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// HTTP defaults
	viper.SetDefault("listen_addr", "127.0.0.1:8000")

	// Chunking defaults
	viper.SetDefault("chunk_size", 1000)
	viper.SetDefault("chunk_overlap", 200)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "petrel")
	viper.SetDefault("postgres_password", "petrel_dev_password")
	viper.SetDefault("postgres_db_name", "petrel")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Cache defaults: no Redis address means in-memory cache
	viper.SetDefault("redis_addr", "")
	viper.SetDefault("redis_db", 0)
	viper.SetDefault("cache_ttl", DefaultCacheTTL)

	// Directory defaults: group sets map directory membership to roles
	viper.SetDefault("ldap_domain", "company.local")
	viper.SetDefault("admin_groups", []string{"IT-Admins", "AI-Admins"})
	viper.SetDefault("engineer_groups", []string{"Engineers", "Technical-Staff"})
	viper.SetDefault("token_ttl_minutes", 480)

	// Observability defaults (empty agent_host disables tracing)
	viper.SetDefault("otel.agent_host", "")
	viper.SetDefault("otel.environment", "dev")
	viper.SetDefault("otel.service_name", "petrel")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables() {
	// Hardcoded strings cannot fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "PETREL_PROVIDER")
	mustBind("model_name", "PETREL_MODEL_NAME")
	mustBind("ollama_host", "PETREL_OLLAMA_HOST")
	mustBind("listen_addr", "PETREL_LISTEN_ADDR")
	mustBind("redis_addr", "PETREL_REDIS_ADDR")
	mustBind("redis_password", "PETREL_REDIS_PASSWORD")
	mustBind("ldap_server", "PETREL_LDAP_SERVER")
	mustBind("ldap_domain", "PETREL_LDAP_DOMAIN")
	mustBind("token_secret", "PETREL_TOKEN_SECRET")
	mustBind("otel.agent_host", "PETREL_OTEL_AGENT_HOST")

	// NOTE: GEMINI_API_KEY is read directly by the Genkit plugin, not via
	// Viper. Validation checks its presence when the gemini provider is
	// selected.
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// MarshalJSON masks sensitive fields so a Config can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	a := alias(c)
	if a.PostgresPassword != "" {
		a.PostgresPassword = maskedValue
	}
	if a.RedisPassword != "" {
		a.RedisPassword = maskedValue
	}
	if a.TokenSecret != "" {
		a.TokenSecret = maskedValue
	}
	return json.Marshal(a)
}

// CacheTTLDuration returns the response cache TTL as a time.Duration.
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// TokenTTLDuration returns the bearer token lifetime as a time.Duration.
func (c *Config) TokenTTLDuration() time.Duration {
	if c.TokenTTL <= 0 {
		return DefaultTokenTTL
	}
	return time.Duration(c.TokenTTL) * time.Minute
}
