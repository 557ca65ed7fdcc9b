package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Provider and model configuration
	switch c.Provider {
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidOllamaHost)
		}
		if u, err := url.Parse(c.OllamaHost); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %q is not a valid URL", ErrInvalidOllamaHost, c.OllamaHost)
		}
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for the gemini provider",
				ErrMissingAPIKey)
		}
	default:
		return fmt.Errorf("%w: %q (supported: ollama, gemini)", ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Generation requests carry temperature in [0,1]
	if c.Temperature < 0.0 || c.Temperature > 1.0 {
		return fmt.Errorf("%w: must be between 0.0 and 1.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// Chunking: overlap must leave room for new content in every window
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d",
			ErrInvalidChunking, c.ChunkOverlap)
	}

	// PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "petrel_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"hint", "change postgres_password for production deployments")
	}

	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q (valid: %v)", ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	// Cache configuration
	if c.CacheTTL < 0 {
		return fmt.Errorf("%w: cache_ttl must be non-negative, got %d", ErrInvalidCacheTTL, c.CacheTTL)
	}

	return c.validateUseCases()
}

// ValidateServe performs additional validation required for serve mode.
// The HTTP API issues bearer tokens and authenticates against the
// directory, so serve mode needs the token secret and LDAP endpoint that
// CLI-only usage (index, version) can do without.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.TokenSecret == "" {
		return fmt.Errorf("%w: set PETREL_TOKEN_SECRET or token_secret in config.yaml",
			ErrMissingTokenSecret)
	}
	if len(c.TokenSecret) < 32 {
		return fmt.Errorf("%w: must be at least 32 characters, got %d",
			ErrInvalidTokenSecret, len(c.TokenSecret))
	}

	if c.LDAPServer == "" {
		return fmt.Errorf("%w: set PETREL_LDAP_SERVER or ldap_server in config.yaml",
			ErrMissingLDAPServer)
	}

	return nil
}
