package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/petrel0/petrel/db"
	"github.com/petrel0/petrel/internal/api"
	"github.com/petrel0/petrel/internal/assistant"
	"github.com/petrel0/petrel/internal/auth"
	"github.com/petrel0/petrel/internal/cache"
	"github.com/petrel0/petrel/internal/chunk"
	"github.com/petrel0/petrel/internal/config"
	"github.com/petrel0/petrel/internal/generate"
	"github.com/petrel0/petrel/internal/index"
	"github.com/petrel0/petrel/internal/reports"
	"github.com/petrel0/petrel/internal/retrieve"
	"github.com/petrel0/petrel/internal/store"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	a := &App{Config: cfg}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				slog.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, embedder, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Embedder = embedder

	responseCache, redisClose, err := provideCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Cache = responseCache
	a.redisClose = redisClose

	logger := slog.Default()

	vectors := store.New(store.NewPGQuerier(pool), embedder, logger)
	indexer := index.New(vectors, logger)
	retriever := retrieve.New(vectors, logger)

	generator := generate.New(generate.NewGenkitBackend(g, cfg.Provider), logger)

	reportsDB := reports.NewPGDatabase(pool)

	splitter, err := chunk.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("creating splitter: %w", err)
	}
	a.Splitter = splitter
	a.Indexer = indexer

	server, err := api.NewServer(api.ServerConfig{
		Logger: logger,

		Directory: auth.NewLDAPDirectory(cfg.LDAPServer, cfg.LDAPDomain, logger),
		Roles:     auth.NewRoleMapper(cfg.AdminGroups, cfg.EngineerGroups),
		Tokens:    auth.NewTokenIssuer([]byte(cfg.TokenSecret), cfg.TokenTTLDuration()),

		Pipeline: assistant.NewPipeline(retriever, generator, responseCache,
			cfg.CacheTTLDuration(), cfg.Temperature, logger),
		Correspondence: assistant.NewCorrespondence(retriever, generator, indexer,
			cfg.Correspondence, logger),
		Consultation: assistant.NewConsultation(retriever, generator, cfg.Consultation, logger),
		Manual:       assistant.NewManual(retriever, generator, reportsDB, logger),
		Summarizer:   assistant.NewSummarizer(reportsDB, generator, cfg.ModelName, logger),
		Models:       generate.NewModelCatalog(cfg.OllamaHost),

		Splitter: splitter,
		Indexer:  indexer,

		DefaultModel: cfg.ModelName,
		Pool:         pool,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = server

	return a, nil
}

// provideOtelShutdown sets up OTLP trace export before Genkit
// initialization so the TracerProvider is ready when flows run.
// An empty agent host disables tracing.
func provideOtelShutdown(ctx context.Context, cfg *config.Config) func() {
	otelCfg := cfg.Otel
	if otelCfg.AgentHost == "" {
		return func() {}
	}

	// Set OTEL env vars for Genkit's TracerProvider to pick up.
	// SAFETY: os.Setenv is not concurrent-safe, but this function is called
	// exactly once during startup in Setup, before goroutines are spawned.
	if otelCfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", otelCfg.ServiceName)
	}
	if otelCfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+otelCfg.Environment)
	}

	// The local collector agent handles authentication, buffering, and
	// forwarding; the exporter only needs to reach it over plain HTTP.
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(otelCfg.AgentHost),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		slog.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	slog.Debug("tracing enabled",
		"agent", otelCfg.AgentHost,
		"service", otelCfg.ServiceName,
		"environment", otelCfg.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider and
// returns the embedder the vector store uses.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, ai.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}

		// Ollama requires explicit model registration (no auto-discovery).
		// Consultation profiles may name models other than the default.
		for _, name := range chatModels(cfg) {
			ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
				Name: name,
				Type: "chat",
			}, nil)
		}
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)

		slog.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, ollama.Embedder(g, cfg.OllamaHost), nil

	case config.ProviderGemini:
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		slog.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
		return g, googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel), nil

	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// chatModels returns the default model plus every model a consultation
// profile references, deduplicated.
func chatModels(cfg *config.Config) []string {
	seen := map[string]bool{cfg.ModelName: true}
	names := []string{cfg.ModelName}
	for _, profile := range cfg.Consultation {
		if profile.Model == "" || seen[profile.Model] {
			continue
		}
		seen[profile.Model] = true
		names = append(names, profile.Model)
	}
	return names
}

// provideCache creates the response cache: Redis when an address is
// configured, otherwise in-process memory.
func provideCache(ctx context.Context, cfg *config.Config) (cache.Cache, func() error, error) {
	if cfg.RedisAddr == "" {
		slog.Debug("using in-memory response cache")
		return cache.NewMemory(), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("pinging redis at %s: %w", cfg.RedisAddr, err)
	}

	slog.Info("using redis response cache", "addr", cfg.RedisAddr)
	return cache.NewRedis(client), client.Close, nil
}
