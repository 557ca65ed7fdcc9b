// Package app wires the application together: configuration, tracing,
// database, the Genkit runtime, and the assistants behind the HTTP API.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petrel0/petrel/internal/api"
	"github.com/petrel0/petrel/internal/cache"
	"github.com/petrel0/petrel/internal/chunk"
	"github.com/petrel0/petrel/internal/config"
	"github.com/petrel0/petrel/internal/index"
)

// App is the core application container. Setup populates it; Close
// releases everything in reverse initialization order.
type App struct {
	Config *config.Config

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool
	Cache    cache.Cache
	Server   *api.Server

	// Document ingestion, used by both the upload endpoint and the
	// index command.
	Splitter *chunk.Splitter
	Indexer  *index.Indexer

	otelCleanup func()
	redisClose  func() error
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	slog.Info("shutting down application")

	if a.redisClose != nil {
		if err := a.redisClose(); err != nil {
			slog.Warn("closing redis client", "error", err)
		}
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		slog.Info("database pool closed")
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
