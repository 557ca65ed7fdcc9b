// Package generate turns composed prompts into completions. One round
// trip per request, no retries: the caller decides what a failure means.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/petrel0/petrel/internal/prompt"
)

// ErrGeneration indicates the model backend failed or returned an empty
// completion. The wrapped message carries the raw backend error.
var ErrGeneration = errors.New("generation failed")

// Backend performs a single model round trip.
type Backend interface {
	Generate(ctx context.Context, req prompt.Request) (string, error)
}

type Generator struct {
	backend Backend
	limiter *rate.Limiter
	logger  *slog.Logger
}

type Option func(*Generator)

// WithRateLimit caps outbound generation requests. Zero or negative rps
// disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(g *Generator) {
		if rps > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

func New(backend Backend, logger *slog.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Generator{
		backend: backend,
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate runs req against the backend and returns the completion text.
// An empty completion is a failure: callers never get a blank answer
// disguised as success.
func (g *Generator) Generate(ctx context.Context, req prompt.Request) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	text, err := g.backend.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: model %q returned an empty completion", ErrGeneration, req.Model)
	}

	g.logger.Debug("generation complete",
		"model", req.Model,
		"chars", len(text))
	return text, nil
}

// GenkitBackend routes requests through a genkit instance. The provider
// prefix selects the plugin the model was registered under.
type GenkitBackend struct {
	g        *genkit.Genkit
	provider string
}

func NewGenkitBackend(g *genkit.Genkit, provider string) *GenkitBackend {
	return &GenkitBackend{g: g, provider: provider}
}

func (b *GenkitBackend) Generate(ctx context.Context, req prompt.Request) (string, error) {
	messages := make([]*ai.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case prompt.RoleSystem:
			messages = append(messages, ai.NewSystemMessage(ai.NewTextPart(m.Content)))
		case prompt.RoleUser:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		default:
			return "", fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	cfg := &ai.GenerationCommonConfig{Temperature: req.Temperature}
	if req.TopP != nil {
		cfg.TopP = *req.TopP
	}

	resp, err := genkit.Generate(ctx, b.g,
		ai.WithModelName(b.provider+"/"+req.Model),
		ai.WithMessages(messages...),
		ai.WithConfig(cfg),
	)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
