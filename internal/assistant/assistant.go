// Package assistant runs the request pipelines: cache lookup, retrieval,
// prompt composition, generation and cache write-back. One pipeline value
// serves many concurrent requests; per-request state lives on the stack.
package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/petrel0/petrel/internal/cache"
	"github.com/petrel0/petrel/internal/chunk"
	"github.com/petrel0/petrel/internal/prompt"
	"github.com/petrel0/petrel/internal/retrieve"
)

// Pipeline states, logged per transition.
type State string

const (
	StateReceived   State = "RECEIVED"
	StateCacheCheck State = "CACHE_CHECK"
	StateRetrieve   State = "RETRIEVE"
	StateCompose    State = "COMPOSE"
	StateGenerate   State = "GENERATE"
	StateCacheStore State = "CACHE_STORE"
	StateResponded  State = "RESPONDED"
	StateFailed     State = "FAILED"
)

// DefaultCollection receives ad-hoc uploads and queries that name no
// collection.
const DefaultCollection = "default"

// Retriever fetches context passages.
type Retriever interface {
	Retrieve(ctx context.Context, collection string, queries []string, opts ...retrieve.Option) ([]retrieve.Passage, error)
}

// Generator produces a completion for a composed prompt.
type Generator interface {
	Generate(ctx context.Context, req prompt.Request) (string, error)
}

// Indexer writes chunks into a collection.
type Indexer interface {
	Index(ctx context.Context, collection string, chunks []chunk.Chunk) (int, error)
}

// Response is a finished pipeline result.
type Response struct {
	Text        string
	Model       string
	ContextUsed bool
	Cached      bool
	Sources     []map[string]string
}

// QueryParams is one ad-hoc assistant request.
type QueryParams struct {
	Query      string
	Collection string
	UseRAG     bool
	Model      string
}

const queryTopK = 5

// Pipeline answers ad-hoc queries with optional retrieval augmentation.
type Pipeline struct {
	retriever   Retriever
	generator   Generator
	cache       cache.Cache
	cacheTTL    time.Duration
	temperature float64
	logger      *slog.Logger
}

func NewPipeline(retriever Retriever, generator Generator, c cache.Cache, cacheTTL time.Duration, temperature float64, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		retriever:   retriever,
		generator:   generator,
		cache:       c,
		cacheTTL:    cacheTTL,
		temperature: temperature,
		logger:      logger,
	}
}

// cachedResponse is the envelope stored in the cache, so a hit restores
// whether the original answer used context and which sources it cited.
type cachedResponse struct {
	Text        string              `json:"text"`
	ContextUsed bool                `json:"context_used"`
	Sources     []map[string]string `json:"sources,omitempty"`
}

// Query runs the full pipeline. Retrieval here is optional augmentation:
// a backend fault degrades to empty-context generation. A generation
// failure fails the request with the backend's own message.
func (p *Pipeline) Query(ctx context.Context, params QueryParams) (*Response, error) {
	if params.Collection == "" {
		params.Collection = DefaultCollection
	}
	p.transition(StateReceived, params.Query)

	p.transition(StateCacheCheck, params.Query)
	mode := "plain"
	if params.UseRAG {
		mode = "rag"
	}
	key := cache.Key(params.Model, params.Query, mode)
	if resp := p.cacheLookup(ctx, key, params.Model); resp != nil {
		p.transition(StateResponded, params.Query)
		return resp, nil
	}

	var passages []retrieve.Passage
	if params.UseRAG {
		p.transition(StateRetrieve, params.Query)
		var err error
		passages, err = p.retriever.Retrieve(ctx, params.Collection, []string{params.Query},
			retrieve.WithTopK(queryTopK))
		if err != nil {
			p.logger.Warn("retrieval degraded to empty context",
				"collection", params.Collection,
				"error", err)
			passages = nil
		}
	}

	p.transition(StateCompose, params.Query)
	req := prompt.Query(params.Model, params.Query, joinPassages(passages), p.temperature)

	p.transition(StateGenerate, params.Query)
	text, err := p.generator.Generate(ctx, req)
	if err != nil {
		p.transition(StateFailed, params.Query)
		return nil, err
	}

	p.transition(StateCacheStore, params.Query)
	p.cacheStore(ctx, key, cachedResponse{
		Text:        text,
		ContextUsed: len(passages) > 0,
		Sources:     passageSources(passages),
	})

	p.transition(StateResponded, params.Query)
	return &Response{
		Text:        text,
		Model:       params.Model,
		ContextUsed: len(passages) > 0,
		Sources:     passageSources(passages),
	}, nil
}

func (p *Pipeline) transition(s State, query string) {
	p.logger.Debug("pipeline state", "state", string(s), "query_len", len(query))
}

// cacheLookup returns a finished response on a hit. Cache faults are
// misses: the cache must never block the pipeline.
func (p *Pipeline) cacheLookup(ctx context.Context, key, model string) *Response {
	value, found, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.Warn("cache read failed, treating as miss", "error", err)
		return nil
	}
	if !found {
		return nil
	}

	var entry cachedResponse
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		entry = cachedResponse{Text: value}
	}
	return &Response{
		Text:        entry.Text,
		Model:       model,
		ContextUsed: entry.ContextUsed,
		Cached:      true,
		Sources:     entry.Sources,
	}
}

func (p *Pipeline) cacheStore(ctx context.Context, key string, entry cachedResponse) {
	payload, err := json.Marshal(entry)
	if err != nil {
		p.logger.Warn("cache envelope not serializable", "error", err)
		return
	}
	if err := p.cache.Set(ctx, key, string(payload), p.cacheTTL); err != nil {
		p.logger.Warn("cache write failed", "error", err)
	}
}

func joinPassages(passages []retrieve.Passage) []string {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Content
	}
	return texts
}

func passageSources(passages []retrieve.Passage) []map[string]string {
	sources := make([]map[string]string, len(passages))
	for i, p := range passages {
		sources[i] = p.Metadata
	}
	return sources
}
