// Package store manages document chunks with vector search in named
// collections, backed by PostgreSQL + pgvector. Embeddings are generated
// through a Genkit ai.Embedder so the embedding backend stays pluggable
// (local Ollama runtime by default).
//
// Store is safe for concurrent use by multiple goroutines.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
)

// ErrEmbedding indicates the embedding backend failed or returned an
// unusable response. A batch write that hits this error writes nothing.
var ErrEmbedding = errors.New("embedding failed")

// Store manages documents in named collections.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Store. logger may be nil (uses slog.Default).
func New(queries Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:  queries,
		embedder: embedder,
		logger:   logger,
	}
}

// Add embeds and writes a batch of documents into the named collection,
// creating the collection if absent. The batch is atomic: all contents are
// embedded before anything is written, and the writes run in a single
// transaction, so an embedding or storage failure leaves the collection
// unchanged and the returned error identifies what was not indexed.
func (s *Store) Add(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	embeddings, err := s.embedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("batch of %d documents not indexed: %w", len(docs), err)
	}

	if err := s.queries.EnsureCollection(ctx, collection); err != nil {
		return fmt.Errorf("batch of %d documents not indexed: %w", len(docs), err)
	}

	params := make([]UpsertDocumentParams, len(docs))
	for i, doc := range docs {
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for document %q: %w", doc.ID, err)
		}
		params[i] = UpsertDocumentParams{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: pgvector.NewVector(embeddings[i]),
			Metadata:  metadataJSON,
		}
	}

	if err := s.queries.UpsertDocuments(ctx, collection, params); err != nil {
		return fmt.Errorf("batch of %d documents not indexed: %w", len(docs), err)
	}

	s.logger.Debug("added documents", "collection", collection, "count", len(docs))
	return nil
}

// Search performs semantic search in the named collection.
// A nonexistent collection yields an empty result, not an error: retrieval
// is advisory context, and an empty knowledge base is a normal state.
// Backend faults are returned as errors so callers can tell the two apart.
func (s *Store) Search(ctx context.Context, collection, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	exists, err := s.queries.CollectionExists(queryCtx, collection)
	if err != nil {
		return nil, fmt.Errorf("checking collection: %w", err)
	}
	if !exists {
		s.logger.Debug("collection does not exist, returning empty result", "collection", collection)
		return nil, nil
	}

	embeddings, err := s.embedTexts(queryCtx, []string{query})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, err
	}

	var filterJSON []byte
	if len(cfg.filter) > 0 {
		filterJSON, err = json.Marshal(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("marshaling filter: %w", err)
		}
	}

	rows, err := s.queries.SearchDocuments(queryCtx, SearchDocumentsParams{
		Collection:     collection,
		QueryEmbedding: pgvector.NewVector(embeddings[0]),
		FilterMetadata: filterJSON,
		ResultLimit:    cfg.topK,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return s.rowsToResults(rows), nil
}

// Exists reports whether the named collection exists.
func (s *Store) Exists(ctx context.Context, collection string) (bool, error) {
	return s.queries.CollectionExists(ctx, collection)
}

// Count returns the number of documents in the named collection.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	return s.queries.CountDocuments(ctx, collection)
}

// embedTexts generates one embedding per input text in a single backend
// call. Any failure or short response fails the whole batch.
func (s *Store) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]*ai.Document, len(texts))
	for i, t := range texts {
		input[i] = ai.DocumentFromText(t, nil)
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		// Both sentinels stay in the chain: callers classify on
		// ErrEmbedding, Search additionally on context.DeadlineExceeded.
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrEmbedding, len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrEmbedding, i)
		}
		out[i] = e.Embedding
	}
	return out, nil
}

// rowsToResults converts raw search rows to Results.
func (s *Store) rowsToResults(rows []SearchDocumentsRow) []Result {
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("failed to parse metadata", "document_id", row.ID, "error", err)
			metadata = make(map[string]string)
		}
		results = append(results, Result{
			Document: Document{
				ID:       row.ID,
				Content:  row.Content,
				Metadata: metadata,
			},
			Similarity: row.Similarity,
		})
	}
	return results
}
