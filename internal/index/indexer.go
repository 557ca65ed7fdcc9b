// Package index writes chunked documents into a vector collection under
// stable, content-derived identifiers. Indexing the same chunks into the
// same collection twice produces the same ids, so re-runs overwrite
// instead of duplicating.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/petrel0/petrel/internal/chunk"
	"github.com/petrel0/petrel/internal/store"
)

// ErrIndexing indicates a batch of chunks could not be indexed. The batch
// is atomic: when this error is returned, none of its chunks were written.
var ErrIndexing = errors.New("indexing failed")

// Store is the vector store surface the indexer needs.
type Store interface {
	Add(ctx context.Context, collection string, docs []store.Document) error
}

// Indexer assigns document ids to chunks and writes them as one batch.
type Indexer struct {
	store  Store
	logger *slog.Logger
}

func New(s Store, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{store: s, logger: logger}
}

// Index writes chunks into collection and returns how many were indexed.
// An empty batch is a no-op. Any failure leaves the collection untouched
// and reports the whole batch as unindexed.
func (ix *Indexer) Index(ctx context.Context, collection string, chunks []chunk.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	docs := make([]store.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = store.Document{
			ID:       documentID(collection, i, c.Metadata, c.Content),
			Content:  c.Content,
			Metadata: c.Metadata,
		}
	}

	if err := ix.store.Add(ctx, collection, docs); err != nil {
		return 0, fmt.Errorf("%w: %d chunks not indexed into %q: %v",
			ErrIndexing, len(chunks), collection, err)
	}

	ix.logger.Debug("chunks indexed",
		"collection", collection,
		"count", len(chunks))
	return len(chunks), nil
}

// documentID derives a stable id from everything that identifies the chunk:
// its collection, its position in the batch, its metadata and its content.
// Metadata keys are visited in sorted order so map iteration order never
// leaks into the id.
func documentID(collection string, ordinal int, metadata map[string]string, content string) string {
	h := sha256.New()
	h.Write([]byte(collection))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(ordinal)))
	h.Write([]byte{0})

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(metadata[k]))
		h.Write([]byte{0})
	}

	h.Write([]byte(content))
	return "doc_" + hex.EncodeToString(h.Sum(nil))[:32]
}
