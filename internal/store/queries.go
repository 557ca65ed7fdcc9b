package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Querier defines the database operations Store needs. The interface is
// owned by the consumer so tests can substitute a mock for the pgx-backed
// implementation.
type Querier interface {
	// EnsureCollection creates the named collection if absent. Safe under
	// concurrent first-time creation.
	EnsureCollection(ctx context.Context, name string) error

	// CollectionExists reports whether the named collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// UpsertDocuments inserts or replaces a batch of documents in one
	// transaction. A failure leaves the collection unchanged.
	UpsertDocuments(ctx context.Context, collection string, docs []UpsertDocumentParams) error

	// SearchDocuments performs a vector similarity search.
	SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error)

	// CountDocuments counts documents in a collection.
	CountDocuments(ctx context.Context, collection string) (int64, error)
}

// UpsertDocumentParams carries one document write.
type UpsertDocumentParams struct {
	ID        string
	Content   string
	Embedding pgvector.Vector
	Metadata  []byte // JSON-encoded map[string]string
}

// SearchDocumentsParams carries one similarity query.
type SearchDocumentsParams struct {
	Collection     string
	QueryEmbedding pgvector.Vector
	FilterMetadata []byte // JSON object for @> containment, nil = unfiltered
	ResultLimit    int
}

// SearchDocumentsRow is one similarity search hit.
type SearchDocumentsRow struct {
	ID         string
	Content    string
	Metadata   []byte
	Similarity float64
}

// PGQuerier implements Querier on PostgreSQL with the pgvector extension.
// Schema lives in db/migrations.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier creates a Querier backed by the given connection pool.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

func (q *PGQuerier) EnsureCollection(ctx context.Context, name string) error {
	// Single idempotent statement: concurrent first-time creation races
	// resolve inside the database, not in application code.
	_, err := q.pool.Exec(ctx,
		`INSERT INTO collections (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
		name)
	if err != nil {
		return fmt.Errorf("ensuring collection %q: %w", name, err)
	}
	return nil
}

func (q *PGQuerier) CollectionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := q.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM collections WHERE name = $1)`,
		name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking collection %q: %w", name, err)
	}
	return exists, nil
}

func (q *PGQuerier) UpsertDocuments(ctx context.Context, collection string, docs []UpsertDocumentParams) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	for _, doc := range docs {
		_, err := tx.Exec(ctx,
			`INSERT INTO documents (collection, id, content, embedding, metadata)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (collection, id) DO UPDATE SET
			   content = EXCLUDED.content,
			   embedding = EXCLUDED.embedding,
			   metadata = EXCLUDED.metadata`,
			collection, doc.ID, doc.Content, doc.Embedding, doc.Metadata)
		if err != nil {
			return fmt.Errorf("upserting document %q: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

func (q *PGQuerier) SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error) {
	var rows pgx.Rows
	var err error

	if arg.FilterMetadata != nil {
		rows, err = q.pool.Query(ctx,
			`SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
			 FROM documents
			 WHERE collection = $2 AND metadata @> $3
			 ORDER BY embedding <=> $1
			 LIMIT $4`,
			arg.QueryEmbedding, arg.Collection, arg.FilterMetadata, arg.ResultLimit)
	} else {
		rows, err = q.pool.Query(ctx,
			`SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
			 FROM documents
			 WHERE collection = $2
			 ORDER BY embedding <=> $1
			 LIMIT $3`,
			arg.QueryEmbedding, arg.Collection, arg.ResultLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("searching collection %q: %w", arg.Collection, err)
	}
	defer rows.Close()

	var out []SearchDocumentsRow
	for rows.Next() {
		var row SearchDocumentsRow
		if err := rows.Scan(&row.ID, &row.Content, &row.Metadata, &row.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return out, nil
}

func (q *PGQuerier) CountDocuments(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := q.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = $1`,
		collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting documents in %q: %w", collection, err)
	}
	return count, nil
}
