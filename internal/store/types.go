package store

import "time"

// Document is an indexed record inside a named collection.
// The id is content-addressed by the indexer so re-indexing identical
// content overwrites rather than duplicates.
type Document struct {
	ID        string            // Unique within its collection
	Content   string            // Chunk text content
	Metadata  map[string]string // Use-case-defined metadata (source, type, department...)
	CreatedAt time.Time
}

// Result is a single search hit with its cosine similarity score.
type Result struct {
	Document   Document
	Similarity float64 // Cosine similarity (0-1), higher is closer
}

// SearchOption configures search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

// searchConfig holds internal search configuration.
type searchConfig struct {
	topK    int
	filter  map[string]string
	timeout time.Duration
}

// DefaultTopK is the number of results returned when WithTopK is not given.
const DefaultTopK = 5

// defaultSearchTimeout bounds a single vector search, embedding included.
const defaultSearchTimeout = 10 * time.Second

// WithTopK sets the maximum number of results to return.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithFilter adds an exact-match metadata filter. Multiple calls add
// additional key/value pairs (AND logic).
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithTimeout overrides the per-search timeout.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// buildSearchConfig applies search options over the defaults.
func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    DefaultTopK,
		timeout: defaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
