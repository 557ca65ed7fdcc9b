// Package retrieve runs similarity search over one or more query strings
// and merges the hits into a single deduplicated, deterministically
// ordered passage list.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/petrel0/petrel/internal/store"
)

// ErrBackend indicates the search backend failed. A missing collection is
// not a backend fault and yields an empty result instead.
var ErrBackend = errors.New("retrieval backend failed")

// Searcher is the vector store surface the retriever needs.
type Searcher interface {
	Search(ctx context.Context, collection, query string, opts ...store.SearchOption) ([]store.Result, error)
}

// Passage is one retrieved context passage.
type Passage struct {
	Content  string
	Metadata map[string]string
	Score    float64
}

type config struct {
	topK   int
	filter map[string]string
}

type Option func(*config)

// WithTopK sets how many passages each query fetches.
func WithTopK(k int) Option {
	return func(c *config) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithFilter restricts hits to documents whose metadata contains the
// given key/value pair. Repeated calls AND together.
func WithFilter(key, value string) Option {
	return func(c *config) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

type Retriever struct {
	searcher Searcher
	logger   *slog.Logger
}

func New(searcher Searcher, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{searcher: searcher, logger: logger}
}

// Retrieve searches collection with every query concurrently and merges
// the hits. Duplicate content keeps its best-scoring occurrence. The
// merged list is sorted by score descending; ties keep the order of the
// query that produced them, then insertion order within that query, so
// the same inputs always produce the same passage list.
func (r *Retriever) Retrieve(ctx context.Context, collection string, queries []string, opts ...Option) ([]Passage, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	cfg := config{topK: store.DefaultTopK}
	for _, opt := range opts {
		opt(&cfg)
	}

	searchOpts := []store.SearchOption{store.WithTopK(cfg.topK)}
	for k, v := range cfg.filter {
		searchOpts = append(searchOpts, store.WithFilter(k, v))
	}

	perQuery := make([][]store.Result, len(queries))
	errs := make([]error, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			perQuery[i], errs[i] = r.searcher.Search(ctx, collection, q, searchOpts...)
		}(i, q)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("%w: query %d: %v", ErrBackend, i, err)
		}
	}

	passages := merge(perQuery)
	r.logger.Debug("retrieval complete",
		"collection", collection,
		"queries", len(queries),
		"passages", len(passages))
	return passages, nil
}

type rankedPassage struct {
	Passage
	query int
	pos   int
}

func merge(perQuery [][]store.Result) []Passage {
	var ranked []rankedPassage
	byContent := make(map[string]int)

	for qi, results := range perQuery {
		for pi, res := range results {
			existing, seen := byContent[res.Document.Content]
			if seen {
				if res.Similarity > ranked[existing].Score {
					ranked[existing] = rankedPassage{
						Passage: Passage{
							Content:  res.Document.Content,
							Metadata: res.Document.Metadata,
							Score:    res.Similarity,
						},
						query: qi,
						pos:   pi,
					}
				}
				continue
			}
			byContent[res.Document.Content] = len(ranked)
			ranked = append(ranked, rankedPassage{
				Passage: Passage{
					Content:  res.Document.Content,
					Metadata: res.Document.Metadata,
					Score:    res.Similarity,
				},
				query: qi,
				pos:   pi,
			})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].query != ranked[j].query {
			return ranked[i].query < ranked[j].query
		}
		return ranked[i].pos < ranked[j].pos
	})

	passages := make([]Passage, len(ranked))
	for i, rp := range ranked {
		passages[i] = rp.Passage
	}
	return passages
}
