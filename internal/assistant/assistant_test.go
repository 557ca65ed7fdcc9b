package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/petrel0/petrel/internal/cache"
	"github.com/petrel0/petrel/internal/chunk"
	"github.com/petrel0/petrel/internal/generate"
	"github.com/petrel0/petrel/internal/log"
	"github.com/petrel0/petrel/internal/prompt"
	"github.com/petrel0/petrel/internal/retrieve"
)

type mockRetriever struct {
	mu       sync.Mutex
	passages []retrieve.Passage
	err      error

	calls       int
	lastQueries []string
	lastColl    string
	lastOpts    []retrieve.Option
}

func (m *mockRetriever) Retrieve(_ context.Context, collection string, queries []string, opts ...retrieve.Option) ([]retrieve.Passage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastColl = collection
	m.lastQueries = queries
	m.lastOpts = opts
	return m.passages, m.err
}

type mockGenerator struct {
	mu   sync.Mutex
	text string
	err  error

	calls    int
	requests []prompt.Request
}

func (m *mockGenerator) Generate(_ context.Context, req prompt.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.requests = append(m.requests, req)
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

type mockIndexer struct {
	err error

	calls    int
	lastColl string
	lastDocs []chunk.Chunk
}

func (m *mockIndexer) Index(_ context.Context, collection string, chunks []chunk.Chunk) (int, error) {
	m.calls++
	m.lastColl = collection
	m.lastDocs = chunks
	if m.err != nil {
		return 0, m.err
	}
	return len(chunks), nil
}

// faultyCache fails every operation.
type faultyCache struct{}

func (faultyCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("cache unreachable")
}
func (faultyCache) Set(context.Context, string, string, time.Duration) error {
	return errors.New("cache unreachable")
}

func newTestPipeline(r Retriever, g Generator, c cache.Cache) *Pipeline {
	return NewPipeline(r, g, c, time.Hour, 0.7, log.NewNop())
}

func passage(content, source string, score float64) retrieve.Passage {
	return retrieve.Passage{
		Content:  content,
		Metadata: map[string]string{"source": source},
		Score:    score,
	}
}

func TestQueryEmptyCollectionStillAnswers(t *testing.T) {
	mr := &mockRetriever{} // empty collection: no passages, no error
	mg := &mockGenerator{text: "I could not find relevant information in the context."}
	p := newTestPipeline(mr, mg, cache.NewMemory())

	resp, err := p.Query(context.Background(), QueryParams{
		Query:  "What is the pressure rating of valve X?",
		UseRAG: true,
		Model:  "llama3.2:latest",
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if resp.ContextUsed {
		t.Error("ContextUsed = true with an empty collection")
	}
	if resp.Cached {
		t.Error("Cached = true on first call")
	}
	if mg.calls != 1 {
		t.Errorf("generator called %d times, want 1", mg.calls)
	}
	if mr.lastColl != DefaultCollection {
		t.Errorf("collection = %q, want default", mr.lastColl)
	}
}

func TestQueryWithContext(t *testing.T) {
	mr := &mockRetriever{passages: []retrieve.Passage{
		passage("valve X is rated 150 bar", "manual.pdf", 0.9),
		passage("valve X maintenance", "manual.pdf", 0.7),
	}}
	mg := &mockGenerator{text: "Valve X is rated for 150 bar."}
	p := newTestPipeline(mr, mg, cache.NewMemory())

	resp, err := p.Query(context.Background(), QueryParams{
		Query:      "valve X rating?",
		Collection: "technical_manuals",
		UseRAG:     true,
		Model:      "llama3.2:latest",
	})
	if err != nil {
		t.Fatal(err)
	}

	if !resp.ContextUsed {
		t.Error("ContextUsed = false despite retrieved passages")
	}
	if len(resp.Sources) != 2 || resp.Sources[0]["source"] != "manual.pdf" {
		t.Errorf("Sources = %v", resp.Sources)
	}
	if resp.Model != "llama3.2:latest" {
		t.Errorf("Model = %q", resp.Model)
	}
}

func TestQuerySkipsRetrievalWhenDisabled(t *testing.T) {
	mr := &mockRetriever{}
	mg := &mockGenerator{text: "answer"}
	p := newTestPipeline(mr, mg, cache.NewMemory())

	if _, err := p.Query(context.Background(), QueryParams{Query: "q", Model: "m"}); err != nil {
		t.Fatal(err)
	}
	if mr.calls != 0 {
		t.Error("retriever called with augmentation disabled")
	}
}

func TestQueryRepeatHitsCache(t *testing.T) {
	mg := &mockGenerator{text: "the answer"}
	p := newTestPipeline(&mockRetriever{}, mg, cache.NewMemory())
	params := QueryParams{Query: "same question", Model: "m"}

	first, err := p.Query(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Query(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}

	if first.Cached {
		t.Error("first call must not be cached")
	}
	if !second.Cached {
		t.Error("second call must be cached")
	}
	if second.Text != first.Text {
		t.Errorf("cached text = %q, want %q", second.Text, first.Text)
	}
	if mg.calls != 1 {
		t.Errorf("generator called %d times, want 1", mg.calls)
	}
}

func TestQueryCacheSeparatesModes(t *testing.T) {
	mg := &mockGenerator{text: "answer"}
	p := newTestPipeline(&mockRetriever{}, mg, cache.NewMemory())

	if _, err := p.Query(context.Background(), QueryParams{Query: "q", Model: "m"}); err != nil {
		t.Fatal(err)
	}
	resp, err := p.Query(context.Background(), QueryParams{Query: "q", Model: "m", UseRAG: true})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Cached {
		t.Error("augmented request must not hit the plain-mode entry")
	}
	if mg.calls != 2 {
		t.Errorf("generator called %d times, want 2", mg.calls)
	}
}

func TestQueryCacheHitRestoresContextFlag(t *testing.T) {
	mr := &mockRetriever{passages: []retrieve.Passage{passage("p", "s", 0.9)}}
	p := newTestPipeline(mr, &mockGenerator{text: "grounded answer"}, cache.NewMemory())
	params := QueryParams{Query: "q", UseRAG: true, Model: "m"}

	if _, err := p.Query(context.Background(), params); err != nil {
		t.Fatal(err)
	}
	resp, err := p.Query(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Cached || !resp.ContextUsed {
		t.Errorf("cached=%v contextUsed=%v, want both true", resp.Cached, resp.ContextUsed)
	}
	// Provenance survives the round trip through the cache.
	if len(resp.Sources) != 1 || resp.Sources[0]["source"] != "s" {
		t.Errorf("cached sources = %v, want the original provenance", resp.Sources)
	}
}

func TestQueryRetrievalFaultDegrades(t *testing.T) {
	mr := &mockRetriever{err: errors.New("store down")}
	mg := &mockGenerator{text: "best effort answer"}
	p := newTestPipeline(mr, mg, cache.NewMemory())

	resp, err := p.Query(context.Background(), QueryParams{Query: "q", UseRAG: true, Model: "m"})
	if err != nil {
		t.Fatalf("optional augmentation fault must not fail the request: %v", err)
	}
	if resp.ContextUsed {
		t.Error("ContextUsed = true after degraded retrieval")
	}
	if mg.calls != 1 {
		t.Error("generation must still run")
	}
}

func TestQueryGenerationFailureIsFatal(t *testing.T) {
	genErr := generate.ErrGeneration
	mg := &mockGenerator{err: errors.Join(genErr, errors.New("model runner crashed"))}
	mem := cache.NewMemory()
	p := newTestPipeline(&mockRetriever{}, mg, mem)
	params := QueryParams{Query: "q", Model: "m"}

	_, err := p.Query(context.Background(), params)
	if !errors.Is(err, generate.ErrGeneration) {
		t.Fatalf("error = %v, want ErrGeneration surfaced verbatim", err)
	}

	// A failed request must not poison the cache.
	followUp := &mockGenerator{text: "recovered"}
	p2 := newTestPipeline(&mockRetriever{}, followUp, mem)
	resp, err := p2.Query(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Cached {
		t.Error("failed request left an entry in the cache")
	}
}

func TestQueryCacheFaultIsNonFatal(t *testing.T) {
	mg := &mockGenerator{text: "answer"}
	p := newTestPipeline(&mockRetriever{}, mg, faultyCache{})

	resp, err := p.Query(context.Background(), QueryParams{Query: "q", Model: "m"})
	if err != nil {
		t.Fatalf("cache fault must never fail the pipeline: %v", err)
	}
	if resp.Cached || resp.Text != "answer" {
		t.Errorf("resp = %+v", resp)
	}
}
