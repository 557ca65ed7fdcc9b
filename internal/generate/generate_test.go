package generate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/petrel0/petrel/internal/log"
	"github.com/petrel0/petrel/internal/prompt"
)

type fakeBackend struct {
	text string
	err  error

	calls   int
	lastReq prompt.Request
}

func (f *fakeBackend) Generate(_ context.Context, req prompt.Request) (string, error) {
	f.calls++
	f.lastReq = req
	return f.text, f.err
}

func TestGenerate(t *testing.T) {
	fb := &fakeBackend{text: "the rated pressure is 150 bar"}
	g := New(fb, log.NewNop())

	req := prompt.Query("llama3.2:latest", "rated pressure?", nil, 0.7)
	text, err := g.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "the rated pressure is 150 bar" {
		t.Errorf("text = %q", text)
	}
	if fb.lastReq.Model != "llama3.2:latest" {
		t.Errorf("backend saw model %q", fb.lastReq.Model)
	}
}

func TestGenerateBackendFailure(t *testing.T) {
	fb := &fakeBackend{err: errors.New("model runner has crashed")}
	g := New(fb, log.NewNop())

	_, err := g.Generate(context.Background(), prompt.Request{Model: "m"})
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("error = %v, want ErrGeneration", err)
	}
	// The raw backend message must survive for the API surface.
	if !strings.Contains(err.Error(), "model runner has crashed") {
		t.Errorf("backend message lost: %q", err)
	}
}

func TestGenerateEmptyCompletionIsFailure(t *testing.T) {
	for _, text := range []string{"", "   \n\t"} {
		fb := &fakeBackend{text: text}
		g := New(fb, log.NewNop())

		_, err := g.Generate(context.Background(), prompt.Request{Model: "m"})
		if !errors.Is(err, ErrGeneration) {
			t.Errorf("completion %q: error = %v, want ErrGeneration", text, err)
		}
	}
}

func TestGenerateRateLimitHonorsContext(t *testing.T) {
	fb := &fakeBackend{text: "ok"}
	g := New(fb, log.NewNop(), WithRateLimit(0.001, 1))

	ctx := context.Background()
	if _, err := g.Generate(ctx, prompt.Request{Model: "m"}); err != nil {
		t.Fatalf("first call should pass the burst: %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := g.Generate(canceled, prompt.Request{Model: "m"})
	if !errors.Is(err, ErrGeneration) {
		t.Errorf("error = %v, want ErrGeneration from canceled wait", err)
	}
	if fb.calls != 1 {
		t.Errorf("backend called %d times, want 1", fb.calls)
	}
}

func TestModelCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q, want /api/tags", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[
			{"name":"llama3.2:latest","size":2019393189,"modified_at":"2025-06-01T10:00:00Z"},
			{"name":"mistral:7b-instruct","size":4109865159,"modified_at":"2025-06-02T10:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	models, err := NewModelCatalog(srv.URL).Models(context.Background())
	if err != nil {
		t.Fatalf("Models() error = %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("got %d models, want 2", len(models))
	}
	if models[0].Name != "llama3.2:latest" || models[1].Name != "mistral:7b-instruct" {
		t.Errorf("models = %+v", models)
	}
}

func TestModelCatalogServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewModelCatalog(srv.URL).Models(context.Background())
	if err == nil {
		t.Fatal("expected error on 503")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("status lost: %q", err)
	}
}

func TestModelCatalogUnreachable(t *testing.T) {
	// Grab a port that is guaranteed closed.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := NewModelCatalog(url).Models(context.Background()); err == nil {
		t.Fatal("expected error for unreachable runtime")
	}
}
