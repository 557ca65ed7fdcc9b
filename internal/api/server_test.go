package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/petrel0/petrel/internal/assistant"
	"github.com/petrel0/petrel/internal/auth"
	"github.com/petrel0/petrel/internal/chunk"
	"github.com/petrel0/petrel/internal/generate"
	"github.com/petrel0/petrel/internal/log"
)

// stubDirectory authenticates one known user.
type stubDirectory struct {
	user *auth.User
	err  error
}

func (s *stubDirectory) Authenticate(_ context.Context, username, password string) (*auth.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.user != nil && username == s.user.Username && password == "correct" {
		return s.user, nil
	}
	return nil, auth.ErrInvalidCredentials
}

type stubPipeline struct {
	resp *assistant.Response
	err  error

	lastParams assistant.QueryParams
}

func (s *stubPipeline) Query(_ context.Context, params assistant.QueryParams) (*assistant.Response, error) {
	s.lastParams = params
	return s.resp, s.err
}

type stubIndexer struct {
	lastCollection string
	lastChunks     []chunk.Chunk
	err            error
}

func (s *stubIndexer) Index(_ context.Context, collection string, chunks []chunk.Chunk) (int, error) {
	s.lastCollection = collection
	s.lastChunks = chunks
	if s.err != nil {
		return 0, s.err
	}
	return len(chunks), nil
}

type stubModels struct {
	models []generate.ModelInfo
	err    error
}

func (s *stubModels) Models(context.Context) ([]generate.ModelInfo, error) {
	return s.models, s.err
}

type stubSummarizer struct {
	result *assistant.SummaryResult
	err    error
}

func (s *stubSummarizer) Summarize(context.Context, time.Time) (*assistant.SummaryResult, error) {
	return s.result, s.err
}

type testServer struct {
	*Server
	tokens   *auth.TokenIssuer
	pipeline *stubPipeline
	indexer  *stubIndexer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	tokens := auth.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	pipeline := &stubPipeline{resp: &assistant.Response{Text: "answer", Model: "llama3.2:latest"}}
	indexer := &stubIndexer{}

	splitter, err := chunk.New(1000, 200)
	if err != nil {
		t.Fatal(err)
	}

	srv, err := NewServer(ServerConfig{
		Logger: log.NewNop(),
		Directory: &stubDirectory{user: &auth.User{
			Username: "dwalker",
			FullName: "Dana Walker",
			Groups:   []string{"Engineers"},
		}},
		Roles:        auth.NewRoleMapper([]string{"IT-Admins", "AI-Admins"}, []string{"Engineers", "Technical-Staff"}),
		Tokens:       tokens,
		Pipeline:     pipeline,
		Models:       &stubModels{models: []generate.ModelInfo{{Name: "llama3.2:latest"}}},
		Summarizer:   &stubSummarizer{result: &assistant.SummaryResult{Date: "2026-03-14", ExecutiveSummary: "all nominal"}},
		Splitter:     splitter,
		Indexer:      indexer,
		DefaultModel: "llama3.2:latest",
	})
	if err != nil {
		t.Fatal(err)
	}
	return &testServer{Server: srv, tokens: tokens, pipeline: pipeline, indexer: indexer}
}

func (ts *testServer) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) tokenFor(t *testing.T, role auth.Role) string {
	t.Helper()
	token, err := ts.tokens.Issue(&auth.User{Username: "test"}, role)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body not JSON: %v\n%s", err, w.Body.String())
	}
	return body
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"username": "dwalker", "password": "correct"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["role"] != "engineer" {
		t.Errorf("role = %v", body["role"])
	}
	if body["token_type"] != "bearer" {
		t.Errorf("token_type = %v", body["token_type"])
	}

	// The issued token must open the protected surface.
	token, _ := body["access_token"].(string)
	w = ts.request(t, http.MethodPost, "/api/query", token, map[string]any{"query": "q"})
	if w.Code != http.StatusOK {
		t.Errorf("query with fresh token: status = %d", w.Code)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	ts := newTestServer(t)
	w := ts.request(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"username": "dwalker", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if decodeBody(t, w)["error"] != "invalid_credentials" {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/query", "/api/models", "/api/documents/upload"} {
		w := ts.request(t, http.MethodPost, path, "", map[string]any{})
		if path == "/api/models" {
			w = ts.request(t, http.MethodGet, path, "", nil)
		}
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status = %d, want 401", path, w.Code)
		}
	}

	w := ts.request(t, http.MethodPost, "/api/query", "garbage-token", map[string]any{"query": "q"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", w.Code)
	}
}

func TestRolePermissions(t *testing.T) {
	ts := newTestServer(t)
	viewer := ts.tokenFor(t, auth.RoleViewer)
	engineer := ts.tokenFor(t, auth.RoleEngineer)

	// Viewers read but never write.
	w := ts.request(t, http.MethodPost, "/api/query", viewer, map[string]any{"query": "q"})
	if w.Code != http.StatusOK {
		t.Errorf("viewer query: status = %d", w.Code)
	}
	w = ts.request(t, http.MethodPost, "/api/documents/upload", viewer,
		map[string]any{"content": "text"})
	if w.Code != http.StatusForbidden {
		t.Errorf("viewer upload: status = %d, want 403", w.Code)
	}

	// Report summaries need the query_database permission.
	w = ts.request(t, http.MethodPost, "/api/reports/summarize", viewer, map[string]any{})
	if w.Code != http.StatusForbidden {
		t.Errorf("viewer summarize: status = %d, want 403", w.Code)
	}
	w = ts.request(t, http.MethodPost, "/api/reports/summarize", engineer, map[string]any{})
	if w.Code != http.StatusOK {
		t.Errorf("engineer summarize: status = %d", w.Code)
	}
}

func TestQueryDefaults(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokenFor(t, auth.RoleViewer)

	w := ts.request(t, http.MethodPost, "/api/query", token, map[string]any{"query": "valve rating?"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	if ts.pipeline.lastParams.Model != "llama3.2:latest" {
		t.Errorf("model default = %q", ts.pipeline.lastParams.Model)
	}
	if !ts.pipeline.lastParams.UseRAG {
		t.Error("use_rag must default to true")
	}

	body := decodeBody(t, w)
	if body["response"] != "answer" {
		t.Errorf("body = %v", body)
	}
	for _, key := range []string{"model", "context_used", "cached"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
}

func TestQueryDisableRAG(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokenFor(t, auth.RoleViewer)

	ts.request(t, http.MethodPost, "/api/query", token,
		map[string]any{"query": "q", "use_rag": false})
	if ts.pipeline.lastParams.UseRAG {
		t.Error("use_rag=false not honored")
	}
}

func TestQueryGenerationFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.pipeline.resp = nil
	ts.pipeline.err = fmt.Errorf("%w: model runner crashed", generate.ErrGeneration)
	token := ts.tokenFor(t, auth.RoleViewer)

	w := ts.request(t, http.MethodPost, "/api/query", token, map[string]any{"query": "q"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	body := decodeBody(t, w)
	if body["error"] != "generation_error" {
		t.Errorf("error kind = %v", body["error"])
	}
}

func TestQueryRejectsMissingQuery(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokenFor(t, auth.RoleViewer)

	w := ts.request(t, http.MethodPost, "/api/query", token, map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestQueryRejectsMalformedJSON(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokenFor(t, auth.RoleViewer)

	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokenFor(t, auth.RoleEngineer)

	w := ts.request(t, http.MethodPost, "/api/documents/upload", token, map[string]any{
		"content":  "operating procedure for pump P-101",
		"metadata": map[string]string{"source": "upload"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["collection"] != assistant.DefaultCollection {
		t.Errorf("collection = %v", body["collection"])
	}
	if body["chunks_indexed"].(float64) < 1 {
		t.Errorf("chunks_indexed = %v", body["chunks_indexed"])
	}
	if ts.indexer.lastChunks[0].Metadata["source"] != "upload" {
		t.Errorf("metadata not forwarded: %v", ts.indexer.lastChunks[0].Metadata)
	}
}

func TestListModels(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokenFor(t, auth.RoleViewer)

	w := ts.request(t, http.MethodGet, "/api/models", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	models, _ := body["models"].([]any)
	if len(models) != 1 {
		t.Errorf("models = %v", body)
	}
}

func TestSummarizeRejectsBadDate(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokenFor(t, auth.RoleEngineer)

	w := ts.request(t, http.MethodPost, "/api/reports/summarize", token,
		map[string]any{"date": "14-03-2026"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHealthProbes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d", w.Code)
	}
	w = ts.request(t, http.MethodGet, "/ready", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("/ready status = %d", w.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler bug")
	})
	h := recoveryMiddleware(log.NewNop())(panicking)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("panic response not JSON: %s", w.Body.String())
	}
	if body["error"] != "internal_error" {
		t.Errorf("body = %v", body)
	}
}

func TestErrorResponsesNeverLeakInternals(t *testing.T) {
	ts := newTestServer(t)
	ts.pipeline.err = errors.New("pgx: connection to 10.0.3.7:5432 refused")
	ts.pipeline.resp = nil
	token := ts.tokenFor(t, auth.RoleViewer)

	w := ts.request(t, http.MethodPost, "/api/query", token, map[string]any{"query": "q"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("10.0.3.7")) {
		t.Errorf("internal address leaked: %s", w.Body.String())
	}
}
