// Package api is the HTTP surface. Handlers decode JSON, call an
// assistant, and encode the result; every /api route past login sits
// behind bearer-token auth with role permission checks.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petrel0/petrel/internal/assistant"
	"github.com/petrel0/petrel/internal/auth"
	"github.com/petrel0/petrel/internal/chunk"
	"github.com/petrel0/petrel/internal/generate"
)

// QueryPipeline answers ad-hoc queries.
type QueryPipeline interface {
	Query(ctx context.Context, params assistant.QueryParams) (*assistant.Response, error)
}

// Drafter produces correspondence drafts.
type Drafter interface {
	Draft(ctx context.Context, params assistant.CorrespondenceParams) (*assistant.CorrespondenceResult, error)
}

// Consultant answers topic consultations.
type Consultant interface {
	Consult(ctx context.Context, params assistant.ConsultationParams) (*assistant.ConsultationResult, error)
}

// ManualAssistant answers from technical manuals.
type ManualAssistant interface {
	Lookup(ctx context.Context, params assistant.ManualParams) (*assistant.ManualResult, error)
}

// ReportSummarizer rolls up a day's operational reports.
type ReportSummarizer interface {
	Summarize(ctx context.Context, date time.Time) (*assistant.SummaryResult, error)
}

// ModelLister reports which models the runtime serves.
type ModelLister interface {
	Models(ctx context.Context) ([]generate.ModelInfo, error)
}

// Indexer writes uploaded chunks.
type Indexer interface {
	Index(ctx context.Context, collection string, chunks []chunk.Chunk) (int, error)
}

// ServerConfig wires the server's collaborators.
type ServerConfig struct {
	Logger *slog.Logger

	Directory auth.Directory    // required
	Roles     *auth.RoleMapper  // required
	Tokens    *auth.TokenIssuer // required

	Pipeline       QueryPipeline
	Correspondence Drafter
	Consultation   Consultant
	Manual         ManualAssistant
	Summarizer     ReportSummarizer
	Models         ModelLister

	Splitter *chunk.Splitter
	Indexer  Indexer

	DefaultModel string
	Pool         *pgxpool.Pool // optional, enables DB ping in /ready
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Directory == nil || cfg.Roles == nil || cfg.Tokens == nil {
		return nil, errors.New("auth collaborators are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handlers{
		logger:         logger,
		directory:      cfg.Directory,
		roles:          cfg.Roles,
		tokens:         cfg.Tokens,
		pipeline:       cfg.Pipeline,
		correspondence: cfg.Correspondence,
		consultation:   cfg.Consultation,
		manual:         cfg.Manual,
		summarizer:     cfg.Summarizer,
		models:         cfg.Models,
		splitter:       cfg.Splitter,
		indexer:        cfg.Indexer,
		defaultModel:   cfg.DefaultModel,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/query", requirePermission(auth.PermRead, h.query))
	mux.HandleFunc("POST /api/documents/upload", requirePermission(auth.PermWrite, h.upload))
	mux.HandleFunc("GET /api/models", requirePermission(auth.PermRead, h.listModels))
	mux.HandleFunc("POST /api/correspondence", requirePermission(auth.PermWrite, h.correspond))
	mux.HandleFunc("POST /api/consultation", requirePermission(auth.PermRead, h.consult))
	mux.HandleFunc("POST /api/manual/query", requirePermission(auth.PermRead, h.manualQuery))
	mux.HandleFunc("POST /api/reports/summarize", requirePermission(auth.PermQueryDatabase, h.summarizeReports))

	// Middleware stack, outermost first: recovery, logging, auth.
	var protected http.Handler = mux
	protected = authMiddleware(cfg.Tokens, logger)(protected)
	protected = loggingMiddleware(logger)(protected)
	protected = recoveryMiddleware(logger)(protected)

	// Login and probes stay outside the auth chain.
	var login http.Handler = http.HandlerFunc(h.login)
	login = loggingMiddleware(logger)(login)
	login = recoveryMiddleware(logger)(login)

	top := http.NewServeMux()
	top.HandleFunc("GET /health", health)
	top.Handle("GET /ready", readiness(cfg.Pool))
	top.Handle("POST /api/auth/login", login)
	top.Handle("/api/", protected)

	return &Server{mux: top}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness reports ready only when the database answers a ping.
func readiness(pool *pgxpool.Pool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "not_ready", "database unreachable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
}
