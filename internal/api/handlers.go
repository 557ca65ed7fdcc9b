package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/petrel0/petrel/internal/assistant"
	"github.com/petrel0/petrel/internal/auth"
	"github.com/petrel0/petrel/internal/chunk"
	"github.com/petrel0/petrel/internal/generate"
	"github.com/petrel0/petrel/internal/retrieve"
)

const maxBodyBytes = 10 << 20

type handlers struct {
	logger         *slog.Logger
	directory      auth.Directory
	roles          *auth.RoleMapper
	tokens         *auth.TokenIssuer
	pipeline       QueryPipeline
	correspondence Drafter
	consultation   Consultant
	manual         ManualAssistant
	summarizer     ReportSummarizer
	models         ModelLister
	splitter       *chunk.Splitter
	indexer        Indexer
	defaultModel   string
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return false
	}
	return true
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Role        auth.Role `json:"role"`
	Username    string    `json:"username"`
	FullName    string    `json:"full_name,omitempty"`
	Email       string    `json:"email,omitempty"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	user, err := h.directory.Authenticate(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "username or password is incorrect")
		return
	}
	if err != nil {
		h.logger.Error("directory authentication failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "directory_unavailable", "authentication service unavailable")
		return
	}

	role := h.roles.RoleFor(user.Groups)
	token, err := h.tokens.Issue(user, role)
	if err != nil {
		h.logger.Error("token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "token_error", "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Role:        role,
		Username:    user.Username,
		FullName:    user.FullName,
		Email:       user.Email,
	})
}

type queryRequest struct {
	Query      string `json:"query"`
	Collection string `json:"collection"`
	UseRAG     *bool  `json:"use_rag"`
	Model      string `json:"model"`
}

type queryResponse struct {
	Response    string              `json:"response"`
	Model       string              `json:"model"`
	ContextUsed bool                `json:"context_used"`
	Cached      bool                `json:"cached"`
	Sources     []map[string]string `json:"sources,omitempty"`
}

func (h *handlers) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	useRAG := true
	if req.UseRAG != nil {
		useRAG = *req.UseRAG
	}
	model := req.Model
	if model == "" {
		model = h.defaultModel
	}

	resp, err := h.pipeline.Query(r.Context(), assistant.QueryParams{
		Query:      req.Query,
		Collection: req.Collection,
		UseRAG:     useRAG,
		Model:      model,
	})
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Response:    resp.Text,
		Model:       resp.Model,
		ContextUsed: resp.ContextUsed,
		Cached:      resp.Cached,
		Sources:     resp.Sources,
	})
}

type uploadRequest struct {
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Collection string            `json:"collection"`
}

func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}
	if req.Collection == "" {
		req.Collection = assistant.DefaultCollection
	}

	chunks := h.splitter.Split(req.Content, req.Metadata)
	indexed, err := h.indexer.Index(r.Context(), req.Collection, chunks)
	if err != nil {
		h.logger.Error("upload indexing failed", "collection", req.Collection, "error", err)
		writeError(w, http.StatusBadGateway, "indexing_error", "document could not be indexed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"collection":     req.Collection,
		"chunks_indexed": indexed,
	})
}

func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.models.Models(r.Context())
	if err != nil {
		h.logger.Error("model listing failed", "error", err)
		writeError(w, http.StatusBadGateway, "models_unavailable", "model runtime unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]generate.ModelInfo{"models": models})
}

type correspondenceRequest struct {
	Type              string            `json:"correspondence_type"`
	KeyPoints         []string          `json:"key_points"`
	RecipientInfo     map[string]string `json:"recipient_info"`
	AdditionalContext string            `json:"additional_context"`
	Model             string            `json:"model"`
}

func (h *handlers) correspond(w http.ResponseWriter, r *http.Request) {
	var req correspondenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.KeyPoints) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "key_points are required")
		return
	}

	model := req.Model
	if model == "" {
		model = h.defaultModel
	}

	result, err := h.correspondence.Draft(r.Context(), assistant.CorrespondenceParams{
		Type:              req.Type,
		KeyPoints:         req.KeyPoints,
		RecipientName:     req.RecipientInfo["name"],
		RecipientRole:     req.RecipientInfo["role"],
		AdditionalContext: req.AdditionalContext,
		Model:             model,
	})
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"correspondence":         result.Draft,
		"type":                   result.Type,
		"tone":                   result.Tone,
		"similar_examples_found": result.SimilarExamplesFound,
	})
}

type consultationRequest struct {
	Topic          string   `json:"topic"`
	Questions      []string `json:"specific_questions"`
	TechnicalLevel string   `json:"technical_level"`
}

func (h *handlers) consult(w http.ResponseWriter, r *http.Request) {
	var req consultationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "topic is required")
		return
	}

	result, err := h.consultation.Consult(r.Context(), assistant.ConsultationParams{
		Topic:     req.Topic,
		Questions: req.Questions,
		Level:     req.TechnicalLevel,
	})
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"consultation":        result.Consultation,
		"topic":               result.Topic,
		"questions_addressed": result.QuestionsAddressed,
		"technical_level":     result.Level,
		"sources_used":        result.SourcesUsed,
	})
}

type manualQueryRequest struct {
	Query       string `json:"query"`
	EquipmentID string `json:"equipment_id"`
	Model       string `json:"model"`
}

func (h *handlers) manualQuery(w http.ResponseWriter, r *http.Request) {
	var req manualQueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	model := req.Model
	if model == "" {
		model = h.defaultModel
	}

	result, err := h.manual.Lookup(r.Context(), assistant.ManualParams{
		Query:       req.Query,
		EquipmentID: req.EquipmentID,
		Model:       model,
	})
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"answer":                 result.Answer,
		"sources":                result.Sources,
		"equipment_context_used": result.EquipmentContextUsed,
	})
}

type summarizeRequest struct {
	Date string `json:"date"` // YYYY-MM-DD, empty means today
}

func (h *handlers) summarizeReports(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	date := time.Now()
	if req.Date != "" {
		parsed, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	result, err := h.summarizer.Summarize(r.Context(), date)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	departments := make([]map[string]any, len(result.DepartmentSummaries))
	for i, ds := range result.DepartmentSummaries {
		departments[i] = map[string]any{
			"department":   ds.Department,
			"summary":      ds.Summary,
			"report_count": ds.ReportCount,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":                 result.Date,
		"executive_summary":    result.ExecutiveSummary,
		"department_summaries": departments,
		"total_reports":        result.TotalReports,
	})
}

// writePipelineError maps component failures onto the error surface
// without conflating kinds: a retrieval fault never reads as a
// generation fault.
func (h *handlers) writePipelineError(w http.ResponseWriter, err error) {
	h.logger.Error("pipeline request failed", "error", err)
	switch {
	case errors.Is(err, generate.ErrGeneration):
		writeError(w, http.StatusBadGateway, "generation_error", err.Error())
	case errors.Is(err, retrieve.ErrBackend):
		writeError(w, http.StatusBadGateway, "retrieval_error", "context retrieval failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "request could not be completed")
	}
}
