package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petrel0/petrel/internal/chunk"
	"github.com/petrel0/petrel/internal/config"
	"github.com/petrel0/petrel/internal/prompt"
	"github.com/petrel0/petrel/internal/retrieve"
)

// CorrespondenceCollection holds past drafts for example retrieval.
const CorrespondenceCollection = "correspondence_history"

const (
	correspondenceTopK     = 3
	correspondenceExamples = 2
)

// CorrespondenceParams describes a draft request.
type CorrespondenceParams struct {
	Type              string
	KeyPoints         []string
	RecipientName     string
	RecipientRole     string
	AdditionalContext string
	Model             string
}

// CorrespondenceResult is a finished draft.
type CorrespondenceResult struct {
	Draft                string
	Type                 string
	Tone                 string
	SimilarExamplesFound int
}

// Correspondence drafts formal correspondence from key points, styled
// after similar past drafts, and files each new draft back into the
// history collection.
type Correspondence struct {
	retriever Retriever
	generator Generator
	indexer   Indexer
	templates map[string]config.Template
	logger    *slog.Logger
	now       func() time.Time
}

func NewCorrespondence(retriever Retriever, generator Generator, indexer Indexer, templates map[string]config.Template, logger *slog.Logger) *Correspondence {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correspondence{
		retriever: retriever,
		generator: generator,
		indexer:   indexer,
		templates: templates,
		logger:    logger,
		now:       time.Now,
	}
}

// Draft generates a correspondence draft. An unknown type falls back to
// the project_update template but keeps the requested type label.
// Example retrieval is best-effort; a failed history write does not lose
// the draft.
func (c *Correspondence) Draft(ctx context.Context, params CorrespondenceParams) (*CorrespondenceResult, error) {
	tmpl, ok := c.templates[params.Type]
	if !ok {
		tmpl = c.templates[config.DefaultCorrespondenceType]
	}

	examples, found := c.similarExamples(ctx, params)

	draft, err := c.generator.Generate(ctx, prompt.Correspondence(params.Model, prompt.CorrespondenceParams{
		Type:              params.Type,
		Tone:              tmpl.Tone,
		Structure:         tmpl.Structure,
		KeyPoints:         params.KeyPoints,
		RecipientName:     params.RecipientName,
		RecipientRole:     params.RecipientRole,
		AdditionalContext: params.AdditionalContext,
		Examples:          examples,
	}))
	if err != nil {
		return nil, err
	}

	c.fileDraft(ctx, params, draft)

	return &CorrespondenceResult{
		Draft:                draft,
		Type:                 params.Type,
		Tone:                 tmpl.Tone,
		SimilarExamplesFound: found,
	}, nil
}

func (c *Correspondence) similarExamples(ctx context.Context, params CorrespondenceParams) ([]string, int) {
	passages, err := c.retriever.Retrieve(ctx, CorrespondenceCollection,
		[]string{strings.Join(params.KeyPoints, " ")},
		retrieve.WithTopK(correspondenceTopK),
		retrieve.WithFilter("type", params.Type))
	if err != nil {
		c.logger.Warn("example retrieval degraded, drafting without examples", "error", err)
		return nil, 0
	}

	examples := joinPassages(passages)
	if len(examples) > correspondenceExamples {
		examples = examples[:correspondenceExamples]
	}
	return examples, len(passages)
}

func (c *Correspondence) fileDraft(ctx context.Context, params CorrespondenceParams, draft string) {
	keyPoints, err := json.Marshal(params.KeyPoints)
	if err != nil {
		keyPoints = []byte("[]")
	}

	_, err = c.indexer.Index(ctx, CorrespondenceCollection, []chunk.Chunk{{
		Content: draft,
		Metadata: map[string]string{
			"type":       params.Type,
			"recipient":  orUnknownRecipient(params.RecipientName),
			"date":       c.now().Format(time.RFC3339),
			"key_points": string(keyPoints),
			"record_id":  uuid.NewString(),
		},
	}})
	if err != nil {
		c.logger.Warn("draft not filed into history", "type", params.Type, "error", err)
	}
}

func orUnknownRecipient(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}
