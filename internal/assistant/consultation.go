package assistant

import (
	"context"
	"log/slog"

	"github.com/petrel0/petrel/internal/config"
	"github.com/petrel0/petrel/internal/prompt"
	"github.com/petrel0/petrel/internal/retrieve"
)

// KnowledgeBaseCollection backs consultations.
const KnowledgeBaseCollection = "knowledge_base"

const consultationTopK = 10

type ConsultationParams struct {
	Topic     string
	Questions []string
	Level     string
}

type ConsultationResult struct {
	Consultation       string
	Topic              string
	QuestionsAddressed int
	Level              string
	SourcesUsed        int
}

// Consultation answers topic consultations. The requested technical
// level picks a model/temperature profile; an unknown level falls back
// to the medium profile.
type Consultation struct {
	retriever Retriever
	generator Generator
	profiles  map[string]config.ConsultationProfile
	logger    *slog.Logger
}

func NewConsultation(retriever Retriever, generator Generator, profiles map[string]config.ConsultationProfile, logger *slog.Logger) *Consultation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consultation{
		retriever: retriever,
		generator: generator,
		profiles:  profiles,
		logger:    logger,
	}
}

// Consult retrieves knowledge-base context for the topic and every
// sub-question in one multi-query pass, then generates the consultation.
// Retrieval is best-effort augmentation here.
func (c *Consultation) Consult(ctx context.Context, params ConsultationParams) (*ConsultationResult, error) {
	profile, ok := c.profiles[params.Level]
	if !ok {
		params.Level = config.DefaultConsultationLevel
		profile = c.profiles[params.Level]
	}

	queries := append([]string{params.Topic}, params.Questions...)
	passages, err := c.retriever.Retrieve(ctx, KnowledgeBaseCollection, queries,
		retrieve.WithTopK(consultationTopK))
	if err != nil {
		c.logger.Warn("knowledge base retrieval degraded", "topic", params.Topic, "error", err)
		passages = nil
	}

	text, err := c.generator.Generate(ctx, prompt.Consultation(profile.Model, profile.Temperature, prompt.ConsultationParams{
		Topic:     params.Topic,
		Questions: params.Questions,
		Level:     params.Level,
		Passages:  joinPassages(passages),
	}))
	if err != nil {
		return nil, err
	}

	return &ConsultationResult{
		Consultation:       text,
		Topic:              params.Topic,
		QuestionsAddressed: len(params.Questions),
		Level:              params.Level,
		SourcesUsed:        len(passages),
	}, nil
}
