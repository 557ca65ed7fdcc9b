package assistant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/petrel0/petrel/internal/prompt"
	"github.com/petrel0/petrel/internal/reports"
	"github.com/petrel0/petrel/internal/retrieve"
)

// ManualCollection holds indexed technical manuals.
const ManualCollection = "technical_manuals"

const manualTopK = 5

type ManualParams struct {
	Query       string
	EquipmentID string
	Model       string
}

type ManualResult struct {
	Answer               string
	Sources              []map[string]string
	EquipmentContextUsed bool
}

// Manual answers questions from indexed technical manuals, optionally
// grounded in the equipment record for a specific unit.
type Manual struct {
	retriever Retriever
	generator Generator
	db        reports.Database
	logger    *slog.Logger
}

func NewManual(retriever Retriever, generator Generator, db reports.Database, logger *slog.Logger) *Manual {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manual{retriever: retriever, generator: generator, db: db, logger: logger}
}

// Lookup answers a manual question. Manual retrieval is required here:
// an answer not grounded in the manuals is worse than no answer, so a
// backend fault fails the request instead of degrading.
func (m *Manual) Lookup(ctx context.Context, params ManualParams) (*ManualResult, error) {
	equipmentContext := ""
	if params.EquipmentID != "" {
		specs, err := m.db.EquipmentSpecs(ctx, params.EquipmentID)
		if err != nil {
			return nil, fmt.Errorf("equipment lookup for %q: %w", params.EquipmentID, err)
		}
		if specs == "" {
			m.logger.Warn("unknown equipment id", "equipment_id", params.EquipmentID)
		}
		equipmentContext = specs
	}

	passages, err := m.retriever.Retrieve(ctx, ManualCollection, []string{params.Query},
		retrieve.WithTopK(manualTopK),
		retrieve.WithFilter("document_type", "technical_manual"))
	if err != nil {
		return nil, err
	}

	answer, err := m.generator.Generate(ctx, prompt.ManualQuery(params.Model, prompt.ManualParams{
		Query:            params.Query,
		EquipmentContext: equipmentContext,
		Passages:         joinPassages(passages),
	}))
	if err != nil {
		return nil, err
	}

	return &ManualResult{
		Answer:               answer,
		Sources:              passageSources(passages),
		EquipmentContextUsed: equipmentContext != "",
	}, nil
}
