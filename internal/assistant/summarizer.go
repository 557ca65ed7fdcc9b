package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/petrel0/petrel/internal/prompt"
	"github.com/petrel0/petrel/internal/reports"
)

// NoReportsSummary is returned when the requested date has no reports.
// No model call is made for an empty day.
const NoReportsSummary = "No reports found for the specified date."

type SummaryResult struct {
	Date                string
	ExecutiveSummary    string
	DepartmentSummaries []DepartmentSummary
	TotalReports        int
}

type DepartmentSummary struct {
	Department  string
	Summary     string
	ReportCount int
}

// Summarizer rolls the day's operational reports up into department
// summaries and one executive summary.
type Summarizer struct {
	db        reports.Database
	generator Generator
	model     string
	logger    *slog.Logger
}

func NewSummarizer(db reports.Database, generator Generator, model string, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{db: db, generator: generator, model: model, logger: logger}
}

func (s *Summarizer) Summarize(ctx context.Context, date time.Time) (*SummaryResult, error) {
	dayReports, err := s.db.ReportsForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("operational reports for %s: %w", date.Format(time.DateOnly), err)
	}

	result := &SummaryResult{
		Date:         date.Format(time.DateOnly),
		TotalReports: len(dayReports),
	}
	if len(dayReports) == 0 {
		result.ExecutiveSummary = NoReportsSummary
		return result, nil
	}

	blocks := reports.DepartmentBlocks(dayReports)
	for _, block := range blocks {
		summary, err := s.generator.Generate(ctx, prompt.DepartmentSummary(s.model, block.Text))
		if err != nil {
			return nil, fmt.Errorf("summary for department %q: %w", block.Department, err)
		}
		result.DepartmentSummaries = append(result.DepartmentSummaries, DepartmentSummary{
			Department:  block.Department,
			Summary:     summary,
			ReportCount: block.Count,
		})
	}

	var rollup strings.Builder
	for i, ds := range result.DepartmentSummaries {
		if i > 0 {
			rollup.WriteString("\n\n")
		}
		fmt.Fprintf(&rollup, "%s:\n%s", ds.Department, ds.Summary)
	}

	executive, err := s.generator.Generate(ctx, prompt.ExecutiveSummary(s.model, rollup.String()))
	if err != nil {
		return nil, fmt.Errorf("executive summary: %w", err)
	}
	result.ExecutiveSummary = executive
	return result, nil
}
