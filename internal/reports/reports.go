// Package reports reads operational data from the relational backend
// and prepares it for summarization.
package reports

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// contentPreviewLen caps how much of each report body goes into the
// summarization prompt.
const contentPreviewLen = 200

// Report is one row from operational_reports.
type Report struct {
	ID         string
	Type       string
	Department string
	Content    string
	KeyMetrics string
	CreatedAt  time.Time
}

// Database is the relational surface the summarizer and the manual
// assistant need.
type Database interface {
	// ReportsForDate returns the day's reports ordered by department,
	// then report type.
	ReportsForDate(ctx context.Context, date time.Time) ([]Report, error)
	// EquipmentSpecs renders the spec row for an equipment id as
	// readable text, or "" when the id is unknown.
	EquipmentSpecs(ctx context.Context, equipmentID string) (string, error)
}

// DepartmentBlock is one department's reports rendered for the
// summarization prompt.
type DepartmentBlock struct {
	Department string
	Text       string
	Count      int
}

// DepartmentBlocks groups reports by department, preserving the input
// order. Report bodies are truncated to a preview; the model summarizes
// the day, it does not need every word.
func DepartmentBlocks(reports []Report) []DepartmentBlock {
	var blocks []DepartmentBlock
	index := make(map[string]int)

	for _, r := range reports {
		i, ok := index[r.Department]
		if !ok {
			i = len(blocks)
			index[r.Department] = i
			blocks = append(blocks, DepartmentBlock{Department: r.Department})
		}
		blocks[i].Count++
	}

	texts := make([]*strings.Builder, len(blocks))
	for i, b := range blocks {
		texts[i] = &strings.Builder{}
		fmt.Fprintf(texts[i], "Department: %s\nReports:\n", b.Department)
	}
	for _, r := range reports {
		b := texts[index[r.Department]]
		fmt.Fprintf(b, "- %s: %s\n", r.Type, preview(r.Content))
		if r.KeyMetrics != "" {
			fmt.Fprintf(b, "  Key Metrics: %s\n", r.KeyMetrics)
		}
	}
	for i := range blocks {
		blocks[i].Text = texts[i].String()
	}
	return blocks
}

func preview(content string) string {
	if len(content) <= contentPreviewLen {
		return content
	}
	return content[:contentPreviewLen] + "..."
}
