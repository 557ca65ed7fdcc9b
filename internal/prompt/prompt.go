// Package prompt builds model requests for each assistant workflow. It is
// a pure package: same inputs always produce the same request, and nothing
// here talks to a backend.
package prompt

import (
	"fmt"
	"strings"
)

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// passageSeparator joins retrieved context passages inside a prompt.
const passageSeparator = "\n---\n"

type Message struct {
	Role    string
	Content string
}

// Request is a backend-neutral generation request. TopP is nil unless a
// workflow pins it.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	TopP        *float64
}

// Query builds the ad-hoc assistant prompt. Passages may be empty; the
// model is then instructed to say the context holds nothing relevant.
func Query(model, query string, passages []string, temperature float64) Request {
	var b strings.Builder
	b.WriteString("Context information:\n")
	b.WriteString(strings.Join(passages, passageSeparator))
	b.WriteString("\n\nUser question: ")
	b.WriteString(query)
	b.WriteString("\n\nPlease provide a detailed and accurate answer based on the context provided. ")
	b.WriteString("If the context doesn't contain relevant information, please state that clearly.")

	return Request{
		Model: model,
		Messages: []Message{
			{Role: RoleSystem, Content: "You are a helpful AI assistant for an oil and gas company. Provide accurate, professional responses based on the provided context."},
			{Role: RoleUser, Content: b.String()},
		},
		Temperature: temperature,
	}
}

// CorrespondenceParams describes a correspondence draft. Tone and
// Structure come from the configured template for Type; Examples are
// past drafts of the same type, already capped by the caller.
type CorrespondenceParams struct {
	Type              string
	Tone              string
	Structure         []string
	KeyPoints         []string
	RecipientName     string
	RecipientRole     string
	AdditionalContext string
	Examples          []string
}

// Correspondence builds the draft prompt. Temperature is fixed at 0.7:
// drafts should read naturally, not like a form letter.
func Correspondence(model string, p CorrespondenceParams) Request {
	var ctx strings.Builder
	fmt.Fprintf(&ctx, "Correspondence Type: %s\n", p.Type)
	fmt.Fprintf(&ctx, "Recipient: %s (%s)\n", orUnknown(p.RecipientName), orUnknown(p.RecipientRole))
	ctx.WriteString("Key Points:\n")
	for _, point := range p.KeyPoints {
		fmt.Fprintf(&ctx, "- %s\n", point)
	}

	if p.AdditionalContext != "" {
		fmt.Fprintf(&ctx, "\nAdditional Context:\n%s\n", p.AdditionalContext)
	}
	if len(p.Examples) > 0 {
		ctx.WriteString("\nSimilar Past Correspondence Examples:\n")
		ctx.WriteString(strings.Join(p.Examples, passageSeparator))
		ctx.WriteString("\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s %s with the following structure:\n%s\n\n",
		p.Tone, p.Type, strings.Join(p.Structure, ", "))
	fmt.Fprintf(&b, "Context:\n%s\n", ctx.String())
	b.WriteString("\nPlease draft a complete, professional correspondence that addresses all key points.")

	return Request{
		Model: model,
		Messages: []Message{
			{Role: RoleSystem, Content: fmt.Sprintf("You are a professional correspondence writer for an oil and gas company. Write in a %s tone.", p.Tone)},
			{Role: RoleUser, Content: b.String()},
		},
		Temperature: 0.7,
	}
}

type ConsultationParams struct {
	Topic     string
	Questions []string
	Level     string
	Passages  []string
}

// Consultation builds the technical consultation prompt. Model and
// temperature vary with the requested technical level, so the caller
// passes them in from its level profile.
func Consultation(model string, temperature float64, p ConsultationParams) Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", p.Topic)
	fmt.Fprintf(&b, "Technical Level: %s\n\n", p.Level)
	b.WriteString("Questions:\n")
	for i, q := range p.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	if len(p.Passages) > 0 {
		b.WriteString("\nRelevant Information:\n")
		b.WriteString(strings.Join(p.Passages, passageSeparator))
		b.WriteString("\n")
	}
	b.WriteString("\nPlease provide a comprehensive consultation addressing each question with appropriate technical depth.")

	return Request{
		Model: model,
		Messages: []Message{
			{Role: RoleSystem, Content: fmt.Sprintf("You are a senior technical consultant in the oil and gas industry. Provide clear, actionable advice at a %s technical level.", p.Level)},
			{Role: RoleUser, Content: b.String()},
		},
		Temperature: temperature,
	}
}

type ManualParams struct {
	Query            string
	EquipmentContext string
	Passages         []string
}

// ManualQuery builds the technical manual lookup prompt. Temperature 0.3
// with top_p 0.9 keeps answers close to the manual text.
func ManualQuery(model string, p ManualParams) Request {
	var ctx strings.Builder
	if p.EquipmentContext != "" {
		fmt.Fprintf(&ctx, "Equipment Details:\n%s\n\n", p.EquipmentContext)
	}
	if len(p.Passages) > 0 {
		ctx.WriteString("Relevant Manual Sections:\n")
		ctx.WriteString(strings.Join(p.Passages, passageSeparator))
	}

	topP := 0.9
	return Request{
		Model: model,
		Messages: []Message{
			{Role: RoleSystem, Content: "You are a technical expert assistant for oil and gas operations. Provide detailed, accurate responses based on technical manuals and equipment specifications."},
			{Role: RoleUser, Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", ctx.String(), p.Query)},
		},
		Temperature: 0.3,
		TopP:        &topP,
	}
}

// DepartmentSummary builds the per-department report summary prompt.
func DepartmentSummary(model, reports string) Request {
	return Request{
		Model: model,
		Messages: []Message{
			{Role: RoleSystem, Content: "You are an operations analyst. Summarize the daily reports concisely, highlighting key metrics, issues, and achievements."},
			{Role: RoleUser, Content: fmt.Sprintf("Summarize these operational reports:\n\n%s", reports)},
		},
		Temperature: 0.5,
	}
}

// ExecutiveSummary builds the cross-department rollup prompt from the
// individual department summaries.
func ExecutiveSummary(model, summaries string) Request {
	return Request{
		Model: model,
		Messages: []Message{
			{Role: RoleSystem, Content: "Create a concise executive summary of all departmental reports, highlighting critical issues and achievements."},
			{Role: RoleUser, Content: fmt.Sprintf("Department summaries:\n\n%s", summaries)},
		},
		Temperature: 0.5,
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
