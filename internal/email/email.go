package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sitevoice/sitevoice/internal/report"
	"github.com/sitevoice/sitevoice/internal/schema"
	"github.com/sitevoice/sitevoice/internal/together"
)

const (
	maxOutputTokens = 1500
	temperature     = 0.7

	// SubjectMarker prefixes the first line of a well-formed response.
	// The synthesizer does not enforce it; callers parse defensively
	// with SplitSubject.
	SubjectMarker = "Subject:"
)

// Completer is the completion-client surface the synthesizer needs.
// Email synthesis and extraction never share a model call.
type Completer interface {
	Complete(ctx context.Context, req together.CompletionRequest) (string, error)
}

// Synthesizer turns a committed report plus action items into
// free-text email content via a second, differently-prompted
// completion call.
type Synthesizer struct {
	completer Completer
	models    []string
}

func NewSynthesizer(completer Completer, models []string) *Synthesizer {
	return &Synthesizer{completer: completer, models: models}
}

// ComposeParams describes one email request.
type ComposeParams struct {
	Report             report.Report
	ActionItems        []report.ActionItem
	RecipientName      string
	RecipientEmail     string
	SenderName         string
	IncludeAttachments bool
}

// typeEmphasis varies the prompt's focus by report type.
var typeEmphasis = map[string]string{
	schema.TypeSafety:    "Emphasize the urgency of safety issues and state clear action requirements",
	schema.TypeQuality:   "Focus on standards, specifications, and corrective measures",
	schema.TypeEquipment: "Highlight operational impacts and maintenance schedules",
	schema.TypeRFI:       "Clearly state the questions and clarifications needed and any deadlines",
	schema.TypeGeneral:   "Provide status updates and next steps",
}

// Compose returns the raw completion text. Failure is surfaced to the
// caller; this is a synchronous on-demand operation with no stored
// state to corrupt.
func (s *Synthesizer) Compose(ctx context.Context, p ComposeParams) (string, error) {
	reportType := schema.TypeGeneral
	if p.Report.ReportType != nil {
		reportType = *p.Report.ReportType
	}

	tasks := make([]string, 0, len(p.ActionItems))
	for _, item := range p.ActionItems {
		tasks = append(tasks, item.Task)
	}

	recipient := p.RecipientName
	if recipient == "" {
		recipient = "Team Member"
	}
	sender := p.SenderName
	if sender == "" {
		sender = "Site Manager"
	}

	emailContext := map[string]any{
		"report":      p.Report,
		"actionItems": tasks,
		"recipient":   map[string]string{"name": recipient, "email": p.RecipientEmail},
		"sender":      map[string]string{"name": sender},
	}
	if p.IncludeAttachments && len(p.Report.ImageRefs) > 0 {
		emailContext["attachmentCount"] = len(p.Report.ImageRefs)
	}

	userTurn, err := json.Marshal(emailContext)
	if err != nil {
		return "", fmt.Errorf("marshal email context: %w", err)
	}

	text, err := s.completer.Complete(ctx, together.CompletionRequest{
		System:      buildEmailPrompt(reportType),
		User:        string(userTurn),
		Models:      s.models,
		MaxTokens:   maxOutputTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("compose email: %w", err)
	}
	return text, nil
}

func buildEmailPrompt(reportType string) string {
	emphasis, ok := typeEmphasis[reportType]
	if !ok {
		emphasis = typeEmphasis[schema.TypeGeneral]
	}

	var sb strings.Builder
	sb.WriteString("You are an AI specialized in writing professional construction emails based on report data. ")
	sb.WriteString("Compose an email that clearly communicates the key information from the report.\n\n")

	sb.WriteString("# EMAIL STRUCTURE\n")
	sb.WriteString("- Start with \"" + SubjectMarker + " [THE EMAIL SUBJECT]\" as the first line\n")
	sb.WriteString("- Skip a line after the subject\n")
	sb.WriteString("- Keep a semi-formal, direct tone like a site foreman would use\n")
	sb.WriteString("- Format the body with clear sections and bullet points where appropriate\n")
	sb.WriteString("- Include the key action items from the report\n\n")

	sb.WriteString("# EMPHASIS FOR THIS REPORT\n")
	sb.WriteString("- " + emphasis + "\n\n")

	sb.WriteString("# FORMATTING RULES\n")
	sb.WriteString("- Do not repeat the subject line in the body\n")
	sb.WriteString("- If an attachment count is given, mention the attached photos naturally in the body\n")
	sb.WriteString("- No placeholder text; everything should be specific to this report\n")

	return sb.String()
}

// SplitSubject parses the subject-line convention defensively. When
// the first line carries the marker, it is returned as the subject and
// the remainder as the body; otherwise subject is empty and the whole
// text is the body.
func SplitSubject(text string) (subject, body string) {
	trimmed := strings.TrimSpace(text)
	first, rest, _ := strings.Cut(trimmed, "\n")
	if strings.HasPrefix(first, SubjectMarker) {
		return strings.TrimSpace(strings.TrimPrefix(first, SubjectMarker)), strings.TrimSpace(rest)
	}
	return "", trimmed
}
