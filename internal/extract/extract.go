package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sitevoice/sitevoice/internal/report"
	"github.com/sitevoice/sitevoice/internal/schema"
	"github.com/sitevoice/sitevoice/internal/together"
)

const (
	// Transcripts longer than this are truncated, never rejected.
	maxTranscriptChars = 16000
	truncationMarker   = "\n[transcript truncated]"

	maxOutputTokens = 1000
	temperature     = 0.6

	// FailedSummary is the sentinel committed when extraction fails
	// hard; the user sees an explicit failure, not a stuck spinner.
	FailedSummary = "Summary failed to generate"
)

// Completer is the completion-client surface the extractor needs.
type Completer interface {
	Complete(ctx context.Context, req together.CompletionRequest) (string, error)
}

// Extractor turns a raw transcript into a schema-valid CandidateRecord.
type Extractor struct {
	completer Completer
	models    []string
}

// New creates an extractor. models lists the primary completion model
// first, then fallbacks in order.
func New(completer Completer, models []string) *Extractor {
	return &Extractor{completer: completer, models: models}
}

// Extract classifies the transcript and coerces the model output into
// a fully-populated candidate. It always returns a committable record:
// on hard failure (exhausted models, unparseable or incomplete output)
// the returned record is the deterministic fallback and err describes
// the cause for logging.
func (e *Extractor) Extract(ctx context.Context, transcript string, imageRefs []string) (report.CandidateRecord, error) {
	user := NormalizeTranscript(transcript)
	if len(imageRefs) > 0 {
		user += fmt.Sprintf("\n\n[%d photo(s) attached to this note]", len(imageRefs))
	}

	text, err := e.completer.Complete(ctx, together.CompletionRequest{
		System:      buildSystemPrompt(),
		User:        user,
		Models:      e.models,
		MaxTokens:   maxOutputTokens,
		Temperature: temperature,
		JSONObject:  true,
	})
	if err != nil {
		return Fallback(time.Now()), fmt.Errorf("completion failed: %w", err)
	}

	parsed, err := parseResponse(text)
	if err != nil {
		return Fallback(time.Now()), fmt.Errorf("parse model output: %w", err)
	}

	rec, err := coerce(parsed)
	if err != nil {
		return Fallback(time.Now()), fmt.Errorf("invalid model output: %w", err)
	}
	return rec, nil
}

// NormalizeTranscript collapses runs of whitespace and newlines and
// truncates over-long input with a visible marker. Length is never a
// failure.
func NormalizeTranscript(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxTranscriptChars {
		s = s[:maxTranscriptChars] + truncationMarker
	}
	return s
}

// parseResponse parses the completion text as a JSON object. When the
// direct parse fails (models wrap JSON in prose or code fences), the
// first balanced {...} span is tried before giving up.
func parseResponse(text string) (map[string]any, error) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return parsed, nil
	}

	span, ok := firstBalancedObject(text)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(span), &parsed); err != nil {
		return nil, fmt.Errorf("embedded JSON object did not parse: %w", err)
	}
	return parsed, nil
}

// firstBalancedObject returns the first balanced {...} span in text,
// tracking string literals and escapes so braces inside strings do not
// confuse the depth count.
func firstBalancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// coerce validates required top-level fields and builds a schema-valid
// candidate. Detail blocks belonging to other report types are
// discarded entirely, never persisted.
func coerce(parsed map[string]any) (report.CandidateRecord, error) {
	rawType, hasType := parsed["reportType"].(string)
	title, hasTitle := parsed["title"].(string)
	summary, hasSummary := parsed["summary"].(string)
	rawItems, hasItems := parsed["actionItems"]
	if !hasType || !hasTitle || !hasSummary || !hasItems {
		return report.CandidateRecord{}, fmt.Errorf("missing required field (reportType/title/summary/actionItems)")
	}

	items, ok := coerceActionItems(rawItems)
	if !ok {
		return report.CandidateRecord{}, fmt.Errorf("actionItems is not an array")
	}

	reportType := schema.NormalizeType(schema.GenCurrent, rawType)

	rawDetails := map[string]any{}
	if block, ok := parsed[detailKey(reportType)].(map[string]any); ok {
		rawDetails = block
	} else if block, ok := parsed["details"].(map[string]any); ok {
		rawDetails = block
	}

	return report.CandidateRecord{
		ReportType:  reportType,
		SchemaGen:   schema.GenCurrent,
		Title:       strings.TrimSpace(title),
		Summary:     strings.TrimSpace(summary),
		ActionItems: items,
		Details:     schema.CoerceDetails(schema.GenCurrent, reportType, rawDetails),
	}, nil
}

func coerceActionItems(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		switch it := item.(type) {
		case string:
			if s := strings.TrimSpace(it); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			if task, ok := it["task"].(string); ok && strings.TrimSpace(task) != "" {
				out = append(out, strings.TrimSpace(task))
			}
		}
	}
	return out, true
}

// Fallback returns the deterministic record committed after a hard
// extraction failure so the report never stays mid-processing.
func Fallback(now time.Time) report.CandidateRecord {
	return report.CandidateRecord{
		ReportType:  schema.FallbackType(schema.GenCurrent),
		SchemaGen:   schema.GenCurrent,
		Title:       "Voice note " + now.UTC().Format("2006-01-02 15:04"),
		Summary:     FailedSummary,
		ActionItems: []string{},
		Details:     schema.CoerceDetails(schema.GenCurrent, schema.TypeGeneral, map[string]any{}),
	}
}
