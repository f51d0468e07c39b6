package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sitevoice/sitevoice/internal/schema"
	"github.com/sitevoice/sitevoice/internal/together"
)

type fakeCompleter struct {
	response string
	err      error
	lastReq  together.CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req together.CompletionRequest) (string, error) {
	f.lastReq = req
	return f.response, f.err
}

func TestExtractWellFormedResponse(t *testing.T) {
	fake := &fakeCompleter{response: `{
		"reportType": "SAFETY",
		"title": "Trench hazard at gate 3",
		"summary": "Open trench spotted near gate 3 without barriers.",
		"actionItems": ["Install barriers", "Notify safety officer"],
		"safetyDetails": {
			"incidents": [],
			"hazards": ["open trench near gate 3"],
			"ppeCompliance": "All workers wearing hard hats"
		}
	}`}

	e := New(fake, []string{"model-a"})
	rec, err := e.Extract(context.Background(), "there's an open trench by gate three, no barriers up", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.ReportType != schema.TypeSafety {
		t.Errorf("reportType = %q, want SAFETY", rec.ReportType)
	}
	if rec.Title != "Trench hazard at gate 3" {
		t.Errorf("title = %q", rec.Title)
	}
	if len(rec.ActionItems) != 2 || rec.ActionItems[0] != "Install barriers" {
		t.Errorf("actionItems = %v", rec.ActionItems)
	}
	hazards, ok := rec.Details["hazards"].([]string)
	if !ok || len(hazards) != 1 {
		t.Errorf("hazards = %v", rec.Details["hazards"])
	}
	if !fake.lastReq.JSONObject {
		t.Error("expected JSON object response format to be requested")
	}
}

func TestExtractProseWrappedJSON(t *testing.T) {
	fake := &fakeCompleter{response: "Here is the report:\n```json\n" + `{
		"reportType": "GENERAL",
		"title": "Morning walkthrough",
		"summary": "Site walkthrough notes.",
		"actionItems": [],
		"generalDetails": {"observations": ["crew on time"], "progress": "on schedule", "nextSteps": []}
	}` + "\n```\nLet me know if you need anything else."}

	e := New(fake, []string{"model-a"})
	rec, err := e.Extract(context.Background(), "morning walkthrough, crew on time, on schedule", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.ReportType != schema.TypeGeneral {
		t.Errorf("reportType = %q", rec.ReportType)
	}
	if rec.Details["progress"] != "on schedule" {
		t.Errorf("progress = %v", rec.Details["progress"])
	}
}

func TestExtractOmittedFieldsDefaulted(t *testing.T) {
	// Model omits hazards and ppeCompliance inside the detail block.
	fake := &fakeCompleter{response: `{
		"reportType": "SAFETY",
		"title": "t",
		"summary": "s",
		"actionItems": [],
		"safetyDetails": {"incidents": ["worker slipped on ramp"]}
	}`}

	e := New(fake, []string{"model-a"})
	rec, err := e.Extract(context.Background(), "worker slipped on the ramp this morning", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if hazards, ok := rec.Details["hazards"].([]string); !ok || len(hazards) != 0 {
		t.Errorf("hazards = %v, want empty list default", rec.Details["hazards"])
	}
	if rec.Details["ppeCompliance"] != schema.NotMentioned {
		t.Errorf("ppeCompliance = %v, want %q", rec.Details["ppeCompliance"], schema.NotMentioned)
	}
}

func TestExtractForeignDetailBlockDiscarded(t *testing.T) {
	// Model classified EQUIPMENT but also emitted a safety block.
	fake := &fakeCompleter{response: `{
		"reportType": "EQUIPMENT",
		"title": "Excavator down",
		"summary": "Hydraulic leak on the excavator.",
		"actionItems": ["Call mechanic"],
		"equipmentDetails": {"status": "down", "operatingHours": "812h", "mechanicalIssues": ["hydraulic leak"]},
		"safetyDetails": {"hazards": ["leaked fluid on ground"]}
	}`}

	e := New(fake, []string{"model-a"})
	rec, err := e.Extract(context.Background(), "excavator is leaking hydraulic fluid", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, ok := rec.Details["hazards"]; ok {
		t.Fatalf("safety field leaked into equipment details: %v", rec.Details)
	}
	if rec.Details["status"] != "down" {
		t.Errorf("status = %v", rec.Details["status"])
	}
}

func TestExtractUnknownTypeFallsBackToGeneral(t *testing.T) {
	fake := &fakeCompleter{response: `{
		"reportType": "WEATHER",
		"title": "t",
		"summary": "s",
		"actionItems": []
	}`}

	e := New(fake, []string{"model-a"})
	rec, err := e.Extract(context.Background(), "raining all day", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.ReportType != schema.TypeGeneral {
		t.Errorf("reportType = %q, want GENERAL", rec.ReportType)
	}
	// Defaulted general details even though no block was provided.
	if rec.Details["progress"] != schema.NotMentioned {
		t.Errorf("progress = %v", rec.Details["progress"])
	}
}

func TestExtractMissingRequiredFieldIsHardFailure(t *testing.T) {
	fake := &fakeCompleter{response: `{"reportType": "SAFETY", "title": "t"}`}

	e := New(fake, []string{"model-a"})
	rec, err := e.Extract(context.Background(), "some transcript", nil)
	if err == nil {
		t.Fatal("expected error for missing summary/actionItems")
	}
	// The record must still be the committable fallback.
	if rec.ReportType != schema.TypeGeneral || rec.Summary != FailedSummary {
		t.Errorf("fallback record = %+v", rec)
	}
}

func TestExtractCompleterFailureReturnsFallback(t *testing.T) {
	fake := &fakeCompleter{err: errors.New("all models down")}

	e := New(fake, []string{"model-a", "model-b"})
	rec, err := e.Extract(context.Background(), "some transcript", nil)
	if err == nil {
		t.Fatal("expected error when completer fails")
	}
	if rec.Summary != FailedSummary {
		t.Errorf("summary = %q, want %q", rec.Summary, FailedSummary)
	}
	if rec.ReportType != schema.TypeGeneral {
		t.Errorf("reportType = %q, want GENERAL", rec.ReportType)
	}
	if rec.ActionItems == nil || len(rec.ActionItems) != 0 {
		t.Errorf("actionItems = %v, want empty", rec.ActionItems)
	}
}

func TestNormalizeTranscript(t *testing.T) {
	got := NormalizeTranscript("  hello\n\nworld\t  again ")
	if got != "hello world again" {
		t.Errorf("got %q", got)
	}

	long := strings.Repeat("a", maxTranscriptChars+500)
	normalized := NormalizeTranscript(long)
	if !strings.HasSuffix(normalized, truncationMarker) {
		t.Error("expected truncation marker on over-long transcript")
	}
	if len(normalized) > maxTranscriptChars+len(truncationMarker) {
		t.Errorf("normalized length %d exceeds cap", len(normalized))
	}
}

func TestFirstBalancedObject(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`prefix {"a": 1} suffix`, `{"a": 1}`, true},
		{`{"a": {"b": 2}}`, `{"a": {"b": 2}}`, true},
		{`{"s": "has } brace"}`, `{"s": "has } brace"}`, true},
		{`{"s": "escaped \" quote}"}`, `{"s": "escaped \" quote}"}`, true},
		{`no json here`, ``, false},
		{`{"unclosed": `, ``, false},
	}
	for _, tt := range tests {
		got, ok := firstBalancedObject(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("firstBalancedObject(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFallbackTitleFormat(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	rec := Fallback(now)
	if rec.Title != "Voice note 2026-03-15 09:30" {
		t.Errorf("title = %q", rec.Title)
	}
	// Fallback details must be a complete GENERAL block.
	if obs, ok := rec.Details["observations"].([]string); !ok || len(obs) != 0 {
		t.Errorf("observations = %v", rec.Details["observations"])
	}
}

func TestPromptMentionsAllTypesAndPriority(t *testing.T) {
	prompt := buildSystemPrompt()
	for _, reportType := range schema.Types(schema.GenCurrent) {
		if !strings.Contains(prompt, reportType) {
			t.Errorf("prompt missing report type %s", reportType)
		}
	}
	if !strings.Contains(prompt, "SAFETY > QUALITY > EQUIPMENT > RFI > GENERAL") {
		t.Error("prompt missing priority tie-break order")
	}
}
