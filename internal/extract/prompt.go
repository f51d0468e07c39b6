package extract

import (
	"fmt"
	"strings"

	"github.com/sitevoice/sitevoice/internal/schema"
)

// typeGuidance holds the per-type keyword heuristics stated in the
// classification prompt.
var typeGuidance = map[string]string{
	schema.TypeSafety:    "injuries, incidents, near-misses, hazards, PPE, unsafe conditions",
	schema.TypeQuality:   "inspections, defects, non-conformance, rework, specifications, tolerances",
	schema.TypeEquipment: "machinery status, breakdowns, maintenance, operating hours, fuel",
	schema.TypeRFI:       "explicit questions, requests for clarification, references to plans or specs",
	schema.TypeGeneral:   "progress updates, observations, scheduling, anything not covered above",
}

func detailKey(reportType string) string {
	return strings.ToLower(reportType) + "Details"
}

// buildSystemPrompt enumerates the closed type set with keyword
// guidance, states the tie-break priority order, lists every required
// field with its extraction rule, and demands a single JSON object.
func buildSystemPrompt() string {
	var sb strings.Builder

	sb.WriteString("You are an AI specialized in construction report analysis. ")
	sb.WriteString("Your task is to accurately classify and structure voice notes into one of five report categories, ")
	sb.WriteString("extracting appropriate data fields based on the report type.\n\n")

	sb.WriteString("# CLASSIFICATION RULES\n")
	sb.WriteString("- Analyze the transcript carefully before making a classification\n")
	sb.WriteString("- If the report contains mixed content, choose the most dominant type\n")
	sb.WriteString(fmt.Sprintf("- When signals for several types are present, break ties in this priority order: %s\n",
		strings.Join(schema.Priority(), " > ")))
	sb.WriteString("- Default to GENERAL if the classification is unclear\n\n")

	sb.WriteString("# REPORT TYPES AND REQUIRED FIELDS\n")
	for i, t := range schema.Priority() {
		fields, _ := schema.Fields(schema.GenCurrent, t)
		sb.WriteString(fmt.Sprintf("\n## %d. %s (signals: %s)\n", i+1, t, typeGuidance[t]))
		sb.WriteString("Required fields:\n")
		for _, f := range fields {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", f.Name, f.Rule))
		}
	}

	sb.WriteString("\n# OUTPUT QUALITY GUIDELINES\n")
	sb.WriteString("- Be concise but complete in all field entries\n")
	sb.WriteString("- Use proper construction terminology\n")
	sb.WriteString("- Ensure all lists are formatted as arrays of strings\n")
	sb.WriteString("- Extract actionable information useful for a construction team\n\n")

	sb.WriteString("# RESPONSE FORMAT\n")
	sb.WriteString("Return exactly one JSON object and nothing else, with:\n")
	sb.WriteString("- reportType: \"SAFETY\", \"QUALITY\", \"EQUIPMENT\", \"RFI\", or \"GENERAL\"\n")
	sb.WriteString("- title: Short descriptive title of what the voice message is about\n")
	sb.WriteString("- summary: Brief first-person summary of key points (max 500 chars)\n")
	sb.WriteString("- actionItems: Array of clear, actionable tasks derived from the report\n")
	sb.WriteString("- Plus ONLY the details object matching the report type ")
	sb.WriteString("(safetyDetails, qualityDetails, equipmentDetails, rfiDetails, or generalDetails)\n")

	return sb.String()
}
