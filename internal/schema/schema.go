package schema

import "strings"

// Generation identifies a schema generation. Reports written under an
// older generation stay readable forever; the registry never rewrites
// history.
type Generation int

const (
	// GenLegacy is the original flat seven-type schema.
	GenLegacy Generation = 1
	// GenCurrent is the nested five-type schema.
	GenCurrent Generation = 2
)

// Report types for GenCurrent.
const (
	TypeSafety    = "SAFETY"
	TypeQuality   = "QUALITY"
	TypeEquipment = "EQUIPMENT"
	TypeRFI       = "RFI"
	TypeGeneral   = "GENERAL"
)

// Legacy report types for GenLegacy.
const (
	LegacyDailyActivity = "daily_activity"
	LegacySafetyIncident = "safety_incident"
	LegacyQualityControl = "quality_control"
	LegacyProgress       = "progress"
	LegacyInitialRFI     = "initial_rfi"
	LegacyChangeOrder    = "change_order"
	LegacyGeneral        = "general"
)

// Sentinel default for string fields the extractor omitted.
const NotMentioned = "Not mentioned"

// Kind is the value type of a detail field.
type Kind int

const (
	KindString Kind = iota
	KindStringList
)

// Field describes one required detail field of a report type.
type Field struct {
	Name string
	Kind Kind
	// Rule is the one-line extraction instruction used in the prompt.
	Rule string
}

// Default returns the value substituted when the extractor omits or
// mistypes the field.
func (f Field) Default() any {
	if f.Kind == KindStringList {
		return []string{}
	}
	return NotMentioned
}

var currentFields = map[string][]Field{
	TypeSafety: {
		{Name: "incidents", Kind: KindStringList, Rule: "List all safety incidents mentioned (empty array if none)"},
		{Name: "hazards", Kind: KindStringList, Rule: "List all safety hazards identified (empty array if none)"},
		{Name: "ppeCompliance", Kind: KindString, Rule: "Document PPE compliance status as a detailed string"},
	},
	TypeQuality: {
		{Name: "controlPoints", Kind: KindStringList, Rule: "List specific quality control checkpoints mentioned"},
		{Name: "nonConformanceIssues", Kind: KindStringList, Rule: "Document all quality problems or deficiencies"},
		{Name: "correctiveActions", Kind: KindStringList, Rule: "List all recommended fixes or corrective measures"},
	},
	TypeEquipment: {
		{Name: "status", Kind: KindString, Rule: "Current operational state of equipment as a detailed string"},
		{Name: "operatingHours", Kind: KindString, Rule: "Running time or usage metrics as a string"},
		{Name: "mechanicalIssues", Kind: KindStringList, Rule: "List all equipment problems or maintenance needs"},
	},
	TypeRFI: {
		{Name: "questions", Kind: KindStringList, Rule: "List all explicit questions requiring answers"},
		{Name: "clarifications", Kind: KindStringList, Rule: "List areas needing additional information"},
		{Name: "documentReferences", Kind: KindStringList, Rule: "List references to plans, specs, or documents"},
	},
	TypeGeneral: {
		{Name: "observations", Kind: KindStringList, Rule: "List of general site observations or comments"},
		{Name: "progress", Kind: KindString, Rule: "Overall project or task progress as a detailed string"},
		{Name: "nextSteps", Kind: KindStringList, Rule: "List of recommended next steps or follow-up actions"},
	},
}

var legacyFields = map[string][]Field{
	LegacyDailyActivity: {
		{Name: "manpower", Kind: KindString},
		{Name: "weather", Kind: KindString},
		{Name: "laborDetails", Kind: KindString},
		{Name: "materialsUsed", Kind: KindString},
		{Name: "delays", Kind: KindString},
		{Name: "openIssues", Kind: KindString},
		{Name: "equipment", Kind: KindString},
	},
	LegacySafetyIncident: {
		{Name: "incidentType", Kind: KindString},
		{Name: "incidentDescription", Kind: KindString},
		{Name: "peopleInvolved", Kind: KindString},
		{Name: "correctiveActions", Kind: KindString},
	},
	LegacyQualityControl: {
		{Name: "inspectionResults", Kind: KindString},
		{Name: "testResults", Kind: KindString},
		{Name: "qualityIssues", Kind: KindString},
	},
	LegacyProgress: {
		{Name: "milestonesAchieved", Kind: KindString},
		{Name: "scheduledVsActual", Kind: KindString},
		{Name: "budgetImpact", Kind: KindString},
	},
	LegacyInitialRFI: {
		{Name: "rfiNumber", Kind: KindString},
		{Name: "rfiQuestion", Kind: KindString},
		{Name: "rfiContext", Kind: KindString},
		{Name: "requiredResponseDate", Kind: KindString},
	},
	LegacyChangeOrder: {
		{Name: "changeDescription", Kind: KindString},
		{Name: "reasonForChange", Kind: KindString},
		{Name: "costImpact", Kind: KindString},
		{Name: "scheduleImpact", Kind: KindString},
	},
	LegacyGeneral: {
		{Name: "openIssues", Kind: KindString},
		{Name: "equipment", Kind: KindString},
	},
}

// priority is the tie-break order when a transcript carries signals for
// several types. It is stated in the extraction prompt; the code does
// not re-check it post hoc.
var priority = []string{TypeSafety, TypeQuality, TypeEquipment, TypeRFI, TypeGeneral}

// Priority returns the tie-break order of current report types,
// strongest first.
func Priority() []string {
	out := make([]string, len(priority))
	copy(out, priority)
	return out
}

// Types returns all report types of the given generation.
func Types(gen Generation) []string {
	if gen == GenLegacy {
		return []string{
			LegacyDailyActivity, LegacySafetyIncident, LegacyQualityControl,
			LegacyProgress, LegacyInitialRFI, LegacyChangeOrder, LegacyGeneral,
		}
	}
	return Priority()
}

// Fields returns the ordered required field list for a (generation,
// type) pair. ok is false for unknown types.
func Fields(gen Generation, reportType string) ([]Field, bool) {
	var m map[string][]Field
	if gen == GenLegacy {
		m = legacyFields
	} else {
		m = currentFields
	}
	fields, ok := m[reportType]
	if !ok {
		return nil, false
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out, true
}

// Valid reports whether reportType exists in the given generation.
func Valid(gen Generation, reportType string) bool {
	_, ok := Fields(gen, reportType)
	return ok
}

// FallbackType is the safe default used when classification fails or
// the model returns an unknown type.
func FallbackType(gen Generation) string {
	if gen == GenLegacy {
		return LegacyGeneral
	}
	return TypeGeneral
}

// NormalizeType maps a raw model-reported type onto the closed set for
// the generation. Unknown values fall back to the general type.
func NormalizeType(gen Generation, raw string) string {
	raw = strings.TrimSpace(raw)
	if gen == GenCurrent {
		raw = strings.ToUpper(raw)
	} else {
		raw = strings.ToLower(raw)
	}
	if Valid(gen, raw) {
		return raw
	}
	return FallbackType(gen)
}

// CoerceDetails builds a schema-valid detail block for the given type:
// every required field is present, wrong-typed or missing values are
// replaced with the registry default, and fields that do not belong to
// the type are dropped. The same function serves extraction output and
// rows written under older generations, so old and new records share
// one defaulting path.
func CoerceDetails(gen Generation, reportType string, raw map[string]any) map[string]any {
	fields, ok := Fields(gen, reportType)
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, present := raw[f.Name]
		if !present {
			out[f.Name] = f.Default()
			continue
		}
		switch f.Kind {
		case KindString:
			if s, isStr := coerceString(v); isStr {
				out[f.Name] = s
			} else {
				out[f.Name] = f.Default()
			}
		case KindStringList:
			if list, isList := coerceStringList(v); isList {
				out[f.Name] = list
			} else {
				out[f.Name] = f.Default()
			}
		}
	}
	return out
}

func coerceString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// coerceStringList accepts []string, or []any whose elements are
// strings or {description,...} objects the model sometimes emits.
func coerceStringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			switch it := item.(type) {
			case string:
				out = append(out, it)
			case map[string]any:
				if desc, ok := it["description"].(string); ok {
					out = append(out, desc)
				}
			}
		}
		return out, true
	default:
		return nil, false
	}
}
