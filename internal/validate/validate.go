// Package validate checks and normalizes structured completion answers for
// the todo analysis task.
package validate

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"
)

// FallbackScore is the overall score given to a plain-text answer.
const FallbackScore = 50

// Colors.
const (
	ColorGreen  = "green"
	ColorYellow = "yellow"
	ColorRed    = "red"
)

// DefaultPriorityRecommendation fills an absent priority_recommendation.
const DefaultPriorityRecommendation = "keep"

// TodoAnalysis is the normalized result of a todo analysis.
type TodoAnalysis struct {
	OverallScore   float64       `json:"overall_score"`
	Evaluations    []Evaluation  `json:"evaluations"`
	MissingTasks   []MissingTask `json:"missing_tasks"`
	StrategicNotes string        `json:"strategic_notes,omitempty"`
}

// Evaluation scores one todo.
type Evaluation struct {
	TaskIndex              *int    `json:"task_index,omitempty"`
	Score                  float64 `json:"score"`
	Color                  string  `json:"color"`
	Reasoning              string  `json:"reasoning"`
	PriorityRecommendation string  `json:"priority_recommendation"`
	ActionRecommendation   string  `json:"action_recommendation,omitempty"`
}

// MissingTask is a todo the model suggests adding.
type MissingTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ImpactScore *float64 `json:"impact_score,omitempty"`
}

// FieldError is one schema violation.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every schema violation of a payload.
type ValidationError struct {
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validate: todo analysis does not match schema:")
	for _, fe := range ve.Errors {
		fmt.Fprintf(&sb, " %s: %s;", fe.Field, fe.Message)
	}
	return strings.TrimSuffix(sb.String(), ";")
}

//go:embed todo_analysis.schema.json
var todoAnalysisSchemaJSON []byte

var todoAnalysisSchema = mustSchema(todoAnalysisSchemaJSON)

func mustSchema(raw []byte) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("validate: invalid embedded schema: %v", err))
	}
	return s
}

// IsPlainTextFallback reports whether data is the {"analysis": "<text>"}
// shape produced when the model ignored JSON mode.
func IsPlainTextFallback(data map[string]any) bool {
	_, ok := data["analysis"].(string)
	return ok
}

// SynthesizeFallback builds a minimal valid analysis around free text.
func SynthesizeFallback(text string) *TodoAnalysis {
	return &TodoAnalysis{
		OverallScore:   FallbackScore,
		Evaluations:    []Evaluation{},
		MissingTasks:   []MissingTask{},
		StrategicNotes: text,
	}
}

// ValidateTodoAnalysis checks data against the todo analysis schema. A
// mismatch is returned as *ValidationError.
func ValidateTodoAnalysis(data map[string]any) error {
	if data == nil {
		return &ValidationError{Errors: []FieldError{{Field: "(root)", Message: "payload is empty"}}}
	}

	result, err := todoAnalysisSchema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return eris.Wrap(err, "validate: load todo analysis payload")
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return ve
}

// EnhanceQuality converts a schema-valid payload into a TodoAnalysis and
// fills the gaps models commonly leave: scores are clamped to 0..100, a
// missing or unknown color is derived from the score, priority
// recommendations default to "keep", missing_todos is read as missing_tasks,
// and absent lists become empty.
func EnhanceQuality(data map[string]any) (*TodoAnalysis, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "validate: marshal payload")
	}

	var in struct {
		TodoAnalysis
		MissingTodos []MissingTask `json:"missing_todos"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, eris.Wrap(err, "validate: decode payload")
	}

	out := in.TodoAnalysis
	out.OverallScore = clampScore(out.OverallScore)

	if out.Evaluations == nil {
		out.Evaluations = []Evaluation{}
	}
	for i := range out.Evaluations {
		e := &out.Evaluations[i]
		e.Score = clampScore(e.Score)
		e.Color = normalizeColor(e.Color, e.Score)
		if strings.TrimSpace(e.PriorityRecommendation) == "" {
			e.PriorityRecommendation = DefaultPriorityRecommendation
		}
	}

	if out.MissingTasks == nil {
		out.MissingTasks = in.MissingTodos
	}
	if out.MissingTasks == nil {
		out.MissingTasks = []MissingTask{}
	}
	return &out, nil
}

// Normalize runs the full path for one completion payload: the plain-text
// fallback is synthesized, anything else is validated then enhanced.
func Normalize(data map[string]any) (*TodoAnalysis, error) {
	if IsPlainTextFallback(data) {
		return SynthesizeFallback(data["analysis"].(string)), nil
	}
	if err := ValidateTodoAnalysis(data); err != nil {
		return nil, err
	}
	return EnhanceQuality(data)
}

// ColorForScore maps a score to its traffic-light color.
func ColorForScore(score float64) string {
	switch {
	case score >= 70:
		return ColorGreen
	case score >= 40:
		return ColorYellow
	default:
		return ColorRed
	}
}

func normalizeColor(color string, score float64) string {
	switch c := strings.ToLower(strings.TrimSpace(color)); c {
	case ColorGreen, ColorYellow, ColorRed:
		return c
	}
	return ColorForScore(score)
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
