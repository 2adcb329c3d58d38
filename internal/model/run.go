package model

import "time"

// Run groups the todos submitted for one analysis.
type Run struct {
	ID        int64     `json:"id" db:"id"`
	CompanyID int64     `json:"company_id" db:"company_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Todo is a free-text task belonging to a run.
type Todo struct {
	ID              int64  `json:"id" db:"id"`
	RunID           int64  `json:"run_id" db:"run_id"`
	RawInput        string `json:"raw_input" db:"raw_input"`
	NormalizedTitle string `json:"normalized_title" db:"normalized_title"`
}

// Title returns the normalized title, falling back to the raw input.
func (t Todo) Title() string {
	if t.NormalizedTitle != "" {
		return t.NormalizedTitle
	}
	return t.RawInput
}

// Prompt types for templates and audit records.
const (
	PromptTypeTodoAnalysis      = "todo_analysis"
	PromptTypeCompanyExtraction = "company_extraction"
	PromptTypeGoalsExtraction   = "goals_extraction"
	PromptTypeChat              = "chat"
)

// PromptTemplate is a versioned system/user prompt pair for one task type.
// Only one template per type is active at a time.
type PromptTemplate struct {
	ID                 int64   `json:"id" yaml:"-" db:"id"`
	Type               string  `json:"type" yaml:"type" db:"type"`
	Version            string  `json:"version" yaml:"version" db:"version"`
	IsActive           bool    `json:"is_active" yaml:"is_active" db:"is_active"`
	Temperature        float64 `json:"temperature" yaml:"temperature" db:"temperature"`
	MaxTokens          int     `json:"max_tokens,omitempty" yaml:"max_tokens" db:"max_tokens"`
	SystemMessage      string  `json:"system_message" yaml:"system_message" db:"system_message"`
	UserPromptTemplate string  `json:"user_prompt_template" yaml:"user_prompt_template" db:"user_prompt_template"`
}

// AILog is an append-only audit record of one completion call.
type AILog struct {
	ID             string         `json:"id" db:"id"`
	RunID          *int64         `json:"run_id,omitempty" db:"run_id"`
	PromptType     string         `json:"prompt_type" db:"prompt_type"`
	SystemPromptID *int64         `json:"system_prompt_id,omitempty" db:"system_prompt_id"`
	InputContext   map[string]any `json:"input_context" db:"input_context"`
	Response       map[string]any `json:"response" db:"response"`
	TokensUsed     int            `json:"tokens_used" db:"tokens_used"`
	DurationMS     int64          `json:"duration_ms" db:"duration_ms"`
	Success        bool           `json:"success" db:"success"`
	ErrorMessage   string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}
