package model

// Priority ranks a goal. The zero value means no priority was set.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityUnset  Priority = ""
)

// Goal is a company objective with optional KPIs attached.
type Goal struct {
	ID          int64    `json:"id" db:"id"`
	CompanyID   int64    `json:"company_id" db:"company_id"`
	Title       string   `json:"title" db:"title"`
	Description string   `json:"description,omitempty" db:"description"`
	Priority    Priority `json:"priority,omitempty" db:"priority"`
	TimeFrame   string   `json:"time_frame,omitempty" db:"time_frame"`
	IsActive    bool     `json:"is_active" db:"is_active"`
	KPIs        []KPI    `json:"kpis,omitempty"`
}

// KPI is a measurable indicator. GoalID is nil for standalone KPIs.
type KPI struct {
	ID           int64   `json:"id" db:"id"`
	CompanyID    int64   `json:"company_id" db:"company_id"`
	GoalID       *int64  `json:"goal_id,omitempty" db:"goal_id"`
	Name         string  `json:"name" db:"name"`
	Unit         string  `json:"unit,omitempty" db:"unit"`
	CurrentValue float64 `json:"current_value" db:"current_value"`
	TargetValue  float64 `json:"target_value" db:"target_value"`
	IsTopKPI     bool    `json:"is_top_kpi" db:"is_top_kpi"`
}

// Gap is the remaining distance to target.
func (k KPI) Gap() float64 {
	return k.TargetValue - k.CurrentValue
}
