package promptctx

import (
	"strconv"
	"strings"

	"github.com/sells-group/axia-cli/internal/model"
)

var prioritySections = []struct {
	priority model.Priority
	label    string
}{
	{model.PriorityHigh, "[HIGH PRIORITY - CRITICAL]"},
	{model.PriorityMedium, "[MEDIUM PRIORITY]"},
	{model.PriorityLow, "[LOW PRIORITY]"},
}

const unsetSectionLabel = "[NO PRIORITY SET]"

// BuildGoalsHierarchy renders goals grouped high, medium, low, then goals
// without a recognized priority. Numbering restarts in every section.
func (b *Builder) BuildGoalsHierarchy(goals []model.Goal) string {
	if len(goals) == 0 {
		return NoGoals
	}

	var sb strings.Builder
	known := make(map[model.Priority]bool, len(prioritySections))
	for _, sec := range prioritySections {
		known[sec.priority] = true
		b.writeSection(&sb, sec.label, goals, func(g model.Goal) bool { return g.Priority == sec.priority })
	}
	b.writeSection(&sb, unsetSectionLabel, goals, func(g model.Goal) bool { return !known[g.Priority] })

	return strings.TrimSpace(sb.String())
}

func (b *Builder) writeSection(sb *strings.Builder, label string, goals []model.Goal, in func(model.Goal) bool) {
	n := 0
	for _, g := range goals {
		if !in(g) {
			continue
		}
		if n == 0 {
			sb.WriteString(label + "\n")
		}
		n++

		sb.WriteString("→ " + strconv.Itoa(n) + ". " + g.Title)
		if g.TimeFrame != "" {
			sb.WriteString(" (" + g.TimeFrame + ")")
		}
		if g.Description != "" {
			sb.WriteString("\n   Description: " + g.Description)
		}
		sb.WriteString("\n")

		for _, k := range g.KPIs {
			sb.WriteString("   └─ KPI: " + k.Name + " (" + valueRange(k) + ") " + b.gapNote(k))
			if k.IsTopKPI {
				sb.WriteString(" ⭐ TOP KPI")
			}
			sb.WriteString("\n")
		}
	}
	if n > 0 {
		sb.WriteString("\n")
	}
}

// BuildStandaloneKPIs renders KPIs that belong to no goal, or "None".
func (b *Builder) BuildStandaloneKPIs(kpis []model.KPI) string {
	if len(kpis) == 0 {
		return None
	}
	lines := make([]string, 0, len(kpis))
	for _, k := range kpis {
		line := "→ " + k.Name + ": " + valueRange(k) + " " + b.gapNote(k)
		if k.IsTopKPI {
			line += " ⭐ TOP KPI"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// valueRange renders "current → target unit".
func valueRange(k model.KPI) string {
	s := formatDecimal(k.CurrentValue) + " → " + formatDecimal(k.TargetValue)
	if k.Unit != "" {
		s += " " + k.Unit
	}
	return s
}

// gapNote renders "[Gap: 1,500, 75% to go]".
func (b *Builder) gapNote(k model.KPI) string {
	return "[Gap: " + b.whole(k.Gap()) + ", " + formatDecimal(GapPercentage(k.CurrentValue, k.TargetValue)) + "% to go]"
}
