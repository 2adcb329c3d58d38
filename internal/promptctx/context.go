// Package promptctx turns a company, its goal/KPI hierarchy and a todo list
// into the flat variable map that prompt templates are rendered with.
// Every variable always resolves to a string; missing data becomes a
// sentinel, never an empty placeholder.
package promptctx

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/axia-cli/internal/model"
)

// Sentinels substituted for missing values.
const (
	NotSet       = "Not set"
	NotSpecified = "Not specified"
	NoTopKPI     = "No top KPI set"
	Dash         = "—"
	None         = "None"
	NoGoals      = "No goals defined yet"
)

// Builder renders prompt variables. The zero value is not usable; call
// NewBuilder.
type Builder struct {
	p *message.Printer
}

// NewBuilder creates a Builder that formats headline numbers with English
// thousands separators.
func NewBuilder() *Builder {
	return &Builder{p: message.NewPrinter(language.English)}
}

// BuildContext returns the template variables for one analysis. company may
// be nil. todos_list is only set when todos is non-nil.
func (b *Builder) BuildContext(company *model.Company, goals []model.Goal, topKPI *model.KPI, standalone []model.KPI, todos []model.Todo) map[string]string {
	vars := map[string]string{
		"company_name":     NotSet,
		"business_model":   NotSet,
		"team_info":        NotSet,
		"user_position":    NotSet,
		"customer_profile": NotSpecified,
		"market_insights":  NotSpecified,
		"company_stage":    DetectCompanyStage(company, topKPI),
	}

	if company != nil {
		setIf(vars, "company_name", company.Name)
		setIf(vars, "business_model", strings.ReplaceAll(company.BusinessModel, "_", " "))
		vars["team_info"] = b.p.Sprintf("%d co-founders, %d employees", company.TeamCofounders, company.TeamEmployees)
		setIf(vars, "user_position", company.UserPosition)
		setIf(vars, "customer_profile", company.CustomerProfile)
		setIf(vars, "market_insights", company.MarketInsights)
	}

	if topKPI != nil {
		vars["top_kpi_name"] = topKPI.Name
		vars["top_kpi_current"] = b.whole(topKPI.CurrentValue)
		vars["top_kpi_target"] = b.whole(topKPI.TargetValue)
		vars["top_kpi_unit"] = topKPI.Unit
		vars["top_kpi_gap"] = b.whole(topKPI.Gap())
		vars["top_kpi_gap_percentage"] = formatDecimal(GapPercentage(topKPI.CurrentValue, topKPI.TargetValue))
	} else {
		vars["top_kpi_name"] = NoTopKPI
		vars["top_kpi_current"] = Dash
		vars["top_kpi_target"] = Dash
		vars["top_kpi_unit"] = ""
		vars["top_kpi_gap"] = Dash
		vars["top_kpi_gap_percentage"] = Dash
	}

	hierarchy := b.BuildGoalsHierarchy(goals)
	vars["goals_list"] = hierarchy
	vars["goals_hierarchy"] = hierarchy

	if company != nil {
		vars["standalone_kpis_list"] = b.BuildStandaloneKPIs(standalone)
	} else {
		vars["standalone_kpis_list"] = None
	}

	if todos != nil {
		vars["todos_list"] = BuildTodosList(todos)
	}
	return vars
}

func setIf(vars map[string]string, key, value string) {
	if strings.TrimSpace(value) != "" {
		vars[key] = value
	}
}

// GapPercentage is the remaining gap as a percentage of target, rounded to
// one decimal. It is 0 when target is not positive.
func GapPercentage(current, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return math.Round((target-current)/target*100*10) / 10
}

// Revenue and user token sets for stage inference.
var (
	revenueNameTokens = []string{"revenue", "mrr"}
	revenueUnitTokens = []string{"€", "$"}
	userNameTokens    = []string{"user", "customer"}
)

// DetectCompanyStage infers a coarse company stage. Without a company or a
// top KPI it is always "Early Stage". Otherwise a revenue-like KPI buckets by
// its current value, then a user-like KPI does, and team size decides last.
func DetectCompanyStage(company *model.Company, topKPI *model.KPI) string {
	if company == nil || topKPI == nil {
		return "Early Stage"
	}

	name := strings.ToLower(topKPI.Name)
	unit := strings.ToLower(topKPI.Unit)
	current := topKPI.CurrentValue

	if containsAny(name, revenueNameTokens) || containsAny(unit, revenueUnitTokens) {
		switch {
		case current < 5_000:
			return "Pre-Revenue / Building"
		case current < 50_000:
			return "Early Traction"
		case current < 100_000:
			return "Scaling"
		default:
			return "Growth Stage"
		}
	}

	if containsAny(name, userNameTokens) {
		switch {
		case current < 100:
			return "Pre-PMF / Building"
		case current < 1_000:
			return "Early Traction"
		case current < 10_000:
			return "Product-Market Fit"
		default:
			return "Scaling"
		}
	}

	switch team := company.TeamSize(); {
	case team < 5:
		return "Early Stage"
	case team < 20:
		return "Growing"
	default:
		return "Scaling"
	}
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// BuildTodosList renders todos as a 1-based numbered list.
func BuildTodosList(todos []model.Todo) string {
	lines := make([]string, len(todos))
	for i, t := range todos {
		lines[i] = strconv.Itoa(i+1) + ". " + t.Title()
	}
	return strings.Join(lines, "\n")
}

// Render substitutes every {{key}} in tmpl. Unknown placeholders are left as
// they are, and substituted values are not expanded again.
func Render(tmpl string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// whole formats v rounded to an integer with thousands separators.
func (b *Builder) whole(v float64) string {
	return b.p.Sprintf("%d", int64(math.Round(v)))
}

// formatDecimal prints v without trailing zeros ("40", "33.3").
func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
