// Package store persists companies, goal hierarchies, todo runs, prompt
// templates, evidence snapshots and the AI audit log.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/axia-cli/internal/model"
)

// ErrNotFound is wrapped by lookups of a single record that does not exist.
var ErrNotFound = eris.New("store: not found")

// CompanyStore reads and writes companies.
type CompanyStore interface {
	GetCompany(ctx context.Context, id int64) (*model.Company, error)
	CreateCompany(ctx context.Context, c *model.Company) error
	ListCompanies(ctx context.Context, limit int) ([]model.Company, error)
	UpdateCompanyWebsite(ctx context.Context, companyID int64, website string) error
}

// ProfileStore keeps one evidence snapshot per
// (company_id, profile_type, source_type).
type ProfileStore interface {
	UpsertProfile(ctx context.Context, p *model.CompanyProfile) error
	GetProfile(ctx context.Context, companyID int64, profileType, sourceType string) (*model.CompanyProfile, error)
}

// GoalStore reads the goal/KPI hierarchy of a company. TopKPI returns nil
// when no KPI is flagged. StandaloneKPIs returns every KPI without a goal,
// the top KPI included.
type GoalStore interface {
	CreateGoal(ctx context.Context, g *model.Goal) error
	CreateKPI(ctx context.Context, k *model.KPI) error
	ListGoals(ctx context.Context, companyID int64) ([]model.Goal, error)
	TopKPI(ctx context.Context, companyID int64) (*model.KPI, error)
	StandaloneKPIs(ctx context.Context, companyID int64) ([]model.KPI, error)
}

// RunStore groups todos into runs.
type RunStore interface {
	CreateRun(ctx context.Context, companyID int64) (*model.Run, error)
	GetRun(ctx context.Context, id int64) (*model.Run, error)
	AddTodos(ctx context.Context, runID int64, todos []model.Todo) (int64, error)
	ListTodos(ctx context.Context, runID int64) ([]model.Todo, error)
}

// TemplateStore holds prompt templates. ActiveTemplate returns nil when no
// template of the type is active. Upserting an active template deactivates
// the other templates of its type.
type TemplateStore interface {
	ActiveTemplate(ctx context.Context, promptType string) (*model.PromptTemplate, error)
	UpsertTemplate(ctx context.Context, t *model.PromptTemplate) error
}

// AuditStore appends AI audit records. Records are never updated.
type AuditStore interface {
	AppendAILog(ctx context.Context, l *model.AILog) error
}

// Store is the full persistence interface.
type Store interface {
	CompanyStore
	ProfileStore
	GoalStore
	RunStore
	TemplateStore
	AuditStore

	Migrate(ctx context.Context) error
	Close() error
}

func notFound(entity string, id any) error {
	return eris.Wrapf(ErrNotFound, "%s %v", entity, id)
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
