// Package analysis wires prompt templates, prompt context, the completion
// client and the response validator into the analysis entry points.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/axia-cli/internal/completion"
	"github.com/sells-group/axia-cli/internal/model"
	"github.com/sells-group/axia-cli/internal/promptctx"
	"github.com/sells-group/axia-cli/internal/validate"
)

// ErrNoActiveTemplate is returned when no template is active for a prompt type.
var ErrNoActiveTemplate = eris.New("analysis: no active prompt template")

// CompletionError reports a failed completion call.
type CompletionError struct {
	Task       completion.Task
	Message    string
	StatusCode int
}

func (e *CompletionError) Error() string {
	return "analysis: AI request failed for " + string(e.Task) + ": " + e.Message
}

// TemplateSource returns the active template for a prompt type, or nil when
// none is active.
type TemplateSource interface {
	ActiveTemplate(ctx context.Context, promptType string) (*model.PromptTemplate, error)
}

// GoalSource reads the goal/KPI hierarchy of a company. TopKPI returns nil
// when no KPI is flagged.
type GoalSource interface {
	ListGoals(ctx context.Context, companyID int64) ([]model.Goal, error)
	TopKPI(ctx context.Context, companyID int64) (*model.KPI, error)
	StandaloneKPIs(ctx context.Context, companyID int64) ([]model.KPI, error)
}

// AuditLog appends AI audit records.
type AuditLog interface {
	AppendAILog(ctx context.Context, l *model.AILog) error
}

// Analyzer runs the analysis entry points. All collaborators are passed in
// explicitly.
type Analyzer struct {
	templates TemplateSource
	goals     GoalSource
	audit     AuditLog
	completer completion.Completer
	builder   *promptctx.Builder
	now       func() time.Time
	newID     func() string
	log       *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithIDGenerator overrides the audit record id generator.
func WithIDGenerator(newID func() string) Option {
	return func(a *Analyzer) { a.newID = newID }
}

// New creates an Analyzer.
func New(templates TemplateSource, goals GoalSource, audit AuditLog, completer completion.Completer, opts ...Option) *Analyzer {
	a := &Analyzer{
		templates: templates,
		goals:     goals,
		audit:     audit,
		completer: completer,
		builder:   promptctx.NewBuilder(),
		now:       time.Now,
		newID:     uuid.NewString,
		log:       zap.L().With(zap.String("component", "analysis")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result is the outcome of an analysis. Err is nil exactly when Analysis is
// set.
type Result struct {
	Analysis   *validate.TodoAnalysis
	TokensUsed int
	DurationMS int64
	Err        error
}

// AnalyzeTodos evaluates todos against the company's goals and returns the
// normalized analysis. It fails with ErrNoActiveTemplate, *CompletionError
// or *validate.ValidationError.
func (a *Analyzer) AnalyzeTodos(ctx context.Context, run model.Run, todos []model.Todo, company *model.Company) (*validate.TodoAnalysis, error) {
	res := a.AnalyzeTodosResult(ctx, run, todos, company)
	return res.Analysis, res.Err
}

// AnalyzeTodosResult is AnalyzeTodos returning a result value instead of
// raising, for callers that fall back on failure.
func (a *Analyzer) AnalyzeTodosResult(ctx context.Context, run model.Run, todos []model.Todo, company *model.Company) Result {
	start := a.now()
	log := a.log.With(zap.Int64("run_id", run.ID), zap.Int("todos", len(todos)))

	tmpl, err := a.activeTemplate(ctx, model.PromptTypeTodoAnalysis)
	if err != nil {
		return Result{Err: err}
	}

	var (
		goals      []model.Goal
		topKPI     *model.KPI
		standalone []model.KPI
	)
	if company != nil {
		if goals, err = a.goals.ListGoals(ctx, company.ID); err != nil {
			return Result{Err: eris.Wrapf(err, "analysis: list goals for company %d", company.ID)}
		}
		if topKPI, err = a.goals.TopKPI(ctx, company.ID); err != nil {
			return Result{Err: eris.Wrapf(err, "analysis: top KPI for company %d", company.ID)}
		}
		if standalone, err = a.goals.StandaloneKPIs(ctx, company.ID); err != nil {
			return Result{Err: eris.Wrapf(err, "analysis: standalone KPIs for company %d", company.ID)}
		}
	}

	vars := a.builder.BuildContext(company, goals, topKPI, standalone, todos)
	resp := a.completer.Complete(ctx, completion.Request{
		Task:          completion.TaskTodoAnalysis,
		SystemMessage: tmpl.SystemMessage,
		UserPrompt:    promptctx.Render(tmpl.UserPromptTemplate, vars),
		Temperature:   completion.Temperature(tmpl.Temperature),
		MaxTokens:     tmpl.MaxTokens,
	})
	durationMS := a.now().Sub(start).Milliseconds()
	runID := run.ID

	if !resp.Success {
		a.append(ctx, &model.AILog{
			RunID:          &runID,
			PromptType:     model.PromptTypeTodoAnalysis,
			SystemPromptID: &tmpl.ID,
			InputContext:   map[string]any{"todos": todoTitles(todos)},
			Response:       map[string]any{"error": resp.Error},
			DurationMS:     durationMS,
			ErrorMessage:   resp.Error,
		})
		log.Error("todo analysis failed", zap.String("error", resp.Error), zap.Int("attempts", resp.Attempts))
		return Result{
			DurationMS: durationMS,
			Err:        &CompletionError{Task: completion.TaskTodoAnalysis, Message: resp.Error, StatusCode: resp.StatusCode},
		}
	}

	if validate.IsPlainTextFallback(resp.Data) {
		log.Warn("received plain text analysis, skipping validation")
	}
	analysis, err := validate.Normalize(resp.Data)
	if err != nil {
		a.append(ctx, &model.AILog{
			RunID:          &runID,
			PromptType:     model.PromptTypeTodoAnalysis,
			SystemPromptID: &tmpl.ID,
			InputContext:   map[string]any{"todos": todoTitles(todos)},
			Response:       resp.Data,
			TokensUsed:     resp.TokensUsed,
			DurationMS:     durationMS,
			ErrorMessage:   err.Error(),
		})
		log.Error("todo analysis rejected", zap.Error(err))
		return Result{TokensUsed: resp.TokensUsed, DurationMS: durationMS, Err: err}
	}

	input := map[string]any{"company": nil, "top_kpi": nil, "todos_count": len(todos)}
	if company != nil {
		input["company"] = company.Name
	}
	if topKPI != nil {
		input["top_kpi"] = topKPI.Name
	}
	a.append(ctx, &model.AILog{
		RunID:          &runID,
		PromptType:     model.PromptTypeTodoAnalysis,
		SystemPromptID: &tmpl.ID,
		InputContext:   input,
		Response:       toMap(analysis),
		TokensUsed:     resp.TokensUsed,
		DurationMS:     durationMS,
		Success:        true,
	})
	log.Info("todo analysis completed",
		zap.Float64("overall_score", analysis.OverallScore),
		zap.Int("evaluations", len(analysis.Evaluations)),
		zap.Int("tokens_used", resp.TokensUsed),
		zap.Int64("duration_ms", durationMS),
	)
	return Result{Analysis: analysis, TokensUsed: resp.TokensUsed, DurationMS: durationMS}
}

func (a *Analyzer) activeTemplate(ctx context.Context, promptType string) (*model.PromptTemplate, error) {
	tmpl, err := a.templates.ActiveTemplate(ctx, promptType)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: load %s template", promptType)
	}
	if tmpl == nil {
		return nil, eris.Wrapf(ErrNoActiveTemplate, "type %s", promptType)
	}
	return tmpl, nil
}

// append writes an audit record. A failed write is logged and does not
// change the outcome of the call it describes.
func (a *Analyzer) append(ctx context.Context, l *model.AILog) {
	l.ID = a.newID()
	l.CreatedAt = a.now().UTC()
	if err := a.audit.AppendAILog(ctx, l); err != nil {
		a.log.Error("append AI log failed", zap.String("prompt_type", l.PromptType), zap.Error(err))
	}
}

func todoTitles(todos []model.Todo) []string {
	titles := make([]string, len(todos))
	for i, t := range todos {
		titles[i] = t.Title()
	}
	return titles
}

// toMap round-trips v through JSON into a generic map for audit storage.
func toMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// IsConfigError reports whether err means the analysis cannot run until
// configuration changes.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrNoActiveTemplate) || errors.Is(err, completion.ErrNotConfigured)
}
