package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/axia-cli/internal/model"
	"github.com/sells-group/axia-cli/internal/promptctx"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedCompany(t *testing.T, st *SQLiteStore) *model.Company {
	t.Helper()
	c := &model.Company{Name: "Acme GmbH", BusinessModel: "b2b_saas", TeamCofounders: 2, TeamEmployees: 3}
	require.NoError(t, st.CreateCompany(context.Background(), c))
	return c
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

// --- Companies ---

func TestSQLite_Company_CreateGetList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := seedCompany(t, st)
	assert.NotZero(t, c.ID)

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme GmbH", got.Name)
	assert.Equal(t, "b2b_saas", got.BusinessModel)
	assert.Equal(t, 5, got.TeamSize())
	assert.Empty(t, got.Website)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, st.CreateCompany(ctx, &model.Company{Name: "Beta AG"}))
	list, err := st.ListCompanies(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Beta AG", list[1].Name)

	list, err = st.ListCompanies(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLite_Company_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetCompany(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	err = st.UpdateCompanyWebsite(context.Background(), 99, "https://acme.de")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_UpdateCompanyWebsite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCompany(t, st)

	require.NoError(t, st.UpdateCompanyWebsite(ctx, c.ID, "https://acme.de"))

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.de", got.Website)
}

// --- Profiles ---

func TestSQLite_UpsertProfile_KeepsOneRowPerKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCompany(t, st)

	first := &model.CompanyProfile{
		CompanyID:     c.ID,
		ProfileType:   model.ProfileTypeDomainExtract,
		SourceType:    model.SourceTypeAIFromDomain,
		RawText:       "first",
		ExtractedJSON: json.RawMessage(`{"website":"https://acme.de"}`),
	}
	require.NoError(t, st.UpsertProfile(ctx, first))

	second := &model.CompanyProfile{
		CompanyID:     c.ID,
		ProfileType:   model.ProfileTypeDomainExtract,
		SourceType:    model.SourceTypeAIFromDomain,
		RawText:       "second",
		ExtractedJSON: json.RawMessage(`{"website":"https://acme.com"}`),
	}
	require.NoError(t, st.UpsertProfile(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := st.GetProfile(ctx, c.ID, model.ProfileTypeDomainExtract, model.SourceTypeAIFromDomain)
	require.NoError(t, err)
	assert.Equal(t, "second", got.RawText)
	assert.JSONEq(t, `{"website":"https://acme.com"}`, string(got.ExtractedJSON))

	var n int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM company_profiles`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLite_UpsertProfile_EmptyJSON(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCompany(t, st)

	require.NoError(t, st.UpsertProfile(ctx, &model.CompanyProfile{CompanyID: c.ID, ProfileType: "manual", SourceType: "user"}))

	got, err := st.GetProfile(ctx, c.ID, "manual", "user")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got.ExtractedJSON))

	_, err = st.GetProfile(ctx, c.ID, "manual", "other")
	assert.True(t, errors.Is(err, ErrNotFound))
}

// --- Goals and KPIs ---

func TestSQLite_Goals_WithKPIs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCompany(t, st)

	g := &model.Goal{
		CompanyID: c.ID,
		Title:     "Reach 50k MRR",
		Priority:  model.PriorityHigh,
		IsActive:  true,
		KPIs: []model.KPI{
			{Name: "MRR", Unit: "€", CurrentValue: 20000, TargetValue: 50000, IsTopKPI: true},
			{Name: "Customers", CurrentValue: 12, TargetValue: 40},
		},
	}
	require.NoError(t, st.CreateGoal(ctx, g))
	require.NoError(t, st.CreateGoal(ctx, &model.Goal{CompanyID: c.ID, Title: "Hire CTO"}))
	require.NoError(t, st.CreateKPI(ctx, &model.KPI{CompanyID: c.ID, Name: "NPS", CurrentValue: 30, TargetValue: 50}))

	goals, err := st.ListGoals(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, goals, 2)
	assert.Equal(t, model.PriorityHigh, goals[0].Priority)
	assert.True(t, goals[0].IsActive)
	require.Len(t, goals[0].KPIs, 2)
	assert.Equal(t, "MRR", goals[0].KPIs[0].Name)
	assert.Equal(t, g.ID, *goals[0].KPIs[0].GoalID)
	assert.Equal(t, model.PriorityUnset, goals[1].Priority)
	assert.False(t, goals[1].IsActive)
	assert.Empty(t, goals[1].KPIs)

	top, err := st.TopKPI(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, "MRR", top.Name)
	assert.Equal(t, float64(30000), top.Gap())

	standalone, err := st.StandaloneKPIs(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, standalone, 1)
	assert.Equal(t, "NPS", standalone[0].Name)
	assert.Nil(t, standalone[0].GoalID)
}

func TestSQLite_StandaloneKPIs_IncludesTopKPI(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCompany(t, st)

	require.NoError(t, st.CreateKPI(ctx, &model.KPI{CompanyID: c.ID, Name: "MRR", Unit: "€", CurrentValue: 20000, TargetValue: 50000, IsTopKPI: true}))
	require.NoError(t, st.CreateKPI(ctx, &model.KPI{CompanyID: c.ID, Name: "Churn", Unit: "%", CurrentValue: 5, TargetValue: 2}))

	standalone, err := st.StandaloneKPIs(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, standalone, 2)
	assert.Equal(t, "MRR", standalone[0].Name)
	assert.True(t, standalone[0].IsTopKPI)
	assert.Equal(t, "Churn", standalone[1].Name)

	rendered := promptctx.NewBuilder().BuildStandaloneKPIs(standalone)
	assert.Contains(t, rendered, "→ MRR: 20000 → 50000 € [Gap: 30,000, 60% to go] ⭐ TOP KPI")
	assert.Contains(t, rendered, "→ Churn: 5 → 2 %")
}

func TestSQLite_TopKPI_None(t *testing.T) {
	st := newTestSQLiteStore(t)
	c := seedCompany(t, st)

	top, err := st.TopKPI(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Nil(t, top)
}

// --- Runs and todos ---

func TestSQLite_RunsAndTodos(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCompany(t, st)

	run, err := st.CreateRun(ctx, c.ID)
	require.NoError(t, err)
	assert.NotZero(t, run.ID)

	n, err := st.AddTodos(ctx, run.ID, []model.Todo{
		{RawInput: "call investor", NormalizedTitle: "Call investor"},
		{RawInput: "fix onboarding"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = st.AddTodos(ctx, run.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	todos, err := st.ListTodos(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, todos, 2)
	assert.Equal(t, "Call investor", todos[0].Title())
	assert.Equal(t, "fix onboarding", todos[1].Title())
	assert.Equal(t, run.ID, todos[1].RunID)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.CompanyID)

	_, err = st.GetRun(ctx, 999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// --- Templates ---

func TestSQLite_Templates_ActivationIsExclusive(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	none, err := st.ActiveTemplate(ctx, model.PromptTypeTodoAnalysis)
	require.NoError(t, err)
	assert.Nil(t, none)

	v1 := &model.PromptTemplate{
		Type: model.PromptTypeTodoAnalysis, Version: "v1", IsActive: true, Temperature: 0.3,
		MaxTokens: 3000, SystemMessage: "sys v1", UserPromptTemplate: "{{todos_list}}",
	}
	require.NoError(t, st.UpsertTemplate(ctx, v1))

	v2 := &model.PromptTemplate{
		Type: model.PromptTypeTodoAnalysis, Version: "v2", IsActive: true, Temperature: 0.4,
		SystemMessage: "sys v2", UserPromptTemplate: "{{todos_list}}",
	}
	require.NoError(t, st.UpsertTemplate(ctx, v2))

	active, err := st.ActiveTemplate(ctx, model.PromptTypeTodoAnalysis)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "v2", active.Version)
	assert.Equal(t, v2.ID, active.ID)

	var activeCount int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM prompt_templates WHERE type = ? AND is_active = 1`, model.PromptTypeTodoAnalysis).Scan(&activeCount))
	assert.Equal(t, 1, activeCount)

	// Re-seeding v1 updates it in place and takes activation back.
	v1.SystemMessage = "sys v1 edited"
	require.NoError(t, st.UpsertTemplate(ctx, v1))
	active, err = st.ActiveTemplate(ctx, model.PromptTypeTodoAnalysis)
	require.NoError(t, err)
	assert.Equal(t, "sys v1 edited", active.SystemMessage)
	assert.Equal(t, 0.3, active.Temperature)
	assert.Equal(t, 3000, active.MaxTokens)
}

func TestSQLite_Templates_InactiveDoesNotDeactivateOthers(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertTemplate(ctx, &model.PromptTemplate{
		Type: model.PromptTypeChat, Version: "v1", IsActive: true, SystemMessage: "a", UserPromptTemplate: "b",
	}))
	require.NoError(t, st.UpsertTemplate(ctx, &model.PromptTemplate{
		Type: model.PromptTypeChat, Version: "draft", SystemMessage: "c", UserPromptTemplate: "d",
	}))

	active, err := st.ActiveTemplate(ctx, model.PromptTypeChat)
	require.NoError(t, err)
	assert.Equal(t, "v1", active.Version)
}

// --- Audit log ---

func TestSQLite_AppendAILog(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	runID, promptID := int64(4), int64(11)
	require.NoError(t, st.AppendAILog(ctx, &model.AILog{
		ID:             "log-1",
		RunID:          &runID,
		PromptType:     model.PromptTypeTodoAnalysis,
		SystemPromptID: &promptID,
		InputContext:   map[string]any{"todos_count": 2},
		Response:       map[string]any{"overall_score": 85},
		TokensUsed:     200,
		DurationMS:     1500,
		Success:        true,
		CreatedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, st.AppendAILog(ctx, &model.AILog{ID: "log-2", PromptType: model.PromptTypeChat, ErrorMessage: "boom", CreatedAt: time.Now()}))

	var (
		gotRun   *int64
		input    string
		response string
		success  bool
	)
	require.NoError(t, st.db.QueryRow(`SELECT run_id, input_context, response, success FROM ai_logs WHERE id = 'log-1'`).
		Scan(&gotRun, &input, &response, &success))
	require.NotNil(t, gotRun)
	assert.Equal(t, int64(4), *gotRun)
	assert.JSONEq(t, `{"todos_count":2}`, input)
	assert.JSONEq(t, `{"overall_score":85}`, response)
	assert.True(t, success)

	require.NoError(t, st.db.QueryRow(`SELECT run_id, input_context FROM ai_logs WHERE id = 'log-2'`).Scan(&gotRun, &input))
	assert.Nil(t, gotRun)
	assert.JSONEq(t, `{}`, input)

	err := st.AppendAILog(ctx, &model.AILog{ID: "log-1", PromptType: model.PromptTypeChat, CreatedAt: time.Now()})
	assert.Error(t, err, "audit records are insert-only")
}
