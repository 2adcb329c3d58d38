package store

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/axia-cli/internal/model"
	"github.com/sells-group/axia-cli/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(
		pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp),
	)
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return newPostgresStore(mock), mock
}

func TestPostgresStore_Ping_RetriesUntilUp(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectPing().WillReturnError(fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED))
	mock.ExpectPing()

	err := s.ping(context.Background(), resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping_GivesUp(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectPing().WillReturnError(fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED))
	mock.ExpectPing().WillReturnError(fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED))

	err := s.ping(context.Background(), resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: ping")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping_PermanentErrorFailsFast(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectPing().WillReturnError(errors.New("password authentication failed for user \"axia\""))

	err := s.ping(context.Background(), resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password authentication failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS companies`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCompany_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM companies WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetCompany(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateCompany(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO companies .+ RETURNING id`).
		WithArgs("Acme GmbH", "", "b2b_saas", "", "", "", 2, 3, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	c := &model.Company{Name: "Acme GmbH", BusinessModel: "b2b_saas", TeamCofounders: 2, TeamEmployees: 3}
	require.NoError(t, s.CreateCompany(context.Background(), c))
	assert.Equal(t, int64(7), c.ID)
	assert.False(t, c.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateCompanyWebsite(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE companies SET website = \$1`).
		WithArgs("https://acme.de", pgxmock.AnyArg(), int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE companies SET website = \$1`).
		WithArgs("https://acme.de", pgxmock.AnyArg(), int64(8)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.UpdateCompanyWebsite(context.Background(), 7, "https://acme.de"))
	err := s.UpdateCompanyWebsite(context.Background(), 8, "https://acme.de")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertProfile(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO company_profiles .+ ON CONFLICT \(company_id, profile_type, source_type\)`).
		WithArgs(int64(7), model.ProfileTypeDomainExtract, model.SourceTypeAIFromDomain, "raw", []byte(`{"a":1}`), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	p := &model.CompanyProfile{
		CompanyID:     7,
		ProfileType:   model.ProfileTypeDomainExtract,
		SourceType:    model.SourceTypeAIFromDomain,
		RawText:       "raw",
		ExtractedJSON: []byte(`{"a":1}`),
	}
	require.NoError(t, s.UpsertProfile(context.Background(), p))
	assert.Equal(t, int64(3), p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertProfile_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO company_profiles`).WillReturnError(errors.New("deadlock"))

	err := s.UpsertProfile(context.Background(), &model.CompanyProfile{CompanyID: 7, ProfileType: "domain_extract"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert domain_extract profile for company 7")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TopKPI_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM kpis WHERE company_id = \$1 AND is_top_kpi`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "company_id", "goal_id", "name", "unit", "current_value", "target_value", "is_top_kpi"}))

	top, err := s.TopKPI(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, top)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StandaloneKPIs_IncludesTopKPI(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM kpis WHERE company_id = \$1 AND goal_id IS NULL ORDER BY id$`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "company_id", "goal_id", "name", "unit", "current_value", "target_value", "is_top_kpi"}).
			AddRow(int64(1), int64(7), (*int64)(nil), "MRR", "€", 20000.0, 50000.0, true).
			AddRow(int64(2), int64(7), (*int64)(nil), "Churn", "%", 5.0, 2.0, false))

	kpis, err := s.StandaloneKPIs(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, kpis, 2)
	assert.True(t, kpis[0].IsTopKPI)
	assert.Nil(t, kpis[0].GoalID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListTodos(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, run_id, raw_input, normalized_title FROM todos WHERE run_id = \$1`).
		WithArgs(int64(4)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "run_id", "raw_input", "normalized_title"}).
			AddRow(int64(1), int64(4), "call investor", "Call investor").
			AddRow(int64(2), int64(4), "fix onboarding", ""))

	todos, err := s.ListTodos(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, todos, 2)
	assert.Equal(t, "Call investor", todos[0].Title())
	assert.Equal(t, "fix onboarding", todos[1].Title())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddTodos_UsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"todos"}, []string{"run_id", "raw_input", "normalized_title"}).WillReturnResult(2)

	n, err := s.AddTodos(context.Background(), 4, []model.Todo{{RawInput: "a"}, {RawInput: "b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ActiveTemplate_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM prompt_templates WHERE type = \$1 AND is_active`).
		WithArgs(model.PromptTypeTodoAnalysis).
		WillReturnError(pgx.ErrNoRows)

	tmpl, err := s.ActiveTemplate(context.Background(), model.PromptTypeTodoAnalysis)
	require.NoError(t, err)
	assert.Nil(t, tmpl)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertTemplate_DeactivatesOthers(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE prompt_templates SET is_active = false WHERE type = \$1 AND version <> \$2`).
		WithArgs(model.PromptTypeTodoAnalysis, "v2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO prompt_templates .+ ON CONFLICT \(type, version\)`).
		WithArgs(model.PromptTypeTodoAnalysis, "v2", true, 0.3, 3000, "sys", "user").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(12)))
	mock.ExpectCommit()

	tmpl := &model.PromptTemplate{
		Type: model.PromptTypeTodoAnalysis, Version: "v2", IsActive: true,
		Temperature: 0.3, MaxTokens: 3000, SystemMessage: "sys", UserPromptTemplate: "user",
	}
	require.NoError(t, s.UpsertTemplate(context.Background(), tmpl))
	assert.Equal(t, int64(12), tmpl.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertTemplate_InactiveSkipsDeactivation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO prompt_templates`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(13)))
	mock.ExpectCommit()

	tmpl := &model.PromptTemplate{Type: model.PromptTypeChat, Version: "draft", SystemMessage: "s", UserPromptTemplate: "u"}
	require.NoError(t, s.UpsertTemplate(context.Background(), tmpl))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendAILog(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	runID := int64(4)
	mock.ExpectExec(`INSERT INTO ai_logs`).
		WithArgs("log-1", &runID, model.PromptTypeTodoAnalysis, (*int64)(nil),
			[]byte(`{"todos_count":2}`), []byte(`{}`), 10, int64(50), true, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendAILog(context.Background(), &model.AILog{
		ID:           "log-1",
		RunID:        &runID,
		PromptType:   model.PromptTypeTodoAnalysis,
		InputContext: map[string]any{"todos_count": 2},
		TokensUsed:   10,
		DurationMS:   50,
		Success:      true,
		CreatedAt:    time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
