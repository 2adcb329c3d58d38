package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/axia-cli/internal/db"
	"github.com/sells-group/axia-cli/internal/model"
	"github.com/sells-group/axia-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool. The initial
// ping is retried so the CLI tolerates a database that is still starting.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	s := newPostgresStore(pool)
	if err := s.ping(ctx, resilience.DefaultRetryConfig()); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ping(ctx context.Context, cfg resilience.RetryConfig) error {
	cfg.OnRetry = resilience.RetryLogger("store", "postgres ping")
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return s.pool.Ping(ctx)
	})
	return eris.Wrap(err, "postgres: ping")
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT NOT NULL,
	website          TEXT NOT NULL DEFAULT '',
	business_model   TEXT NOT NULL DEFAULT '',
	user_position    TEXT NOT NULL DEFAULT '',
	customer_profile TEXT NOT NULL DEFAULT '',
	market_insights  TEXT NOT NULL DEFAULT '',
	team_cofounders  INTEGER NOT NULL DEFAULT 0,
	team_employees   INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS company_profiles (
	id             BIGSERIAL PRIMARY KEY,
	company_id     BIGINT NOT NULL REFERENCES companies(id),
	profile_type   TEXT NOT NULL,
	source_type    TEXT NOT NULL,
	raw_text       TEXT NOT NULL DEFAULT '',
	extracted_json JSONB NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (company_id, profile_type, source_type)
);

CREATE TABLE IF NOT EXISTS goals (
	id          BIGSERIAL PRIMARY KEY,
	company_id  BIGINT NOT NULL REFERENCES companies(id),
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	priority    TEXT NOT NULL DEFAULT '',
	time_frame  TEXT NOT NULL DEFAULT '',
	is_active   BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS kpis (
	id            BIGSERIAL PRIMARY KEY,
	company_id    BIGINT NOT NULL REFERENCES companies(id),
	goal_id       BIGINT REFERENCES goals(id),
	name          TEXT NOT NULL,
	unit          TEXT NOT NULL DEFAULT '',
	current_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	target_value  DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_top_kpi    BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS runs (
	id         BIGSERIAL PRIMARY KEY,
	company_id BIGINT NOT NULL REFERENCES companies(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS todos (
	id               BIGSERIAL PRIMARY KEY,
	run_id           BIGINT NOT NULL REFERENCES runs(id),
	raw_input        TEXT NOT NULL,
	normalized_title TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS prompt_templates (
	id                   BIGSERIAL PRIMARY KEY,
	type                 TEXT NOT NULL,
	version              TEXT NOT NULL,
	is_active            BOOLEAN NOT NULL DEFAULT false,
	temperature          DOUBLE PRECISION NOT NULL DEFAULT 0.7,
	max_tokens           INTEGER NOT NULL DEFAULT 0,
	system_message       TEXT NOT NULL,
	user_prompt_template TEXT NOT NULL,
	UNIQUE (type, version)
);

CREATE TABLE IF NOT EXISTS ai_logs (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id           BIGINT,
	prompt_type      TEXT NOT NULL,
	system_prompt_id BIGINT,
	input_context    JSONB NOT NULL,
	response         JSONB NOT NULL,
	tokens_used      INTEGER NOT NULL DEFAULT 0,
	duration_ms      BIGINT NOT NULL DEFAULT 0,
	success          BOOLEAN NOT NULL,
	error_message    TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_goals_company ON goals(company_id);
CREATE INDEX IF NOT EXISTS idx_kpis_company ON kpis(company_id);
CREATE INDEX IF NOT EXISTS idx_todos_run ON todos(run_id);
CREATE INDEX IF NOT EXISTS idx_prompt_templates_active ON prompt_templates(type) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_ai_logs_run ON ai_logs(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Companies ---

func (s *PostgresStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
	c, err := scanCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("company", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %d", id)
	}
	return c, nil
}

func (s *PostgresStore) CreateCompany(ctx context.Context, c *model.Company) error {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO companies (name, website, business_model, user_position, customer_profile, market_insights, team_cofounders, team_employees, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		c.Name, c.Website, c.BusinessModel, c.UserPosition, c.CustomerProfile, c.MarketInsights,
		c.TeamCofounders, c.TeamEmployees, now, now,
	).Scan(&c.ID)
	if err != nil {
		return eris.Wrap(err, "postgres: insert company")
	}
	c.CreatedAt, c.UpdatedAt = now, now
	return nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context, limit int) ([]model.Company, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

func (s *PostgresStore) UpdateCompanyWebsite(ctx context.Context, companyID int64, website string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET website = $1, updated_at = $2 WHERE id = $3`,
		website, time.Now().UTC(), companyID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update website for company %d", companyID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("company", companyID)
	}
	return nil
}

// --- Profiles ---

func (s *PostgresStore) UpsertProfile(ctx context.Context, p *model.CompanyProfile) error {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO company_profiles (company_id, profile_type, source_type, raw_text, extracted_json, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (company_id, profile_type, source_type)
		 DO UPDATE SET raw_text = EXCLUDED.raw_text, extracted_json = EXCLUDED.extracted_json, updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		p.CompanyID, p.ProfileType, p.SourceType, p.RawText, []byte(jsonText(p.ExtractedJSON)), now,
	).Scan(&p.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert %s profile for company %d", p.ProfileType, p.CompanyID)
	}
	p.UpdatedAt = now
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, companyID int64, profileType, sourceType string) (*model.CompanyProfile, error) {
	var p model.CompanyProfile
	var extracted []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, company_id, profile_type, source_type, raw_text, extracted_json, created_at, updated_at
		 FROM company_profiles WHERE company_id = $1 AND profile_type = $2 AND source_type = $3`,
		companyID, profileType, sourceType,
	).Scan(&p.ID, &p.CompanyID, &p.ProfileType, &p.SourceType, &p.RawText, &extracted, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("profile", companyID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile for company %d", companyID)
	}
	p.ExtractedJSON = extracted
	return &p, nil
}

// --- Goals and KPIs ---

const insertKPISQL = `INSERT INTO kpis (company_id, goal_id, name, unit, current_value, target_value, is_top_kpi)
	VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

// CreateGoal inserts g and its KPIs in one transaction.
func (s *PostgresStore) CreateGoal(ctx context.Context, g *model.Goal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin goal tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx,
		`INSERT INTO goals (company_id, title, description, priority, time_frame, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		g.CompanyID, g.Title, g.Description, string(g.Priority), g.TimeFrame, g.IsActive,
	).Scan(&g.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert goal for company %d", g.CompanyID)
	}

	for i := range g.KPIs {
		k := &g.KPIs[i]
		k.CompanyID = g.CompanyID
		k.GoalID = &g.ID
		err := tx.QueryRow(ctx, insertKPISQL,
			k.CompanyID, k.GoalID, k.Name, k.Unit, k.CurrentValue, k.TargetValue, k.IsTopKPI,
		).Scan(&k.ID)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert kpi %q", k.Name)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit goal")
}

// CreateKPI inserts k. A nil GoalID makes it standalone.
func (s *PostgresStore) CreateKPI(ctx context.Context, k *model.KPI) error {
	err := s.pool.QueryRow(ctx, insertKPISQL,
		k.CompanyID, k.GoalID, k.Name, k.Unit, k.CurrentValue, k.TargetValue, k.IsTopKPI,
	).Scan(&k.ID)
	return eris.Wrapf(err, "postgres: insert kpi %q", k.Name)
}

func (s *PostgresStore) ListGoals(ctx context.Context, companyID int64) ([]model.Goal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, title, description, priority, time_frame, is_active FROM goals WHERE company_id = $1 ORDER BY id`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list goals for company %d", companyID)
	}
	defer rows.Close()

	var goals []model.Goal
	index := map[int64]int{}
	for rows.Next() {
		var g model.Goal
		var priority string
		if err := rows.Scan(&g.ID, &g.CompanyID, &g.Title, &g.Description, &priority, &g.TimeFrame, &g.IsActive); err != nil {
			return nil, eris.Wrap(err, "postgres: scan goal")
		}
		g.Priority = model.Priority(priority)
		index[g.ID] = len(goals)
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list goals iterate")
	}

	kpis, err := s.queryKPIs(ctx, `SELECT `+kpiColumns+` FROM kpis WHERE company_id = $1 AND goal_id IS NOT NULL ORDER BY id`, companyID)
	if err != nil {
		return nil, err
	}
	for _, k := range kpis {
		if i, ok := index[*k.GoalID]; ok {
			goals[i].KPIs = append(goals[i].KPIs, k)
		}
	}
	return goals, nil
}

func (s *PostgresStore) TopKPI(ctx context.Context, companyID int64) (*model.KPI, error) {
	kpis, err := s.queryKPIs(ctx, `SELECT `+kpiColumns+` FROM kpis WHERE company_id = $1 AND is_top_kpi ORDER BY id LIMIT 1`, companyID)
	if err != nil || len(kpis) == 0 {
		return nil, err
	}
	return &kpis[0], nil
}

func (s *PostgresStore) StandaloneKPIs(ctx context.Context, companyID int64) ([]model.KPI, error) {
	return s.queryKPIs(ctx, `SELECT `+kpiColumns+` FROM kpis WHERE company_id = $1 AND goal_id IS NULL ORDER BY id`, companyID)
}

func (s *PostgresStore) queryKPIs(ctx context.Context, query string, args ...any) ([]model.KPI, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query kpis")
	}
	defer rows.Close()

	var kpis []model.KPI
	for rows.Next() {
		var k model.KPI
		if err := rows.Scan(&k.ID, &k.CompanyID, &k.GoalID, &k.Name, &k.Unit, &k.CurrentValue, &k.TargetValue, &k.IsTopKPI); err != nil {
			return nil, eris.Wrap(err, "postgres: scan kpi")
		}
		kpis = append(kpis, k)
	}
	return kpis, eris.Wrap(rows.Err(), "postgres: query kpis iterate")
}

// --- Runs and todos ---

func (s *PostgresStore) CreateRun(ctx context.Context, companyID int64) (*model.Run, error) {
	now := time.Now().UTC()
	r := &model.Run{CompanyID: companyID, CreatedAt: now}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO runs (company_id, created_at) VALUES ($1, $2) RETURNING id`, companyID, now,
	).Scan(&r.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert run for company %d", companyID)
	}
	return r, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	var r model.Run
	err := s.pool.QueryRow(ctx, `SELECT id, company_id, created_at FROM runs WHERE id = $1`, id).
		Scan(&r.ID, &r.CompanyID, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("run", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %d", id)
	}
	return &r, nil
}

// AddTodos copies todos into run runID with the COPY protocol.
func (s *PostgresStore) AddTodos(ctx context.Context, runID int64, todos []model.Todo) (int64, error) {
	rows := make([][]any, len(todos))
	for i, t := range todos {
		rows[i] = []any{runID, t.RawInput, t.NormalizedTitle}
	}
	n, err := db.CopyFrom(ctx, s.pool, "todos", []string{"run_id", "raw_input", "normalized_title"}, rows)
	return n, eris.Wrapf(err, "postgres: add todos to run %d", runID)
}

func (s *PostgresStore) ListTodos(ctx context.Context, runID int64) ([]model.Todo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, raw_input, normalized_title FROM todos WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list todos for run %d", runID)
	}
	defer rows.Close()

	var todos []model.Todo
	for rows.Next() {
		var t model.Todo
		if err := rows.Scan(&t.ID, &t.RunID, &t.RawInput, &t.NormalizedTitle); err != nil {
			return nil, eris.Wrap(err, "postgres: scan todo")
		}
		todos = append(todos, t)
	}
	return todos, eris.Wrap(rows.Err(), "postgres: list todos iterate")
}

// --- Templates ---

func (s *PostgresStore) ActiveTemplate(ctx context.Context, promptType string) (*model.PromptTemplate, error) {
	var t model.PromptTemplate
	err := s.pool.QueryRow(ctx,
		`SELECT id, type, version, is_active, temperature, max_tokens, system_message, user_prompt_template
		 FROM prompt_templates WHERE type = $1 AND is_active ORDER BY id DESC LIMIT 1`,
		promptType,
	).Scan(&t.ID, &t.Type, &t.Version, &t.IsActive, &t.Temperature, &t.MaxTokens, &t.SystemMessage, &t.UserPromptTemplate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: active %s template", promptType)
	}
	return &t, nil
}

// UpsertTemplate inserts or updates the template keyed by (type, version).
func (s *PostgresStore) UpsertTemplate(ctx context.Context, t *model.PromptTemplate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin template tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if t.IsActive {
		if _, err := tx.Exec(ctx,
			`UPDATE prompt_templates SET is_active = false WHERE type = $1 AND version <> $2`, t.Type, t.Version,
		); err != nil {
			return eris.Wrapf(err, "postgres: deactivate %s templates", t.Type)
		}
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO prompt_templates (type, version, is_active, temperature, max_tokens, system_message, user_prompt_template)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (type, version) DO UPDATE SET
		   is_active = EXCLUDED.is_active,
		   temperature = EXCLUDED.temperature,
		   max_tokens = EXCLUDED.max_tokens,
		   system_message = EXCLUDED.system_message,
		   user_prompt_template = EXCLUDED.user_prompt_template
		 RETURNING id`,
		t.Type, t.Version, t.IsActive, t.Temperature, t.MaxTokens, t.SystemMessage, t.UserPromptTemplate,
	).Scan(&t.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert %s template %s", t.Type, t.Version)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit template")
}

// --- Audit log ---

func (s *PostgresStore) AppendAILog(ctx context.Context, l *model.AILog) error {
	input, response, err := marshalAILog(l)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO ai_logs (id, run_id, prompt_type, system_prompt_id, input_context, response, tokens_used, duration_ms, success, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, l.RunID, l.PromptType, l.SystemPromptID, input, response,
		l.TokensUsed, l.DurationMS, l.Success, l.ErrorMessage, l.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: append %s ai log", l.PromptType)
}
