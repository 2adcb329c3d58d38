package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/sells-group/axia-cli/internal/model"
)

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens dsn and applies the WAL pragmas. Use ":memory:" in tests.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps ":memory:" databases shared across calls and
	// serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	website          TEXT NOT NULL DEFAULT '',
	business_model   TEXT NOT NULL DEFAULT '',
	user_position    TEXT NOT NULL DEFAULT '',
	customer_profile TEXT NOT NULL DEFAULT '',
	market_insights  TEXT NOT NULL DEFAULT '',
	team_cofounders  INTEGER NOT NULL DEFAULT 0,
	team_employees   INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS company_profiles (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id     INTEGER NOT NULL REFERENCES companies(id),
	profile_type   TEXT NOT NULL,
	source_type    TEXT NOT NULL,
	raw_text       TEXT NOT NULL DEFAULT '',
	extracted_json TEXT NOT NULL DEFAULT '{}',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (company_id, profile_type, source_type)
);

CREATE TABLE IF NOT EXISTS goals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id  INTEGER NOT NULL REFERENCES companies(id),
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	priority    TEXT NOT NULL DEFAULT '',
	time_frame  TEXT NOT NULL DEFAULT '',
	is_active   BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS kpis (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id    INTEGER NOT NULL REFERENCES companies(id),
	goal_id       INTEGER REFERENCES goals(id),
	name          TEXT NOT NULL,
	unit          TEXT NOT NULL DEFAULT '',
	current_value REAL NOT NULL DEFAULT 0,
	target_value  REAL NOT NULL DEFAULT 0,
	is_top_kpi    BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id INTEGER NOT NULL REFERENCES companies(id),
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS todos (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id           INTEGER NOT NULL REFERENCES runs(id),
	raw_input        TEXT NOT NULL,
	normalized_title TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS prompt_templates (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	type                 TEXT NOT NULL,
	version              TEXT NOT NULL,
	is_active            BOOLEAN NOT NULL DEFAULT 0,
	temperature          REAL NOT NULL DEFAULT 0.7,
	max_tokens           INTEGER NOT NULL DEFAULT 0,
	system_message       TEXT NOT NULL,
	user_prompt_template TEXT NOT NULL,
	UNIQUE (type, version)
);

CREATE TABLE IF NOT EXISTS ai_logs (
	id               TEXT PRIMARY KEY,
	run_id           INTEGER,
	prompt_type      TEXT NOT NULL,
	system_prompt_id INTEGER,
	input_context    TEXT NOT NULL,
	response         TEXT NOT NULL,
	tokens_used      INTEGER NOT NULL DEFAULT 0,
	duration_ms      INTEGER NOT NULL DEFAULT 0,
	success          BOOLEAN NOT NULL,
	error_message    TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_goals_company ON goals(company_id);
CREATE INDEX IF NOT EXISTS idx_kpis_company ON kpis(company_id);
CREATE INDEX IF NOT EXISTS idx_todos_run ON todos(run_id);
CREATE INDEX IF NOT EXISTS idx_prompt_templates_active ON prompt_templates(type, is_active);
CREATE INDEX IF NOT EXISTS idx_ai_logs_run ON ai_logs(run_id);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Companies ---

const companyColumns = `id, name, website, business_model, user_position, customer_profile, market_insights, team_cofounders, team_employees, created_at, updated_at`

func (s *SQLiteStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = ?`, id)
	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("company", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %d", id)
	}
	return c, nil
}

func (s *SQLiteStore) CreateCompany(ctx context.Context, c *model.Company) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (name, website, business_model, user_position, customer_profile, market_insights, team_cofounders, team_employees, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Website, c.BusinessModel, c.UserPosition, c.CustomerProfile, c.MarketInsights,
		c.TeamCofounders, c.TeamEmployees, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert company")
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return eris.Wrap(err, "sqlite: company id")
	}
	c.CreatedAt, c.UpdatedAt = now, now
	return nil
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, limit int) ([]model.Company, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

func (s *SQLiteStore) UpdateCompanyWebsite(ctx context.Context, companyID int64, website string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET website = ?, updated_at = ? WHERE id = ?`,
		website, time.Now().UTC(), companyID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update website for company %d", companyID)
	}
	return checkRowsAffected(res, "company", companyID)
}

// --- Profiles ---

func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *model.CompanyProfile) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO company_profiles (company_id, profile_type, source_type, raw_text, extracted_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (company_id, profile_type, source_type)
		 DO UPDATE SET raw_text = excluded.raw_text, extracted_json = excluded.extracted_json, updated_at = excluded.updated_at
		 RETURNING id`,
		p.CompanyID, p.ProfileType, p.SourceType, p.RawText, jsonText(p.ExtractedJSON), now, now,
	).Scan(&p.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert %s profile for company %d", p.ProfileType, p.CompanyID)
	}
	p.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, companyID int64, profileType, sourceType string) (*model.CompanyProfile, error) {
	var p model.CompanyProfile
	var extracted []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, company_id, profile_type, source_type, raw_text, extracted_json, created_at, updated_at
		 FROM company_profiles WHERE company_id = ? AND profile_type = ? AND source_type = ?`,
		companyID, profileType, sourceType,
	).Scan(&p.ID, &p.CompanyID, &p.ProfileType, &p.SourceType, &p.RawText, &extracted, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("profile", companyID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile for company %d", companyID)
	}
	p.ExtractedJSON = extracted
	return &p, nil
}

// --- Goals and KPIs ---

// CreateGoal inserts g and its KPIs in one transaction.
func (s *SQLiteStore) CreateGoal(ctx context.Context, g *model.Goal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin goal tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO goals (company_id, title, description, priority, time_frame, is_active) VALUES (?, ?, ?, ?, ?, ?)`,
		g.CompanyID, g.Title, g.Description, string(g.Priority), g.TimeFrame, g.IsActive,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert goal for company %d", g.CompanyID)
	}
	if g.ID, err = res.LastInsertId(); err != nil {
		return eris.Wrap(err, "sqlite: goal id")
	}

	for i := range g.KPIs {
		k := &g.KPIs[i]
		k.CompanyID = g.CompanyID
		k.GoalID = &g.ID
		if err := insertKPI(ctx, tx, k); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit goal")
}

// CreateKPI inserts k. A nil GoalID makes it standalone.
func (s *SQLiteStore) CreateKPI(ctx context.Context, k *model.KPI) error {
	return insertKPI(ctx, s.db, k)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertKPI(ctx context.Context, db execer, k *model.KPI) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO kpis (company_id, goal_id, name, unit, current_value, target_value, is_top_kpi) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		k.CompanyID, k.GoalID, k.Name, k.Unit, k.CurrentValue, k.TargetValue, k.IsTopKPI,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert kpi %q", k.Name)
	}
	k.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: kpi id")
}

const kpiColumns = `id, company_id, goal_id, name, unit, current_value, target_value, is_top_kpi`

func (s *SQLiteStore) ListGoals(ctx context.Context, companyID int64) ([]model.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, title, description, priority, time_frame, is_active FROM goals WHERE company_id = ? ORDER BY id`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list goals for company %d", companyID)
	}
	defer rows.Close()

	var goals []model.Goal
	index := map[int64]int{}
	for rows.Next() {
		var g model.Goal
		if err := rows.Scan(&g.ID, &g.CompanyID, &g.Title, &g.Description, &g.Priority, &g.TimeFrame, &g.IsActive); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan goal")
		}
		index[g.ID] = len(goals)
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list goals iterate")
	}

	kpis, err := s.queryKPIs(ctx, `SELECT `+kpiColumns+` FROM kpis WHERE company_id = ? AND goal_id IS NOT NULL ORDER BY id`, companyID)
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

func (s *SQLiteStore) TopKPI(ctx context.Context, companyID int64) (*model.KPI, error) {
	kpis, err := s.queryKPIs(ctx, `SELECT `+kpiColumns+` FROM kpis WHERE company_id = ? AND is_top_kpi = 1 ORDER BY id LIMIT 1`, companyID)
	if err != nil || len(kpis) == 0 {
		return nil, err
	}
	return &kpis[0], nil
}

func (s *SQLiteStore) StandaloneKPIs(ctx context.Context, companyID int64) ([]model.KPI, error) {
	return s.queryKPIs(ctx, `SELECT `+kpiColumns+` FROM kpis WHERE company_id = ? AND goal_id IS NULL ORDER BY id`, companyID)
}

func (s *SQLiteStore) queryKPIs(ctx context.Context, query string, args ...any) ([]model.KPI, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query kpis")
	}
	defer rows.Close()

	var kpis []model.KPI
	for rows.Next() {
		var k model.KPI
		if err := rows.Scan(&k.ID, &k.CompanyID, &k.GoalID, &k.Name, &k.Unit, &k.CurrentValue, &k.TargetValue, &k.IsTopKPI); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan kpi")
		}
		kpis = append(kpis, k)
	}
	return kpis, eris.Wrap(rows.Err(), "sqlite: query kpis iterate")
}

// --- Runs and todos ---

func (s *SQLiteStore) CreateRun(ctx context.Context, companyID int64) (*model.Run, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO runs (company_id, created_at) VALUES (?, ?)`, companyID, now)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert run for company %d", companyID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: run id")
	}
	return &model.Run{ID: id, CompanyID: companyID, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	var r model.Run
	err := s.db.QueryRowContext(ctx, `SELECT id, company_id, created_at FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.CompanyID, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("run", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %d", id)
	}
	return &r, nil
}

// AddTodos inserts todos into run runID and returns how many were written.
func (s *SQLiteStore) AddTodos(ctx context.Context, runID int64, todos []model.Todo) (int64, error) {
	if len(todos) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin todos tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO todos (run_id, raw_input, normalized_title) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare todo insert")
	}
	defer stmt.Close()

	for _, t := range todos {
		if _, err := stmt.ExecContext(ctx, runID, t.RawInput, t.NormalizedTitle); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert todo for run %d", runID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit todos")
	}
	return int64(len(todos)), nil
}

func (s *SQLiteStore) ListTodos(ctx context.Context, runID int64) ([]model.Todo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, raw_input, normalized_title FROM todos WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list todos for run %d", runID)
	}
	defer rows.Close()

	var todos []model.Todo
	for rows.Next() {
		var t model.Todo
		if err := rows.Scan(&t.ID, &t.RunID, &t.RawInput, &t.NormalizedTitle); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan todo")
		}
		todos = append(todos, t)
	}
	return todos, eris.Wrap(rows.Err(), "sqlite: list todos iterate")
}

// --- Templates ---

func (s *SQLiteStore) ActiveTemplate(ctx context.Context, promptType string) (*model.PromptTemplate, error) {
	var t model.PromptTemplate
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, version, is_active, temperature, max_tokens, system_message, user_prompt_template
		 FROM prompt_templates WHERE type = ? AND is_active = 1 ORDER BY id DESC LIMIT 1`,
		promptType,
	).Scan(&t.ID, &t.Type, &t.Version, &t.IsActive, &t.Temperature, &t.MaxTokens, &t.SystemMessage, &t.UserPromptTemplate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: active %s template", promptType)
	}
	return &t, nil
}

// UpsertTemplate inserts or updates the template keyed by (type, version).
func (s *SQLiteStore) UpsertTemplate(ctx context.Context, t *model.PromptTemplate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin template tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if t.IsActive {
		if _, err := tx.ExecContext(ctx,
			`UPDATE prompt_templates SET is_active = 0 WHERE type = ? AND version <> ?`, t.Type, t.Version,
		); err != nil {
			return eris.Wrapf(err, "sqlite: deactivate %s templates", t.Type)
		}
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO prompt_templates (type, version, is_active, temperature, max_tokens, system_message, user_prompt_template)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (type, version) DO UPDATE SET
		   is_active = excluded.is_active,
		   temperature = excluded.temperature,
		   max_tokens = excluded.max_tokens,
		   system_message = excluded.system_message,
		   user_prompt_template = excluded.user_prompt_template
		 RETURNING id`,
		t.Type, t.Version, t.IsActive, t.Temperature, t.MaxTokens, t.SystemMessage, t.UserPromptTemplate,
	).Scan(&t.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert %s template %s", t.Type, t.Version)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit template")
}

// --- Audit log ---

func (s *SQLiteStore) AppendAILog(ctx context.Context, l *model.AILog) error {
	input, response, err := marshalAILog(l)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ai_logs (id, run_id, prompt_type, system_prompt_id, input_context, response, tokens_used, duration_ms, success, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.RunID, l.PromptType, l.SystemPromptID, string(input), string(response),
		l.TokensUsed, l.DurationMS, l.Success, l.ErrorMessage, l.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: append %s ai log", l.PromptType)
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCompany(row scannable) (*model.Company, error) {
	var c model.Company
	err := row.Scan(&c.ID, &c.Name, &c.Website, &c.BusinessModel, &c.UserPosition, &c.CustomerProfile,
		&c.MarketInsights, &c.TeamCofounders, &c.TeamEmployees, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// jsonText returns raw as a string, or "{}" when it is empty.
func jsonText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func marshalAILog(l *model.AILog) (input, response []byte, err error) {
	if input, err = json.Marshal(emptyIfNil(l.InputContext)); err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal ai log input")
	}
	if response, err = json.Marshal(emptyIfNil(l.Response)); err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal ai log response")
	}
	return input, response, nil
}

func emptyIfNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
