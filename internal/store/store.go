// Package store provides transactional persistence for projects, runs,
// plans, tasks, events, approvals, memories, reminders, and the bootstrap
// session token, backed by an embedded SQLite database in WAL mode.
//
// All writes serialize through a single mutex (db/sql.go mirrors tarsy's
// single-writer-lock database client) so that per-run event sequence
// numbers and per-step task attempts are allocated without collision.
// Reads do not take the write lock and observe a consistent snapshot for
// the duration of a single call.
package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/localfirst/assistant/internal/config"
	"github.com/localfirst/assistant/internal/models"
)

//go:embed migrations
var migrationsFS embed.FS

var (
	ErrNotFound        = errors.New("not found")
	ErrTokenMismatch   = errors.New("bootstrap token mismatch")
	ErrApprovalDecided = errors.New("approval already decided")
)

// Store is the single-writer-serialized persistence layer.
type Store struct {
	db *sql.DB
	wg sync.Mutex // single writer lock — never held across a suspension point
}

// Open creates (if needed) the data directory, opens the SQLite database in
// WAL mode, and runs pending migrations. Each migration file is tracked by
// filename in golang-migrate's own ledger table, matching tarsy's
// database.NewClient pattern (embedded FS + iofs source + idempotent
// migrations run once at init).
func Open(cfg config.StoreConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(cfg.DataDir, "assistant.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer model; modernc sqlite serializes anyway

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("store opened", "path", dbPath)
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func newID() string { return uuid.NewString() }

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSONMap(s string) models.JSONMap {
	if s == "" {
		return models.JSONMap{}
	}
	var m models.JSONMap
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return models.JSONMap{}
	}
	return m
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var v []string
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

func unmarshalInts(s string) []int {
	if s == "" {
		return nil
	}
	var v []int
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

// ───────────────────────── Projects ─────────────────────────

// CreateProject inserts a new project.
func (s *Store) CreateProject(ctx context.Context, name string, settings models.JSONMap) (*models.Project, error) {
	s.wg.Lock()
	defer s.wg.Unlock()

	settingsJSON, err := marshalJSON(settings)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p := &models.Project{ID: newID(), Name: name, Settings: settings, CreatedAt: now, UpdatedAt: now}
	_, err = s.db.ExecContext(ctx, `INSERT INTO projects (id, name, settings, created_at, updated_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, settingsJSON, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject reads a single project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, settings, created_at, updated_at FROM projects WHERE id = ?`, id)
	var p models.Project
	var settingsJSON string
	if err := row.Scan(&p.ID, &p.Name, &settingsJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Settings = unmarshalJSONMap(settingsJSON)
	return &p, nil
}

// ListProjects returns all projects ordered by creation time.
func (s *Store) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, settings, created_at, updated_at FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		var p models.Project
		var settingsJSON string
		if err := rows.Scan(&p.ID, &p.Name, &settingsJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Settings = unmarshalJSONMap(settingsJSON)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// UpdateProject replaces a project's name/settings and bumps updated_at.
func (s *Store) UpdateProject(ctx context.Context, id string, name string, settings models.JSONMap) (*models.Project, error) {
	s.wg.Lock()
	defer s.wg.Unlock()

	settingsJSON, err := marshalJSON(settings)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET name = ?, settings = ?, updated_at = ? WHERE id = ?`,
		name, settingsJSON, now, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetProject(ctx, id)
}

// ───────────────────────── Runs ─────────────────────────

// CreateRun inserts a new run in RunCreated status.
func (s *Store) CreateRun(ctx context.Context, projectID, queryText string, mode models.RunMode, parentRunID *string, purpose string) (*models.Run, error) {
	s.wg.Lock()
	defer s.wg.Unlock()

	now := time.Now().UTC()
	r := &models.Run{
		ID: newID(), ProjectID: projectID, QueryText: queryText, Mode: mode,
		Status: models.RunCreated, ParentRunID: parentRunID, Purpose: purpose,
		Meta: models.JSONMap{}, CreatedAt: now, UpdatedAt: now,
	}
	metaJSON, err := marshalJSON(r.Meta)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO runs (id, project_id, query_text, mode, status, parent_run_id, purpose, meta, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.ProjectID, r.QueryText, r.Mode, r.Status, r.ParentRunID, r.Purpose, metaJSON, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func scanRun(row interface{ Scan(...any) error }) (*models.Run, error) {
	var r models.Run
	var parentRunID sql.NullString
	var metaJSON string
	if err := row.Scan(&r.ID, &r.ProjectID, &r.QueryText, &r.Mode, &r.Status, &parentRunID, &r.Purpose, &metaJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if parentRunID.Valid {
		r.ParentRunID = &parentRunID.String
	}
	r.Meta = unmarshalJSONMap(metaJSON)
	return &r, nil
}

// GetRun reads a single run.
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, project_id, query_text, mode, status, parent_run_id, purpose, meta, created_at, updated_at FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListRuns returns runs for a project, most recent first.
func (s *Store) ListRuns(ctx context.Context, projectID string) ([]*models.Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, project_id, query_text, mode, status, parent_run_id, purpose, meta, created_at, updated_at
		FROM runs WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRunMeta merges meta keys into the run's meta map and persists it.
// A missing run is an error (spec.md §4.G step 6: "missing update -> 500").
func (s *Store) UpdateRunMeta(ctx context.Context, id string, patch models.JSONMap) (*models.Run, error) {
	s.wg.Lock()
	defer s.wg.Unlock()

	run, err := s.getRunLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Meta == nil {
		run.Meta = models.JSONMap{}
	}
	for k, v := range patch {
		run.Meta[k] = v
	}
	metaJSON, err := marshalJSON(run.Meta)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `UPDATE runs SET meta = ?, updated_at = ? WHERE id = ?`, metaJSON, now, id)
	if err != nil {
		return nil, err
	}
	run.UpdatedAt = now
	return run, nil
}

// UpdateRunStatus sets a new status, enforcing that canceled is absorbing.
func (s *Store) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus) (*models.Run, error) {
	s.wg.Lock()
	defer s.wg.Unlock()

	run, err := s.getRunLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status == models.RunCanceled {
		return run, nil // absorbing — silently stays canceled
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`, status, now, id)
	if err != nil {
		return nil, err
	}
	run.Status = status
	run.UpdatedAt = now
	return run, nil
}

// UpdateRunModePurpose sets the selected mode/purpose during create-run composition.
func (s *Store) UpdateRunModePurpose(ctx context.Context, id string, mode models.RunMode, purpose string) (*models.Run, error) {
	s.wg.Lock()
	defer s.wg.Unlock()

	run, err := s.getRunLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `UPDATE runs SET mode = ?, purpose = ?, updated_at = ? WHERE id = ?`, mode, purpose, now, id)
	if err != nil {
		return nil, err
	}
	run.Mode, run.Purpose, run.UpdatedAt = mode, purpose, now
	return run, nil
}

func (s *Store) getRunLocked(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, project_id, query_text, mode, status, parent_run_id, purpose, meta, created_at, updated_at FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ───────────────────────── Plan steps ─────────────────────────

// ReplacePlanSteps atomically replaces the full set of plan steps for a run
// (spec.md §3: "steps are replaced atomically per run — no partial rewrite").
func (s *Store) ReplacePlanSteps(ctx context.Context, runID string, steps []*models.PlanStep) error {
	s.wg.Lock()
	defer s.wg.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM plan_steps WHERE run_id = ?`, runID); err != nil {
		return err
	}
	for i, st := range steps {
		st.RunID = runID
		st.StepIndex = i
		if st.ID == "" {
			st.ID = newID()
		}
		if st.Status == "" {
			st.Status = models.StepCreated
		}
		inputsJSON, err := marshalJSON(st.Inputs)
		if err != nil {
			return err
		}
		dependsJSON, err := json.Marshal(st.DependsOn)
		if err != nil {
			return err
		}
		successJSON, err := json.Marshal(st.SuccessChecks)
		if err != nil {
			return err
		}
		dangerJSON, err := json.Marshal(st.DangerFlags)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO plan_steps (id, run_id, step_index, title, skill_name, inputs, depends_on, status, kind, success_checks, danger_flags, requires_approval)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			st.ID, st.RunID, st.StepIndex, st.Title, st.SkillName, inputsJSON, string(dependsJSON), st.Status, st.Kind, string(successJSON), string(dangerJSON), st.RequiresApproval)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListPlanSteps returns the plan for a run ordered by step_index.
func (s *Store) ListPlanSteps(ctx context.Context, runID string) ([]*models.PlanStep, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, step_index, title, skill_name, inputs, depends_on, status, kind, success_checks, danger_flags, requires_approval
		FROM plan_steps WHERE run_id = ? ORDER BY step_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PlanStep
	for rows.Next() {
		var st models.PlanStep
		var inputsJSON, dependsJSON, successJSON, dangerJSON string
		if err := rows.Scan(&st.ID, &st.RunID, &st.StepIndex, &st.Title, &st.SkillName, &inputsJSON, &dependsJSON, &st.Status, &st.Kind, &successJSON, &dangerJSON, &st.RequiresApproval); err != nil {
			return nil, err
		}
		st.Inputs = unmarshalJSONMap(inputsJSON)
		st.DependsOn = unmarshalInts(dependsJSON)
		st.SuccessChecks = unmarshalStrings(successJSON)
		st.DangerFlags = unmarshalStrings(dangerJSON)
		out = append(out, &st)
	}
	return out, rows.Err()
}

// GetPlanStep reads one step by id.
func (s *Store) GetPlanStep(ctx context.Context, id string) (*models.PlanStep, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, run_id, step_index, title, skill_name, inputs, depends_on, status, kind, success_checks, danger_flags, requires_approval
		FROM plan_steps WHERE id = ?`, id)
	var st models.PlanStep
	var inputsJSON, dependsJSON, successJSON, dangerJSON string
	err := row.Scan(&st.ID, &st.RunID, &st.StepIndex, &st.Title, &st.SkillName, &inputsJSON, &dependsJSON, &st.Status, &st.Kind, &successJSON, &dangerJSON, &st.RequiresApproval)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	st.Inputs = unmarshalJSONMap(inputsJSON)
	st.DependsOn = unmarshalInts(dependsJSON)
	st.SuccessChecks = unmarshalStrings(successJSON)
	st.DangerFlags = unmarshalStrings(dangerJSON)
	return &st, nil
}

// UpdateStepStatus sets a plan step's status.
func (s *Store) UpdateStepStatus(ctx context.Context, id string, status models.StepStatus) error {
	s.wg.Lock()
	defer s.wg.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE plan_steps SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ───────────────────────── Tasks ─────────────────────────

// NextTaskAttemptAndCreate allocates next_task_attempt(run, step) = max(attempt)+1
// and inserts the Task row in the same critical section, avoiding collisions
// (spec.md §3 Task invariant, §4.A).
func (s *Store) NextTaskAttemptAndCreate(ctx context.Context, runID, planStepID string) (*models.Task, error) {
	s.wg.Lock()
	defer s.wg.Unlock()

	var maxAttempt sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT MAX(attempt) FROM tasks WHERE plan_step_id = ?`, planStepID)
	if err := row.Scan(&maxAttempt); err != nil {
		return nil, err
	}
	attempt := 1
	if maxAttempt.Valid {
		attempt = int(maxAttempt.Int64) + 1
	}
	t := &models.Task{ID: newID(), RunID: runID, PlanStepID: planStepID, Attempt: attempt, Status: models.TaskQueued}
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks (id, run_id, plan_step_id, attempt, status, error) VALUES (?,?,?,?,?,?)`,
		t.ID, t.RunID, t.PlanStepID, t.Attempt, t.Status, "")
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTaskStatus transitions a task, stamping started_at/finished_at as appropriate.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus, taskErr string) error {
	s.wg.Lock()
	defer s.wg.Unlock()

	now := time.Now().UTC()
	switch status {
	case models.TaskRunning:
		_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, started_at = ? WHERE id = ?`, status, now, id)
		return err
	case models.TaskDone, models.TaskFailed:
		_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, error = ?, finished_at = ? WHERE id = ?`, status, taskErr, now, id)
		return err
	default:
		_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, error = ? WHERE id = ?`, status, taskErr, id)
		return err
	}
}

// GetTask reads one task.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, run_id, plan_step_id, attempt, status, error, started_at, finished_at FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	var t models.Task
	var started, finished sql.NullTime
	if err := row.Scan(&t.ID, &t.RunID, &t.PlanStepID, &t.Attempt, &t.Status, &t.Error, &started, &finished); err != nil {
		return nil, err
	}
	if started.Valid {
		t.StartedAt = &started.Time
	}
	if finished.Valid {
		t.FinishedAt = &finished.Time
	}
	return &t, nil
}

// ListTasksForRun returns every task attempt across all steps of a run.
func (s *Store) ListTasksForRun(ctx context.Context, runID string) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, plan_step_id, attempt, status, error, started_at, finished_at FROM tasks WHERE run_id = ? ORDER BY plan_step_id, attempt`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTasksForStep returns every attempt of a single step, in attempt order.
func (s *Store) ListTasksForStep(ctx context.Context, planStepID string) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, plan_step_id, attempt, status, error, started_at, finished_at FROM tasks WHERE plan_step_id = ? ORDER BY attempt`, planStepID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ───────────────────────── Approvals ─────────────────────────

// CreateApproval inserts a pending approval.
func (s *Store) CreateApproval(ctx context.Context, a *models.Approval) (*models.Approval, error) {
	s.wg.Lock()
	defer s.wg.Unlock()

	a.ID = newID()
	a.Status = models.ApprovalPending
	a.CreatedAt = time.Now().UTC()
	previewJSON, err := marshalJSON(a.Preview)
	if err != nil {
		return nil, err
	}
	proposedJSON, err := marshalJSON(a.ProposedActions)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO approvals (id, run_id, task_id, step_id, scope, approval_type, preview, proposed_actions, status, decision, decided_by, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.RunID, a.TaskID, a.StepID, a.Scope, a.ApprovalType, previewJSON, proposedJSON, a.Status, "{}", "", a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanApproval(row interface{ Scan(...any) error }) (*models.Approval, error) {
	var a models.Approval
	var stepID sql.NullString
	var previewJSON, proposedJSON, decisionJSON string
	var resolvedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.RunID, &a.TaskID, &stepID, &a.Scope, &a.ApprovalType, &previewJSON, &proposedJSON, &a.Status, &decisionJSON, &a.DecidedBy, &a.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	if stepID.Valid {
		a.StepID = &stepID.String
	}
	_ = json.Unmarshal([]byte(previewJSON), &a.Preview)
	a.ProposedActions = unmarshalJSONMap(proposedJSON)
	a.Decision = unmarshalJSONMap(decisionJSON)
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	return &a, nil
}

const approvalCols = `id, run_id, task_id, step_id, scope, approval_type, preview, proposed_actions, status, decision, decided_by, created_at, resolved_at`

// GetApproval reads one approval.
func (s *Store) GetApproval(ctx context.Context, id string) (*models.Approval, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+approvalCols+` FROM approvals WHERE id = ?`, id)
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListApprovalsForRun returns every approval tied to a run.
func (s *Store) ListApprovalsForRun(ctx context.Context, runID string) ([]*models.Approval, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+approvalCols+` FROM approvals WHERE run_id = ? ORDER BY created_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ResolveApproval transitions a pending approval to a terminal status.
// Terminal statuses are final: resolving an already-terminal approval fails.
func (s *Store) ResolveApproval(ctx context.Context, id string, status models.ApprovalStatus, decision models.JSONMap, decidedBy string) (*models.Approval, error) {
	s.wg.Lock()
	defer s.wg.Unlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+approvalCols+` FROM approvals WHERE id = ?`, id)
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.Status != models.ApprovalPending {
		return a, ErrApprovalDecided
	}
	decisionJSON, err := marshalJSON(decision)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `UPDATE approvals SET status = ?, decision = ?, decided_by = ?, resolved_at = ? WHERE id = ?`,
		status, decisionJSON, decidedBy, now, id)
	if err != nil {
		return nil, err
	}
	a.Status, a.Decision, a.DecidedBy, a.ResolvedAt = status, decision, decidedBy, &now
	return a, nil
}

// ───────────────────────── Events ─────────────────────────

// AddEvent assigns seq at write time (strictly increasing per run, allocated
// under the same write lock as the counter bump) and returns the enriched
// event.
func (s *Store) AddEvent(ctx context.Context, e *models.Event) (*models.Event, error) {
	s.wg.Lock()
	defer s.wg.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var lastSeq int64
	row := tx.QueryRowContext(ctx, `SELECT last_seq FROM run_seq_counters WHERE run_id = ?`, e.RunID)
	err = row.Scan(&lastSeq)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_seq_counters (run_id, last_seq) VALUES (?, 0)`, e.RunID); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	newSeq := lastSeq + 1
	if _, err := tx.ExecContext(ctx, `UPDATE run_seq_counters SET last_seq = ? WHERE run_id = ?`, newSeq, e.RunID); err != nil {
		return nil, err
	}

	e.Seq = newSeq
	e.ID = newID()
	e.Ts = time.Now().UTC()
	payloadJSON, err := marshalJSON(e.Payload)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events (seq, id, run_id, ts, type, level, message, payload, task_id, step_id)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.Seq, e.ID, e.RunID, e.Ts, e.Type, e.Level, e.Message, payloadJSON, e.TaskID, e.StepID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return e, nil
}

func scanEvent(row interface{ Scan(...any) error }) (*models.Event, error) {
	var e models.Event
	var taskID, stepID sql.NullString
	var payloadJSON string
	if err := row.Scan(&e.Seq, &e.ID, &e.RunID, &e.Ts, &e.Type, &e.Level, &e.Message, &payloadJSON, &taskID, &stepID); err != nil {
		return nil, err
	}
	if taskID.Valid {
		e.TaskID = &taskID.String
	}
	if stepID.Valid {
		e.StepID = &stepID.String
	}
	e.Payload = unmarshalJSONMap(payloadJSON)
	return &e, nil
}

const eventCols = `seq, id, run_id, ts, type, level, message, payload, task_id, step_id`

// ListEvents returns a run's event log in seq order. A positive limit keeps
// the first (oldest) limit events; limit <= 0 returns them all.
func (s *Store) ListEvents(ctx context.Context, runID string, limit int) ([]*models.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events WHERE run_id = ? ORDER BY seq`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+` LIMIT ?`, runID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query, runID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListEventsSince returns exactly the events with seq > lastSeq, ascending.
func (s *Store) ListEventsSince(ctx context.Context, runID string, lastSeq int64) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventCols+` FROM events WHERE run_id = ? AND seq > ? ORDER BY seq`, runID, lastSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ───────────────────────── User memories ─────────────────────────

// CreateUserMemory inserts a new memory item.
func (s *Store) CreateUserMemory(ctx context.Context, m *models.UserMemory) (*models.UserMemory, error) {
	s.wg.Lock()
	defer s.wg.Unlock()

	m.ID = newID()
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return nil, err
	}
	metaJSON, err := marshalJSON(m.Meta)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO user_memories (id, title, content, tags, pinned, is_deleted, source, meta, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Title, m.Content, string(tagsJSON), m.Pinned, m.IsDeleted, m.Source, metaJSON, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// FindUserMemoryByTitle finds a non-deleted memory with an exact title
// match, used by memory_save's dedup-on-save behavior (SPEC_FULL.md D.5).
func (s *Store) FindUserMemoryByTitle(ctx context.Context, title string) (*models.UserMemory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryCols+` FROM user_memories WHERE title = ? AND is_deleted = 0 LIMIT 1`, title)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

const memoryCols = `id, title, content, tags, pinned, is_deleted, source, meta, created_at, updated_at`

func scanMemory(row interface{ Scan(...any) error }) (*models.UserMemory, error) {
	var m models.UserMemory
	var tagsJSON, metaJSON string
	if err := row.Scan(&m.ID, &m.Title, &m.Content, &tagsJSON, &m.Pinned, &m.IsDeleted, &m.Source, &metaJSON, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Tags = unmarshalStrings(tagsJSON)
	m.Meta = unmarshalJSONMap(metaJSON)
	return &m, nil
}

// UpdateUserMemory overwrites content/meta of an existing memory (used by
// the dedup-on-save path instead of inserting a duplicate).
func (s *Store) UpdateUserMemory(ctx context.Context, id, content string, meta models.JSONMap) (*models.UserMemory, error) {
	s.wg.Lock()
	defer s.wg.Unlock()

	metaJSON, err := marshalJSON(meta)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `UPDATE user_memories SET content = ?, meta = ?, updated_at = ? WHERE id = ?`, content, metaJSON, now, id)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryCols+` FROM user_memories WHERE id = ?`, id)
	return scanMemory(row)
}

// ListUserMemories returns non-deleted memories, pinned first.
func (s *Store) ListUserMemories(ctx context.Context) ([]*models.UserMemory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memoryCols+` FROM user_memories WHERE is_deleted = 0 ORDER BY pinned DESC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.UserMemory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SearchUserMemories does a naive substring search over title/content —
// sufficient for a single local user's memory set.
func (s *Store) SearchUserMemories(ctx context.Context, q string) ([]*models.UserMemory, error) {
	like := "%" + q + "%"
	rows, err := s.db.QueryContext(ctx, `SELECT `+memoryCols+` FROM user_memories WHERE is_deleted = 0 AND (title LIKE ? OR content LIKE ?) ORDER BY pinned DESC, created_at DESC`, like, like)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.UserMemory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteUserMemory soft-deletes a memory item.
func (s *Store) DeleteUserMemory(ctx context.Context, id string) error {
	s.wg.Lock()
	defer s.wg.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE user_memories SET is_deleted = 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ───────────────────────── Session token (bootstrap) ─────────────────────────

// Bootstrap sets the single session token the first time it is called.
// Idempotent for the same token (returns nil); conflicts for a different
// token (ErrTokenMismatch).
func (s *Store) Bootstrap(ctx context.Context, token string) error {
	s.wg.Lock()
	defer s.wg.Unlock()

	var existingHash, existingSalt string
	row := s.db.QueryRowContext(ctx, `SELECT token_hash, salt FROM session_tokens WHERE row_id = 'default'`)
	err := row.Scan(&existingHash, &existingSalt)
	if errors.Is(err, sql.ErrNoRows) {
		salt := randomSalt()
		hash := hashToken(token, salt)
		_, err := s.db.ExecContext(ctx, `INSERT INTO session_tokens (row_id, token_hash, salt, created_at) VALUES ('default', ?, ?, ?)`,
			hash, salt, time.Now().UTC())
		return err
	}
	if err != nil {
		return err
	}
	if hashToken(token, existingSalt) != existingHash {
		return ErrTokenMismatch
	}
	return nil // same token re-bootstrapped: ok
}

// Initialized reports whether the session token has been bootstrapped.
func (s *Store) Initialized(ctx context.Context) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM session_tokens WHERE row_id = 'default'`)
	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// ValidateToken compares a presented token against the stored salted hash.
func (s *Store) ValidateToken(ctx context.Context, token string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT token_hash, salt FROM session_tokens WHERE row_id = 'default'`)
	var hash, salt string
	if err := row.Scan(&hash, &salt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return hashToken(token, salt) == hash, nil
}

func randomSalt() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func hashToken(token, salt string) string {
	sum := sha256.Sum256([]byte(salt + token))
	return hex.EncodeToString(sum[:])
}

// ───────────────────────── Reminders ─────────────────────────

// CreateReminder inserts a pending reminder.
func (s *Store) CreateReminder(ctx context.Context, r *models.Reminder) (*models.Reminder, error) {
	s.wg.Lock()
	defer s.wg.Unlock()

	r.ID = newID()
	r.Status = models.ReminderPending
	r.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO reminders (id, due_at, text, status, delivery, run_id, attempts, last_error, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		r.ID, r.DueAt, r.Text, r.Status, r.Delivery, r.RunID, r.Attempts, r.LastError, r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func scanReminder(row interface{ Scan(...any) error }) (*models.Reminder, error) {
	var r models.Reminder
	var runID sql.NullString
	if err := row.Scan(&r.ID, &r.DueAt, &r.Text, &r.Status, &r.Delivery, &runID, &r.Attempts, &r.LastError, &r.CreatedAt); err != nil {
		return nil, err
	}
	if runID.Valid {
		r.RunID = &runID.String
	}
	return &r, nil
}

const reminderCols = `id, due_at, text, status, delivery, run_id, attempts, last_error, created_at`

// ClaimDueReminders atomically selects pending reminders with due_at <= now,
// flips them to sending, and increments attempts. Two concurrent claims
// (impossible here since writes are single-threaded, but kept explicit for
// the invariant) never return the same row because the claim is one
// transaction: select-then-update under the write lock.
func (s *Store) ClaimDueReminders(ctx context.Context, now time.Time) ([]*models.Reminder, error) {
	s.wg.Lock()
	defer s.wg.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+reminderCols+` FROM reminders WHERE status = ? AND due_at <= ?`, models.ReminderPending, now)
	if err != nil {
		return nil, err
	}
	var claimed []*models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range claimed {
		r.Status = models.ReminderSending
		r.Attempts++
		if _, err := tx.ExecContext(ctx, `UPDATE reminders SET status = ?, attempts = ? WHERE id = ?`, r.Status, r.Attempts, r.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkReminderSent marks a reminder terminal-sent.
func (s *Store) MarkReminderSent(ctx context.Context, id string) error {
	s.wg.Lock()
	defer s.wg.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE reminders SET status = ? WHERE id = ?`, models.ReminderSent, id)
	return err
}

// MarkReminderFailed marks a reminder terminal-failed with an error message.
func (s *Store) MarkReminderFailed(ctx context.Context, id, lastError string) error {
	s.wg.Lock()
	defer s.wg.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE reminders SET status = ?, last_error = ? WHERE id = ?`, models.ReminderFailed, lastError, id)
	return err
}

// CancelReminder cancels a pending reminder.
func (s *Store) CancelReminder(ctx context.Context, id string) error {
	s.wg.Lock()
	defer s.wg.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE reminders SET status = ? WHERE id = ? AND status = ?`, models.ReminderCancelled, id, models.ReminderPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReminders returns all reminders, most recently due first.
func (s *Store) ListReminders(ctx context.Context) ([]*models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reminderCols+` FROM reminders ORDER BY due_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ───────────────────────── Artifact housekeeping ─────────────────────────

// PruneFailureArtifacts deletes files under artifacts/local_llm_failures/
// older than the cutoff (SPEC_FULL.md D.3).
func PruneFailureArtifacts(dataDir string, olderThan time.Time) (int, error) {
	dir := filepath.Join(dataDir, "artifacts", "local_llm_failures")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	pruned := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(olderThan) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				pruned++
			}
		}
	}
	return pruned, nil
}
