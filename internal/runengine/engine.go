// Package runengine implements the Run Engine: create-run (classify,
// interpret memory, compose mode/purpose, branch by intent) and start-run
// (the plan -> task -> attempt execution loop with retries and approval
// gating). Grounded on tarsy's pkg/queue/executor.go RealSessionExecutor —
// same shape of "sequential stage loop with fail-fast plus a synthesis
// step", generalized from tarsy's fixed agent-stage chain to an arbitrary
// ordered plan of typed skill steps.
package runengine

import (
	"context"
	"log/slog"
	"time"

	"github.com/localfirst/assistant/internal/approval"
	"github.com/localfirst/assistant/internal/brainrouter"
	"github.com/localfirst/assistant/internal/classifier"
	"github.com/localfirst/assistant/internal/memory"
	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/planner"
	"github.com/localfirst/assistant/internal/skillrunner"
)

// Store is the subset of *store.Store the Run Engine depends on.
type Store interface {
	CreateRun(ctx context.Context, projectID, queryText string, mode models.RunMode, parentRunID *string, purpose string) (*models.Run, error)
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, projectID string) ([]*models.Run, error)
	UpdateRunMeta(ctx context.Context, id string, patch models.JSONMap) (*models.Run, error)
	UpdateRunStatus(ctx context.Context, id string, status models.RunStatus) (*models.Run, error)
	UpdateRunModePurpose(ctx context.Context, id string, mode models.RunMode, purpose string) (*models.Run, error)

	ReplacePlanSteps(ctx context.Context, runID string, steps []*models.PlanStep) error
	ListPlanSteps(ctx context.Context, runID string) ([]*models.PlanStep, error)
	GetPlanStep(ctx context.Context, id string) (*models.PlanStep, error)
	UpdateStepStatus(ctx context.Context, id string, status models.StepStatus) error

	NextTaskAttemptAndCreate(ctx context.Context, runID, planStepID string) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus, taskErr string) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasksForRun(ctx context.Context, runID string) ([]*models.Task, error)
	ListTasksForStep(ctx context.Context, planStepID string) ([]*models.Task, error)

	CreateUserMemory(ctx context.Context, m *models.UserMemory) (*models.UserMemory, error)
	FindUserMemoryByTitle(ctx context.Context, title string) (*models.UserMemory, error)
	UpdateUserMemory(ctx context.Context, id, content string, meta models.JSONMap) (*models.UserMemory, error)
}

// EventBus is the subset of *eventbus.Bus the Run Engine depends on.
type EventBus interface {
	Emit(ctx context.Context, runID, typ, level, message string, payload models.JSONMap, taskID, stepID *string) (*models.Event, error)
}

// Engine wires together the Store, Brain Router, Semantic Classifier,
// Memory Interpreter, Planner, Skill Runner, and Approval Coordinator into
// the create-run/start-run control flow.
type Engine struct {
	store       Store
	events      EventBus
	router      *brainrouter.Router
	classify    *classifier.Classifier
	interpret   *memory.Interpreter
	skills      *skillrunner.Runner
	approvals   *approval.Coordinator
	log         *slog.Logger

	historyWindow int
	approvalTTL   time.Duration
}

// New constructs an Engine. approvalTTL is the default auto-expiry window
// for approvals this engine requests (0 disables auto-expiry).
func New(store Store, events EventBus, router *brainrouter.Router, cls *classifier.Classifier, interp *memory.Interpreter, skills *skillrunner.Runner, approvals *approval.Coordinator, historyWindow int, approvalTTL time.Duration) *Engine {
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &Engine{
		store: store, events: events, router: router, classify: cls, interpret: interp,
		skills: skills, approvals: approvals, log: slog.Default().With("component", "run_engine"),
		historyWindow: historyWindow, approvalTTL: approvalTTL,
	}
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateRunResult is the tagged response §4.J returns from POST .../runs.
type CreateRunResult struct {
	Kind         string // "act", "chat", "clarify"
	Run          *models.Run
	Plan         []*models.PlanStep
	ChatResponse string
	Questions    []string
}
