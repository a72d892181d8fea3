package runengine

import (
	"context"
	"fmt"
	"time"

	"github.com/localfirst/assistant/internal/approval"
	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/skillrunner"
)

// buildApprovalRequest wires a gated step's approval TTL (SPEC_FULL.md §D4)
// into both the coordinator's auto-expiry timer and the human-facing
// preview, from the same engine-wide default.
func buildApprovalRequest(runID, taskID string, step *models.PlanStep, manifest skillrunner.Manifest, ttl time.Duration) approval.Request {
	var expiresInMs *int64
	if ttl > 0 {
		ms := ttl.Milliseconds()
		expiresInMs = &ms
	}
	return approval.Request{
		RunID: runID, TaskID: taskID, StepID: &step.ID,
		Scope: string(manifest.Scope), ApprovalType: step.SkillName,
		Preview: models.ApprovalPreview{Summary: step.Title, Risk: string(manifest.Scope), ExpiresInMs: expiresInMs},
		TTL:     ttl,
	}
}

// StartRun implements spec.md §4.G's start-run execution loop. Idempotent:
// a run already in {running, done, failed, canceled, paused} is a no-op.
// Intended to be launched as a background worker per started run.
func (e *Engine) StartRun(ctx context.Context, runID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.RunCreated {
		return nil
	}

	if _, err := e.store.UpdateRunStatus(ctx, runID, models.RunRunning); err != nil {
		return err
	}
	e.events.Emit(ctx, runID, "run_started", "info", "", nil, nil, nil)

	if run.Mode == models.ModePlanOnly {
		_, err := e.store.UpdateRunStatus(ctx, runID, models.RunDone)
		if err == nil {
			e.events.Emit(ctx, runID, "run_done", "info", "", nil, nil, nil)
		}
		return err
	}

	steps, err := e.store.ListPlanSteps(ctx, runID)
	if err != nil {
		return err
	}

	for _, step := range steps {
		run, err := e.store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status == models.RunCanceled {
			e.events.Emit(ctx, runID, "run_canceled", "info", "", nil, nil, nil)
			return nil
		}

		if err := e.executeStep(ctx, run, step); err != nil {
			e.events.Emit(ctx, runID, "run_failed", "error", err.Error(), nil, nil, nil)
			e.store.UpdateRunStatus(ctx, runID, models.RunFailed)
			return err
		}
	}

	if _, err := e.store.UpdateRunStatus(ctx, runID, models.RunDone); err != nil {
		return err
	}
	e.events.Emit(ctx, runID, "run_done", "info", "", nil, nil, nil)
	return nil
}

// executeStep runs one plan step to completion: allocate attempt, gate on
// scope/approval, invoke the skill, persist the result.
func (e *Engine) executeStep(ctx context.Context, run *models.Run, step *models.PlanStep) error {
	task, err := e.store.NextTaskAttemptAndCreate(ctx, run.ID, step.ID)
	if err != nil {
		return err
	}
	taskID, stepID := &task.ID, &step.ID
	e.events.Emit(ctx, run.ID, "task_queued", "info", "", models.JSONMap{"attempt": task.Attempt}, taskID, stepID)

	if err := e.store.UpdateTaskStatus(ctx, task.ID, models.TaskRunning, ""); err != nil {
		return err
	}
	e.events.Emit(ctx, run.ID, "task_started", "info", "", nil, taskID, stepID)

	manifest, lookupErr := e.skills.Lookup(step.SkillName)
	if lookupErr != nil {
		return e.failTask(ctx, run.ID, task.ID, step.ID, lookupErr)
	}

	needsApproval := step.RequiresApproval || manifest.Scope == skillrunner.ScopeConfirmRequired || manifest.Scope == skillrunner.ScopeDangerous
	if needsApproval {
		if run.Mode != models.ModeExecuteConfirm {
			return e.failTask(ctx, run.ID, task.ID, step.ID, fmt.Errorf("scope_gate_blocked: %s requires execute_confirm", step.SkillName))
		}
		if err := e.store.UpdateTaskStatus(ctx, task.ID, models.TaskWaitingApproval, ""); err != nil {
			return err
		}
		outcome, err := e.approvals.RequestAndWait(ctx, buildApprovalRequest(run.ID, task.ID, step, manifest, e.approvalTTL))
		if err != nil {
			return e.failTask(ctx, run.ID, task.ID, step.ID, err)
		}
		if !outcome.Approved {
			return e.failTask(ctx, run.ID, task.ID, step.ID, fmt.Errorf("approval_rejected"))
		}
		if err := e.store.UpdateTaskStatus(ctx, task.ID, models.TaskRunning, ""); err != nil {
			return err
		}
	}

	if err := e.store.UpdateStepStatus(ctx, step.ID, models.StepRunning); err != nil {
		return err
	}

	result, err := e.skills.Invoke(manifest, step.Inputs, skillrunner.Context{Context: ctx, RunID: run.ID, TaskID: task.ID, PlanStepID: step.ID})
	if err != nil {
		e.store.UpdateStepStatus(ctx, step.ID, models.StepFailed)
		return e.failTask(ctx, run.ID, task.ID, step.ID, err)
	}

	e.persistSkillResult(ctx, run.ID, task.ID, step.ID, result)

	if err := e.store.UpdateStepStatus(ctx, step.ID, models.StepDone); err != nil {
		return err
	}
	if err := e.store.UpdateTaskStatus(ctx, task.ID, models.TaskDone, ""); err != nil {
		return err
	}
	e.events.Emit(ctx, run.ID, "task_done", "info", "", models.JSONMap{"confidence": result.Confidence}, taskID, stepID)
	return nil
}

func (e *Engine) failTask(ctx context.Context, runID, taskID, stepID string, cause error) error {
	e.store.UpdateTaskStatus(ctx, taskID, models.TaskFailed, cause.Error())
	e.store.UpdateStepStatus(ctx, stepID, models.StepFailed)
	e.events.Emit(ctx, runID, "task_failed", "error", cause.Error(), nil, &taskID, &stepID)
	return cause
}

func (e *Engine) persistSkillResult(ctx context.Context, runID, taskID, stepID string, result skillrunner.SkillResult) {
	for _, s := range result.Sources {
		e.events.Emit(ctx, runID, "source_found", "info", "", s, &taskID, &stepID)
	}
	for _, f := range result.Facts {
		e.events.Emit(ctx, runID, "fact_extracted", "info", "", f, &taskID, &stepID)
	}
	for _, a := range result.Artifacts {
		e.events.Emit(ctx, runID, "artifact_created", "info", "", a, &taskID, &stepID)
	}
	for _, ev := range result.Events {
		if typ, ok := ev["type"].(string); ok {
			e.events.Emit(ctx, runID, typ, "info", "", ev, &taskID, &stepID)
		}
	}
}

// RetryTask allocates a fresh attempt for the task's plan step and
// re-executes it, emitting task_retried referencing the previous task id,
// then re-synthesizes the run status from the plan.
func (e *Engine) RetryTask(ctx context.Context, runID, taskID string) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	return e.retryStep(ctx, runID, task.PlanStepID, taskID)
}

// RetryStep allocates a fresh attempt for a plan step directly.
func (e *Engine) RetryStep(ctx context.Context, runID, planStepID string) error {
	return e.retryStep(ctx, runID, planStepID, "")
}

func (e *Engine) retryStep(ctx context.Context, runID, planStepID, previousTaskID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	step, err := e.store.GetPlanStep(ctx, planStepID)
	if err != nil {
		return err
	}

	if previousTaskID == "" {
		tasks, err := e.store.ListTasksForStep(ctx, planStepID)
		if err != nil {
			return err
		}
		if len(tasks) > 0 {
			previousTaskID = tasks[len(tasks)-1].ID
		}
	}

	e.events.Emit(ctx, runID, "task_retried", "info", "", models.JSONMap{"previous_task_id": previousTaskID}, nil, &planStepID)

	stepErr := e.executeStep(ctx, run, step)
	return e.resynthesizeRunStatus(ctx, runID, stepErr)
}

func (e *Engine) resynthesizeRunStatus(ctx context.Context, runID string, lastErr error) error {
	steps, err := e.store.ListPlanSteps(ctx, runID)
	if err != nil {
		return err
	}
	allDone, anyFailed := true, false
	for _, s := range steps {
		switch s.Status {
		case models.StepDone:
		case models.StepFailed:
			anyFailed = true
			allDone = false
		default:
			allDone = false
		}
	}
	status := models.RunRunning
	switch {
	case anyFailed:
		status = models.RunFailed
	case allDone:
		status = models.RunDone
	}
	if _, err := e.store.UpdateRunStatus(ctx, runID, status); err != nil {
		return err
	}
	return lastErr
}

// CancelRun sets the run to canceled; the executing loop observes it
// between steps and approval waits observe it during polling.
func (e *Engine) CancelRun(ctx context.Context, runID string) error {
	_, err := e.store.UpdateRunStatus(ctx, runID, models.RunCanceled)
	if err != nil {
		return err
	}
	e.events.Emit(ctx, runID, "run_canceled", "info", "", nil, nil, nil)
	return nil
}

// PauseRun toggles the run to paused; the autopilot executor checks this
// per micro-step (not modeled further here — computer_autopilot is a stub).
func (e *Engine) PauseRun(ctx context.Context, runID string) error {
	_, err := e.store.UpdateRunStatus(ctx, runID, models.RunPaused)
	return err
}

// ResumeRun toggles a paused run back to running.
func (e *Engine) ResumeRun(ctx context.Context, runID string) error {
	_, err := e.store.UpdateRunStatus(ctx, runID, models.RunRunning)
	return err
}
