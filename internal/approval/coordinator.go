// Package approval implements the human-in-the-loop checkpoint that blocks
// a dangerous task until a decision is recorded, polling for resolution
// while also observing run cancellation and (SUPPLEMENTED FEATURES) a TTL
// expiry. Poll-loop shape grounded on tarsy's pkg/queue/executor.go fixed-
// cadence polling pattern, generalized from session-state polling to
// approval-state polling.
package approval

import (
	"context"
	"time"

	"github.com/localfirst/assistant/internal/models"
)

const pollInterval = 500 * time.Millisecond

// approvalStore is the subset of *store.Store the coordinator needs.
type approvalStore interface {
	CreateApproval(ctx context.Context, a *models.Approval) (*models.Approval, error)
	GetApproval(ctx context.Context, id string) (*models.Approval, error)
	ResolveApproval(ctx context.Context, id string, status models.ApprovalStatus, decision models.JSONMap, decidedBy string) (*models.Approval, error)
	GetRun(ctx context.Context, id string) (*models.Run, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, runID, typ, level, message string, payload models.JSONMap, taskID, stepID *string) (*models.Event, error)
}

// Coordinator creates and resolves approvals.
type Coordinator struct {
	store  approvalStore
	events eventEmitter
}

// New constructs a Coordinator.
func New(store approvalStore, events eventEmitter) *Coordinator {
	return &Coordinator{store: store, events: events}
}

// Request describes the approval to create for a gated task.
type Request struct {
	RunID        string
	TaskID       string
	StepID       *string
	Scope        string
	ApprovalType string
	Preview      models.ApprovalPreview
	Proposed     models.JSONMap
	TTL          time.Duration // 0 means no TTL-based auto-expiry
}

// Outcome is the terminal result of waiting for an approval.
type Outcome struct {
	Approved bool
	Decision models.JSONMap
	Status   models.ApprovalStatus
}

// RequestAndWait creates a pending approval, emits approval_requested and
// step_paused_for_approval, then polls until the approval resolves, the
// owning run is canceled (auto-expiry), its TTL elapses (auto-expiry), or
// ctx is canceled.
func (c *Coordinator) RequestAndWait(ctx context.Context, req Request) (Outcome, error) {
	a, err := c.store.CreateApproval(ctx, &models.Approval{
		RunID: req.RunID, TaskID: req.TaskID, StepID: req.StepID,
		Scope: req.Scope, ApprovalType: req.ApprovalType, Preview: req.Preview, ProposedActions: req.Proposed,
	})
	if err != nil {
		return Outcome{}, err
	}

	taskID, stepID := &req.TaskID, req.StepID
	c.events.Emit(ctx, req.RunID, "approval_requested", "info", "", models.JSONMap{
		"approval_id": a.ID, "approval_type": req.ApprovalType, "scope": req.Scope,
	}, taskID, stepID)
	c.events.Emit(ctx, req.RunID, "step_paused_for_approval", "info", "", models.JSONMap{"approval_id": a.ID}, taskID, stepID)

	var deadline <-chan time.Time
	if req.TTL > 0 {
		timer := time.NewTimer(req.TTL)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-deadline:
			return c.expire(ctx, a.ID, req.RunID, taskID, stepID)
		case <-ticker.C:
			current, err := c.store.GetApproval(ctx, a.ID)
			if err != nil {
				return Outcome{}, err
			}
			if current.Status == models.ApprovalPending {
				run, err := c.store.GetRun(ctx, req.RunID)
				if err != nil {
					return Outcome{}, err
				}
				if run.Status == models.RunCanceled {
					return c.expire(ctx, a.ID, req.RunID, taskID, stepID)
				}
				continue
			}
			return c.terminal(ctx, current, taskID, stepID)
		}
	}
}

func (c *Coordinator) expire(ctx context.Context, approvalID, runID string, taskID, stepID *string) (Outcome, error) {
	a, err := c.store.ResolveApproval(ctx, approvalID, models.ApprovalExpired, models.JSONMap{}, "system")
	if err != nil {
		return Outcome{}, err
	}
	c.emitResolved(ctx, runID, a, taskID, stepID)
	return Outcome{Approved: false, Status: models.ApprovalExpired}, nil
}

func (c *Coordinator) terminal(ctx context.Context, a *models.Approval, taskID, stepID *string) (Outcome, error) {
	c.emitResolved(ctx, a.RunID, a, taskID, stepID)
	return Outcome{Approved: a.Status == models.ApprovalApproved, Decision: a.Decision, Status: a.Status}, nil
}

func (c *Coordinator) emitResolved(ctx context.Context, runID string, a *models.Approval, taskID, stepID *string) {
	c.events.Emit(ctx, runID, "approval_resolved", "info", "", models.JSONMap{"approval_id": a.ID, "status": string(a.Status)}, taskID, stepID)
	switch a.Status {
	case models.ApprovalApproved:
		c.events.Emit(ctx, runID, "approval_approved", "info", "", models.JSONMap{"approval_id": a.ID}, taskID, stepID)
	case models.ApprovalRejected, models.ApprovalExpired:
		c.events.Emit(ctx, runID, "approval_rejected", "warn", "", models.JSONMap{"approval_id": a.ID, "status": string(a.Status)}, taskID, stepID)
	}
}

// Decide resolves a pending approval from the API surface (approve/reject).
func (c *Coordinator) Decide(ctx context.Context, approvalID string, approve bool, decision models.JSONMap, decidedBy string) (*models.Approval, error) {
	status := models.ApprovalRejected
	if approve {
		status = models.ApprovalApproved
	}
	return c.store.ResolveApproval(ctx, approvalID, status, decision, decidedBy)
}
