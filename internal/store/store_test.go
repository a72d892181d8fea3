package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localfirst/assistant/internal/config"
	"github.com/localfirst/assistant/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.StoreConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBootstrapIdempotence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Bootstrap(ctx, "tok-1"))
	initialized, err := s.Initialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)

	// Re-bootstrapping with the same token is a no-op, not an error.
	require.NoError(t, s.Bootstrap(ctx, "tok-1"))

	// A different token against an already-bootstrapped store is a mismatch.
	err = s.Bootstrap(ctx, "tok-2")
	assert.ErrorIs(t, err, ErrTokenMismatch)

	ok, err := s.ValidateToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ValidateToken(ctx, "tok-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEventSeqMonotonicPerRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project, err := s.CreateProject(ctx, "p1", nil)
	require.NoError(t, err)
	run, err := s.CreateRun(ctx, project.ID, "hello", models.ModePlanOnly, nil, "")
	require.NoError(t, err)

	other, err := s.CreateRun(ctx, project.ID, "other", models.ModePlanOnly, nil, "")
	require.NoError(t, err)

	var lastSeq int64
	for i := 0; i < 5; i++ {
		ev, err := s.AddEvent(ctx, &models.Event{RunID: run.ID, Type: "run_created", Level: "info"})
		require.NoError(t, err)
		assert.Greater(t, ev.Seq, lastSeq)
		lastSeq = ev.Seq
	}

	// A second run's sequence starts fresh at 1, independent of the first.
	ev, err := s.AddEvent(ctx, &models.Event{RunID: other.ID, Type: "run_created", Level: "info"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.Seq)

	events, err := s.ListEvents(ctx, run.ID, 100)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestListEventsSinceResumption(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project, err := s.CreateProject(ctx, "p1", nil)
	require.NoError(t, err)
	run, err := s.CreateRun(ctx, project.ID, "hello", models.ModePlanOnly, nil, "")
	require.NoError(t, err)

	var seqs []int64
	for i := 0; i < 3; i++ {
		ev, err := s.AddEvent(ctx, &models.Event{RunID: run.ID, Type: "run_created", Level: "info"})
		require.NoError(t, err)
		seqs = append(seqs, ev.Seq)
	}

	resumed, err := s.ListEventsSince(ctx, run.ID, seqs[0])
	require.NoError(t, err)
	require.Len(t, resumed, 2)
	assert.Equal(t, seqs[1], resumed[0].Seq)
	assert.Equal(t, seqs[2], resumed[1].Seq)
}

func TestTaskAttemptStrictPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project, err := s.CreateProject(ctx, "p1", nil)
	require.NoError(t, err)
	run, err := s.CreateRun(ctx, project.ID, "do a thing", models.ModeExecuteConfirm, nil, "")
	require.NoError(t, err)
	require.NoError(t, s.ReplacePlanSteps(ctx, run.ID, []*models.PlanStep{
		{ID: "step-1", RunID: run.ID, StepIndex: 0, SkillName: "chat_response"},
	}))

	for attempt := 1; attempt <= 3; attempt++ {
		task, err := s.NextTaskAttemptAndCreate(ctx, run.ID, "step-1")
		require.NoError(t, err)
		assert.Equal(t, attempt, task.Attempt)
	}

	tasks, err := s.ListTasksForStep(ctx, "step-1")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
}

func TestClaimDueRemindersExclusivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	due, err := s.CreateReminder(ctx, &models.Reminder{DueAt: past, Text: "past one", Delivery: models.DeliveryLocal})
	require.NoError(t, err)
	_, err = s.CreateReminder(ctx, &models.Reminder{DueAt: future, Text: "future one", Delivery: models.DeliveryLocal})
	require.NoError(t, err)

	claimed, err := s.ClaimDueReminders(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, models.ReminderSending, claimed[0].Status)
	assert.Equal(t, 1, claimed[0].Attempts)

	// Claiming again finds nothing new: the claimed reminder is no longer pending.
	claimedAgain, err := s.ClaimDueReminders(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, claimedAgain)

	require.NoError(t, s.MarkReminderSent(ctx, due.ID))
	all, err := s.ListReminders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestResolveApprovalTerminalIsFinal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project, err := s.CreateProject(ctx, "p1", nil)
	require.NoError(t, err)
	run, err := s.CreateRun(ctx, project.ID, "do a thing", models.ModeExecuteConfirm, nil, "")
	require.NoError(t, err)

	approval, err := s.CreateApproval(ctx, &models.Approval{
		RunID: run.ID, TaskID: "task-1", Scope: "confirm_required", ApprovalType: "step",
	})
	require.NoError(t, err)

	resolved, err := s.ResolveApproval(ctx, approval.ID, models.ApprovalApproved, models.JSONMap{"ok": true}, "tester")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, resolved.Status)

	_, err = s.ResolveApproval(ctx, approval.ID, models.ApprovalRejected, nil, "tester")
	assert.ErrorIs(t, err, ErrApprovalDecided)
}

func TestUserMemoryDedupByTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUserMemory(ctx, &models.UserMemory{Title: "favorite color", Content: "blue"})
	require.NoError(t, err)

	found, err := s.FindUserMemoryByTitle(ctx, "favorite color")
	require.NoError(t, err)
	assert.Equal(t, "blue", found.Content)

	_, err = s.FindUserMemoryByTitle(ctx, "does not exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
