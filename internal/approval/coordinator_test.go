package approval

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localfirst/assistant/internal/models"
)

type fakeStore struct {
	mu        sync.Mutex
	approvals map[string]*models.Approval
	runs      map[string]*models.Run
	nextID    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{approvals: map[string]*models.Approval{}, runs: map[string]*models.Run{}}
}

func (f *fakeStore) CreateApproval(ctx context.Context, a *models.Approval) (*models.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	a.ID = fmt.Sprintf("approval-%d", f.nextID)
	a.Status = models.ApprovalPending
	f.approvals[a.ID] = a
	return a, nil
}

func (f *fakeStore) GetApproval(ctx context.Context, id string) (*models.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.approvals[id], nil
}

func (f *fakeStore) ResolveApproval(ctx context.Context, id string, status models.ApprovalStatus, decision models.JSONMap, decidedBy string) (*models.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.approvals[id]
	a.Status = status
	a.Decision = decision
	a.DecidedBy = decidedBy
	return a, nil
}

func (f *fakeStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.runs[id]; ok {
		return r, nil
	}
	return &models.Run{ID: id, Status: models.RunRunning}, nil
}

type fakeEvents struct{}

func (fakeEvents) Emit(ctx context.Context, runID, typ, level, message string, payload models.JSONMap, taskID, stepID *string) (*models.Event, error) {
	return nil, nil
}

func TestRequestAndWaitApproved(t *testing.T) {
	st := newFakeStore()
	c := New(st, fakeEvents{})

	var approvalID string
	go func() {
		time.Sleep(50 * time.Millisecond)
		st.mu.Lock()
		for id := range st.approvals {
			approvalID = id
		}
		st.mu.Unlock()
		_, err := c.Decide(context.Background(), approvalID, true, models.JSONMap{"ok": true}, "tester")
		require.NoError(t, err)
	}()

	outcome, err := c.RequestAndWait(context.Background(), Request{RunID: "run-1", TaskID: "task-1", Scope: "dangerous", ApprovalType: "step"})
	require.NoError(t, err)
	assert.True(t, outcome.Approved)
	assert.Equal(t, models.ApprovalApproved, outcome.Status)
}

func TestRequestAndWaitRejected(t *testing.T) {
	st := newFakeStore()
	c := New(st, fakeEvents{})

	go func() {
		time.Sleep(50 * time.Millisecond)
		st.mu.Lock()
		var id string
		for k := range st.approvals {
			id = k
		}
		st.mu.Unlock()
		_, err := c.Decide(context.Background(), id, false, nil, "tester")
		require.NoError(t, err)
	}()

	outcome, err := c.RequestAndWait(context.Background(), Request{RunID: "run-1", TaskID: "task-1", Scope: "dangerous", ApprovalType: "step"})
	require.NoError(t, err)
	assert.False(t, outcome.Approved)
	assert.Equal(t, models.ApprovalRejected, outcome.Status)
}

func TestRequestAndWaitTTLExpiry(t *testing.T) {
	st := newFakeStore()
	c := New(st, fakeEvents{})

	outcome, err := c.RequestAndWait(context.Background(), Request{
		RunID: "run-1", TaskID: "task-1", Scope: "dangerous", ApprovalType: "step", TTL: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.False(t, outcome.Approved)
	assert.Equal(t, models.ApprovalExpired, outcome.Status)
}

func TestRequestAndWaitCanceledRunExpires(t *testing.T) {
	st := newFakeStore()
	st.runs["run-1"] = &models.Run{ID: "run-1", Status: models.RunCanceled}
	c := New(st, fakeEvents{})

	outcome, err := c.RequestAndWait(context.Background(), Request{RunID: "run-1", TaskID: "task-1", Scope: "dangerous", ApprovalType: "step"})
	require.NoError(t, err)
	assert.False(t, outcome.Approved)
	assert.Equal(t, models.ApprovalExpired, outcome.Status)
}

func TestDecideResolvesApproval(t *testing.T) {
	st := newFakeStore()
	c := New(st, fakeEvents{})
	a, err := st.CreateApproval(context.Background(), &models.Approval{RunID: "run-1"})
	require.NoError(t, err)

	resolved, err := c.Decide(context.Background(), a.ID, true, models.JSONMap{"x": 1}, "api_user")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, resolved.Status)
}
