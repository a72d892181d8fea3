package skills

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/skillrunner"
)

type fakeReminderStore struct {
	created *models.Reminder
}

func (f *fakeReminderStore) CreateReminder(ctx context.Context, r *models.Reminder) (*models.Reminder, error) {
	r.ID = "rem-new"
	f.created = r
	return r, nil
}

func TestReminderCreatePersistsParsedDueAt(t *testing.T) {
	st := &fakeReminderStore{}
	m := NewReminderCreate(st)
	result, err := m.Entry(models.JSONMap{"due_at": "2026-07-30T10:00:00Z", "text": "call mom"}, skillrunner.Context{Context: context.Background(), RunID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, "call mom", st.created.Text)
	assert.Equal(t, models.ReminderPending, st.created.Status)
	assert.Contains(t, result.WhatIDid, "2026-07-30T10:00:00Z")
}

func TestReminderCreateRejectsInvalidDueAt(t *testing.T) {
	st := &fakeReminderStore{}
	m := NewReminderCreate(st)
	_, err := m.Entry(models.JSONMap{"due_at": "not-a-date", "text": "x"}, skillrunner.Context{Context: context.Background()})
	assert.Error(t, err)
}
