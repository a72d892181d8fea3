package skills

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/skillrunner"
	"github.com/localfirst/assistant/internal/store"
)

type fakeMemStore struct {
	existing *models.UserMemory
	created  *models.UserMemory
	updated  *models.UserMemory
}

func (f *fakeMemStore) FindUserMemoryByTitle(ctx context.Context, title string) (*models.UserMemory, error) {
	if f.existing != nil && f.existing.Title == title {
		return f.existing, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeMemStore) CreateUserMemory(ctx context.Context, m *models.UserMemory) (*models.UserMemory, error) {
	m.ID = "mem-new"
	f.created = m
	return m, nil
}

func (f *fakeMemStore) UpdateUserMemory(ctx context.Context, id, content string, meta models.JSONMap) (*models.UserMemory, error) {
	f.updated = &models.UserMemory{ID: id, Content: content, Meta: meta}
	return f.updated, nil
}

func TestMemorySaveCreatesNew(t *testing.T) {
	st := &fakeMemStore{}
	m := NewMemorySave(st)
	result, err := m.Entry(models.JSONMap{"memory_payload": models.JSONMap{"title": "likes tea", "summary": "user likes tea"}}, skillrunner.Context{Context: context.Background()})
	require.NoError(t, err)
	assert.Equal(t, "saved a new durable memory", result.WhatIDid)
	assert.Equal(t, "mem-new", st.created.ID)
}

func TestMemorySaveUpdatesOnTitleMatch(t *testing.T) {
	st := &fakeMemStore{existing: &models.UserMemory{ID: "mem-1", Title: "likes tea"}}
	m := NewMemorySave(st)
	result, err := m.Entry(models.JSONMap{"memory_payload": models.JSONMap{"title": "likes tea", "summary": "likes tea more"}}, skillrunner.Context{Context: context.Background()})
	require.NoError(t, err)
	assert.Equal(t, "updated an existing durable memory", result.WhatIDid)
	assert.Equal(t, "mem-1", st.updated.ID)
}

func TestMemorySaveFallsBackToTextField(t *testing.T) {
	st := &fakeMemStore{}
	m := NewMemorySave(st)
	_, err := m.Entry(models.JSONMap{"memory_payload": models.JSONMap{"text": "raw fact"}}, skillrunner.Context{Context: context.Background()})
	require.NoError(t, err)
	assert.Equal(t, "raw fact", st.created.Title)
	assert.Equal(t, "raw fact", st.created.Content)
}
