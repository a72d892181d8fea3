package runengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localfirst/assistant/internal/memory"
	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/store"
)

type fakeMemoryStore struct {
	Store
	existing *models.UserMemory
	created  *models.UserMemory
	updated  *models.UserMemory
}

func (f *fakeMemoryStore) FindUserMemoryByTitle(ctx context.Context, title string) (*models.UserMemory, error) {
	if f.existing != nil && f.existing.Title == title {
		return f.existing, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeMemoryStore) CreateUserMemory(ctx context.Context, m *models.UserMemory) (*models.UserMemory, error) {
	m.ID = "mem-new"
	f.created = m
	return m, nil
}

func (f *fakeMemoryStore) UpdateUserMemory(ctx context.Context, id, content string, meta models.JSONMap) (*models.UserMemory, error) {
	f.updated = &models.UserMemory{ID: id, Content: content, Meta: meta}
	return f.updated, nil
}

func TestSaveMemoryBestEffortCreatesWhenNoExistingTitle(t *testing.T) {
	st := &fakeMemoryStore{}
	e := &Engine{store: st, events: noopEvents{}}

	interp := memory.Interpretation{Title: "likes tea", Summary: "user likes tea"}
	err := e.saveMemoryBestEffort(context.Background(), "run-1", interp)
	require.NoError(t, err)
	require.NotNil(t, st.created)
	assert.Equal(t, "user likes tea", st.created.Content)
	assert.Nil(t, st.updated)
}

func TestSaveMemoryBestEffortUpdatesOnTitleMatch(t *testing.T) {
	st := &fakeMemoryStore{existing: &models.UserMemory{ID: "mem-1", Title: "likes tea"}}
	e := &Engine{store: st, events: noopEvents{}}

	interp := memory.Interpretation{Title: "likes tea", Summary: "user likes tea even more"}
	err := e.saveMemoryBestEffort(context.Background(), "run-1", interp)
	require.NoError(t, err)
	require.NotNil(t, st.updated)
	assert.Equal(t, "mem-1", st.updated.ID)
	assert.Nil(t, st.created)
}

func TestSaveMemoryBestEffortFallsBackToFirstFactValue(t *testing.T) {
	st := &fakeMemoryStore{}
	e := &Engine{store: st, events: noopEvents{}}

	interp := memory.Interpretation{Title: "city", Facts: []memory.Fact{{Key: "city", Value: "Paris"}}}
	err := e.saveMemoryBestEffort(context.Background(), "run-1", interp)
	require.NoError(t, err)
	assert.Equal(t, "Paris", st.created.Content)
}
