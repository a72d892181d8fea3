package skills

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/skillrunner"
)

func TestChatResponseEmptyQueryIsSmokeRun(t *testing.T) {
	m := NewChatResponse(nil)
	result, err := m.Entry(models.JSONMap{}, skillrunner.Context{Context: context.Background()})
	require.NoError(t, err)
	assert.Equal(t, "smoke run", result.WhatIDid)
}

func TestChatResponseQuestionsWithoutQueryAsksClarification(t *testing.T) {
	m := NewChatResponse(nil)
	result, err := m.Entry(models.JSONMap{"questions": []string{"which city?"}}, skillrunner.Context{Context: context.Background()})
	require.NoError(t, err)
	assert.Equal(t, "asked a clarifying question", result.WhatIDid)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "clarify_requested", result.Events[0]["type"])
}
