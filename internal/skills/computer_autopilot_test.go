package skills

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/skillrunner"
)

func TestMentionsDangerousActionDetectsKeyword(t *testing.T) {
	assert.True(t, mentionsDangerousAction("пожалуйста удали все файлы"))
	assert.False(t, mentionsDangerousAction("открой блокнот"))
}

func TestComputerAutopilotFlagsDangerousQuery(t *testing.T) {
	m := NewComputerAutopilot()
	result, err := m.Entry(models.JSONMap{"query": "удали старые документы"}, skillrunner.Context{Context: context.Background()})
	require.NoError(t, err)
	assert.Contains(t, result.Assumptions, "flagged as a high-risk action by keyword match")
}

func TestComputerAutopilotSafeQueryNotFlagged(t *testing.T) {
	m := NewComputerAutopilot()
	result, err := m.Entry(models.JSONMap{"query": "open notepad"}, skillrunner.Context{Context: context.Background()})
	require.NoError(t, err)
	assert.NotContains(t, result.Assumptions, "flagged as a high-risk action by keyword match")
	assert.Equal(t, "open notepad", result.Artifacts[0]["requested_action"])
}
