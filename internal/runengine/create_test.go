package runengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/localfirst/assistant/internal/classifier"
	"github.com/localfirst/assistant/internal/models"
)

func TestComposeModePurposeChatIsAlwaysPlanOnly(t *testing.T) {
	mode, purpose := composeModePurpose(classifier.IntentChat, models.ModeExecuteConfirm, "")
	assert.Equal(t, models.ModePlanOnly, mode)
	assert.Equal(t, "chat_only", purpose)
}

func TestComposeModePurposeAskClarifyIsAlwaysPlanOnly(t *testing.T) {
	mode, purpose := composeModePurpose(classifier.IntentAskClarify, models.ModeExecuteConfirm, "")
	assert.Equal(t, models.ModePlanOnly, mode)
	assert.Equal(t, "clarify", purpose)
}

func TestComposeModePurposeActKeepsRequestedMode(t *testing.T) {
	mode, purpose := composeModePurpose(classifier.IntentAct, models.ModePlanOnly, "")
	assert.Equal(t, models.ModePlanOnly, mode)
	assert.Equal(t, "", purpose)
}

func TestComposeModePurposeActHintUpgradesToExecuteConfirm(t *testing.T) {
	mode, _ := composeModePurpose(classifier.IntentAct, models.ModePlanOnly, models.ModeExecuteConfirm)
	assert.Equal(t, models.ModeExecuteConfirm, mode)
}

func TestComposeModePurposeActIgnoresNonConfirmSuggestion(t *testing.T) {
	mode, _ := composeModePurpose(classifier.IntentAct, models.ModePlanOnly, models.ModeAutopilotSafe)
	assert.Equal(t, models.ModePlanOnly, mode)
}

func TestBuildChatMessagesIncludesStyleHintInSystemPrompt(t *testing.T) {
	msgs := buildChatMessages("hello", nil, "terse")
	assert.Contains(t, msgs[0].Content, "Style: terse")
}

func TestBuildChatMessagesOmitsStyleWhenEmpty(t *testing.T) {
	msgs := buildChatMessages("hello", nil, "")
	assert.NotContains(t, msgs[0].Content, "Style:")
}

func TestBuildChatMessagesOrdersHistoryBeforeQuery(t *testing.T) {
	msgs := buildChatMessages("current", []string{"first", "second"}, "")
	require := assert.New(t)
	require.Len(msgs, 4)
	require.Equal("first", msgs[1].Content)
	require.Equal("second", msgs[2].Content)
	require.Equal("current", msgs[3].Content)
}
