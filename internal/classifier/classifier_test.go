package classifier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localfirst/assistant/internal/models"
)

func TestValidateAcceptsWellFormedDecision(t *testing.T) {
	raw := rawDecision{
		Intent: "act", Confidence: 0.9, PlanHint: []string{"WEB_RESEARCH"},
		MemoryItem: json.RawMessage(`{"kind":"user_preference","text":"likes tea","evidence":"I like tea"}`),
	}
	d, verr := validate(raw, "I like tea very much")
	require.Nil(t, verr)
	assert.Equal(t, IntentAct, d.Intent)
	require.NotNil(t, d.MemoryItem)
	assert.Equal(t, KindUserPreference, d.MemoryItem.Kind)
}

func TestValidateRejectsInvalidIntent(t *testing.T) {
	raw := rawDecision{Intent: "NOT_A_REAL_INTENT"}
	_, verr := validate(raw, "hello")
	require.NotNil(t, verr)
	assert.Equal(t, "semantic_decision_invalid_intent", verr.Code)
}

func TestValidateRejectsUnknownPlanHint(t *testing.T) {
	raw := rawDecision{Intent: "ACT", PlanHint: []string{"NOT_A_HINT"}}
	_, verr := validate(raw, "hello")
	require.NotNil(t, verr)
	assert.Equal(t, "semantic_decision_invalid_plan_hint", verr.Code)
}

func TestValidateRejectsArrayMemoryItem(t *testing.T) {
	raw := rawDecision{Intent: "ACT", MemoryItem: json.RawMessage(`[]`)}
	_, verr := validate(raw, "hello")
	require.NotNil(t, verr)
	assert.Equal(t, "semantic_decision_memory_item_must_be_object", verr.Code)
}

func TestValidateRejectsInvalidMemoryItemKind(t *testing.T) {
	raw := rawDecision{Intent: "ACT", MemoryItem: json.RawMessage(`{"kind":"bogus","text":"x","evidence":"hello"}`)}
	_, verr := validate(raw, "hello world")
	require.NotNil(t, verr)
	assert.Equal(t, "semantic_decision_memory_item_invalid_kind", verr.Code)
}

func TestValidateRejectsEvidenceNotSubstring(t *testing.T) {
	raw := rawDecision{Intent: "ACT", MemoryItem: json.RawMessage(`{"kind":"other","text":"x","evidence":"not present"}`)}
	_, verr := validate(raw, "hello world")
	require.NotNil(t, verr)
	assert.Equal(t, "semantic_decision_evidence_not_substring", verr.Code)
}

func TestValidateAllowsNullMemoryItem(t *testing.T) {
	raw := rawDecision{Intent: "CHAT", MemoryItem: json.RawMessage(`null`)}
	d, verr := validate(raw, "hello")
	require.Nil(t, verr)
	assert.Nil(t, d.MemoryItem)
}

func TestValidateActWithComputerPlanHintStaysAutopilotSafe(t *testing.T) {
	raw := rawDecision{Intent: "ACT", PlanHint: []string{"COMPUTER_ACTIONS"}}
	d, verr := validate(raw, "organize my downloads folder")
	require.Nil(t, verr)
	assert.Equal(t, ActTargetComputer, d.ActTarget)
	assert.Empty(t, d.DangerFlags)
	assert.Equal(t, models.ModeAutopilotSafe, d.SuggestedRunMode)
}

func TestValidateActWithTextOnlyPlanHintForcesExecuteConfirm(t *testing.T) {
	raw := rawDecision{Intent: "ACT", PlanHint: []string{"WEB_RESEARCH"}}
	d, verr := validate(raw, "find me some articles")
	require.Nil(t, verr)
	assert.Equal(t, ActTargetTextOnly, d.ActTarget)
	assert.Equal(t, models.ModeExecuteConfirm, d.SuggestedRunMode)
}

func TestValidateActDangerFlagForcesExecuteConfirmEvenOnComputerTarget(t *testing.T) {
	raw := rawDecision{Intent: "ACT", PlanHint: []string{"COMPUTER_ACTIONS"}}
	d, verr := validate(raw, "delete the old report file")
	require.Nil(t, verr)
	assert.Equal(t, ActTargetComputer, d.ActTarget)
	assert.Contains(t, d.DangerFlags, "delete_file")
	assert.Equal(t, models.ModeExecuteConfirm, d.SuggestedRunMode)
}

func TestValidateChatNeverPopulatesActHint(t *testing.T) {
	raw := rawDecision{Intent: "CHAT"}
	d, verr := validate(raw, "hello there")
	require.Nil(t, verr)
	assert.Empty(t, d.ActTarget)
	assert.Empty(t, d.DangerFlags)
	assert.Empty(t, d.SuggestedRunMode)
}

func TestResilienceDecisionNeverBlocks(t *testing.T) {
	d := ResilienceDecision("semantic_decision_llm_failed")
	assert.Equal(t, IntentChat, d.Intent)
	assert.Equal(t, "semantic_resilience", d.DecisionPath)
	assert.Equal(t, []string{"CHAT_RESPONSE"}, d.PlanHint)
	assert.NotEmpty(t, d.UserVisibleNote)
}
