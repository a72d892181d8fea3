// Package classifier makes the single LOCAL-only semantic classification
// call that decides CHAT vs ACT vs ASK_CLARIFY, validates the LLM's JSON
// output, and supplies the semantic-resilience fallback when the call or
// validation fails. No UI path may ever surface a classifier failure as an
// HTTP error — that invariant lives here as a typed error plus a standing
// fallback decision, grounded on tarsy's fail-open MaskAlertData pattern of
// "continue with original/default data, log and move on" rather than raise.
package classifier

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/localfirst/assistant/internal/brainrouter"
	"github.com/localfirst/assistant/internal/models"
)

// Intent is the top-level classification outcome.
type Intent string

const (
	IntentChat        Intent = "CHAT"
	IntentAct         Intent = "ACT"
	IntentAskClarify  Intent = "ASK_CLARIFY"
)

// MemoryItemKind is the closed set a memory_item.kind may take.
type MemoryItemKind string

const (
	KindUserProfile      MemoryItemKind = "user_profile"
	KindAssistantProfile MemoryItemKind = "assistant_profile"
	KindUserPreference   MemoryItemKind = "user_preference"
	KindOther            MemoryItemKind = "other"
)

// MemoryItem is the candidate memory fact extracted alongside the intent.
type MemoryItem struct {
	Kind     MemoryItemKind `json:"kind"`
	Text     string         `json:"text"`
	Evidence string         `json:"evidence"`
}

// planHintSet is the closed vocabulary plan_hint entries must belong to.
var planHintSet = map[string]struct{}{
	"CHAT_RESPONSE": {}, "CLARIFY_QUESTION": {}, "WEB_RESEARCH": {}, "BROWSER_RESEARCH_UI": {},
	"COMPUTER_ACTIONS": {}, "DOCUMENT_WRITE": {}, "FILE_ORGANIZE": {}, "CODE_ASSIST": {},
	"MEMORY_COMMIT": {}, "REMINDER_CREATE": {}, "SMOKE_RUN": {},
}

// computerPlanKinds are the plan_hint entries that touch the machine
// directly, as opposed to producing text/chat output only.
var computerPlanKinds = map[string]struct{}{
	"BROWSER_RESEARCH_UI": {}, "COMPUTER_ACTIONS": {}, "DOCUMENT_WRITE": {},
	"FILE_ORGANIZE": {}, "CODE_ASSIST": {}, "SMOKE_RUN": {},
}

// ActTarget is where an ACT plan's effects land.
type ActTarget string

const (
	ActTargetComputer ActTarget = "COMPUTER"
	ActTargetTextOnly ActTarget = "TEXT_ONLY"
)

// dangerPatterns flags an ACT request's raw text as touching a sensitive
// category, independent of plan_hint — sending messages, deleting files,
// payments, publishing, account/security changes.
var dangerPatterns = map[string][]string{
	"send_message":      {"отправ", "сообщени", "email", "почт", "sms", "whatsapp", "telegram", "discord", "message"},
	"delete_file":       {"удали", "удалить", "delete", "rm ", "стер", "очисти", "trash", "корзин"},
	"payment":           {"оплат", "платеж", "перевод", "куп", "заказ", "payment", "card", "банк"},
	"publish":           {"опублику", "выложи", "publish", "deploy", "release", "tweet", "post", "push"},
	"account_settings":  {"аккаунт", "profile", "настройк", "settings", "security", "логин"},
	"password":          {"парол", "password", "passphrase", "2fa", "код подтверждения"},
}

// detectDangerFlags scans raw user text for sensitive-category keywords.
func detectDangerFlags(text string) []string {
	lowered := strings.ToLower(text)
	set := map[string]struct{}{}
	for flag, patterns := range dangerPatterns {
		for _, p := range patterns {
			if strings.Contains(lowered, p) {
				set[flag] = struct{}{}
				break
			}
		}
	}
	flags := make([]string, 0, len(set))
	for f := range set {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	return flags
}

// actTargetFor derives whether an ACT plan touches the computer directly.
func actTargetFor(planHint []string) ActTarget {
	for _, h := range planHint {
		if _, ok := computerPlanKinds[h]; ok {
			return ActTargetComputer
		}
	}
	return ActTargetTextOnly
}

// suggestedRunModeFor implements the original's upgrade rule: a TEXT_ONLY
// target (no computer-touching plan_hint) or any danger flag forces
// execute_confirm; a pure computer-automation plan with no danger flags
// stays autopilot_safe.
func suggestedRunModeFor(target ActTarget, dangerFlags []string) models.RunMode {
	if target == ActTargetTextOnly || len(dangerFlags) > 0 {
		return models.ModeExecuteConfirm
	}
	return models.ModeAutopilotSafe
}

// Decision is the validated classifier output.
type Decision struct {
	Intent            Intent
	Confidence        float64
	MemoryItem        *MemoryItem
	PlanHint          []string
	ResponseStyleHint string
	UserVisibleNote   string

	// ActTarget, DangerFlags, and SuggestedRunMode are populated only when
	// Intent == IntentAct; they carry the act_hint the Run Engine uses to
	// decide whether a plan may run unattended.
	ActTarget        ActTarget
	DangerFlags      []string
	SuggestedRunMode models.RunMode

	// DecisionPath is "llm" for a genuine classification and
	// "semantic_resilience" for the degraded fallback.
	DecisionPath string
	ErrorCode    string
}

// ResilienceDecision is the standing fallback used whenever the classifier
// call or its validation fails — spec.md §4.D's single most important
// invariant.
func ResilienceDecision(errorCode string) Decision {
	return Decision{
		Intent:          IntentChat,
		Confidence:      0,
		PlanHint:        []string{"CHAT_RESPONSE"},
		UserVisibleNote: "Семантическая классификация недоступна, отвечаю напрямую.",
		DecisionPath:    "semantic_resilience",
		ErrorCode:       errorCode,
	}
}

// rawDecision is the shape the LLM is asked to return.
type rawDecision struct {
	Intent            string      `json:"intent"`
	Confidence        float64     `json:"confidence"`
	MemoryItem        json.RawMessage `json:"memory_item"`
	PlanHint          []string    `json:"plan_hint"`
	ResponseStyleHint string      `json:"response_style_hint"`
	UserVisibleNote   string      `json:"user_visible_note"`
}

// ValidationError carries one of the typed codes named in spec.md §4.D.
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string { return e.Code }

// Classifier wraps a Brain Router call with strict_local forced and output
// validation.
type Classifier struct {
	router *brainrouter.Router
}

// New constructs a Classifier over a Brain Router.
func New(router *brainrouter.Router) *Classifier {
	return &Classifier{router: router}
}

// schemaPrompt is the system instruction asking for exactly the rawDecision
// shape; kept minimal since the manifest-level JSON schema validation for
// skills lives in internal/skillrunner, not here.
const schemaPrompt = `Classify the user's message. Respond with strict JSON: ` +
	`{"intent":"CHAT|ACT|ASK_CLARIFY","confidence":0.0,"memory_item":null|{"kind":"user_profile|assistant_profile|user_preference|other","text":"","evidence":""},` +
	`"plan_hint":[],"response_style_hint":"","user_visible_note":""}. evidence must be a literal substring of the user's message.`

// Classify makes the single LOCAL-only call and validates its output. On
// any failure (transport, JSON, schema), it returns the resilience decision
// and a non-nil error describing the typed code — callers decide whether to
// surface the error code into run.meta while still proceeding with the
// resilience decision.
func (c *Classifier) Classify(ctx context.Context, runID, userMessage string) (Decision, error) {
	resp := c.router.Call(ctx, brainrouter.Request{
		RunID:         runID,
		Purpose:       "semantic_classification",
		TaskKind:      "classification",
		PreferredKind: "classification",
		Messages: []brainrouter.Message{
			{Role: "system", Content: schemaPrompt},
			{Role: "user", Content: userMessage},
		},
		Policy: brainrouter.PolicyFlags{StrictLocal: true},
	})

	if resp.Status != brainrouter.StatusOK {
		return ResilienceDecision("semantic_decision_llm_failed"), &ValidationError{Code: "semantic_decision_llm_failed"}
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(resp.Text), &raw); err != nil {
		return ResilienceDecision("semantic_decision_invalid_json"), &ValidationError{Code: "semantic_decision_invalid_json"}
	}

	decision, verr := validate(raw, userMessage)
	if verr != nil {
		return ResilienceDecision(verr.Code), verr
	}
	decision.DecisionPath = "llm"
	return decision, nil
}

// ContextItem re-exported for call sites that build brainrouter context
// items for the classifier path; the classifier itself sends none today
// (it works purely off userMessage), kept as a type alias so callers don't
// need to import brainrouter directly just to build an empty slice.
type ContextItem = brainrouter.ContextItem

func validate(raw rawDecision, userMessage string) (Decision, *ValidationError) {
	intent := Intent(strings.ToUpper(raw.Intent))
	switch intent {
	case IntentChat, IntentAct, IntentAskClarify:
	default:
		return Decision{}, &ValidationError{Code: "semantic_decision_invalid_intent"}
	}

	for _, h := range raw.PlanHint {
		if _, ok := planHintSet[h]; !ok {
			return Decision{}, &ValidationError{Code: "semantic_decision_invalid_plan_hint"}
		}
	}

	var memItem *MemoryItem
	if len(raw.MemoryItem) > 0 && string(raw.MemoryItem) != "null" {
		trimmed := strings.TrimSpace(string(raw.MemoryItem))
		if strings.HasPrefix(trimmed, "[") {
			return Decision{}, &ValidationError{Code: "semantic_decision_memory_item_must_be_object"}
		}
		var mi MemoryItem
		if err := json.Unmarshal(raw.MemoryItem, &mi); err != nil {
			return Decision{}, &ValidationError{Code: "semantic_decision_memory_item_must_be_object"}
		}
		switch mi.Kind {
		case KindUserProfile, KindAssistantProfile, KindUserPreference, KindOther:
		default:
			return Decision{}, &ValidationError{Code: "semantic_decision_memory_item_invalid_kind"}
		}
		if mi.Evidence == "" || !strings.Contains(userMessage, mi.Evidence) {
			return Decision{}, &ValidationError{Code: "semantic_decision_evidence_not_substring"}
		}
		memItem = &mi
	}

	decision := Decision{
		Intent:            intent,
		Confidence:        raw.Confidence,
		MemoryItem:        memItem,
		PlanHint:          raw.PlanHint,
		ResponseStyleHint: raw.ResponseStyleHint,
		UserVisibleNote:   raw.UserVisibleNote,
	}
	if intent == IntentAct {
		decision.ActTarget = actTargetFor(raw.PlanHint)
		decision.DangerFlags = detectDangerFlags(userMessage)
		decision.SuggestedRunMode = suggestedRunModeFor(decision.ActTarget, decision.DangerFlags)
	}
	return decision, nil
}
