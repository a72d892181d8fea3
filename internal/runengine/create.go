package runengine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/localfirst/assistant/internal/brainrouter"
	"github.com/localfirst/assistant/internal/classifier"
	"github.com/localfirst/assistant/internal/memory"
	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/planner"
)

// fallbackChatText is used when the CHAT branch itself degrades (brain
// router error) after an already-degraded semantic decision — a second
// layer of the same never-5xx posture.
const fallbackChatText = "Извините, не получилось обработать запрос локально. Попробуйте ещё раз."

// CreateRun implements spec.md §4.G's create-run flow end to end.
func (e *Engine) CreateRun(ctx context.Context, projectID, queryText string, mode models.RunMode, parentRunID *string, purpose string) (*CreateRunResult, error) {
	// 1-2. Persist + emit run_created.
	run, err := e.store.CreateRun(ctx, projectID, queryText, mode, parentRunID, purpose)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.UpdateRunMeta(ctx, run.ID, models.JSONMap{"intent": "ASK_CLARIFY", "intent_path": "pending"}); err != nil {
		return nil, err
	}
	e.events.Emit(ctx, run.ID, "run_created", "info", "", models.JSONMap{"query_text": queryText, "mode": string(mode)}, nil, nil)

	// 3. Semantic Classifier and the chat-history walk are independent reads
	// (the classifier doesn't need history, history doesn't need the
	// classifier's output) — fan them out together instead of paying for
	// both sequentially, and reuse the one walk for both the Memory
	// Interpreter and the CHAT branch below.
	var (
		decision    classifier.Decision
		classifyErr error
		chatHistory []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		decision, classifyErr = e.classify.Classify(gctx, run.ID, queryText)
		return nil
	})
	g.Go(func() error {
		chatHistory, _ = e.loadChatHistory(gctx, run.ID)
		return nil
	})
	_ = g.Wait()

	semanticErrorCode := ""
	if classifyErr != nil {
		semanticErrorCode = decision.ErrorCode
		e.events.Emit(ctx, run.ID, "llm_request_failed", "error", classifyErr.Error(),
			models.JSONMap{"error_type": decision.ErrorCode, "component": "semantic_classifier"}, nil, nil)
	}

	// 4. Memory Interpreter, unless resilience is active.
	interpretation := memory.Skipped()
	if decision.DecisionPath != "semantic_resilience" {
		interpretation = e.interpret.Interpret(ctx, run.ID, queryText, chatHistory, "")
	}

	// 5. Compose selected_mode/selected_purpose.
	selectedMode, selectedPurpose := composeModePurpose(decision.Intent, mode, decision.SuggestedRunMode)

	// 6. Update run with full meta.
	meta := models.JSONMap{
		"intent":               string(decision.Intent),
		"confidence":           decision.Confidence,
		"plan_hint":            decision.PlanHint,
		"style_hint":           decision.ResponseStyleHint,
		"intent_path":          decision.DecisionPath,
		"semantic_error_code":  semanticErrorCode,
		"memory_interpretation": models.JSONMap{
			"should_store": interpretation.ShouldStore,
			"confidence":   interpretation.Confidence,
			"title":        interpretation.Title,
			"summary":      interpretation.Summary,
			"error":        interpretation.Error,
		},
		"runtime_metrics": models.JSONMap{},
	}
	if decision.MemoryItem != nil {
		meta["memory_item"] = models.JSONMap{
			"kind": string(decision.MemoryItem.Kind), "text": decision.MemoryItem.Text, "evidence": decision.MemoryItem.Evidence,
		}
	}
	if _, err := e.store.UpdateRunMeta(ctx, run.ID, meta); err != nil {
		return nil, err
	}
	if _, err := e.store.UpdateRunModePurpose(ctx, run.ID, selectedMode, selectedPurpose); err != nil {
		return nil, err
	}
	run, err = e.store.GetRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	// 7. Emit intent_decided.
	e.events.Emit(ctx, run.ID, "intent_decided", "info", "", models.JSONMap{
		"intent": string(decision.Intent), "intent_path": decision.DecisionPath, "plan_hint": decision.PlanHint,
	}, nil, nil)

	// 8. Branch by intent.
	switch decision.Intent {
	case classifier.IntentChat:
		return e.branchChat(ctx, run, decision, interpretation, chatHistory)
	case classifier.IntentAct:
		return e.branchAct(ctx, run, decision, interpretation)
	default:
		return e.branchAskClarify(ctx, run, decision)
	}
}

// composeModePurpose resolves the run's executable mode. For ACT, the
// classifier's act_hint.suggested_run_mode upgrades a caller-requested mode
// to execute_confirm when the plan touches anything outside the computer
// (TEXT_ONLY target) or the raw request matched a danger pattern; it never
// downgrades an explicit caller request away from execute_confirm.
func composeModePurpose(intent classifier.Intent, requestedMode models.RunMode, suggestedRunMode models.RunMode) (models.RunMode, string) {
	switch intent {
	case classifier.IntentChat:
		return models.ModePlanOnly, "chat_only"
	case classifier.IntentAskClarify:
		return models.ModePlanOnly, "clarify"
	default: // ACT
		mode := requestedMode
		if suggestedRunMode == models.ModeExecuteConfirm {
			mode = models.ModeExecuteConfirm
		}
		return mode, ""
	}
}

func (e *Engine) branchChat(ctx context.Context, run *models.Run, decision classifier.Decision, interp memory.Interpretation, history []string) (*CreateRunResult, error) {
	var chatText string
	if decision.DecisionPath == "semantic_resilience" {
		chatText = fallbackChatText
		if decision.UserVisibleNote != "" {
			chatText = decision.UserVisibleNote
		}
		e.events.Emit(ctx, run.ID, "chat_response_generated", "info", "", models.JSONMap{"degraded": true}, nil, nil)
	} else {
		styleHint := decision.ResponseStyleHint
		if styleHint == "" {
			styleHint = e.parentStyleHint(ctx, run)
		}
		resp := e.router.Call(ctx, brainrouter.Request{
			RunID: run.ID, Purpose: "chat_response", TaskKind: "chat", PreferredKind: "chat",
			Messages:      buildChatMessages(run.QueryText, history, styleHint),
			Policy:        brainrouter.PolicyFlags{StrictLocal: true},
		})
		if resp.Status == brainrouter.StatusOK {
			chatText = resp.Text
		} else {
			chatText = fallbackChatText
		}
		e.events.Emit(ctx, run.ID, "chat_response_generated", "info", "", models.JSONMap{"degraded": false}, nil, nil)
	}

	if interp.ShouldStore {
		if err := e.saveMemoryBestEffort(ctx, run.ID, interp); err != nil {
			e.events.Emit(ctx, run.ID, "llm_request_failed", "warn", err.Error(), models.JSONMap{"error_type": "memory_save_failed"}, nil, nil)
		}
	}

	if _, err := e.store.UpdateRunStatus(ctx, run.ID, models.RunDone); err != nil {
		return nil, err
	}
	return &CreateRunResult{Kind: "chat", Run: run, ChatResponse: chatText}, nil
}

func (e *Engine) branchAct(ctx context.Context, run *models.Run, decision classifier.Decision, interp memory.Interpretation) (*CreateRunResult, error) {
	steps, err := planner.Plan(planner.Input{
		Query: run.QueryText, Intent: decision.Intent, PlanHint: decision.PlanHint,
		MemoryItem: decision.MemoryItem, MemoryInterpretation: &interp, Now: time.Now(),
		DangerFlags: decision.DangerFlags,
	})
	if err != nil {
		return nil, err
	}
	if err := e.store.ReplacePlanSteps(ctx, run.ID, steps); err != nil {
		return nil, err
	}
	e.events.Emit(ctx, run.ID, "plan_created", "info", "", models.JSONMap{"step_count": len(steps)}, nil, nil)

	plan, err := e.store.ListPlanSteps(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return &CreateRunResult{Kind: "act", Run: run, Plan: plan}, nil
}

func (e *Engine) branchAskClarify(ctx context.Context, run *models.Run, decision classifier.Decision) (*CreateRunResult, error) {
	var questions []string
	if decision.UserVisibleNote != "" {
		questions = []string{decision.UserVisibleNote}
	}
	e.events.Emit(ctx, run.ID, "clarify_requested", "info", "", models.JSONMap{"questions": questions}, nil, nil)
	if _, err := e.store.UpdateRunStatus(ctx, run.ID, models.RunDone); err != nil {
		return nil, err
	}
	return &CreateRunResult{Kind: "clarify", Run: run, Questions: questions}, nil
}

func buildChatMessages(query string, history []string, styleHint string) []brainrouter.Message {
	sys := "You are a helpful local-first assistant."
	if styleHint != "" {
		sys += " Style: " + styleHint
	}
	msgs := []brainrouter.Message{{Role: "system", Content: sys}}
	for _, h := range history {
		msgs = append(msgs, brainrouter.Message{Role: "user", Content: h})
	}
	msgs = append(msgs, brainrouter.Message{Role: "user", Content: query})
	return msgs
}
