package runengine

import (
	"context"

	"github.com/localfirst/assistant/internal/models"
)

// loadChatHistory walks the parent_run_id chain from runID upward, collecting
// up to e.historyWindow prior chat turns (query_text of each ancestor run),
// oldest first, for use as prompt continuity context in the CHAT branch.
// SUPPLEMENTED FEATURES: chat history windowing recovered from the original
// implementation, bounded by the historyWindow passed to New (cmd/assistantd
// passes 10; New turns a non-positive value into 10). No environment
// variable sets it.
func (e *Engine) loadChatHistory(ctx context.Context, runID string) ([]string, error) {
	var turns []string
	current := runID
	for i := 0; i < e.historyWindow && current != ""; i++ {
		run, err := e.store.GetRun(ctx, current)
		if err != nil {
			break
		}
		if run.ParentRunID == nil {
			break
		}
		parent, err := e.store.GetRun(ctx, *run.ParentRunID)
		if err != nil {
			break
		}
		turns = append([]string{parent.QueryText}, turns...)
		current = parent.ID
	}
	return turns, nil
}

// styleHint resolves the style hint to carry forward into this run's chat
// prompt: the run's own hint if set by the classifier, else the parent
// run's persisted style hint. This is prompt-shaping continuity only — it
// never branches control flow (SUPPLEMENTED FEATURES).
func styleHintFrom(meta map[string]any, parentMeta map[string]any) string {
	if meta != nil {
		if h, ok := meta["style_hint"].(string); ok && h != "" {
			return h
		}
	}
	if parentMeta != nil {
		if h, ok := parentMeta["style_hint"].(string); ok {
			return h
		}
	}
	return ""
}

// parentStyleHint resolves the style hint to carry into a CHAT response
// when this run's own classification didn't provide one: the most recent
// prior run's persisted style_hint, if any (SUPPLEMENTED FEATURES, §D2).
func (e *Engine) parentStyleHint(ctx context.Context, run *models.Run) string {
	if run.ParentRunID == nil {
		return ""
	}
	parent, err := e.store.GetRun(ctx, *run.ParentRunID)
	if err != nil {
		return ""
	}
	return styleHintFrom(run.Meta, parent.Meta)
}
