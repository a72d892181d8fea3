package brainrouter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localfirst/assistant/internal/config"
	"github.com/localfirst/assistant/internal/models"
)

func TestBudgetTrackerExceededPerRun(t *testing.T) {
	b := newBudgetTracker()
	b.add("run-1", "", 100)
	assert.True(t, b.exceeded("run-1", "", 100, 0))
	assert.False(t, b.exceeded("run-1", "", 200, 0))
}

func TestBudgetTrackerExceededPerStep(t *testing.T) {
	b := newBudgetTracker()
	b.add("run-1", "step-1", 50)
	assert.True(t, b.exceeded("run-1", "step-1", 0, 50))
	assert.False(t, b.exceeded("run-1", "step-2", 0, 50))
}

func TestBudgetTrackerZeroBudgetMeansUnlimited(t *testing.T) {
	b := newBudgetTracker()
	b.add("run-1", "", 1_000_000)
	assert.False(t, b.exceeded("run-1", "", 0, 0))
}

func TestRenderMessagesSystemNoteBecomesSystemRole(t *testing.T) {
	items := []ContextItem{
		{SourceType: "system_note", Content: "be concise"},
		{SourceType: "user_prompt", Content: "hi"},
	}
	msgs := renderMessages(items)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
}

func TestAccountLocalOutcomeIncrementsOnFailure(t *testing.T) {
	r := &Router{localFailures: map[failureKey]int{}}
	req := Request{RunID: "run-1", PreferredKind: "chat"}
	r.accountLocalOutcome(req, providerResult{Err: assertErr("boom")})
	assert.Equal(t, 1, r.localFailures[failureKey{RunID: "run-1", PreferredKind: "chat"}])
}

func TestAccountLocalOutcomeResetsOnSuccess(t *testing.T) {
	r := &Router{localFailures: map[failureKey]int{{RunID: "run-1", PreferredKind: "chat"}: 2}}
	req := Request{RunID: "run-1", PreferredKind: "chat"}
	r.accountLocalOutcome(req, providerResult{Text: "ok"})
	assert.Equal(t, 0, r.localFailures[failureKey{RunID: "run-1", PreferredKind: "chat"}])
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

// recordingEvents records every emitted event type, in order, so a test can
// assert exactly how many times a given type fired.
type recordingEvents struct {
	types []string
}

func (r *recordingEvents) Emit(ctx context.Context, runID, typ, level, message string, payload models.JSONMap, taskID, stepID *string) (*models.Event, error) {
	r.types = append(r.types, typ)
	return &models.Event{}, nil
}

func (r *recordingEvents) count(typ string) int {
	n := 0
	for _, t := range r.types {
		if t == typ {
			n++
		}
	}
	return n
}

// TestCallEmitsRouteDecidedExactlyOnceOnSanitizedEmptyFallback exercises the
// path where a screenshot_text item (not a hard routing floor, unlike
// telegram_text) gets heuristically upgraded to CLOUD and then sanitized
// away entirely, forcing a fallback to LOCAL. llm_route_decided must still
// fire exactly once for the call, reporting the final resolved route.
func TestCallEmitsRouteDecidedExactlyOnceOnSanitizedEmptyFallback(t *testing.T) {
	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"ok"}}`))
	}))
	defer local.Close()

	events := &recordingEvents{}
	cfg := config.BrainRouterConfig{LocalBaseURL: local.URL, LocalChatModel: "llama3.1", MaxConcurrency: 1}
	r := New(cfg, t.TempDir(), events)

	resp := r.Call(context.Background(), Request{
		RunID: "run-1", TaskKind: "heavy_writing",
		ContextItems: []ContextItem{{Content: "screen text", SourceType: "screenshot_text", Public: true}},
		Policy:       PolicyFlags{CloudAllowed: true, AutoCloudEnabled: true},
	})

	require.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, RouteLocal, resp.Provider)
	assert.Equal(t, 1, events.count("llm_route_decided"))
}
