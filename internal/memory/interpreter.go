// Package memory implements the Memory Interpreter (spec.md §4.E): a
// LOCAL-only call that inspects the current message plus recent chat
// history and the known user profile, and proposes durable facts to save.
// It never fails a run — interpreter errors are recorded on the decision
// and skipped by the caller, the same fail-open posture as the Brain
// Router's CLOUD-path sanitization fallback.
package memory

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/localfirst/assistant/internal/brainrouter"
)

// Fact is one durable fact candidate.
type Fact struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

// Interpretation is the validated output of one interpreter call.
type Interpretation struct {
	ShouldStore   bool     `json:"should_store"`
	Confidence    float64  `json:"confidence"`
	Facts         []Fact   `json:"facts"`
	Preferences   []Fact   `json:"preferences"`
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	PossibleFacts []Fact   `json:"possible_facts"`
	Error         string   `json:"-"`
}

const confidenceFloor = 0.55

// Skipped returns the sentinel interpretation used when semantic resilience
// is active for this message (spec.md §4.E).
func Skipped() Interpretation {
	return Interpretation{Error: "memory_interpreter_skipped_semantic_resilience"}
}

// Interpreter wraps a Brain Router call.
type Interpreter struct {
	router *brainrouter.Router
}

// New constructs an Interpreter over a Brain Router.
func New(router *brainrouter.Router) *Interpreter {
	return &Interpreter{router: router}
}

const systemPrompt = `Extract durable user facts and preferences worth remembering from the ` +
	`latest message, given recent history and the known profile. Respond with strict JSON: ` +
	`{"should_store":false,"confidence":0.0,"facts":[{"key":"","value":"","confidence":0.0,"evidence":""}],` +
	`"preferences":[],"title":"","summary":"","possible_facts":[]}. evidence fields must be literal substrings of the message.`

// Interpret runs the interpreter call and validates its output. Any failure
// (transport, JSON) is recorded on Interpretation.Error and ShouldStore is
// forced false; it never returns a Go error because callers must never let
// this subsystem fail a run.
func (it *Interpreter) Interpret(ctx context.Context, runID, userText string, history []string, knownProfile string) Interpretation {
	var historyBlock strings.Builder
	for _, h := range history {
		historyBlock.WriteString(h)
		historyBlock.WriteString("\n")
	}

	resp := it.router.Call(ctx, brainrouter.Request{
		RunID:         runID,
		Purpose:       "memory_interpretation",
		TaskKind:      "extraction",
		PreferredKind: "extraction",
		Messages: []brainrouter.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Known profile:\n" + knownProfile + "\n\nHistory:\n" + historyBlock.String() + "\n\nMessage:\n" + userText},
		},
		Policy: brainrouter.PolicyFlags{StrictLocal: true},
	})

	if resp.Status != brainrouter.StatusOK {
		return Interpretation{Error: "memory_interpreter_llm_failed"}
	}

	var raw Interpretation
	if err := json.Unmarshal([]byte(resp.Text), &raw); err != nil {
		return Interpretation{Error: "memory_interpreter_invalid_json"}
	}
	return sanitize(raw, userText)
}

// sanitize zeroes the confidence of any fact whose evidence isn't a literal
// substring of the message, and forces ShouldStore false below the
// confidence floor — the validation spec.md §4.E requires before a fact is
// allowed downstream into a MEMORY_COMMIT step.
func sanitize(raw Interpretation, userText string) Interpretation {
	for i, f := range raw.Facts {
		if f.Evidence != "" && !strings.Contains(userText, f.Evidence) {
			raw.Facts[i].Confidence = 0
		}
	}
	for i, f := range raw.Preferences {
		if f.Evidence != "" && !strings.Contains(userText, f.Evidence) {
			raw.Preferences[i].Confidence = 0
		}
	}
	if raw.Confidence < confidenceFloor {
		raw.ShouldStore = false
	}
	return raw
}
