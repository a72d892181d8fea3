// Package brainrouter decides LOCAL vs CLOUD for every model call, applies
// privacy sanitization on the CLOUD path, enforces concurrency and budget
// limits, retries with jittered backoff, and caches per run. Grounded on
// tarsy's pkg/agent/llm_client.go (LLMClient/GenerateInput/Chunk shapes) and
// pkg/masking/service.go (fail-closed vs fail-open masking), generalized
// from tarsy's gRPC-backed LLM service client to direct HTTP calls against
// an Ollama-style LOCAL endpoint and an OpenAI-style CLOUD endpoint.
package brainrouter

import (
	"time"

	"github.com/localfirst/assistant/internal/models"
)

// Route is the provider a call is dispatched to.
type Route string

const (
	RouteLocal Route = "LOCAL"
	RouteCloud Route = "CLOUD"
)

// Status is the outcome discriminator every caller must branch on — the
// router never raises for budget or provider failure, it reports status.
type Status string

const (
	StatusOK             Status = "ok"
	StatusBudgetExceeded Status = "budget_exceeded"
	StatusError          Status = "error"
)

// ContextItem is a typed unit of LLM input.
type ContextItem struct {
	Content     string `json:"content"`
	SourceType  string `json:"source_type"` // telegram_text, screenshot_text, file_content, web_page_text, user_prompt, system_note, internal_summary, ...
	Sensitivity string `json:"sensitivity,omitempty"`
	Provenance  string `json:"provenance,omitempty"`
	Public      bool   `json:"public"`
	Approved    bool   `json:"approved,omitempty"` // already approved in scope (e.g. cloud_financial_file)
}

// Message is a single chat-format message sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDefinition is an optional tool/function schema passed to the provider.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  models.JSONMap `json:"parameters,omitempty"`
}

// PolicyFlags are the merged project+environment settings governing routing.
type PolicyFlags struct {
	AutoCloudEnabled  bool
	CloudAllowed      bool
	StrictLocal       bool
	MaxCloudChars     int
	MaxCloudItemChars int
}

// Request is the Brain Router's public input.
type Request struct {
	RunID         string
	TaskID        string
	StepID        string
	Purpose       string
	TaskKind      string // heavy_writing, long_form, report, code, ...
	PreferredKind string // used as the failure-accounting key alongside run_id
	ContextItems  []ContextItem
	Messages      []Message // prebuilt; if empty, renderMessages builds from ContextItems
	Temperature   float64
	MaxTokens     int
	JSONSchema    models.JSONMap
	Tools         []ToolDefinition
	Policy        PolicyFlags
}

// Response is the Brain Router's public output.
type Response struct {
	Text       string
	Usage      models.JSONMap
	Provider   Route
	ModelID    string
	LatencyMs  int64
	CacheHit   bool
	RouteReason string
	Status     Status
	ErrorType  string
	RetryCount int
	ArtifactPath string // relative path of a persisted failure artifact, set only on error
}

// failureKey identifies a (run, preferred_kind) failure counter.
type failureKey struct {
	RunID         string
	PreferredKind string
}

// nowFunc is overridable in tests; defaults to time.Now.
var nowFunc = time.Now
