package brainrouter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/localfirst/assistant/internal/config"
	"github.com/localfirst/assistant/internal/models"
)

// eventEmitter is the subset of eventbus.Bus the router needs.
type eventEmitter interface {
	Emit(ctx context.Context, runID, typ, level, message string, payload models.JSONMap, taskID, stepID *string) (*models.Event, error)
}

// budgetTracker owns per-run / per-step spend counters. Spend units are
// response character counts, a workable proxy for token cost that needs no
// provider-specific tokenizer.
type budgetTracker struct {
	mu       sync.Mutex
	perRun   map[string]int64
	perStep  map[string]int64
}

func newBudgetTracker() *budgetTracker {
	return &budgetTracker{perRun: map[string]int64{}, perStep: map[string]int64{}}
}

func (b *budgetTracker) exceeded(runID, stepID string, budgetPerRun, budgetPerStep int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if budgetPerRun > 0 && b.perRun[runID] >= budgetPerRun {
		return true
	}
	if stepID != "" && budgetPerStep > 0 && b.perStep[stepID] >= budgetPerStep {
		return true
	}
	return false
}

func (b *budgetTracker) add(runID, stepID string, n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.perRun[runID] += n
	if stepID != "" {
		b.perStep[stepID] += n
	}
}

// Router is the Brain Router: decides LOCAL vs CLOUD, sanitizes, queues,
// caches, retries, and emits the full llm_* event sequence.
type Router struct {
	cfg    config.BrainRouterConfig
	events eventEmitter
	log    *slog.Logger

	local  *localProvider
	cloud  *cloudProvider
	queue  *admissionQueue
	cache  *runCache
	budget *budgetTracker

	mu             sync.Mutex
	localFailures  map[failureKey]int
}

// New constructs a Router wired to its providers and event sink.
func New(cfg config.BrainRouterConfig, dataDir string, events eventEmitter) *Router {
	return &Router{
		cfg:           cfg,
		events:        events,
		log:           slog.Default().With("component", "brain_router"),
		local:         newLocalProvider(cfg, dataDir),
		cloud:         newCloudProvider(cfg),
		queue:         newAdmissionQueue(cfg.MaxConcurrency),
		cache:         newRunCache(),
		budget:        newBudgetTracker(),
		localFailures: map[failureKey]int{},
	}
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Call implements the full pipeline in spec.md §4.C, in order.
func (r *Router) Call(ctx context.Context, req Request) Response {
	taskID, stepID := ptr(req.TaskID), ptr(req.StepID)

	// 1. QA-mode short-circuit.
	if r.cfg.QAMode {
		r.emitRouteDecided(ctx, req, RouteLocal, "qa_mode", taskID, stepID)
		resp := Response{Text: "[qa-mode stub response]", Provider: RouteLocal, ModelID: r.cfg.LocalChatModel, Status: StatusOK}
		r.events.Emit(ctx, req.RunID, "llm_request_started", "info", "", models.JSONMap{"route": "LOCAL"}, taskID, stepID)
		r.events.Emit(ctx, req.RunID, "llm_request_succeeded", "info", "", models.JSONMap{"cache_hit": false, "qa_mode": true}, taskID, stepID)
		return resp
	}

	// 2-3. Policy derivation happens by the caller (project settings merged
	// with environment overrides); req.Policy already carries the result.
	route, reason := decideRoute(req.ContextItems, req.Policy)

	// 4. Heuristic auto-switch.
	r.mu.Lock()
	failures := r.localFailures[failureKey{RunID: req.RunID, PreferredKind: req.PreferredKind}]
	r.mu.Unlock()
	route, reason = heuristicAutoSwitch(route, reason, req.ContextItems, req, failures)

	items := req.ContextItems
	modelID := r.cfg.LocalChatModel
	if req.TaskKind == "code" {
		modelID = r.cfg.LocalCodeModel
	}

	// 5. Sanitization (CLOUD path only). Resolved before the single
	// llm_route_decided emission below, so a sanitized-empty fallback to
	// LOCAL is reflected in that one event rather than firing a second.
	if route == RouteCloud {
		san := sanitizeForCloud(items, req.Policy)
		r.events.Emit(ctx, req.RunID, "llm_request_sanitized", "info", "",
			models.JSONMap{
				"removed_by_source_type": san.RemovedBySource,
				"redacted_count":         san.RedactedCount,
				"truncated_count":        san.TruncatedCount,
			}, taskID, stepID)
		if san.Emptied {
			route, reason = RouteLocal, "sanitized_empty_fallback"
		} else {
			items = san.Items
		}
	}
	if route == RouteCloud {
		modelID = r.cfg.CloudModel
	}

	r.emitRouteDecided(ctx, req, route, reason, taskID, stepID)

	// messages is the only payload ever handed to a provider below: derived
	// from items, which on the CLOUD route is the sanitized set. A caller
	// that prebuilds req.Messages is trusted to never also pass
	// ContextItems containing anything sanitization would need to touch.
	messages := req.Messages
	if len(messages) == 0 {
		messages = renderMessages(items)
	}

	// 6. Cache lookup.
	key := cacheKey(cacheKeyInput{
		Route: route, ModelID: modelID, Temperature: req.Temperature, MaxTokens: req.MaxTokens,
		Messages: messages, JSONSchema: req.JSONSchema, Tools: req.Tools,
	})
	if cached, ok := r.cache.get(req.RunID, key); ok {
		cached.CacheHit = true
		cached.LatencyMs = 0
		r.events.Emit(ctx, req.RunID, "llm_request_started", "info", "", models.JSONMap{"route": string(route), "cache_hit": true}, taskID, stepID)
		r.events.Emit(ctx, req.RunID, "llm_request_succeeded", "info", "", models.JSONMap{"cache_hit": true, "latency_ms": 0}, taskID, stepID)
		return cached
	}

	// 7. Budget check.
	if r.budget.exceeded(req.RunID, req.StepID, r.cfg.BudgetPerRun, r.cfg.BudgetPerStep) {
		r.events.Emit(ctx, req.RunID, "llm_budget_exceeded", "warn", "", models.JSONMap{"route": string(route)}, taskID, stepID)
		return Response{Status: StatusBudgetExceeded, Provider: route, ModelID: modelID}
	}

	// 8. Queue.
	if err := r.queue.acquire(ctx); err != nil {
		return Response{Status: StatusError, ErrorType: "queue_canceled", Provider: route, ModelID: modelID}
	}
	defer r.queue.release()

	r.events.Emit(ctx, req.RunID, "llm_request_started", "info", "", models.JSONMap{"route": string(route)}, taskID, stepID)

	// 9. Provider invocation.
	start := time.Now()
	var result providerResult
	if route == RouteLocal {
		result = r.local.invoke(ctx, req, modelID, messages)
	} else {
		result = r.cloud.invoke(ctx, req, modelID, messages)
	}
	latency := time.Since(start).Milliseconds()

	// 11. Failure accounting (LOCAL only, per spec.md §4.C step 11).
	if route == RouteLocal {
		r.accountLocalOutcome(req, result)
	}

	if result.Err != nil {
		r.events.Emit(ctx, req.RunID, "llm_request_failed", "error", result.Err.Error(),
			models.JSONMap{"route": string(route), "error_type": result.ErrorType, "retry_count": result.RetryCount, "artifact_path": result.ArtifactPath}, taskID, stepID)
		return Response{
			Status: StatusError, ErrorType: result.ErrorType, Provider: route, ModelID: modelID,
			LatencyMs: latency, RetryCount: result.RetryCount, ArtifactPath: result.ArtifactPath,
		}
	}

	// 10. Response assembly.
	resp := Response{
		Text: result.Text, Usage: result.Usage, Provider: route, ModelID: modelID,
		LatencyMs: latency, CacheHit: false, RouteReason: reason, Status: StatusOK, RetryCount: result.RetryCount,
	}
	r.cache.put(req.RunID, key, resp)
	r.budget.add(req.RunID, req.StepID, int64(len(resp.Text)))
	r.events.Emit(ctx, req.RunID, "llm_request_succeeded", "info", "",
		models.JSONMap{"route": string(route), "cache_hit": false, "latency_ms": latency}, taskID, stepID)
	return resp
}

func (r *Router) accountLocalOutcome(req Request, result providerResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := failureKey{RunID: req.RunID, PreferredKind: req.PreferredKind}
	if result.Err != nil || result.Text == "" {
		r.localFailures[key]++
	} else {
		r.localFailures[key] = 0
	}
}

func (r *Router) emitRouteDecided(ctx context.Context, req Request, route Route, reason string, taskID, stepID *string) {
	r.events.Emit(ctx, req.RunID, "llm_route_decided", "info", "", models.JSONMap{
		"route":                      string(route),
		"reason":                     reason,
		"items_summary_by_source_type": itemsSummaryBySourceType(req.ContextItems),
	}, taskID, stepID)
}

// renderMessages builds a simple messages array from context items when
// the caller didn't prebuild one.
func renderMessages(items []ContextItem) []Message {
	msgs := make([]Message, 0, len(items)+1)
	for _, it := range items {
		role := "user"
		if it.SourceType == "system_note" {
			role = "system"
		}
		msgs = append(msgs, Message{Role: role, Content: it.Content})
	}
	return msgs
}
