package brainrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/localfirst/assistant/internal/config"
)

// providerResult is the raw outcome of one HTTP attempt against a provider,
// before per-call bookkeeping (latency, cache, counters) is layered on.
type providerResult struct {
	Text         string
	Usage        map[string]any
	ErrorType    string
	Err          error
	RetryCount   int
	ArtifactPath string
}

// localProvider calls an Ollama-style local inference server.
type localProvider struct {
	cfg    config.BrainRouterConfig
	client *http.Client
	dataDir string
}

func newLocalProvider(cfg config.BrainRouterConfig, dataDir string) *localProvider {
	return &localProvider{cfg: cfg, client: &http.Client{Timeout: cfg.LocalTimeout}, dataDir: dataDir}
}

func renderFlatPrompt(messages []Message) string {
	var sys, user strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			sys.WriteString(m.Content)
			sys.WriteString("\n")
		default:
			user.WriteString(m.Content)
			user.WriteString("\n")
		}
	}
	return fmt.Sprintf("System:\n%s\n\nUser:\n%s\n\nAssistant:", sys.String(), user.String())
}

// invoke implements spec.md §4.C step 9 LOCAL: POST /api/chat, retry once
// simplified on 5xx, fall back to /api/generate when schema/tools-free.
// messages is the payload the router computed — the provider never reads
// req.Messages itself. It comes from the sanitized items only when the
// final route is CLOUD; a sanitized-empty fallback to LOCAL renders the
// original, unsanitized items.
func (p *localProvider) invoke(ctx context.Context, req Request, modelID string, messages []Message) providerResult {
	res, httpErr := p.callChat(ctx, req, modelID, messages, req.JSONSchema, req.Tools)
	if httpErr == nil {
		return res
	}

	if isServerError(httpErr) {
		simplified, err2 := p.callChat(ctx, req, modelID, messages, nil, nil)
		if err2 == nil {
			simplified.RetryCount = 1
			return simplified
		}
		if len(req.JSONSchema) == 0 && len(req.Tools) == 0 {
			gen, err3 := p.callGenerate(ctx, req, modelID, messages)
			if err3 == nil {
				gen.RetryCount = 2
				return gen
			}
			artifact := p.persistFailureArtifact(req, "generate", err3)
			return providerResult{Err: err3, ErrorType: classifyLocalError(err3), RetryCount: 2, ArtifactPath: artifact}
		}
		artifact := p.persistFailureArtifact(req, "chat_simplified", err2)
		return providerResult{Err: err2, ErrorType: classifyLocalError(err2), RetryCount: 1, ArtifactPath: artifact}
	}

	artifact := p.persistFailureArtifact(req, "chat", httpErr)
	return providerResult{Err: httpErr, ErrorType: classifyLocalError(httpErr), RetryCount: 0, ArtifactPath: artifact}
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("local llm http %d: %s", e.status, e.body)
}

func isServerError(err error) bool {
	var se *httpStatusError
	if e, ok := err.(*httpStatusError); ok {
		se = e
	}
	return se != nil && se.status >= 500
}

func classifyLocalError(err error) string {
	if se, ok := err.(*httpStatusError); ok {
		if strings.Contains(strings.ToLower(se.body), "model") && strings.Contains(strings.ToLower(se.body), "not found") {
			return "model_not_found"
		}
	}
	return "local_provider_error"
}

func (p *localProvider) callChat(ctx context.Context, req Request, modelID string, messages []Message, schema map[string]any, tools []ToolDefinition) (providerResult, error) {
	payload := map[string]any{
		"model":    modelID,
		"messages": messages,
		"stream":   false,
	}
	if len(schema) > 0 {
		payload["format"] = schema
	}
	if len(tools) > 0 {
		payload["tools"] = tools
	}
	return p.post(ctx, "/api/chat", payload)
}

func (p *localProvider) callGenerate(ctx context.Context, req Request, modelID string, messages []Message) (providerResult, error) {
	payload := map[string]any{
		"model":  modelID,
		"prompt": renderFlatPrompt(messages),
		"stream": false,
	}
	return p.post(ctx, "/api/generate", payload)
}

func (p *localProvider) post(ctx context.Context, path string, payload map[string]any) (providerResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return providerResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.LocalBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return providerResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return providerResult{}, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return providerResult{}, &httpStatusError{status: resp.StatusCode, body: string(respBody)}
	}

	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Response string         `json:"response"`
		Usage    map[string]any `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return providerResult{}, fmt.Errorf("decode local llm response: %w", err)
	}
	text := parsed.Message.Content
	if text == "" {
		text = parsed.Response
	}
	return providerResult{Text: text, Usage: parsed.Usage}, nil
}

// persistFailureArtifact writes a redacted failure record under
// artifacts/local_llm_failures/ per spec.md §4.C step 9, returning the
// relative path so callers can attach it to the error.
func (p *localProvider) persistFailureArtifact(req Request, variant string, cause error) string {
	dir := filepath.Join(p.dataDir, "artifacts", "local_llm_failures")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	ts := time.Now().UTC().Format("20060102T150405Z")
	name := fmt.Sprintf("%s_%s_%s_%s.json", ts, req.RunID, req.StepID, variant)
	rel := filepath.Join("artifacts", "local_llm_failures", name)

	record := map[string]any{
		"ts":        ts,
		"run_id":    req.RunID,
		"step_id":   req.StepID,
		"variant":   variant,
		"error":     cause.Error(),
		"task_kind": req.TaskKind,
	}
	b, _ := json.MarshalIndent(record, "", "  ")
	_ = os.WriteFile(filepath.Join(p.dataDir, rel), b, 0o644)
	return rel
}

// cloudProvider calls an OpenAI-style chat-completions endpoint. Outbound
// requests are paced by a token-bucket limiter independent of the brain
// router's FIFO admission queue, so a retry storm against one slow cloud
// call can't starve the rest of the queue's outbound bandwidth.
type cloudProvider struct {
	cfg     config.BrainRouterConfig
	client  *http.Client
	limiter *rate.Limiter
}

func newCloudProvider(cfg config.BrainRouterConfig) *cloudProvider {
	return &cloudProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cloudRequestsPerSecond), cloudBurst),
	}
}

const (
	cloudRequestsPerSecond = 5
	cloudBurst             = 3
)

// invoke implements spec.md §4.C step 9 CLOUD: requires OPENAI_API_KEY,
// retries on 429/5xx with exponential+jitter backoff up to max_retries.
// messages is the sanitized payload computed by the router — the only copy
// of the context that may ever leave the machine.
func (p *cloudProvider) invoke(ctx context.Context, req Request, modelID string, messages []Message) providerResult {
	if p.cfg.CloudAPIKey == "" {
		return providerResult{Err: fmt.Errorf("missing api key"), ErrorType: "missing_api_key"}
	}

	maxRetries := p.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseMs := p.cfg.BackoffBaseMs
	if baseMs <= 0 {
		baseMs = 500
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(baseMs) * time.Millisecond
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.5
	bounded := backoff.WithMaxRetries(bo, uint64(maxRetries))
	bounded.Reset()

	var (
		out     providerResult
		attempt int
	)
	operation := func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		res, status, err := p.callChatCompletions(ctx, req, modelID, messages)
		if err == nil {
			res.RetryCount = attempt
			out = res
			return nil
		}
		retryable := status == http.StatusTooManyRequests || status >= 500
		attempt++
		if !retryable {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(bounded, ctx))
	if err != nil {
		if ctx.Err() != nil {
			return providerResult{Err: ctx.Err(), ErrorType: "canceled", RetryCount: attempt}
		}
		return providerResult{Err: err, ErrorType: "cloud_provider_error", RetryCount: attempt}
	}
	return out
}

func (p *cloudProvider) callChatCompletions(ctx context.Context, req Request, modelID string, messages []Message) (providerResult, int, error) {
	payload := map[string]any{
		"model":       modelID,
		"messages":    messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if len(req.JSONSchema) > 0 {
		payload["response_format"] = map[string]any{"type": "json_schema", "json_schema": req.JSONSchema}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return providerResult{}, 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.CloudBaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return providerResult{}, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.CloudAPIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return providerResult{}, 0, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return providerResult{}, resp.StatusCode, &httpStatusError{status: resp.StatusCode, body: string(respBody)}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage map[string]any `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return providerResult{}, resp.StatusCode, fmt.Errorf("decode cloud llm response: %w", err)
	}
	text := ""
	if len(parsed.Choices) > 0 {
		text = parsed.Choices[0].Message.Content
	}
	return providerResult{Text: text, Usage: parsed.Usage}, resp.StatusCode, nil
}
