package brainrouter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// cacheKeyInput is exactly the fields spec.md §4.C step 6 says the cache key
// covers.
type cacheKeyInput struct {
	Route       Route          `json:"route"`
	ModelID     string         `json:"model_id"`
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"max_tokens"`
	Messages    []Message      `json:"messages"`
	JSONSchema  any            `json:"json_schema"`
	Tools       []ToolDefinition `json:"tools"`
}

func cacheKey(in cacheKeyInput) string {
	b, _ := json.Marshal(in)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// runCache holds responses scoped to a single run_id, evicted when the
// owning router drops its reference (runs are short-lived relative to
// process lifetime so no separate TTL sweep is needed).
type runCache struct {
	mu      sync.Mutex
	byRun   map[string]map[string]Response
}

func newRunCache() *runCache {
	return &runCache{byRun: make(map[string]map[string]Response)}
}

func (c *runCache) get(runID, key string) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.byRun[runID]
	if !ok {
		return Response{}, false
	}
	resp, ok := m[key]
	return resp, ok
}

func (c *runCache) put(runID, key string, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.byRun[runID]
	if !ok {
		m = make(map[string]Response)
		c.byRun[runID] = m
	}
	m[key] = resp
}
