package brainrouter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKeyStableForIdenticalInput(t *testing.T) {
	in := cacheKeyInput{Route: RouteLocal, ModelID: "m1", Messages: []Message{{Role: "user", Content: "hi"}}}
	assert.Equal(t, cacheKey(in), cacheKey(in))
}

func TestCacheKeyDiffersOnModelID(t *testing.T) {
	a := cacheKeyInput{Route: RouteLocal, ModelID: "m1"}
	b := cacheKeyInput{Route: RouteLocal, ModelID: "m2"}
	assert.NotEqual(t, cacheKey(a), cacheKey(b))
}

func TestRunCacheMissThenHit(t *testing.T) {
	c := newRunCache()
	_, ok := c.get("run-1", "key-1")
	assert.False(t, ok)

	c.put("run-1", "key-1", Response{Text: "hello"})
	resp, ok := c.get("run-1", "key-1")
	assert.True(t, ok)
	assert.Equal(t, "hello", resp.Text)
}

func TestRunCacheIsolatedPerRun(t *testing.T) {
	c := newRunCache()
	c.put("run-1", "key-1", Response{Text: "a"})
	_, ok := c.get("run-2", "key-1")
	assert.False(t, ok)
}
