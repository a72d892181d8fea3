package brainrouter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localfirst/assistant/internal/config"
)

func TestPersistFailureArtifactWritesFileAndReturnsRelativePath(t *testing.T) {
	dataDir := t.TempDir()
	p := newLocalProvider(config.BrainRouterConfig{}, dataDir)

	rel := p.persistFailureArtifact(Request{RunID: "run-1", StepID: "step-1"}, "chat", assertErr("boom"))

	require.NotEmpty(t, rel)
	assert.FileExists(t, filepath.Join(dataDir, rel))
	b, err := os.ReadFile(filepath.Join(dataDir, rel))
	require.NoError(t, err)
	assert.Contains(t, string(b), "boom")
}

func TestLocalInvokeAttachesArtifactPathOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("model not found"))
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	p := newLocalProvider(config.BrainRouterConfig{LocalBaseURL: srv.URL}, dataDir)

	result := p.invoke(context.Background(), Request{RunID: "run-1", StepID: "step-1"}, "llama3.1", []Message{{Role: "user", Content: "hi"}})

	require.Error(t, result.Err)
	assert.NotEmpty(t, result.ArtifactPath)
	assert.FileExists(t, filepath.Join(dataDir, result.ArtifactPath))
}
