package skills

import (
	"context"

	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/skillrunner"
	"github.com/localfirst/assistant/internal/store"
)

// memoryStore is the subset of *store.Store memory_save needs.
type memoryStore interface {
	FindUserMemoryByTitle(ctx context.Context, title string) (*models.UserMemory, error)
	CreateUserMemory(ctx context.Context, m *models.UserMemory) (*models.UserMemory, error)
	UpdateUserMemory(ctx context.Context, id, content string, meta models.JSONMap) (*models.UserMemory, error)
}

// NewMemorySave builds the memory_save manifest: a safe skill that persists
// a memory_payload, deduping by title (mirrors the Run Engine's own
// best-effort save path in runengine/memory_save.go; this is the path taken
// when MEMORY_COMMIT reaches the skill runner via an explicit plan step
// rather than the CHAT branch's inline save).
func NewMemorySave(st memoryStore) *skillrunner.Manifest {
	return &skillrunner.Manifest{
		SkillName: "memory_save",
		Scope:     skillrunner.ScopeSafe,
		InputSchema: []byte(`{
			"type": "object",
			"properties": {"memory_payload": {"type": "object"}},
			"required": ["memory_payload"],
			"additionalProperties": false
		}`),
		Entry: func(inputs models.JSONMap, ctx skillrunner.Context) (skillrunner.SkillResult, error) {
			payload, _ := inputs["memory_payload"].(models.JSONMap)
			if raw, ok := inputs["memory_payload"].(map[string]any); ok {
				payload = raw // shape of a payload decoded back from the store
			}
			title, _ := payload["title"].(string)
			if title == "" {
				title, _ = payload["text"].(string)
			}
			content, _ := payload["summary"].(string)
			if content == "" {
				content, _ = payload["text"].(string)
			}

			existing, err := st.FindUserMemoryByTitle(ctx, title)
			if err == nil && existing != nil {
				meta := existing.Meta
				if meta == nil {
					meta = models.JSONMap{}
				}
				for k, v := range payload {
					meta[k] = v
				}
				if _, err := st.UpdateUserMemory(ctx, existing.ID, content, meta); err != nil {
					return skillrunner.SkillResult{}, err
				}
				return skillrunner.SkillResult{
					WhatIDid: "updated an existing durable memory", Confidence: 1,
					Events: []models.JSONMap{{"type": "memory_saved", "memory_id": existing.ID, "deduped": true}},
				}, nil
			}
			if err != nil && err != store.ErrNotFound {
				return skillrunner.SkillResult{}, err
			}

			m, err := st.CreateUserMemory(ctx, &models.UserMemory{
				Title: title, Content: content, Source: models.MemorySourceAuto, Meta: payload,
			})
			if err != nil {
				return skillrunner.SkillResult{}, err
			}
			return skillrunner.SkillResult{
				WhatIDid: "saved a new durable memory", Confidence: 1,
				Events: []models.JSONMap{{"type": "memory_saved", "memory_id": m.ID, "deduped": false}},
			}, nil
		},
	}
}
