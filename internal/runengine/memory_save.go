package runengine

import (
	"context"

	"github.com/localfirst/assistant/internal/memory"
	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/store"
)

// saveMemoryBestEffort persists the interpreter's proposed memory, deduping
// by title against existing non-deleted memories (SUPPLEMENTED FEATURES:
// update-in-place on a title match instead of creating a duplicate). Errors
// here are surfaced to the caller to log, never to fail the run.
func (e *Engine) saveMemoryBestEffort(ctx context.Context, runID string, interp memory.Interpretation) error {
	content := interp.Summary
	if content == "" && len(interp.Facts) > 0 {
		content = interp.Facts[0].Value
	}

	existing, err := e.store.FindUserMemoryByTitle(ctx, interp.Title)
	if err == nil && existing != nil {
		meta := existing.Meta
		if meta == nil {
			meta = models.JSONMap{}
		}
		meta["facts"] = interp.Facts
		meta["preferences"] = interp.Preferences
		_, err := e.store.UpdateUserMemory(ctx, existing.ID, content, meta)
		if err == nil {
			e.events.Emit(ctx, runID, "memory_saved", "info", "", models.JSONMap{"memory_id": existing.ID, "deduped": true}, nil, nil)
		}
		return err
	}
	if err != nil && err != store.ErrNotFound {
		return err
	}

	e.events.Emit(ctx, runID, "memory_save_requested", "info", "", models.JSONMap{"title": interp.Title}, nil, nil)
	m, err := e.store.CreateUserMemory(ctx, &models.UserMemory{
		Title: interp.Title, Content: content, Source: models.MemorySourceAuto,
		Meta: models.JSONMap{"facts": interp.Facts, "preferences": interp.Preferences},
	})
	if err != nil {
		return err
	}
	e.events.Emit(ctx, runID, "memory_saved", "info", "", models.JSONMap{"memory_id": m.ID, "deduped": false}, nil, nil)
	return nil
}
