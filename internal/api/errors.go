// Package api exposes the Run API Surface (spec.md §4.J) over HTTP using
// gin-gonic/gin, matching the teacher's (cmd/tarsy/main.go) router idiom:
// a single gin.Engine, small per-resource handler groups, JSON responses
// via gin.H.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/localfirst/assistant/internal/planner"
	"github.com/localfirst/assistant/internal/skillrunner"
	"github.com/localfirst/assistant/internal/store"
)

// writeError maps a typed sentinel/domain error to an HTTP status and a
// JSON error body, per the store's sentinel errors and the Run Engine's
// domain errors.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, store.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrTokenMismatch):
		status, code = http.StatusConflict, "token_mismatch"
	case errors.Is(err, store.ErrApprovalDecided):
		status, code = http.StatusConflict, "approval_already_decided"
	case errors.Is(err, planner.ErrMemoryItemMissing):
		status, code = http.StatusUnprocessableEntity, "memory_item_missing"
	default:
		var unknownSkill *skillrunner.ErrUnknownSkill
		var scopeErr *skillrunner.ErrScopeNotApproved
		switch {
		case errors.As(err, &unknownSkill):
			status, code = http.StatusUnprocessableEntity, "unknown_skill"
		case errors.As(err, &scopeErr):
			status, code = http.StatusForbidden, "scope_not_approved"
		}
	}

	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
