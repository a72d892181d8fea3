package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/localfirst/assistant/internal/planner"
	"github.com/localfirst/assistant/internal/skillrunner"
	"github.com/localfirst/assistant/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func writeErrorAndRecord(err error) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeError(c, err)
	return w
}

func TestWriteErrorNotFound(t *testing.T) {
	w := writeErrorAndRecord(store.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}

func TestWriteErrorTokenMismatch(t *testing.T) {
	w := writeErrorAndRecord(store.ErrTokenMismatch)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "token_mismatch")
}

func TestWriteErrorApprovalDecided(t *testing.T) {
	w := writeErrorAndRecord(store.ErrApprovalDecided)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "approval_already_decided")
}

func TestWriteErrorMemoryItemMissing(t *testing.T) {
	w := writeErrorAndRecord(planner.ErrMemoryItemMissing)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "memory_item_missing")
}

func TestWriteErrorUnknownSkill(t *testing.T) {
	w := writeErrorAndRecord(&skillrunner.ErrUnknownSkill{SkillName: "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_skill")
}

func TestWriteErrorScopeNotApproved(t *testing.T) {
	w := writeErrorAndRecord(&skillrunner.ErrScopeNotApproved{SkillName: "computer_autopilot"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "scope_not_approved")
}

func TestWriteErrorDefaultsToInternalError(t *testing.T) {
	w := writeErrorAndRecord(assertErr("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_error")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
