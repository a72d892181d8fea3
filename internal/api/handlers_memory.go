package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/localfirst/assistant/internal/models"
)

func (s *Server) listMemoriesHandler(c *gin.Context) {
	memories, err := s.store.ListUserMemories(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": memories})
}

func (s *Server) deleteMemoryHandler(c *gin.Context) {
	if err := s.store.DeleteUserMemory(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) approveHandler(c *gin.Context) {
	var body struct {
		Decision models.JSONMap `json:"decision"`
	}
	_ = c.ShouldBindJSON(&body)
	a, err := s.approvals.Decide(c.Request.Context(), c.Param("id"), true, body.Decision, "api_user")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) rejectHandler(c *gin.Context) {
	var body struct {
		Decision models.JSONMap `json:"decision"`
	}
	_ = c.ShouldBindJSON(&body)
	a, err := s.approvals.Decide(c.Request.Context(), c.Param("id"), false, body.Decision, "api_user")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
