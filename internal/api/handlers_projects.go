package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/localfirst/assistant/internal/models"
)

func (s *Server) createProjectHandler(c *gin.Context) {
	var body struct {
		Name     string         `json:"name" binding:"required"`
		Settings models.JSONMap `json:"settings"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}
	p, err := s.store.CreateProject(c.Request.Context(), body.Name, body.Settings)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) listProjectsHandler(c *gin.Context) {
	projects, err := s.store.ListProjects(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (s *Server) getProjectHandler(c *gin.Context) {
	p, err := s.store.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) updateProjectHandler(c *gin.Context) {
	var body struct {
		Name     string         `json:"name" binding:"required"`
		Settings models.JSONMap `json:"settings"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}
	p, err := s.store.UpdateProject(c.Request.Context(), c.Param("id"), body.Name, body.Settings)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) searchMemoryHandler(c *gin.Context) {
	q := c.Query("q")
	memories, err := s.store.SearchUserMemories(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": memories})
}
