package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/localfirst/assistant/internal/models"
)

func (s *Server) createRunHandler(c *gin.Context) {
	var body struct {
		QueryText   string          `json:"query_text" binding:"required"`
		Mode        models.RunMode  `json:"mode"`
		ParentRunID *string         `json:"parent_run_id"`
		Purpose     string          `json:"purpose"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}
	if body.Mode == "" {
		body.Mode = models.ModePlanOnly
	}
	result, err := s.engine.CreateRun(c.Request.Context(), c.Param("id"), body.QueryText, body.Mode, body.ParentRunID, body.Purpose)
	if err != nil {
		writeError(c, err)
		return
	}
	switch result.Kind {
	case "act":
		c.JSON(http.StatusCreated, gin.H{"kind": "act", "run": result.Run, "plan": result.Plan})
	case "chat":
		c.JSON(http.StatusCreated, gin.H{"kind": "chat", "run": result.Run, "chat_response": result.ChatResponse})
	default:
		c.JSON(http.StatusCreated, gin.H{"kind": "clarify", "run": result.Run, "questions": result.Questions})
	}
}

func (s *Server) startRunHandler(c *gin.Context) {
	runID := c.Param("id")
	go func() {
		if err := s.starter.StartRun(runContext(), runID); err != nil {
			s.log.Error("run execution failed", "run_id", runID, "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (s *Server) pauseRunHandler(c *gin.Context) {
	if err := s.engine.PauseRun(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) resumeRunHandler(c *gin.Context) {
	if err := s.engine.ResumeRun(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) cancelRunHandler(c *gin.Context) {
	if err := s.engine.CancelRun(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) retryTaskHandler(c *gin.Context) {
	go func() {
		if err := s.engine.RetryTask(runContext(), c.Param("id"), c.Param("tid")); err != nil {
			s.log.Error("task retry failed", "run_id", c.Param("id"), "task_id", c.Param("tid"), "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (s *Server) retryStepHandler(c *gin.Context) {
	go func() {
		if err := s.engine.RetryStep(runContext(), c.Param("id"), c.Param("sid")); err != nil {
			s.log.Error("step retry failed", "run_id", c.Param("id"), "step_id", c.Param("sid"), "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (s *Server) getPlanHandler(c *gin.Context) {
	steps, err := s.store.ListPlanSteps(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": steps})
}

func (s *Server) getTasksHandler(c *gin.Context) {
	tasks, err := s.store.ListTasksForRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// eventsByType returns every event of the given run matching any of types,
// the shared plumbing behind sources/facts/conflicts/artifacts (each is
// just a filtered view over the run's event log).
func (s *Server) eventsByType(c *gin.Context, types ...string) ([]*models.Event, error) {
	events, err := s.store.ListEvents(c.Request.Context(), c.Param("id"), 5000)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	filtered := make([]*models.Event, 0, len(events))
	for _, ev := range events {
		if wanted[ev.Type] {
			filtered = append(filtered, ev)
		}
	}
	return filtered, nil
}

func (s *Server) getSourcesHandler(c *gin.Context) {
	events, err := s.eventsByType(c, "source_found", "source_fetched")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": events})
}

func (s *Server) getFactsHandler(c *gin.Context) {
	events, err := s.eventsByType(c, "fact_extracted")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"facts": events})
}

func (s *Server) getConflictsHandler(c *gin.Context) {
	events, err := s.eventsByType(c, "conflict_detected")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": events})
}

func (s *Server) getArtifactsHandler(c *gin.Context) {
	events, err := s.eventsByType(c, "artifact_created")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": events})
}

func (s *Server) getApprovalsHandler(c *gin.Context) {
	approvals, err := s.store.ListApprovalsForRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approvals": approvals})
}
