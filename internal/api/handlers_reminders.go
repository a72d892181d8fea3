package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/localfirst/assistant/internal/models"
)

func (s *Server) createReminderHandler(c *gin.Context) {
	var body struct {
		DueAt    time.Time               `json:"due_at" binding:"required"`
		Text     string                  `json:"text" binding:"required"`
		Delivery models.ReminderDelivery `json:"delivery"`
		RunID    *string                 `json:"run_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}
	if body.Delivery == "" {
		body.Delivery = models.DeliveryLocal
	}
	r, err := s.store.CreateReminder(c.Request.Context(), &models.Reminder{
		DueAt: body.DueAt, Text: body.Text, Status: models.ReminderPending,
		Delivery: body.Delivery, RunID: body.RunID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) listRemindersHandler(c *gin.Context) {
	reminders, err := s.store.ListReminders(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": reminders})
}

func (s *Server) cancelReminderHandler(c *gin.Context) {
	if err := s.store.CancelReminder(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
