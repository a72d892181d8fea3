package skills

import (
	"context"
	"fmt"
	"time"

	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/skillrunner"
)

// reminderStore is the subset of *store.Store reminder_create needs.
type reminderStore interface {
	CreateReminder(ctx context.Context, r *models.Reminder) (*models.Reminder, error)
}

// NewReminderCreate builds the reminder_create manifest: a safe skill that
// persists a due_at/text pair the Planner already parsed out of the user's
// message (see planner.parseReminder) as a pending reminder row.
func NewReminderCreate(st reminderStore) *skillrunner.Manifest {
	return &skillrunner.Manifest{
		SkillName: "reminder_create",
		Scope:     skillrunner.ScopeSafe,
		InputSchema: []byte(`{
			"type": "object",
			"properties": {
				"due_at": {"type": "string"},
				"text": {"type": "string"}
			},
			"required": ["due_at", "text"],
			"additionalProperties": false
		}`),
		Entry: func(inputs models.JSONMap, ctx skillrunner.Context) (skillrunner.SkillResult, error) {
			dueAtRaw, _ := inputs["due_at"].(string)
			text, _ := inputs["text"].(string)
			dueAt, err := time.Parse(time.RFC3339, dueAtRaw)
			if err != nil {
				return skillrunner.SkillResult{}, fmt.Errorf("reminder_create: invalid due_at %q: %w", dueAtRaw, err)
			}
			runID := ctx.RunID
			r, err := st.CreateReminder(ctx, &models.Reminder{
				DueAt: dueAt, Text: text, Status: models.ReminderPending,
				Delivery: models.DeliveryLocal, RunID: &runID,
			})
			if err != nil {
				return skillrunner.SkillResult{}, err
			}
			return skillrunner.SkillResult{
				WhatIDid:   "scheduled a reminder for " + dueAt.Format(time.RFC3339),
				Confidence: 1,
				Artifacts:  []models.JSONMap{{"reminder_id": r.ID, "due_at": dueAtRaw, "text": text}},
			}, nil
		},
	}
}
