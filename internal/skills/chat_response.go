// Package skills holds the concrete skill entry points registered into the
// skillrunner registry: chat_response, memory_save, reminder_create,
// web_research, and computer_autopilot. Every skill returns a
// skillrunner.SkillResult — the tagged-variant shape the Run Engine
// persists uniformly (spec.md §9).
package skills

import (
	"fmt"

	"github.com/localfirst/assistant/internal/brainrouter"
	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/skillrunner"
)

// NewChatResponse builds the chat_response manifest: a safe, schema-free
// skill that asks the Brain Router to answer the user directly.
func NewChatResponse(router *brainrouter.Router) *skillrunner.Manifest {
	return &skillrunner.Manifest{
		SkillName: "chat_response",
		Scope:     skillrunner.ScopeSafe,
		Entry: func(inputs models.JSONMap, ctx skillrunner.Context) (skillrunner.SkillResult, error) {
			query, _ := inputs["query"].(string)
			if qs, ok := inputs["questions"]; ok && query == "" {
				return skillrunner.SkillResult{
					WhatIDid:   "asked a clarifying question",
					Confidence: 1,
					Events:     []models.JSONMap{{"type": "clarify_requested", "questions": qs}},
				}, nil
			}
			if query == "" {
				return skillrunner.SkillResult{WhatIDid: "smoke run", Confidence: 1}, nil
			}
			resp := router.Call(ctx, brainrouter.Request{
				RunID: ctx.RunID, TaskID: ctx.TaskID, StepID: ctx.PlanStepID,
				Purpose: "chat_response", TaskKind: "chat", PreferredKind: "chat",
				Messages: []brainrouter.Message{
					{Role: "system", Content: "You are a helpful local-first assistant."},
					{Role: "user", Content: query},
				},
				Policy: brainrouter.PolicyFlags{StrictLocal: true},
			})
			if resp.Status != brainrouter.StatusOK {
				return skillrunner.SkillResult{}, fmt.Errorf("chat_response: brain router status %s", resp.Status)
			}
			return skillrunner.SkillResult{
				WhatIDid:   "answered the user's message",
				Confidence: 0.9,
				Facts:      []models.JSONMap{{"text": resp.Text}},
			}, nil
		},
	}
}
