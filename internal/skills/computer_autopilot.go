package skills

import (
	"strings"

	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/skillrunner"
)

// dangerousActionKeywords flags autopilot requests the original
// implementation routes through an extra confirmation prompt even after
// scope-gate approval (original_source/skills/autopilot_computer/skill.py's
// DANGEROUS_KEYWORDS). The desktop input bridge itself is out of scope here
// (spec.md Non-goals), so computer_autopilot records what it would do
// rather than driving real mouse/keyboard input.
var dangerousActionKeywords = []string{
	"оплат", "покуп", "перевод", "подписк", "удал", "очист", "отправ", "публикац",
}

func mentionsDangerousAction(query string) bool {
	lowered := strings.ToLower(query)
	for _, kw := range dangerousActionKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// NewComputerAutopilot builds the computer_autopilot manifest. It backs
// COMPUTER_ACTIONS, DOCUMENT_WRITE, FILE_ORGANIZE, and CODE_ASSIST plan
// steps (spec.md §4.F); the Planner sets requires_approval on the two that
// mutate local state (COMPUTER_ACTIONS, FILE_ORGANIZE), which the Run
// Engine enforces before Invoke is ever called. The scope is dangerous
// regardless of kind: without a real desktop bridge behind it, any kind
// could in principle be asked to do something destructive, and the safe
// default is to require confirmation rather than infer safety per kind.
func NewComputerAutopilot() *skillrunner.Manifest {
	return &skillrunner.Manifest{
		SkillName: "computer_autopilot",
		Scope:     skillrunner.ScopeDangerous,
		InputSchema: []byte(`{
			"type": "object",
			"properties": {"query": {"type": "string"}},
			"required": ["query"],
			"additionalProperties": false
		}`),
		Entry: func(inputs models.JSONMap, ctx skillrunner.Context) (skillrunner.SkillResult, error) {
			query, _ := inputs["query"].(string)
			result := skillrunner.SkillResult{
				WhatIDid:   "recorded the requested computer action without executing it",
				Confidence: 0.4,
				Assumptions: []string{
					"no desktop input bridge is wired in this deployment; the action was planned, not performed",
				},
				Artifacts: []models.JSONMap{{"requested_action": query}},
			}
			if mentionsDangerousAction(query) {
				result.Assumptions = append(result.Assumptions, "flagged as a high-risk action by keyword match")
			}
			return result, nil
		},
	}
}
