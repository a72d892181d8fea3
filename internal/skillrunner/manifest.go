package skillrunner

import (
	"context"

	"github.com/localfirst/assistant/internal/models"
)

// Scope is the safety tier of a skill.
type Scope string

const (
	ScopeSafe            Scope = "safe"
	ScopeConfirmRequired  Scope = "confirm_required"
	ScopeDangerous       Scope = "dangerous"
)

// SkillResult is the tagged-variant shape every skill returns, so the Run
// Engine can persist sources/facts/artifacts/events uniformly regardless of
// which skill produced them (spec.md §9).
type SkillResult struct {
	WhatIDid    string           `json:"what_i_did"`
	Sources     []models.JSONMap `json:"sources,omitempty"`
	Facts       []models.JSONMap `json:"facts,omitempty"`
	Artifacts   []models.JSONMap `json:"artifacts,omitempty"`
	Events      []models.JSONMap `json:"events,omitempty"`
	Confidence  float64          `json:"confidence"`
	Assumptions []string         `json:"assumptions,omitempty"`
}

// Context carries call-scoped identifiers and collaborators into a skill.
type Context struct {
	context.Context
	RunID      string
	TaskID     string
	PlanStepID string
}

// Entry is a skill's execution function.
type Entry func(inputs models.JSONMap, ctx Context) (SkillResult, error)

// Manifest describes one registered skill: its safety scope and the JSON
// Schema its inputs must satisfy.
type Manifest struct {
	SkillName  string
	Scope      Scope
	InputSchema []byte // raw JSON Schema document
	Entry      Entry
}
