// Package skillrunner looks up a skill's manifest, validates its inputs
// against the manifest's JSON Schema, provides the scope-gate predicate
// (ScopeGateOK: dangerous skills require an execute_confirm mode and a
// granted approval), and invokes the skill's entry point. Invoke itself
// does not check the gate; the Run Engine does that before calling it.
// Schema validation is grounded on
// goadesign-goa-ai's registry/service.go compile-then-validate pattern using
// santhosh-tekuri/jsonschema/v6.
package skillrunner

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/localfirst/assistant/internal/models"
)

// ErrUnknownSkill is returned when no manifest is registered for a name.
type ErrUnknownSkill struct{ SkillName string }

func (e *ErrUnknownSkill) Error() string { return fmt.Sprintf("unknown skill: %s", e.SkillName) }

// ErrScopeNotApproved is the error type for a confirm_required/dangerous
// skill invoked without the required mode or a granted approval. Nothing
// in this package returns it; the API layer maps it to an HTTP status.
type ErrScopeNotApproved struct{ SkillName string }

func (e *ErrScopeNotApproved) Error() string {
	return fmt.Sprintf("skill %s requires approval before invocation", e.SkillName)
}

// Runner holds the registry of skill manifests.
type Runner struct {
	manifests map[string]*Manifest
}

// New constructs a Runner around a registry of manifests.
func New(manifests map[string]*Manifest) *Runner {
	return &Runner{manifests: manifests}
}

// Lookup returns the manifest for a skill name.
func (r *Runner) Lookup(skillName string) (*Manifest, error) {
	m, ok := r.manifests[skillName]
	if !ok {
		return nil, &ErrUnknownSkill{SkillName: skillName}
	}
	return m, nil
}

// ValidateInputs checks inputs against the manifest's JSON Schema, if any.
func ValidateInputs(m *Manifest, inputs models.JSONMap) error {
	if len(m.InputSchema) == 0 {
		return nil
	}
	var schemaDoc any
	if err := json.Unmarshal(m.InputSchema, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal schema for %s: %w", m.SkillName, err)
	}

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs for %s: %w", m.SkillName, err)
	}
	var inputsDoc any
	if err := json.Unmarshal(inputsJSON, &inputsDoc); err != nil {
		return fmt.Errorf("unmarshal inputs for %s: %w", m.SkillName, err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(m.SkillName+".json", schemaDoc); err != nil {
		return fmt.Errorf("add schema resource for %s: %w", m.SkillName, err)
	}
	schema, err := c.Compile(m.SkillName + ".json")
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", m.SkillName, err)
	}
	if err := schema.Validate(inputsDoc); err != nil {
		return fmt.Errorf("validate inputs for %s: %w", m.SkillName, err)
	}
	return nil
}

// ScopeGateOK reports whether the scope gate permits invocation: safe
// skills always pass; confirm_required/dangerous skills require
// mode=execute_confirm and (checked by the caller, which holds the
// Approval) an approved decision.
func ScopeGateOK(scope Scope, mode models.RunMode, approved bool) bool {
	if scope == ScopeSafe {
		return true
	}
	return mode == models.ModeExecuteConfirm && approved
}

// Invoke validates inputs and calls the skill entry point. The scope gate
// itself is enforced by the Run Engine (which owns approval creation/
// polling) before calling Invoke; Invoke assumes the gate already passed.
func (r *Runner) Invoke(m *Manifest, inputs models.JSONMap, ctx Context) (SkillResult, error) {
	if err := ValidateInputs(m, inputs); err != nil {
		return SkillResult{}, err
	}
	return m.Entry(inputs, ctx)
}
