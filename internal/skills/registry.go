package skills

import (
	"github.com/localfirst/assistant/internal/brainrouter"
	"github.com/localfirst/assistant/internal/skillrunner"
	"github.com/localfirst/assistant/internal/store"
	"github.com/localfirst/assistant/internal/websearch"
)

// Registry builds the skillrunner manifest map for every registered skill.
func Registry(router *brainrouter.Router, st *store.Store, search websearch.Client) map[string]*skillrunner.Manifest {
	if search == nil {
		search = websearch.StubClient{}
	}
	manifests := []*skillrunner.Manifest{
		NewChatResponse(router),
		NewMemorySave(st),
		NewReminderCreate(st),
		NewWebResearch(router, search),
		NewComputerAutopilot(),
	}
	reg := make(map[string]*skillrunner.Manifest, len(manifests))
	for _, m := range manifests {
		reg[m.SkillName] = m
	}
	return reg
}
