package skills

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/localfirst/assistant/internal/brainrouter"
	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/skillrunner"
	"github.com/localfirst/assistant/internal/websearch"
)

const (
	maxResearchRounds  = 3
	maxSourcesPerRound = 4
	maxFetchChars      = 4000
)

var deepHintTokens = []string{"найди", "узнай", "проверь", "источник", "research", "find", "check"}

func looksLikeDeepRequest(query string) bool {
	lowered := strings.ToLower(query)
	for _, tok := range deepHintTokens {
		if strings.Contains(lowered, tok) {
			return true
		}
	}
	return false
}

func resolveMode(rawMode, query string) string {
	mode := strings.ToLower(strings.TrimSpace(rawMode))
	if mode == "candidates" || mode == "deep" {
		return mode
	}
	if looksLikeDeepRequest(query) {
		return "deep"
	}
	return "candidates"
}

func domainOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}

var highTrustDomains = []string{".gov", ".edu", "wikipedia.org", "wikidata.org", "docs.", "developer."}

func isHighTrust(domain string) bool {
	for _, t := range highTrustDomains {
		if strings.Contains(domain, t) {
			return true
		}
	}
	return false
}

// NewWebResearch builds the web_research manifest: a safe skill that
// searches, fetches a bounded number of pages, and asks the Brain Router to
// synthesize an answer with cited sources. Grounded on
// original_source/skills/web_research/skill.py's search -> fetch ->
// judge -> synthesize loop, collapsed from its iterative judge/next_query
// rounds into a single fixed fetch pass per round for a fixed round budget
// (no Open Question left unresolved: DEEP mode runs up to the full round
// budget, stopping early when a round fetches no new source; CANDIDATES
// mode returns after the first round's source list).
func NewWebResearch(router *brainrouter.Router, search websearch.Client) *skillrunner.Manifest {
	return &skillrunner.Manifest{
		SkillName: "web_research",
		Scope:     skillrunner.ScopeSafe,
		InputSchema: []byte(`{
			"type": "object",
			"properties": {
				"query": {"type": "string"},
				"mode": {"type": "string"}
			},
			"required": ["query"],
			"additionalProperties": false
		}`),
		Entry: func(inputs models.JSONMap, ctx skillrunner.Context) (skillrunner.SkillResult, error) {
			query, _ := inputs["query"].(string)
			rawMode, _ := inputs["mode"].(string)
			mode := resolveMode(rawMode, query)

			results, err := search.Search(ctx, query, extractURLs(query))
			if err != nil {
				return skillrunner.SkillResult{}, fmt.Errorf("web_research: search failed: %w", err)
			}
			if len(results) == 0 {
				return skillrunner.SkillResult{
					WhatIDid:    "searched but found no sources",
					Confidence:  0.2,
					Assumptions: []string{"no search provider configured or no results returned"},
				}, nil
			}

			rounds := 1
			if mode == "deep" {
				rounds = maxResearchRounds
			}

			var sources []models.JSONMap
			var pages []string
			var fetchErrs *multierror.Error
			usedDomains := map[string]bool{}

			for round := 0; round < rounds; round++ {
				fetched := 0
				for _, res := range results {
					if fetched >= maxSourcesPerRound {
						break
					}
					domain := domainOf(res.URL)
					if usedDomains[domain] && domain != "" {
						continue
					}
					text, err := websearch.FetchText(ctx, res.URL, maxFetchChars)
					if err != nil {
						fetchErrs = multierror.Append(fetchErrs, fmt.Errorf("%s: %w", res.URL, err))
						continue
					}
					usedDomains[domain] = true
					fetched++
					sources = append(sources, models.JSONMap{
						"url": res.URL, "title": res.Title, "domain": domain,
						"high_trust": isHighTrust(domain),
					})
					pages = append(pages, fmt.Sprintf("# %s\n%s", res.URL, text))
				}
				if fetched == 0 {
					break
				}
			}

			if mode == "candidates" || len(pages) == 0 {
				return skillrunner.SkillResult{
					WhatIDid:   fmt.Sprintf("found %d candidate sources", len(sources)),
					Confidence: 0.5,
					Sources:    sources,
				}, nil
			}

			resp := router.Call(ctx, brainrouter.Request{
				RunID: ctx.RunID, TaskID: ctx.TaskID, StepID: ctx.PlanStepID,
				Purpose: "web_research", TaskKind: "web_research", PreferredKind: "chat",
				ContextItems: []brainrouter.ContextItem{
					{Content: "Summarize the evidence pack into a grounded answer. Cite only URLs present in the evidence.", SourceType: "system_note", Public: true},
					{Content: query, SourceType: "user_prompt", Public: true},
					{Content: strings.Join(pages, "\n\n"), SourceType: "web_page_text", Public: true},
				},
			})
			if resp.Status != brainrouter.StatusOK {
				return skillrunner.SkillResult{
					WhatIDid:    "fetched sources but could not synthesize an answer",
					Confidence:  0.3,
					Sources:     sources,
					Assumptions: []string{"brain router status " + string(resp.Status)},
				}, nil
			}

			result := skillrunner.SkillResult{
				WhatIDid:   "researched the web and synthesized an answer",
				Confidence: 0.75,
				Sources:    sources,
				Facts:      []models.JSONMap{{"answer": resp.Text}},
			}
			if fetchErrs.ErrorOrNil() != nil {
				result.Assumptions = append(result.Assumptions, fmt.Sprintf("%d source(s) failed to fetch and were skipped", len(fetchErrs.Errors)))
			}
			return result, nil
		},
	}
}

var urlExtractRe = regexp.MustCompile(`https?://[^\s)]+`)

func extractURLs(query string) []string {
	return urlExtractRe.FindAllString(query, -1)
}
