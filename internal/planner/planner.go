// Package planner maps a classified message onto a concrete plan of skill
// steps. Pure function with no I/O, no LLM calls, no Store access — every
// branch is named in spec.md §4.F so the mapping is deterministic and
// testable in isolation.
package planner

import (
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/localfirst/assistant/internal/classifier"
	"github.com/localfirst/assistant/internal/memory"
	"github.com/localfirst/assistant/internal/models"
)

// ErrMemoryItemMissing is the hard error for a MEMORY_COMMIT hint with no
// memory_item to commit — the planner never guesses at content.
var ErrMemoryItemMissing = errors.New("planner_memory_item_missing")

// Input is everything the Planner needs to build a plan.
type Input struct {
	Query               string
	Intent              classifier.Intent
	PlanHint            []string
	MemoryItem          *classifier.MemoryItem
	NeedsClarification  bool
	ClarifyQuestions    []string
	MemoryInterpretation *memory.Interpretation
	Now                 time.Time
	// DangerFlags is the classifier's act_hint.danger_flags — stamped onto
	// every plan-hint step except MEMORY_COMMIT, and onto the no-hint ACT
	// fallback step, so the Run Engine can surface it alongside
	// RequiresApproval. Clarify and memory-commit steps carry no flags.
	DangerFlags []string
}

// Plan builds the ordered list of plan steps for Input, or returns
// ErrMemoryItemMissing if a MEMORY_COMMIT hint has no backing memory_item.
func Plan(in Input) ([]*models.PlanStep, error) {
	var steps []*models.PlanStep

	if in.NeedsClarification {
		steps = append(steps, &models.PlanStep{
			Title:     "Clarify before proceeding",
			SkillName: "chat_response",
			Kind:      models.KindClarifyQuestion,
			Inputs:    models.JSONMap{"questions": in.ClarifyQuestions},
		})
	}

	if in.Intent == classifier.IntentChat {
		steps = append(steps, &models.PlanStep{
			Title:     "Respond to the user",
			SkillName: "chat_response",
			Kind:      models.KindChatResponse,
			Inputs:    models.JSONMap{"query": in.Query},
		})
		return appendMemoryCommitIfNeeded(steps, in)
	}

	hadMemoryCommitHint := false
	for _, hint := range in.PlanHint {
		step, err := stepForHint(hint, in)
		if err != nil {
			return nil, err
		}
		if hint == "MEMORY_COMMIT" {
			hadMemoryCommitHint = true
		}
		if step != nil {
			if hint != "MEMORY_COMMIT" {
				step.DangerFlags = in.DangerFlags
			}
			steps = append(steps, step)
		}
	}

	if len(in.PlanHint) == 0 && in.Intent == classifier.IntentAct {
		steps = append(steps, &models.PlanStep{
			Title:       "Perform requested computer actions",
			SkillName:   "computer_autopilot",
			Kind:        models.KindComputerActions,
			Inputs:      models.JSONMap{"query": in.Query},
			DangerFlags: in.DangerFlags,
		})
	}

	if !hadMemoryCommitHint {
		var err error
		steps, err = appendMemoryCommitIfNeeded(steps, in)
		if err != nil {
			return nil, err
		}
	}

	return steps, nil
}

func appendMemoryCommitIfNeeded(steps []*models.PlanStep, in Input) ([]*models.PlanStep, error) {
	if in.MemoryInterpretation == nil || !in.MemoryInterpretation.ShouldStore {
		return steps, nil
	}
	steps = append(steps, &models.PlanStep{
		Title:     "Save durable memory",
		SkillName: "memory_save",
		Kind:      models.KindMemoryCommit,
		Inputs: models.JSONMap{
			"memory_payload": models.JSONMap{
				"title":          in.MemoryInterpretation.Title,
				"summary":        in.MemoryInterpretation.Summary,
				"facts":          in.MemoryInterpretation.Facts,
				"preferences":    in.MemoryInterpretation.Preferences,
				"possible_facts": in.MemoryInterpretation.PossibleFacts,
			},
		},
	})
	return steps, nil
}

func stepForHint(hint string, in Input) (*models.PlanStep, error) {
	switch hint {
	case "CHAT_RESPONSE":
		return &models.PlanStep{Title: "Respond to the user", SkillName: "chat_response", Kind: models.KindChatResponse, Inputs: models.JSONMap{"query": in.Query}}, nil
	case "CLARIFY_QUESTION":
		return &models.PlanStep{Title: "Ask a clarifying question", SkillName: "chat_response", Kind: models.KindClarifyQuestion, Inputs: models.JSONMap{"questions": in.ClarifyQuestions}}, nil
	case "WEB_RESEARCH":
		return &models.PlanStep{Title: "Research the web", SkillName: "web_research", Kind: models.KindWebResearch, Inputs: models.JSONMap{"query": in.Query, "mode": "deep"}}, nil
	case "BROWSER_RESEARCH_UI":
		return &models.PlanStep{Title: "Research via browser UI", SkillName: "web_research", Kind: models.KindBrowserUI, Inputs: models.JSONMap{"query": in.Query}}, nil
	case "COMPUTER_ACTIONS":
		return &models.PlanStep{Title: "Perform computer actions", SkillName: "computer_autopilot", Kind: models.KindComputerActions, Inputs: models.JSONMap{"query": in.Query}, RequiresApproval: true}, nil
	case "DOCUMENT_WRITE":
		return &models.PlanStep{Title: "Write a document", SkillName: "computer_autopilot", Kind: models.KindDocumentWrite, Inputs: models.JSONMap{"query": in.Query}}, nil
	case "FILE_ORGANIZE":
		return &models.PlanStep{Title: "Organize files", SkillName: "computer_autopilot", Kind: models.KindFileOrganize, Inputs: models.JSONMap{"query": in.Query}, RequiresApproval: true}, nil
	case "CODE_ASSIST":
		return &models.PlanStep{Title: "Assist with code", SkillName: "computer_autopilot", Kind: models.KindCodeAssist, Inputs: models.JSONMap{"query": in.Query}}, nil
	case "MEMORY_COMMIT":
		if in.MemoryItem == nil {
			return nil, ErrMemoryItemMissing
		}
		return &models.PlanStep{
			Title:     "Save durable memory",
			SkillName: "memory_save",
			Kind:      models.KindMemoryCommit,
			Inputs: models.JSONMap{
				"memory_payload": models.JSONMap{
					"kind":     in.MemoryItem.Kind,
					"text":     in.MemoryItem.Text,
					"evidence": in.MemoryItem.Evidence,
				},
			},
		}, nil
	case "REMINDER_CREATE":
		dueAt, text, ok := parseReminder(in.Query, in.Now)
		if !ok {
			return nil, nil
		}
		return &models.PlanStep{
			Title:     "Create a reminder",
			SkillName: "reminder_create",
			Kind:      models.KindReminderCreate,
			Inputs:    models.JSONMap{"due_at": dueAt.Format(time.RFC3339), "text": text},
		}, nil
	case "SMOKE_RUN":
		return &models.PlanStep{Title: "Smoke-test run", SkillName: "chat_response", Kind: models.KindSmokeRun, Inputs: models.JSONMap{}}, nil
	default:
		return nil, nil
	}
}

var (
	relativeReminderRe = regexp.MustCompile(`через\s+(\d+)\s*(мин(?:ут)?|час(?:ов|а)?)`)
	anchoredReminderRe = regexp.MustCompile(`(сегодня|завтра)\s+в\s+(\d{1,2}):(\d{2})`)
	bareReminderRe     = regexp.MustCompile(`(?:^|\s)в\s+(\d{1,2}):(\d{2})\b`)
)

// parseReminder extracts a due_at/text pair from a free-form Russian
// utterance, per the three time-expression forms in spec.md §4.F. Returns
// ok=false when nothing recognizable is present — the caller must then
// drop the REMINDER_CREATE step rather than guess a time.
func parseReminder(query string, now time.Time) (time.Time, string, bool) {
	if m := relativeReminderRe.FindStringSubmatch(query); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, "", false
		}
		var d time.Duration
		if regexp.MustCompile(`^час`).MatchString(m[2]) {
			d = time.Duration(n) * time.Hour
		} else {
			d = time.Duration(n) * time.Minute
		}
		return now.Add(d), query, true
	}

	if m := anchoredReminderRe.FindStringSubmatch(query); m != nil {
		hh, _ := strconv.Atoi(m[2])
		mm, _ := strconv.Atoi(m[3])
		day := now
		if m[1] == "завтра" {
			day = day.AddDate(0, 0, 1)
		}
		due := time.Date(day.Year(), day.Month(), day.Day(), hh, mm, 0, 0, now.Location())
		return due, query, true
	}

	if m := bareReminderRe.FindStringSubmatch(query); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		due := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
		if due.Before(now) {
			due = due.AddDate(0, 0, 1)
		}
		return due, query, true
	}

	return time.Time{}, "", false
}
