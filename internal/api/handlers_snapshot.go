package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/localfirst/assistant/internal/models"
)

// snapshot is the run plus every sub-collection. buildSnapshot assembles
// it from separate store reads that share no transaction, so a write that
// lands between two reads can appear in one collection and not another.
type snapshot struct {
	Run       *models.Run        `json:"run"`
	Plan      []*models.PlanStep `json:"plan"`
	Tasks     []*models.Task     `json:"tasks"`
	Sources   []*models.Event    `json:"sources"`
	Facts     []*models.Event    `json:"facts"`
	Conflicts []*models.Event    `json:"conflicts"`
	Artifacts []*models.Event    `json:"artifacts"`
	Approvals []*models.Approval `json:"approvals"`
	Metrics   snapshotMetrics    `json:"metrics"`
}

type snapshotMetrics struct {
	FreshnessMinTs *time.Time `json:"freshness_min_ts,omitempty"`
	FreshnessMaxTs *time.Time `json:"freshness_max_ts,omitempty"`
	FreshnessCount int        `json:"freshness_count"`
	Coverage       float64    `json:"coverage"`
}

func (s *Server) buildSnapshot(c *gin.Context, runID string) (*snapshot, error) {
	ctx := c.Request.Context()

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	plan, err := s.store.ListPlanSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasksForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	approvals, err := s.store.ListApprovalsForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	sources, err := s.eventsByType(c, "source_found", "source_fetched")
	if err != nil {
		return nil, err
	}
	facts, err := s.eventsByType(c, "fact_extracted")
	if err != nil {
		return nil, err
	}
	conflicts, err := s.eventsByType(c, "conflict_detected")
	if err != nil {
		return nil, err
	}
	artifacts, err := s.eventsByType(c, "artifact_created")
	if err != nil {
		return nil, err
	}

	snap := &snapshot{
		Run: run, Plan: plan, Tasks: tasks, Sources: sources, Facts: facts,
		Conflicts: conflicts, Artifacts: artifacts, Approvals: approvals,
		Metrics: computeMetrics(sources, plan, tasks),
	}
	return snap, nil
}

// computeMetrics derives the freshness/coverage metrics documented in
// spec.md §4.J's snapshot semantics.
func computeMetrics(sources []*models.Event, plan []*models.PlanStep, tasks []*models.Task) snapshotMetrics {
	m := snapshotMetrics{}
	for _, ev := range sources {
		ts := ev.Ts
		if m.FreshnessMinTs == nil || ts.Before(*m.FreshnessMinTs) {
			m.FreshnessMinTs = &ts
		}
		if m.FreshnessMaxTs == nil || ts.After(*m.FreshnessMaxTs) {
			m.FreshnessMaxTs = &ts
		}
		m.FreshnessCount++
	}

	total, done := len(plan), 0
	if total > 0 {
		for _, step := range plan {
			if step.Status == models.StepDone {
				done++
			}
		}
	} else {
		total = len(tasks)
		for _, t := range tasks {
			if t.Status == models.TaskDone {
				done++
			}
		}
	}
	if total > 0 {
		m.Coverage = float64(done) / float64(total)
	}
	return m
}

func (s *Server) getSnapshotHandler(c *gin.Context) {
	snap, err := s.buildSnapshot(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) downloadSnapshotHandler(c *gin.Context) {
	snap, err := s.buildSnapshot(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\"snapshot-"+c.Param("id")+".json\"")
	c.JSON(http.StatusOK, snap)
}
