package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/localfirst/assistant/internal/approval"
	"github.com/localfirst/assistant/internal/runengine"
	"github.com/localfirst/assistant/internal/store"
)

// tokenStore is the subset of *store.Store the auth middleware needs.
type tokenStore interface {
	ValidateToken(ctx context.Context, token string) (bool, error)
}

// runStarter launches StartRun in the background when POST
// /runs/:id/start is called, so the HTTP handler returns immediately (spec.md §5: the Run
// Engine spawns a background worker per started run).
type runStarter interface {
	StartRun(ctx context.Context, runID string) error
}

// Server holds every collaborator the HTTP layer dispatches into.
type Server struct {
	store      *store.Store
	engine     *runengine.Engine
	approvals  *approval.Coordinator
	starter    runStarter
	log        *slog.Logger
	router     *gin.Engine
}

// New builds the gin.Engine and registers every route under /api/v1.
// Grounded on the teacher's cmd/tarsy/main.go gin.Default() + route-group
// idiom.
func New(st *store.Store, engine *runengine.Engine, approvals *approval.Coordinator) *Server {
	s := &Server{
		store: st, engine: engine, approvals: approvals, starter: engine,
		log: slog.Default().With("component", "api"),
	}
	s.router = gin.Default()
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler to pass to an http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	v1 := s.router.Group("/api/v1")

	v1.POST("/auth/bootstrap", s.bootstrapHandler)
	v1.GET("/auth/status", s.authStatusHandler)

	authed := v1.Group("")
	authed.Use(authMiddleware(s.store))

	authed.POST("/projects", s.createProjectHandler)
	authed.GET("/projects", s.listProjectsHandler)
	authed.GET("/projects/:id", s.getProjectHandler)
	authed.PUT("/projects/:id", s.updateProjectHandler)
	authed.GET("/projects/:id/memory/search", s.searchMemoryHandler)
	authed.POST("/projects/:id/runs", s.createRunHandler)

	authed.POST("/runs/:id/start", s.startRunHandler)
	authed.POST("/runs/:id/pause", s.pauseRunHandler)
	authed.POST("/runs/:id/resume", s.resumeRunHandler)
	authed.POST("/runs/:id/cancel", s.cancelRunHandler)
	authed.POST("/runs/:id/tasks/:tid/retry", s.retryTaskHandler)
	authed.POST("/runs/:id/steps/:sid/retry", s.retryStepHandler)

	authed.GET("/runs/:id/plan", s.getPlanHandler)
	authed.GET("/runs/:id/tasks", s.getTasksHandler)
	authed.GET("/runs/:id/sources", s.getSourcesHandler)
	authed.GET("/runs/:id/facts", s.getFactsHandler)
	authed.GET("/runs/:id/conflicts", s.getConflictsHandler)
	authed.GET("/runs/:id/artifacts", s.getArtifactsHandler)
	authed.GET("/runs/:id/approvals", s.getApprovalsHandler)
	authed.GET("/runs/:id/snapshot", s.getSnapshotHandler)
	authed.GET("/runs/:id/snapshot/download", s.downloadSnapshotHandler)
	authed.GET("/runs/:id/events", s.streamEventsHandler)
	authed.GET("/runs/:id/events/download", s.downloadEventsHandler)

	authed.POST("/approvals/:id/approve", s.approveHandler)
	authed.POST("/approvals/:id/reject", s.rejectHandler)

	authed.GET("/memories", s.listMemoriesHandler)
	authed.DELETE("/memories/:id", s.deleteMemoryHandler)

	authed.POST("/reminders", s.createReminderHandler)
	authed.GET("/reminders", s.listRemindersHandler)
	authed.DELETE("/reminders/:id", s.cancelReminderHandler)
}
