// Command assistantd wires the Store, Event Bus, Brain Router, Semantic
// Classifier, Memory Interpreter, Skill Runner, Approval Coordinator, Run
// Engine, Reminder Scheduler, and HTTP API into one running process.
// Grounded on the teacher's cmd/tarsy/main.go composition root idiom:
// flag for the env file path, godotenv load, gin mode, structured startup logs.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/localfirst/assistant/internal/api"
	"github.com/localfirst/assistant/internal/approval"
	"github.com/localfirst/assistant/internal/brainrouter"
	"github.com/localfirst/assistant/internal/classifier"
	"github.com/localfirst/assistant/internal/config"
	"github.com/localfirst/assistant/internal/eventbus"
	"github.com/localfirst/assistant/internal/memory"
	"github.com/localfirst/assistant/internal/reminder"
	"github.com/localfirst/assistant/internal/runengine"
	"github.com/localfirst/assistant/internal/secrets"
	"github.com/localfirst/assistant/internal/skillrunner"
	"github.com/localfirst/assistant/internal/skills"
	"github.com/localfirst/assistant/internal/store"
	"github.com/localfirst/assistant/internal/websearch"
)

const shutdownGrace = 10 * time.Second

func main() {
	envFile := flag.String("env-file", getEnv("ENV_FILE", ".env"), "Path to a .env file for local development")
	flag.Parse()

	log := slog.Default().With("component", "main")

	if err := godotenv.Load(*envFile); err != nil {
		log.Warn("could not load env file, continuing with process environment", "path", *envFile, "error", err)
	} else {
		log.Info("loaded environment file", "path", *envFile)
	}

	cfg := config.Load()

	secretCache := secrets.New(nil)
	if cfg.BrainRouter.CloudAPIKey != "" {
		secretCache.Set("OPENAI_API_KEY", cfg.BrainRouter.CloudAPIKey)
	}
	cfg.BrainRouter.CloudAPIKey = secretCache.Get("OPENAI_API_KEY")

	st, err := store.Open(cfg.Store)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	log.Info("store opened", "data_dir", cfg.Store.DataDir)

	bus := eventbus.New(st)
	router := brainrouter.New(cfg.BrainRouter, cfg.DataDir, bus)
	cls := classifier.New(router)
	interp := memory.New(router)
	approvals := approval.New(st, bus)

	searchClient := websearch.Client(websearch.StubClient{})
	if endpoint := secretCache.Get("SEARCH_ENDPOINT"); endpoint != "" {
		searchClient = websearch.NewHTTPClient(endpoint, secretCache.Get("SEARCH_API_KEY"))
	}

	registry := skills.Registry(router, st, searchClient)
	runner := skillrunner.New(registry)

	engine := runengine.New(st, bus, router, cls, interp, runner, approvals, 10, cfg.Executor.ApprovalTTL)

	scheduler := reminder.New(st, bus, cfg.Reminder, cfg.DataDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	if cfg.BrainRouter.QAMode {
		gin.SetMode(gin.TestMode)
	}
	server := api.New(st, engine, approvals)

	httpServer := &http.Server{Addr: cfg.BindAddr, Handler: server.Handler()}

	go func() {
		log.Info("http server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", "error", err)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
