// Package config provides environment-driven configuration for the
// assistant core, grouped by concern the way tarsy's pkg/config does
// (one typed struct per concern, a single umbrella Config assembled by
// Load). Defaults are applied inline in Load; there are no per-concern
// default constructors.
package config

import (
	"os"
	"strconv"
	"time"
)

// StoreConfig configures the embedded relational store.
type StoreConfig struct {
	DataDir string
}

// BrainRouterConfig configures Brain Router policy, concurrency, and retries.
type BrainRouterConfig struct {
	LocalBaseURL      string
	LocalChatModel    string
	LocalCodeModel    string
	LocalTimeout      time.Duration
	CloudBaseURL      string
	CloudModel        string
	CloudAPIKey       string
	CloudEnabled      bool
	AutoCloudEnabled  bool
	MaxConcurrency    int
	MaxRetries        int
	BackoffBaseMs     int
	BudgetPerRun      int64
	BudgetPerStep     int64
	MaxCloudChars     int
	MaxCloudItemChars int
	QAMode            bool
}

// ExecutorConfig configures the run executor (autopilot micro-step limits).
type ExecutorConfig struct {
	MicroStepLimit     int
	MicroStepTimeout   time.Duration
	AutopilotTimeout   time.Duration
	ScreenshotMaxBytes int
	ApprovalTTL        time.Duration // 0 disables auto-expiry
}

// ReminderConfig configures the reminder scheduler.
type ReminderConfig struct {
	Enabled       bool
	PollInterval  time.Duration
	TelegramToken string
	TelegramChat  string
}

// MemoryConfig configures user-memory limits.
type MemoryConfig struct {
	MaxChars int
}

// Config is the umbrella configuration object, the primary object
// returned by Load() and threaded through the application.
type Config struct {
	DataDir      string
	Timezone     string
	Store        StoreConfig
	BrainRouter  BrainRouterConfig
	Executor     ExecutorConfig
	Reminder     ReminderConfig
	Memory       MemoryConfig
	BindAddr     string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Load builds a Config from the environment, matching §6 of the spec's
// "Configuration surface" table. All values are optional; sane defaults
// are applied when unset.
func Load() *Config {
	dataDir := getenv("DATA_DIR", "./data")
	return &Config{
		DataDir:  dataDir,
		Timezone: getenv("TZ", "UTC"),
		BindAddr: getenv("BIND_ADDR", ":8080"),
		Store: StoreConfig{
			DataDir: dataDir,
		},
		BrainRouter: BrainRouterConfig{
			LocalBaseURL:      getenv("LOCAL_LLM_BASE_URL", "http://localhost:11434"),
			LocalChatModel:    getenv("LOCAL_CHAT_MODEL", "llama3.1"),
			LocalCodeModel:    getenv("LOCAL_CODE_MODEL", "qwen2.5-coder"),
			LocalTimeout:      getenvDuration("LOCAL_LLM_TIMEOUT", 30*time.Second),
			CloudBaseURL:      getenv("CLOUD_LLM_BASE_URL", "https://api.openai.com/v1"),
			CloudModel:        getenv("CLOUD_LLM_MODEL", "gpt-4o-mini"),
			CloudAPIKey:       os.Getenv("OPENAI_API_KEY"),
			CloudEnabled:      getenvBool("CLOUD_ENABLED", false),
			AutoCloudEnabled:  getenvBool("AUTO_CLOUD_ENABLED", false),
			MaxConcurrency:    getenvInt("LLM_MAX_CONCURRENCY", 2),
			MaxRetries:        getenvInt("LLM_MAX_RETRIES", 3),
			BackoffBaseMs:     getenvInt("LLM_BACKOFF_BASE_MS", 500),
			BudgetPerRun:      getenvInt64("LLM_BUDGET_PER_RUN", 0),
			BudgetPerStep:     getenvInt64("LLM_BUDGET_PER_STEP", 0),
			MaxCloudChars:     getenvInt("LLM_MAX_CLOUD_CHARS", 8000),
			MaxCloudItemChars: getenvInt("LLM_MAX_CLOUD_ITEM_CHARS", 4000),
			QAMode:            getenvBool("QA_MODE", false),
		},
		Executor: ExecutorConfig{
			MicroStepLimit:     getenvInt("EXECUTOR_MICRO_STEP_LIMIT", 40),
			MicroStepTimeout:   getenvDuration("EXECUTOR_MICRO_STEP_TIMEOUT", 30*time.Second),
			AutopilotTimeout:   getenvDuration("EXECUTOR_AUTOPILOT_TIMEOUT", 600*time.Second),
			ScreenshotMaxBytes: getenvInt("EXECUTOR_SCREENSHOT_MAX_BYTES", 2_000_000),
			ApprovalTTL:        getenvDuration("APPROVAL_TTL", 10*time.Minute),
		},
		Reminder: ReminderConfig{
			Enabled:       getenvBool("REMINDERS_ENABLED", true),
			PollInterval:  getenvDuration("REMINDERS_POLL_INTERVAL", 5*time.Second),
			TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
			TelegramChat:  os.Getenv("TELEGRAM_CHAT_ID"),
		},
		Memory: MemoryConfig{
			MaxChars: getenvInt("MEMORY_MAX_CHARS", 2000),
		},
	}
}
