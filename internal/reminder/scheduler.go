// Package reminder implements the Reminder Scheduler (spec.md §4.K): a
// fixed-cadence poll loop that claims due reminders and dispatches them via
// a delivery strategy. Poll-loop shape grounded on tarsy's
// pkg/queue/executor.go cadence pattern; this package additionally runs the
// artifact-retention sweep on the same goroutine (SUPPLEMENTED FEATURES
// D.3), since both are periodic, store-independent, low-frequency chores.
package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/localfirst/assistant/internal/config"
	"github.com/localfirst/assistant/internal/models"
	"github.com/localfirst/assistant/internal/store"
)

// reminderStore is the subset of *store.Store the scheduler needs.
type reminderStore interface {
	ClaimDueReminders(ctx context.Context, now time.Time) ([]*models.Reminder, error)
	MarkReminderSent(ctx context.Context, id string) error
	MarkReminderFailed(ctx context.Context, id, lastError string) error
}

// eventEmitter is the subset of *eventbus.Bus the scheduler needs.
type eventEmitter interface {
	Emit(ctx context.Context, runID, typ, level, message string, payload models.JSONMap, taskID, stepID *string) (*models.Event, error)
}

// Scheduler polls for due reminders and dispatches them.
type Scheduler struct {
	store   reminderStore
	events  eventEmitter
	cfg     config.ReminderConfig
	dataDir string
	client  *http.Client
	log     *slog.Logger
}

// New constructs a Scheduler.
func New(store reminderStore, events eventEmitter, cfg config.ReminderConfig, dataDir string) *Scheduler {
	return &Scheduler{
		store: store, events: events, cfg: cfg, dataDir: dataDir,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    slog.Default().With("component", "reminder_scheduler"),
	}
}

// Run blocks, polling on cfg.PollInterval until ctx is canceled. The
// artifact-retention sweep rides the same ticks, running every 60th tick
// (roughly once per 5 minutes at the default 5s poll interval) so it never
// competes with reminder latency.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			s.pollOnce(ctx)
			if tick%60 == 0 {
				s.pruneArtifacts()
			}
		}
	}
}

func (s *Scheduler) pollOnce(ctx context.Context) {
	due, err := s.store.ClaimDueReminders(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error("claim_due_reminders failed", "error", err)
		return
	}
	for _, r := range due {
		s.dispatch(ctx, r)
	}
}

func (s *Scheduler) eventSubject(r *models.Reminder) string {
	if r.RunID != nil {
		return *r.RunID
	}
	return "reminder:" + r.ID
}

func (s *Scheduler) dispatch(ctx context.Context, r *models.Reminder) {
	subject := s.eventSubject(r)
	s.events.Emit(ctx, subject, "reminder_due", "info", r.Text, models.JSONMap{"reminder_id": r.ID}, nil, nil)

	var err error
	switch r.Delivery {
	case models.DeliveryTelegram:
		err = s.deliverTelegram(ctx, r)
	default:
		err = s.deliverLocal(r)
	}

	if err != nil {
		s.store.MarkReminderFailed(ctx, r.ID, err.Error())
		s.events.Emit(ctx, subject, "reminder_failed", "error", err.Error(), models.JSONMap{"reminder_id": r.ID}, nil, nil)
		return
	}
	s.store.MarkReminderSent(ctx, r.ID)
	s.events.Emit(ctx, subject, "reminder_sent", "info", "", models.JSONMap{"reminder_id": r.ID}, nil, nil)
}

func (s *Scheduler) deliverLocal(r *models.Reminder) error {
	fmt.Printf("[reminder] %s\n", r.Text)
	return nil
}

// deliverTelegram POSTs to the Telegram Bot HTTPS API, retrying up to 3
// attempts with exponential sleep between tries.
func (s *Scheduler) deliverTelegram(ctx context.Context, r *models.Reminder) error {
	if s.cfg.TelegramToken == "" || s.cfg.TelegramChat == "" {
		return fmt.Errorf("telegram delivery not configured")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.cfg.TelegramToken)
	payload, _ := json.Marshal(map[string]string{"chat_id": s.cfg.TelegramChat, "text": r.Text})

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err == nil && resp.StatusCode < 400 {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
			lastErr = fmt.Errorf("telegram http %d", resp.StatusCode)
		} else {
			lastErr = err
		}
		if attempt == 2 {
			break
		}
		select {
		case <-time.After(time.Duration(1<<uint(attempt)) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (s *Scheduler) pruneArtifacts() {
	pruned, err := store.PruneFailureArtifacts(s.dataDir, time.Now().AddDate(0, 0, -14))
	if err != nil {
		s.log.Error("prune failure artifacts failed", "error", err)
		return
	}
	if pruned > 0 {
		s.log.Info("pruned local llm failure artifacts", "count", pruned)
	}
}
