// Package refresh runs named background refresh tasks on fixed cadences.
// It keeps list views (devices, scan history, alerts) and dashboard stats
// loosely current between the one-shot refreshes the scan orchestrator
// fires on terminal states.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sentinelsec/sentinel/internal/logging"
)

const defaultTaskTimeout = 30 * time.Second

// Task is one named background refresh.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler manages background refresh tasks. A run that is still in
// flight when its next tick fires is not overlapped; the tick is skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  *logging.Logger
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running map[string]bool
	started bool
}

// NewScheduler creates an empty refresh scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		logger:  logging.Default().WithComponent("refresh"),
		timeout: defaultTaskTimeout,
		entries: make(map[string]cron.EntryID),
		running: make(map[string]bool),
	}
}

// Add registers a task at its cadence. Adding a task with a name that is
// already registered replaces the previous schedule. Intervals below one
// second are rejected; @every schedules run at whole-second granularity.
func (s *Scheduler) Add(task Task) error {
	if task.Name == "" {
		return fmt.Errorf("refresh task name is required")
	}
	if task.Interval < time.Second {
		return fmt.Errorf("refresh task %q interval must be at least 1s", task.Name)
	}
	if task.Run == nil {
		return fmt.Errorf("refresh task %q has no run function", task.Name)
	}

	spec := fmt.Sprintf("@every %s", task.Interval)
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.entries[task.Name]; exists {
		s.cron.Remove(old)
	}

	id, err := s.cron.AddFunc(spec, func() {
		s.execute(task)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule refresh task %q: %w", task.Name, err)
	}
	s.entries[task.Name] = id

	s.logger.Debug("Registered refresh task",
		"task", task.Name, "interval", task.Interval)
	return nil
}

// Start begins running registered tasks.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
	s.logger.Info("Refresh scheduler started", "tasks", len(s.entries))
}

// Stop stops scheduling and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Refresh scheduler stopped")
}

// execute runs one task tick with the overlap guard and timeout applied.
func (s *Scheduler) execute(task Task) {
	s.mu.Lock()
	if s.running[task.Name] {
		s.mu.Unlock()
		s.logger.Debug("Refresh still in flight, skipping tick", "task", task.Name)
		return
	}
	s.running[task.Name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, task.Name)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := task.Run(ctx); err != nil {
		s.logger.Warn("Refresh task failed", "task", task.Name, "error", err)
		return
	}
	s.logger.Debug("Refresh task completed", "task", task.Name)
}
