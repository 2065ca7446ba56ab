package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"buckethop/pkg/config"
)

// Schedule is one recurring transfer definition.
type Schedule struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	CronExpr  string             `json:"cron_expr"`
	Enabled   bool               `json:"enabled"`
	SourceURL string             `json:"source_url"`
	DestURL   string             `json:"dest_url"`
	Source    config.Credentials `json:"source_credentials,omitempty"`
	Dest      config.Credentials `json:"dest_credentials,omitempty"`
	Workers   int                `json:"workers"`
	DryRun    bool               `json:"dry_run"`
	LastRun   time.Time          `json:"last_run"`
	NextRun   time.Time          `json:"next_run"`
	RunCount  int                `json:"run_count"`
	FailCount int                `json:"fail_count"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// TaskExecutor runs one transfer for a due schedule.
type TaskExecutor interface {
	Execute(ctx context.Context, schedule *Schedule) error
}

// Scheduler maps cron expressions to transfer executions.
type Scheduler struct {
	mu        sync.RWMutex
	cron      *cron.Cron
	schedules map[string]*Schedule
	entries   map[string]cron.EntryID
	executor  TaskExecutor
	running   bool
}

// NewScheduler creates a stopped scheduler bound to an executor.
func NewScheduler(executor TaskExecutor) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		schedules: make(map[string]*Schedule),
		entries:   make(map[string]cron.EntryID),
		executor:  executor,
	}
}

// Start begins firing enabled schedules.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.cron.Start()
	s.running = true
	return nil
}

// Stop halts the cron loop and waits for in-flight executions started by
// cron to return. Executions started via RunNow are not waited on.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return fmt.Errorf("scheduler not running")
	}
	<-s.cron.Stop().Done()
	s.running = false
	return nil
}

// Add registers a schedule. The cron expression is validated up front so
// bad definitions are rejected before they sit silently in the table.
func (s *Scheduler) Add(schedule *Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[schedule.ID]; exists {
		return fmt.Errorf("schedule %s already exists", schedule.ID)
	}

	spec, err := cron.ParseStandard(schedule.CronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule.CronExpr, err)
	}

	now := time.Now()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	schedule.NextRun = spec.Next(now)

	if schedule.Enabled {
		if err := s.armLocked(schedule); err != nil {
			return err
		}
	}
	stored := *schedule
	s.schedules[schedule.ID] = &stored
	return nil
}

// Remove deletes a schedule and its cron entry.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[id]; !exists {
		return fmt.Errorf("schedule %s not found", id)
	}
	s.disarmLocked(id)
	delete(s.schedules, id)
	return nil
}

// Update replaces a schedule definition, keeping its creation time and
// run counters.
func (s *Scheduler) Update(schedule *Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.schedules[schedule.ID]
	if !exists {
		return fmt.Errorf("schedule %s not found", schedule.ID)
	}

	spec, err := cron.ParseStandard(schedule.CronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule.CronExpr, err)
	}

	schedule.CreatedAt = old.CreatedAt
	schedule.RunCount = old.RunCount
	schedule.FailCount = old.FailCount
	schedule.LastRun = old.LastRun
	schedule.UpdatedAt = time.Now()
	schedule.NextRun = spec.Next(time.Now())

	s.disarmLocked(schedule.ID)
	if schedule.Enabled {
		if err := s.armLocked(schedule); err != nil {
			return err
		}
	}
	stored := *schedule
	s.schedules[schedule.ID] = &stored
	return nil
}

// Get returns a snapshot of a schedule by ID. A copy is returned because
// the scheduler keeps mutating run counters under its own lock.
func (s *Scheduler) Get(id string) (*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schedule, exists := s.schedules[id]
	if !exists {
		return nil, fmt.Errorf("schedule %s not found", id)
	}
	cp := *schedule
	return &cp, nil
}

// List returns snapshots of all schedules.
func (s *Scheduler) List() []*Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schedules := make([]*Schedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		cp := *schedule
		schedules = append(schedules, &cp)
	}
	return schedules
}

// Enable arms a disabled schedule.
func (s *Scheduler) Enable(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, exists := s.schedules[id]
	if !exists {
		return fmt.Errorf("schedule %s not found", id)
	}
	if schedule.Enabled {
		return nil
	}
	if err := s.armLocked(schedule); err != nil {
		return err
	}
	schedule.Enabled = true
	schedule.UpdatedAt = time.Now()
	return nil
}

// Disable removes a schedule's cron entry without deleting it.
func (s *Scheduler) Disable(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, exists := s.schedules[id]
	if !exists {
		return fmt.Errorf("schedule %s not found", id)
	}
	if !schedule.Enabled {
		return nil
	}
	s.disarmLocked(id)
	schedule.Enabled = false
	schedule.UpdatedAt = time.Now()
	return nil
}

// RunNow fires a schedule immediately, outside its cron cadence.
func (s *Scheduler) RunNow(id string) error {
	s.mu.RLock()
	_, exists := s.schedules[id]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("schedule %s not found", id)
	}
	go s.execute(id)
	return nil
}

func (s *Scheduler) armLocked(schedule *Schedule) error {
	id := schedule.ID
	entryID, err := s.cron.AddFunc(schedule.CronExpr, func() {
		s.execute(id)
	})
	if err != nil {
		return fmt.Errorf("failed to arm schedule %s: %w", id, err)
	}
	s.entries[id] = entryID
	return nil
}

func (s *Scheduler) disarmLocked(id string) {
	if entryID, exists := s.entries[id]; exists {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}

func (s *Scheduler) execute(id string) {
	s.mu.Lock()
	schedule, exists := s.schedules[id]
	if !exists {
		s.mu.Unlock()
		return
	}
	schedule.LastRun = time.Now()
	schedule.RunCount++
	s.mu.Unlock()

	err := s.executor.Execute(context.Background(), schedule)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		schedule.FailCount++
	}
	if spec, parseErr := cron.ParseStandard(schedule.CronExpr); parseErr == nil {
		schedule.NextRun = spec.Next(time.Now())
	}
}

// Stats summarizes the schedule table.
type Stats struct {
	TotalSchedules    int       `json:"total_schedules"`
	ActiveSchedules   int       `json:"active_schedules"`
	DisabledSchedules int       `json:"disabled_schedules"`
	NextRun           time.Time `json:"next_run"`
}

// GetStats returns counts and the soonest upcoming run.
func (s *Scheduler) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{TotalSchedules: len(s.schedules)}
	var next time.Time
	for _, schedule := range s.schedules {
		if schedule.Enabled {
			stats.ActiveSchedules++
			if next.IsZero() || schedule.NextRun.Before(next) {
				next = schedule.NextRun
			}
		} else {
			stats.DisabledSchedules++
		}
	}
	stats.NextRun = next
	return stats
}
