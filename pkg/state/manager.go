package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"buckethop/pkg/models"
	"buckethop/pkg/transfer"
)

// Status is the lifecycle state of a registered transfer task.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Task is one transfer run tracked by the server. Coordinator stays set
// while the run is live so status reads can take progress snapshots;
// Summary is filled in when the run finishes.
type Task struct {
	ID          string                `json:"id"`
	Status      Status                `json:"status"`
	SourceURL   string                `json:"source_url"`
	DestURL     string                `json:"dest_url"`
	DryRun      bool                  `json:"dry_run"`
	ScheduleID  string                `json:"schedule_id,omitempty"`
	StartTime   time.Time             `json:"start_time"`
	EndTime     *time.Time            `json:"end_time,omitempty"`
	Error       string                `json:"error,omitempty"`
	Summary     *models.RunSummary    `json:"summary,omitempty"`
	Coordinator *transfer.Coordinator `json:"-"`
	Cancel      context.CancelFunc    `json:"-"`
}

// Terminal reports whether the task has reached a final status.
func (t *Task) Terminal() bool {
	return t.Status != StatusRunning
}

// Manager is an in-memory task registry. Tasks do not survive a process
// restart; a restarted server simply starts with an empty registry.
type Manager struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{tasks: make(map[string]*Task)}
}

// Save registers or replaces a task.
func (m *Manager) Save(task *Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
}

// Get returns the task or an error when the ID is unknown.
func (m *Manager) Get(id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	return task, nil
}

// List returns all tasks, newest first.
func (m *Manager) List() []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tasks := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].StartTime.After(tasks[j].StartTime)
	})
	return tasks
}

// Delete removes a terminal task. Running tasks must be cancelled first.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if !task.Terminal() {
		return fmt.Errorf("task %s is still running", id)
	}
	delete(m.tasks, id)
	return nil
}

// Finish marks a task terminal with its summary. The coordinator
// reference is dropped so the run can be collected.
func (m *Manager) Finish(id string, status Status, summary *models.RunSummary, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return
	}
	now := time.Now()
	task.Status = status
	task.EndTime = &now
	task.Summary = summary
	task.Coordinator = nil
	if runErr != nil {
		task.Error = runErr.Error()
	}
}

// CleanupOlderThan drops terminal tasks whose run ended before the
// cutoff and returns how many were removed.
func (m *Manager) CleanupOlderThan(age time.Duration) int {
	cutoff := time.Now().Add(-age)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, task := range m.tasks {
		if task.Terminal() && task.EndTime != nil && task.EndTime.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}
