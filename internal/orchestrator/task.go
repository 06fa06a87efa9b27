package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinbench/recoeval/internal/models"
)

// Retention defaults for terminal tasks.
const (
	DefaultRetention = time.Hour
	DefaultMaxTasks  = 256
)

type taskEntry struct {
	task       models.Task
	cancel     context.CancelFunc
	cancelled  bool
	done       chan struct{}
	terminalAt time.Time
}

// registry is the in-memory task store. Terminal tasks are retained for a
// window and a bounded count; eviction happens lazily on submit and access.
type registry struct {
	mu        sync.RWMutex
	tasks     map[string]*taskEntry
	retention time.Duration
	maxTasks  int
	now       func() time.Time
}

func newRegistry(retention time.Duration, maxTasks int) *registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if maxTasks <= 0 {
		maxTasks = DefaultMaxTasks
	}
	return &registry{
		tasks:     make(map[string]*taskEntry),
		retention: retention,
		maxTasks:  maxTasks,
		now:       time.Now,
	}
}

func (r *registry) create(cancel context.CancelFunc) *taskEntry {
	now := r.now()
	entry := &taskEntry{
		task: models.Task{
			ID:        uuid.NewString(),
			Status:    models.TaskPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.evictLocked()
	r.tasks[entry.task.ID] = entry
	r.mu.Unlock()
	return entry
}

// snapshot returns the task by value.
func (r *registry) snapshot(id string) (models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked()
	entry, ok := r.tasks[id]
	if !ok {
		return models.Task{}, models.ErrTaskNotFound
	}
	return entry.task, nil
}

// update mutates a task under the lock. Terminal states close the done
// channel and start the retention clock. Updates after a terminal state are
// ignored, so a late timeout can never overwrite a success.
func (r *registry) update(id string, fn func(t *models.Task)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.tasks[id]
	if !ok || entry.task.Status.Terminal() {
		return
	}
	fn(&entry.task)
	entry.task.UpdatedAt = r.now()
	if entry.task.Status.Terminal() {
		entry.terminalAt = r.now()
		close(entry.done)
	}
}

// markCancelled flags the entry and fires its context cancel.
func (r *registry) markCancelled(id string) error {
	r.mu.Lock()
	entry, ok := r.tasks[id]
	if ok && !entry.task.Status.Terminal() {
		entry.cancelled = true
	}
	r.mu.Unlock()
	if !ok {
		return models.ErrTaskNotFound
	}
	if entry.cancel != nil {
		entry.cancel()
	}
	return nil
}

func (r *registry) wasCancelled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tasks[id]
	return ok && entry.cancelled
}

func (r *registry) doneChan(id string) (<-chan struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tasks[id]
	if !ok {
		return nil, models.ErrTaskNotFound
	}
	return entry.done, nil
}

// evictLocked drops terminal tasks past the retention window, then trims the
// oldest terminal tasks beyond the count bound. Running tasks are never
// evicted.
func (r *registry) evictLocked() {
	now := r.now()
	type aged struct {
		id string
		at time.Time
	}
	var terminal []aged
	for id, entry := range r.tasks {
		if !entry.task.Status.Terminal() {
			continue
		}
		if now.Sub(entry.terminalAt) > r.retention {
			delete(r.tasks, id)
			continue
		}
		terminal = append(terminal, aged{id, entry.terminalAt})
	}
	if len(terminal) <= r.maxTasks {
		return
	}
	sort.Slice(terminal, func(i, j int) bool { return terminal[i].at.Before(terminal[j].at) })
	for _, t := range terminal[:len(terminal)-r.maxTasks] {
		delete(r.tasks, t.id)
	}
}
