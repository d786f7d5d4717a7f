package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"taskd/app/models"
)

// TaskCollection is the in-memory task list of one signed-in user. It is
// replaced wholesale only by Refresh. Mutations go to the repository first
// and are spliced in by id once the store has accepted them.
type TaskCollection struct {
	ownerID string
	repo    Repository
	events  EventPublisher
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	tasks   []models.Task
	loading bool
	err     string
}

// Snapshot is a point-in-time copy of a collection's state.
type Snapshot struct {
	Tasks   []models.Task
	Loading bool
	Error   string
}

// NewTaskCollection creates an empty collection for ownerID.
func NewTaskCollection(ownerID string, repo Repository, events EventPublisher, logger *slog.Logger) *TaskCollection {
	if events == nil {
		events = NopPublisher{}
	}
	return &TaskCollection{
		ownerID: ownerID,
		repo:    repo,
		events:  events,
		logger:  logger,
		now:     time.Now,
		tasks:   []models.Task{},
	}
}

// OwnerID returns the id of the user the collection belongs to.
func (c *TaskCollection) OwnerID() string {
	return c.ownerID
}

// Refresh reloads every task from the repository. On failure the previous
// tasks stay in place and the error is recorded instead of returned.
func (c *TaskCollection) Refresh(ctx context.Context) {
	c.mu.Lock()
	c.loading = true
	c.err = ""
	c.mu.Unlock()

	tasks, err := c.repo.List(ctx, c.ownerID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.err = errorMessage(err, "Failed to fetch tasks")
		c.logger.Warn("refresh failed, keeping previous tasks", "owner", c.ownerID, "error", err)
		return
	}
	c.tasks = tasks
}

// Create stores a new task and puts it at the front of the collection.
func (c *TaskCollection) Create(ctx context.Context, in models.TaskInput) (*models.Task, error) {
	c.clearError()

	task, err := c.repo.Create(ctx, in, c.ownerID)
	if err != nil {
		c.recordError(err, "Failed to create task")
		return nil, err
	}

	c.mu.Lock()
	c.tasks = append([]models.Task{*task}, c.tasks...)
	c.mu.Unlock()

	c.publish(ctx, EventTaskCreated, task.ID)
	return task, nil
}

// Update applies a partial update and replaces the task in place.
func (c *TaskCollection) Update(ctx context.Context, id string, u models.TaskUpdate) (*models.Task, error) {
	if _, ok := c.Get(id); !ok {
		return nil, ErrTaskNotFound
	}
	c.clearError()

	task, err := c.repo.Update(ctx, id, u)
	if err != nil {
		c.recordError(err, "Failed to update task")
		return nil, err
	}

	c.mu.Lock()
	for i := range c.tasks {
		if c.tasks[i].ID == id {
			c.tasks[i] = *task
			break
		}
	}
	c.mu.Unlock()

	c.publish(ctx, EventTaskUpdated, id)
	return task, nil
}

// Delete removes a task, keeping the order of the others.
func (c *TaskCollection) Delete(ctx context.Context, id string) error {
	if _, ok := c.Get(id); !ok {
		return ErrTaskNotFound
	}
	c.clearError()

	if err := c.repo.Delete(ctx, id); err != nil {
		c.recordError(err, "Failed to delete task")
		return err
	}

	c.mu.Lock()
	kept := make([]models.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	c.tasks = kept
	c.mu.Unlock()

	c.publish(ctx, EventTaskDeleted, id)
	return nil
}

// Clear empties the collection, as on sign-out.
func (c *TaskCollection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = []models.Task{}
	c.err = ""
	c.loading = false
}

// Get returns the task with the given id.
func (c *TaskCollection) Get(id string) (models.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return models.Task{}, false
}

// Tasks returns a copy of the current tasks.
func (c *TaskCollection) Tasks() []models.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Task, len(c.tasks))
	copy(out, c.tasks)
	return out
}

// Loading reports whether a refresh is in flight.
func (c *TaskCollection) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Error returns the last recorded error message, or "".
func (c *TaskCollection) Error() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Snapshot returns tasks, loading flag and error together.
func (c *TaskCollection) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tasks := make([]models.Task, len(c.tasks))
	copy(tasks, c.tasks)
	return Snapshot{Tasks: tasks, Loading: c.loading, Error: c.err}
}

func (c *TaskCollection) clearError() {
	c.mu.Lock()
	c.err = ""
	c.mu.Unlock()
}

func (c *TaskCollection) recordError(err error, fallback string) {
	c.mu.Lock()
	c.err = errorMessage(err, fallback)
	c.mu.Unlock()
}

// publish never fails the mutation that triggered it.
func (c *TaskCollection) publish(ctx context.Context, eventType, taskID string) {
	event := TaskEvent{Type: eventType, TaskID: taskID, UserID: c.ownerID, At: c.now().UTC()}
	if err := c.events.Publish(ctx, event); err != nil {
		c.logger.Warn("publish task event failed", "type", eventType, "task", taskID, "error", err)
	}
}

func errorMessage(err error, fallback string) string {
	var perr *TaskPersistenceError
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}
