package services

import (
	"context"
	"log/slog"
	"strings"

	"taskd/app/models"
	"taskd/app/store"
)

const (
	// DefaultTaskCollection is the collection tasks are stored in.
	DefaultTaskCollection = "tasks"
	// UntitledTask replaces a blank title that got past form validation.
	UntitledTask = "Untitled Task"
)

// Document field names.
const (
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldStatus      = "status"
	fieldPriority    = "priority"
	fieldUserID      = "userId"
	fieldDueDate     = "dueDate"
	fieldTags        = "tags"
	fieldAttachments = "attachments"
)

// Repository is the task persistence contract used by TaskCollection.
type Repository interface {
	Create(ctx context.Context, in models.TaskInput, ownerID string) (*models.Task, error)
	List(ctx context.Context, ownerID string) ([]models.Task, error)
	Update(ctx context.Context, id string, u models.TaskUpdate) (*models.Task, error)
	Delete(ctx context.Context, id string) error
}

var _ Repository = (*TaskRepository)(nil)

// TaskRepository maps tasks to and from flat store documents.
type TaskRepository struct {
	store      store.DocumentStore
	collection string
	logger     *slog.Logger
}

// NewTaskRepository creates a TaskRepository over the given collection.
func NewTaskRepository(s store.DocumentStore, collection string, logger *slog.Logger) *TaskRepository {
	if collection == "" {
		collection = DefaultTaskCollection
	}
	return &TaskRepository{store: s, collection: collection, logger: logger}
}

// Collection returns the name of the backing collection.
func (r *TaskRepository) Collection() string {
	return r.collection
}

// Create stores a new task owned by ownerID.
func (r *TaskRepository) Create(ctx context.Context, in models.TaskInput, ownerID string) (*models.Task, error) {
	status := in.Status
	if status == "" {
		status = models.StatusPending
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	fields := store.Fields{
		fieldTitle:       titleOrDefault(in.Title),
		fieldDescription: strings.TrimSpace(in.Description),
		fieldStatus:      string(status),
		fieldPriority:    string(priority),
		fieldUserID:      ownerID,
		fieldDueDate:     models.FormatDueDate(in.DueDate),
		fieldTags:        models.EncodeTags(in.Tags),
		fieldAttachments: "",
	}

	doc, err := r.store.Create(ctx, r.collection, fields)
	if err != nil {
		r.logger.Warn("create task failed", "owner", ownerID, "error", err)
		return nil, persistenceError("create", err)
	}
	return r.toTask(doc), nil
}

// List returns every task owned by ownerID in store order.
func (r *TaskRepository) List(ctx context.Context, ownerID string) ([]models.Task, error) {
	docs, err := r.store.List(ctx, r.collection, store.Fields{fieldUserID: ownerID})
	if err != nil {
		r.logger.Warn("list tasks failed", "owner", ownerID, "error", err)
		return nil, persistenceError("list", err)
	}

	tasks := make([]models.Task, 0, len(docs))
	for i := range docs {
		tasks = append(tasks, *r.toTask(&docs[i]))
	}
	return tasks, nil
}

// Update writes only the fields present in u.
func (r *TaskRepository) Update(ctx context.Context, id string, u models.TaskUpdate) (*models.Task, error) {
	doc, err := r.store.Update(ctx, r.collection, id, updateFields(u))
	if err != nil {
		r.logger.Warn("update task failed", "task", id, "error", err)
		return nil, persistenceError("update", err)
	}
	return r.toTask(doc), nil
}

// Delete removes a task.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, r.collection, id); err != nil {
		r.logger.Warn("delete task failed", "task", id, "error", err)
		return persistenceError("delete", err)
	}
	return nil
}

// Probe lists the collection without a filter to check it is reachable.
func (r *TaskRepository) Probe(ctx context.Context) error {
	if _, err := r.store.List(ctx, r.collection, nil); err != nil {
		return persistenceError("list", err)
	}
	return nil
}

func updateFields(u models.TaskUpdate) store.Fields {
	fields := store.Fields{}
	if u.Title != nil {
		fields[fieldTitle] = titleOrDefault(*u.Title)
	}
	if u.Description != nil {
		fields[fieldDescription] = strings.TrimSpace(*u.Description)
	}
	if u.Status != nil {
		fields[fieldStatus] = string(*u.Status)
	}
	if u.Priority != nil {
		fields[fieldPriority] = string(*u.Priority)
	}
	if u.DueDate != nil {
		fields[fieldDueDate] = models.FormatDueDate(u.DueDate)
	} else if u.ClearDueDate {
		fields[fieldDueDate] = ""
	}
	if u.Tags != nil {
		fields[fieldTags] = models.EncodeTags(*u.Tags)
	}
	return fields
}

func titleOrDefault(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return UntitledTask
}

func (r *TaskRepository) toTask(doc *store.Document) *models.Task {
	f := doc.Fields

	status := models.Status(f[fieldStatus])
	if !status.IsValid() {
		status = models.StatusPending
	}
	priority := models.Priority(f[fieldPriority])
	if !priority.IsValid() {
		priority = models.PriorityMedium
	}

	due, err := models.ParseDueDate(f[fieldDueDate])
	if err != nil {
		r.logger.Warn("ignoring unreadable due date", "task", doc.ID, "value", f[fieldDueDate])
	}

	return &models.Task{
		ID:          doc.ID,
		UserID:      f[fieldUserID],
		Title:       f[fieldTitle],
		Description: f[fieldDescription],
		Status:      status,
		Priority:    priority,
		DueDate:     due,
		Tags:        models.DecodeTags(f[fieldTags]),
		Attachments: []models.TaskAttachment{},
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
