package models

import (
	"errors"
	"time"
)

// Status is the completion state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusCompleted
}

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Rank maps a priority onto high=3, medium=2, low=1. Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Validation errors raised at the form boundary.
var (
	ErrEmptyTitle      = errors.New("title is required")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidDueDate  = errors.New("invalid due date")
)

// Task represents a personal task owned by exactly one user.
type Task struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Status      Status           `json:"status"`
	Priority    Priority         `json:"priority"`
	DueDate     *time.Time       `json:"dueDate,omitempty"`
	Tags        []string         `json:"tags"`
	Attachments []TaskAttachment `json:"attachments"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// IsOverdue reports whether a pending task's due date lies strictly before now.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.Status == StatusPending && t.DueDate != nil && t.DueDate.Before(now)
}

// TaskAttachment references a stored file. Attachments are switched off, so
// tasks always carry an empty list.
type TaskAttachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// TaskInput holds the fields for a new task. Empty status and priority
// fall back to pending and medium.
type TaskInput struct {
	Title       string
	Description string
	Status      Status
	Priority    Priority
	DueDate     *time.Time
	Tags        []string
}

// TaskUpdate is a partial update: nil fields are left untouched.
// ClearDueDate removes an existing due date.
type TaskUpdate struct {
	Title        *string
	Description  *string
	Status       *Status
	Priority     *Priority
	DueDate      *time.Time
	ClearDueDate bool
	Tags         *[]string
}

// IsEmpty reports whether the update carries no fields.
func (u TaskUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil && u.Priority == nil &&
		u.DueDate == nil && !u.ClearDueDate && u.Tags == nil
}

// TaskStats aggregates counts over a task collection.
type TaskStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Overdue   int `json:"overdue"`
}
