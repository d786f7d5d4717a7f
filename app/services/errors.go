package services

import (
	"errors"
	"fmt"

	"taskd/app/store"
)

// ErrTaskNotFound is returned when a task id is not part of the caller's collection.
var ErrTaskNotFound = errors.New("task not found")

// TaskPersistenceError reports a failed document store call. Message is the
// store's own message when it has one.
type TaskPersistenceError struct {
	Op      string
	Message string
	Err     error
}

func (e *TaskPersistenceError) Error() string {
	return e.Message
}

func (e *TaskPersistenceError) Unwrap() error {
	return e.Err
}

func persistenceError(op string, err error) *TaskPersistenceError {
	msg := ""
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		msg = storeErr.Message()
	} else if err != nil {
		msg = err.Error()
	}
	if msg == "" {
		msg = fallbackMessage(op)
	}
	return &TaskPersistenceError{Op: op, Message: msg, Err: err}
}

func fallbackMessage(op string) string {
	if op == "list" {
		return "Failed to fetch tasks"
	}
	return fmt.Sprintf("Failed to %s task", op)
}
