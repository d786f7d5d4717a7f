// Package store defines the flat document store that tasks are persisted in
// and its backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no document matches the given id.
var ErrNotFound = errors.New("document not found")

// Fields is a flat, string-valued document body.
type Fields map[string]string

// Document is a stored record. ID and the timestamps are owned by the store.
type Document struct {
	ID        string
	Fields    Fields
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentStore is a generic CRUD store with equality-filter queries.
type DocumentStore interface {
	// Create stores a new document and returns it with id and timestamps set.
	Create(ctx context.Context, collection string, fields Fields) (*Document, error)
	// List returns documents whose fields equal every entry in where, oldest first.
	List(ctx context.Context, collection string, where Fields) ([]Document, error)
	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Fields) (*Document, error)
	// Delete removes a document.
	Delete(ctx context.Context, collection, id string) error
}

// StoreError describes a failed store call.
type StoreError struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Message returns the backend's own message, without the operation prefix.
func (e *StoreError) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func wrapErr(op, collection, id string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Collection: collection, ID: id, Err: err}
}

// systemPrefix marks backend-owned attributes so they never collide with
// document fields.
const systemPrefix = "_"

func validateFields(fields Fields) error {
	for k := range fields {
		if k == "" || k[:1] == systemPrefix {
			return fmt.Errorf("invalid field name %q", k)
		}
	}
	return nil
}

func copyFields(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
