package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// Task event types.
const (
	EventTaskCreated = "created"
	EventTaskUpdated = "updated"
	EventTaskDeleted = "deleted"
)

// TaskEvent announces a successful task mutation.
type TaskEvent struct {
	Type   string    `json:"type"`
	TaskID string    `json:"taskId"`
	UserID string    `json:"userId"`
	At     time.Time `json:"at"`
}

// EventPublisher delivers task events to interested parties.
type EventPublisher interface {
	Publish(ctx context.Context, event TaskEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, TaskEvent) error { return nil }

// NATSPublisher publishes events as JSON on <prefix>.task.<type>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher on an open connection.
func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "taskd"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + ".task." + eventType
}

// Publish implements EventPublisher.
func (p *NATSPublisher) Publish(_ context.Context, event TaskEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.Subject(event.Type), data)
}
