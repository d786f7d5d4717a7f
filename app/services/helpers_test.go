package services

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"taskd/app/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// failingStore wraps a MemoryStore and fails the operations that have an
// error configured.
type failingStore struct {
	*store.MemoryStore
	CreateErr error
	ListErr   error
	UpdateErr error
	DeleteErr error
	calls     int
}

func newFailingStore() *failingStore {
	return &failingStore{MemoryStore: store.NewMemoryStore()}
}

func (s *failingStore) Create(ctx context.Context, collection string, fields store.Fields) (*store.Document, error) {
	s.calls++
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	return s.MemoryStore.Create(ctx, collection, fields)
}

func (s *failingStore) List(ctx context.Context, collection string, where store.Fields) ([]store.Document, error) {
	s.calls++
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return s.MemoryStore.List(ctx, collection, where)
}

func (s *failingStore) Update(ctx context.Context, collection, id string, fields store.Fields) (*store.Document, error) {
	s.calls++
	if s.UpdateErr != nil {
		return nil, s.UpdateErr
	}
	return s.MemoryStore.Update(ctx, collection, id, fields)
}

func (s *failingStore) Delete(ctx context.Context, collection, id string) error {
	s.calls++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	return s.MemoryStore.Delete(ctx, collection, id)
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []TaskEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event TaskEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
