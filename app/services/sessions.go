package services

import (
	"context"
	"log/slog"
	"sync"
)

// Sessions hands out one TaskCollection per signed-in user. A collection is
// shared by every session of its user and is only handed out once its first
// load has finished.
type Sessions struct {
	repo   Repository
	events EventPublisher
	logger *slog.Logger

	mu   sync.Mutex
	open map[string]*openCollection
}

type openCollection struct {
	c     *TaskCollection
	ready chan struct{}
}

// NewSessions creates an empty registry.
func NewSessions(repo Repository, events EventPublisher, logger *slog.Logger) *Sessions {
	return &Sessions{
		repo:   repo,
		events: events,
		logger: logger,
		open:   make(map[string]*openCollection),
	}
}

// Open returns the collection for userID and reloads it from the store. An
// already open collection is reloaded in place, so requests holding it keep
// seeing its tasks while the reload runs.
func (s *Sessions) Open(ctx context.Context, userID string) *TaskCollection {
	c, loaded := s.acquire(ctx, userID)
	if !loaded {
		c.Refresh(ctx)
	}
	return c
}

// Get returns the open collection for userID, opening one if needed.
func (s *Sessions) Get(ctx context.Context, userID string) *TaskCollection {
	c, _ := s.acquire(ctx, userID)
	return c
}

// acquire finds or creates the collection for userID. It reports whether
// this call performed the initial load.
func (s *Sessions) acquire(ctx context.Context, userID string) (*TaskCollection, bool) {
	s.mu.Lock()
	entry, ok := s.open[userID]
	if !ok {
		entry = &openCollection{
			c:     NewTaskCollection(userID, s.repo, s.events, s.logger),
			ready: make(chan struct{}),
		}
		s.open[userID] = entry
	}
	s.mu.Unlock()

	if !ok {
		entry.c.Refresh(ctx)
		close(entry.ready)
		return entry.c, true
	}

	select {
	case <-entry.ready:
	case <-ctx.Done():
	}
	return entry.c, false
}

// Close empties and forgets the collection for userID.
func (s *Sessions) Close(userID string) {
	s.mu.Lock()
	entry, ok := s.open[userID]
	delete(s.open, userID)
	s.mu.Unlock()

	if ok {
		entry.c.Clear()
	}
}

// Len returns the number of open collections.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}
