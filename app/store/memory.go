package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ DocumentStore = (*MemoryStore)(nil)

// MemoryStore keeps documents in process memory. It backs the "memory"
// backend and tests.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string][]*Document
	now         func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]*Document),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Create stores a new document.
func (s *MemoryStore) Create(_ context.Context, collection string, fields Fields) (*Document, error) {
	if err := validateFields(fields); err != nil {
		return nil, wrapErr("create", collection, "", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	doc := &Document{
		ID:        uuid.New().String(),
		Fields:    copyFields(fields),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.collections[collection] = append(s.collections[collection], doc)
	return cloneDocument(doc), nil
}

// List returns matching documents in insertion order.
func (s *MemoryStore) List(_ context.Context, collection string, where Fields) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := []Document{}
	for _, doc := range s.collections[collection] {
		if matches(doc, where) {
			docs = append(docs, *cloneDocument(doc))
		}
	}
	return docs, nil
}

// Update merges fields into the document with the given id.
func (s *MemoryStore) Update(_ context.Context, collection, id string, fields Fields) (*Document, error) {
	if err := validateFields(fields); err != nil {
		return nil, wrapErr("update", collection, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range s.collections[collection] {
		if doc.ID != id {
			continue
		}
		for k, v := range fields {
			doc.Fields[k] = v
		}
		doc.UpdatedAt = s.now()
		return cloneDocument(doc), nil
	}
	return nil, wrapErr("update", collection, id, ErrNotFound)
}

// Delete removes the document with the given id.
func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	for i, doc := range docs {
		if doc.ID == id {
			s.collections[collection] = append(docs[:i], docs[i+1:]...)
			return nil
		}
	}
	return wrapErr("delete", collection, id, ErrNotFound)
}

func matches(doc *Document, where Fields) bool {
	for k, v := range where {
		if doc.Fields[k] != v {
			return false
		}
	}
	return true
}

func cloneDocument(doc *Document) *Document {
	return &Document{
		ID:        doc.ID,
		Fields:    copyFields(doc.Fields),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
