package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSecretNotFound is returned by a TokenStore for absent or expired keys.
var ErrSecretNotFound = errors.New("secret not found")

// TokenStore keeps short-lived server-side secrets: live session ids and
// password recovery secrets.
type TokenStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

var (
	_ TokenStore = (*RedisTokenStore)(nil)
	_ TokenStore = (*MemoryTokenStore)(nil)
)

// RedisTokenStore keeps secrets in Redis with native expiry.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenStore creates a store that namespaces keys with prefix.
func NewRedisTokenStore(client *redis.Client, prefix string) *RedisTokenStore {
	return &RedisTokenStore{client: client, prefix: prefix}
}

// Set implements TokenStore.
func (s *RedisTokenStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("token store set: %w", err)
	}
	return nil
}

// Get implements TokenStore.
func (s *RedisTokenStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("token store get: %w", err)
	}
	return value, nil
}

// Delete implements TokenStore.
func (s *RedisTokenStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("token store delete: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisTokenStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// MemoryTokenStore is a process-local TokenStore.
type MemoryTokenStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryTokenStore creates an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// Set implements TokenStore. A non-positive ttl never expires.
func (s *MemoryTokenStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expires = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

// Get implements TokenStore.
func (s *MemoryTokenStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return "", ErrSecretNotFound
	}
	if !entry.expires.IsZero() && !s.now().Before(entry.expires) {
		delete(s.entries, key)
		return "", ErrSecretNotFound
	}
	return entry.value, nil
}

// Delete implements TokenStore.
func (s *MemoryTokenStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
