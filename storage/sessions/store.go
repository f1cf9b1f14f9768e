// Package sessions keeps track of login sessions revoked before their token expires.
package sessions

import (
	"context"
	"sync"
	"time"
)

// Store records revoked session ids until their token would have expired anyway.
type Store interface {
	Revoke(ctx context.Context, id string, ttl time.Duration) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

type memoryStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time // {id: expiry}
	now     func() time.Time
}

var _ Store = (*memoryStore)(nil)

func NewMemoryStore() Store {
	return &memoryStore{revoked: make(map[string]time.Time), now: time.Now}
}

func (s *memoryStore) Revoke(_ context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.revoked {
		if !now.Before(exp) {
			delete(s.revoked, k)
		}
	}
	s.revoked[id] = now.Add(ttl)
	return nil
}

func (s *memoryStore) IsRevoked(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.revoked[id]
	return ok && s.now().Before(exp), nil
}
