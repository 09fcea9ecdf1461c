package inmem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/enverbisevac/actors/lease"
)

// Store implements lease.Store in process memory.
type Store struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*entry
}

type entry struct {
	token   string
	expires time.Time
}

// New creates a new in-memory lease store.
func New() *Store {
	return &Store{
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Ensure registers resource.
func (s *Store) Ensure(ctx context.Context, resource string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[resource]; !ok {
		s.entries[resource] = &entry{}
	}
	return nil
}

// Acquire leases resource when it is free or its lease expired.
func (s *Store) Acquire(ctx context.Context, resource string, d time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[resource]
	if !ok {
		return "", fmt.Errorf("inmem: resource %s does not exist", resource)
	}

	if e.held(s.now()) {
		return "", fmt.Errorf("inmem: %s: %w", resource, lease.ErrConflict)
	}

	e.token = uuid.NewString()
	e.expires = s.now().Add(d)
	return e.token, nil
}

// Renew extends the lease owned by token.
func (s *Store) Renew(ctx context.Context, resource, token string, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[resource]
	if !ok || e.token != token || !e.held(s.now()) {
		return fmt.Errorf("inmem: renew %s: %w", resource, lease.ErrNotHeld)
	}

	e.expires = s.now().Add(d)
	return nil
}

// Release frees the lease owned by token.
func (s *Store) Release(ctx context.Context, resource, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[resource]
	if !ok || e.token != token || !e.held(s.now()) {
		return fmt.Errorf("inmem: release %s: %w", resource, lease.ErrNotHeld)
	}

	e.token = ""
	e.expires = time.Time{}
	return nil
}

// Held reports whether resource is currently leased.
func (s *Store) Held(resource string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[resource]
	return ok && e.held(s.now())
}

func (e *entry) held(now time.Time) bool {
	return e.token != "" && now.Before(e.expires)
}
