// Package memstore is an in-memory store.Store, used by tests and by hosts
// run without a persistence DSN configured.
package memstore

import (
	"context"
	"sync"

	"github.com/goatee-collab/goatee/store"
)

// Store holds the most recently saved session entirely in memory.
type Store struct {
	mu   sync.Mutex
	last store.Session
	has  bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

func (s *Store) SaveSession(ctx context.Context, sess store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = sess
	s.has = true
	return nil
}

func (s *Store) LoadSession(ctx context.Context) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.has {
		return store.Session{}, nil
	}
	return s.last, nil
}
