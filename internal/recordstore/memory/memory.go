package memory

import (
	"context"
	"sync"

	"budget/internal/recordstore"
)

// Store keeps blobs in process memory. Data does not survive a restart.
type Store struct {
	mu    sync.Mutex
	blobs map[string][]byte

	// failSet, when non-nil, is returned by every Set call.
	failSet error
}

var _ recordstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Get returns a copy of the blob stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, recordstore.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *Store) Set(_ context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet != nil {
		return s.failSet
	}
	s.blobs[key] = append([]byte(nil), blob...)
	return nil
}

// FailWrites makes subsequent Set calls return err. Pass nil to recover.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSet = err
}

func (s *Store) Close() error { return nil }
