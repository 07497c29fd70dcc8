package state

import (
	"context"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryStore keeps state for the lifetime of the process
type MemoryStore struct {
	values *xsync.MapOf[string, string]
	closed atomic.Bool
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: xsync.NewMapOf[string, string](),
	}
}

func (s *MemoryStore) Load(_ context.Context, clusterID string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, ErrClosed
	}
	v, ok := s.values.Load(clusterID)
	return v, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, clusterID, value string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.values.Store(clusterID, value)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, clusterID string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.values.Delete(clusterID)
	return nil
}

func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}
