package state

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog/log"
)

// Key prefixes for Pebble
const (
	prefixCluster = "/cluster/" // /cluster/{clusterID}
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("state: store closed")

// pebbleLogger wraps zerolog for Pebble
type pebbleLogger struct{}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debug().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Error().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatal().Msgf("[pebble] "+format, args...)
}

// PebbleStore persists cluster state in an embedded Pebble database.
// Every write is synced before returning.
type PebbleStore struct {
	db     *pebble.DB
	path   string
	closed atomic.Bool
}

var _ Store = (*PebbleStore)(nil)

// NewPebbleStore opens or creates the store at path. A nil fs uses the
// host filesystem.
func NewPebbleStore(path string, fs vfs.FS) (*PebbleStore, error) {
	opts := &pebble.Options{
		Logger: &pebbleLogger{},
	}
	if fs != nil {
		opts.FS = fs
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store at %s: %w", path, err)
	}

	log.Debug().Str("path", path).Msg("Opened Pebble state store")
	return &PebbleStore{db: db, path: path}, nil
}

func clusterKey(clusterID string) []byte {
	return []byte(prefixCluster + clusterID)
}

func (s *PebbleStore) Load(_ context.Context, clusterID string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, ErrClosed
	}

	val, closer, err := s.db.Get(clusterKey(clusterID))
	if err == pebble.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load state for cluster %s: %w", clusterID, err)
	}
	defer closer.Close()

	return string(val), true, nil
}

func (s *PebbleStore) Save(_ context.Context, clusterID, value string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.db.Set(clusterKey(clusterID), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("failed to save state for cluster %s: %w", clusterID, err)
	}
	return nil
}

func (s *PebbleStore) Remove(_ context.Context, clusterID string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.db.Delete(clusterKey(clusterID), pebble.Sync); err != nil {
		return fmt.Errorf("failed to remove state for cluster %s: %w", clusterID, err)
	}
	return nil
}

// Close is idempotent
func (s *PebbleStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
