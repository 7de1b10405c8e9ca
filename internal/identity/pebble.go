package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/pebble/v2"
)

// DefaultNamespace keys the identity when no namespace is configured.
const DefaultNamespace = "rayvtt"

// PebbleStore keeps the identity in a PebbleDB under "<namespace>/client_id".
type PebbleStore struct {
	db  *pebble.DB
	key []byte
}

// OpenPebbleStore opens (or creates) the database directory.
func OpenPebbleStore(dir, namespace string) (*PebbleStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("identity: data dir is required")
	}
	if strings.TrimSpace(namespace) == "" {
		namespace = DefaultNamespace
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("identity: create data dir: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("identity: open pebble: %w", err)
	}
	return &PebbleStore{db: db, key: []byte(namespace + "/client_id")}, nil
}

func (s *PebbleStore) Load() (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, nil
	}
	val, closer, err := s.db.Get(s.key)
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("identity: load: %w", err)
	}
	defer func() { _ = closer.Close() }()
	return string(val), len(val) > 0, nil
}

func (s *PebbleStore) Save(id string) error {
	if s == nil || s.db == nil {
		return errors.New("identity: store is closed")
	}
	if err := s.db.Set(s.key, []byte(id), pebble.Sync); err != nil {
		return fmt.Errorf("identity: save: %w", err)
	}
	return nil
}

func (s *PebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
