// Package identity keeps the durable client identifier that the session
// re-announces on every reconnect.
package identity

import (
	"strings"
	"sync"

	"github.com/erilali/rayvtt/internal/logger"
	"github.com/google/uuid"
)

// Store persists a single identity value.
type Store interface {
	// Load reports ok=false when nothing has been saved yet.
	Load() (id string, ok bool, err error)
	Save(id string) error
}

// Identity is the in-memory view of the client id. Persistence failures are
// logged and otherwise ignored; the value stays usable for the current run.
type Identity struct {
	mu     sync.RWMutex
	id     string
	store  Store
	logger *logger.Logger
}

// New loads the persisted id or generates and saves a fresh one.
// A nil store keeps the identity in memory only. When Load fails the
// generated id is not saved, so a stored value is never overwritten by a
// transient read error; a later Adopt still persists.
func New(store Store, log *logger.Logger) *Identity {
	if log == nil {
		log = logger.Discard()
	}
	ident := &Identity{store: store, logger: log}
	loadFailed := false
	if store != nil {
		id, ok, err := store.Load()
		switch {
		case err != nil:
			loadFailed = true
			log.Warnf("Identity store unavailable, using in-memory identity: %v", err)
		case ok && strings.TrimSpace(id) != "":
			ident.id = id
			log.Debugf("Loaded client id %s", id)
		}
	}
	if ident.id == "" {
		ident.id = uuid.NewString()
		log.Infof("Generated new client id %s", ident.id)
		if !loadFailed {
			ident.persist(ident.id)
		}
	}
	return ident
}

// Current returns the client id.
func (i *Identity) Current() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.id
}

// Adopt replaces the id with a server-issued one and persists it.
func (i *Identity) Adopt(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	i.mu.Lock()
	changed := i.id != id
	i.id = id
	i.mu.Unlock()
	if changed {
		i.logger.Infof("Server assigned client id %s", id)
	}
	i.persist(id)
}

func (i *Identity) persist(id string) {
	if i.store == nil {
		return
	}
	if err := i.store.Save(id); err != nil {
		i.logger.Warnf("Failed to persist client id, keeping it in memory: %v", err)
	}
}

// MemoryStore is a Store without durability.
type MemoryStore struct {
	mu sync.Mutex
	id string
}

func NewMemoryStore(initial string) *MemoryStore {
	return &MemoryStore{id: initial}
}

func (m *MemoryStore) Load() (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.id != "", nil
}

func (m *MemoryStore) Save(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}
