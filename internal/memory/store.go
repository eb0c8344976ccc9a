package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/capitalize-ai/shop-assistant/internal/model"
)

var (
	// ErrNotFound is returned by Update when the session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrVersionConflict is returned by Update when the stored version differs.
	ErrVersionConflict = errors.New("session version conflict")

	// ErrInvalidConfig is returned when a driver is missing its dependencies.
	ErrInvalidConfig = errors.New("invalid session store configuration")

	// ErrInvalidDriver is returned for an unknown driver name.
	ErrInvalidDriver = errors.New("invalid session store driver")
)

// Store persists sessions with optimistic locking on Session.Version.
type Store interface {
	// Create stores a new session with Version 1.
	Create(ctx context.Context, s *model.Session) error

	// Get returns nil, nil when the session does not exist.
	Get(ctx context.Context, id string) (*model.Session, error)

	// Update persists s if its Version matches the stored one, then
	// increments s.Version.
	Update(ctx context.Context, s *model.Session) error

	// ListByOwner returns up to limit sessions of owner, most recently
	// updated first. A non-positive limit returns all of them.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.Session, error)

	Close() error
}

// Driver names a Store implementation.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

type storeConfig struct {
	redisClient *redis.Client
	redisTTL    time.Duration
}

// StoreOption configures NewStore.
type StoreOption func(*storeConfig)

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(c *redis.Client) StoreOption {
	return func(cfg *storeConfig) {
		cfg.redisClient = c
	}
}

// WithRedisTTL sets the expiry of session keys.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(cfg *storeConfig) {
		cfg.redisTTL = ttl
	}
}

// NewStore creates a Store for driver.
func NewStore(driver Driver, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStore(cfg.redisClient, cfg.redisTTL), nil
	default:
		return nil, ErrInvalidDriver
	}
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*model.Session)}
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.Version = 1
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

// Update implements Store.
func (m *MemoryStore) Update(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != s.Version {
		return ErrVersionConflict
	}

	s.Version++
	m.sessions[s.ID] = s.Clone()
	return nil
}

// ListByOwner implements Store.
func (m *MemoryStore) ListByOwner(_ context.Context, ownerID string, limit int) ([]*model.Session, error) {
	m.mu.RLock()
	var out []*model.Session
	for _, s := range m.sessions {
		if s.OwnerID == ownerID {
			out = append(out, s.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = make(map[string]*model.Session)
	return nil
}
