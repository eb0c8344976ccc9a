// Package memory keeps bounded per-session conversation history.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/internal/textutil"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
	"github.com/capitalize-ai/shop-assistant/pkg/metrics"
)

const (
	// DefaultMaxHistory is the number of messages retained per session.
	DefaultMaxHistory = 10

	// DefaultContextTokens is the default token budget for Context.
	DefaultContextTokens = 2000

	// updateAttempts bounds retries on optimistic version conflicts.
	updateAttempts = 3

	titleLayout = "2006-01-02 15:04"
)

// Memory is the conversation memory component. Mutations of one session are
// serialized; different sessions proceed independently.
type Memory struct {
	store      Store
	maxHistory int
	logger     *logger.Logger
	now        func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

// sessionLock is released from the lock table when its last holder unlocks.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures Memory.
type Option func(*Memory)

// WithMaxHistory sets the retained message count.
func WithMaxHistory(n int) Option {
	return func(m *Memory) {
		if n > 0 {
			m.maxHistory = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		m.now = now
	}
}

// New creates a Memory over store.
func New(store Store, log *logger.Logger, opts ...Option) *Memory {
	m := &Memory{
		store:      store,
		maxHistory: DefaultMaxHistory,
		logger:     log,
		now:        time.Now,
		locks:      make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaxHistory returns the retained message count.
func (m *Memory) MaxHistory() int {
	return m.maxHistory
}

// Create starts an active session for owner and returns its id. An empty
// title defaults to "Conversation YYYY-MM-DD HH:MM".
func (m *Memory) Create(ctx context.Context, ownerID, title string) (string, error) {
	now := m.now()
	if strings.TrimSpace(title) == "" {
		title = "Conversation " + now.Format(titleLayout)
	}

	s := &model.Session{
		ID:        uuid.Must(uuid.NewV7()).String(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []model.Message{},
		Active:    true,
	}
	if err := m.store.Create(ctx, s); err != nil {
		m.logger.Error("failed to create session", zap.String("owner_id", ownerID), zap.Error(err))
		return "", err
	}

	metrics.SessionsTotal.Inc()
	m.logger.Info("session created", zap.String("session_id", s.ID), zap.String("owner_id", ownerID))
	return s.ID, nil
}

// Get returns a copy of the session, or false when it is unknown.
func (m *Memory) Get(ctx context.Context, sessionID string) (*model.Session, bool) {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		m.logger.Warn("failed to load session", zap.String("session_id", sessionID), zap.Error(err))
		return nil, false
	}
	if s == nil {
		return nil, false
	}
	return s, true
}

// AddMessage appends a message and evicts the oldest messages beyond the
// retention limit. It returns false for unknown or cleared sessions.
func (m *Memory) AddMessage(ctx context.Context, sessionID string, role model.Role, content string, metadata map[string]string) bool {
	var evicted int
	err := m.mutate(ctx, sessionID, func(s *model.Session) error {
		if !s.Active {
			return errInactive
		}

		now := m.now()
		s.Messages = append(s.Messages, model.Message{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Role:      role,
			Content:   content,
			Metadata:  copyMetadata(metadata),
			CreatedAt: now,
		})
		evicted = 0
		if over := len(s.Messages) - m.maxHistory; over > 0 {
			evicted = over
			s.Messages = append([]model.Message(nil), s.Messages[over:]...)
		}
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		m.logger.Warn("message not recorded",
			zap.String("session_id", sessionID),
			zap.String("role", string(role)),
			zap.Error(err),
		)
		return false
	}

	metrics.MessagesTotal.WithLabelValues(string(role)).Inc()
	if evicted > 0 {
		metrics.MessagesEvicted.Add(float64(evicted))
	}
	return true
}

// History returns the most recent limit messages in chronological order, or
// the full retained window when limit is not positive. Unknown sessions yield
// an empty slice.
func (m *Memory) History(ctx context.Context, sessionID string, limit int) []model.Message {
	s, ok := m.Get(ctx, sessionID)
	if !ok {
		return []model.Message{}
	}

	msgs := s.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Context renders history as "User: ..." and "Assistant: ..." lines, oldest
// first, stopping before the first message that would exceed maxTokens.
func (m *Memory) Context(ctx context.Context, sessionID string, maxTokens int) string {
	var (
		lines []string
		used  int
	)
	for _, msg := range m.History(ctx, sessionID, 0) {
		cost := textutil.EstimateTokens(msg.Content)
		if used+cost > maxTokens {
			break
		}
		lines = append(lines, msg.Role.Label()+": "+msg.Content)
		used += cost
	}
	return strings.Join(lines, "\n")
}

// Clear tombstones the session. It returns false when the session is unknown
// or already cleared.
func (m *Memory) Clear(ctx context.Context, sessionID string) bool {
	err := m.mutate(ctx, sessionID, func(s *model.Session) error {
		if !s.Active {
			return errInactive
		}
		tombstone(s, m.now())
		return nil
	})
	if err != nil {
		if !errors.Is(err, errInactive) && !errors.Is(err, errUnknown) {
			m.logger.Warn("failed to clear session", zap.String("session_id", sessionID), zap.Error(err))
		}
		return false
	}

	m.logger.Info("session cleared", zap.String("session_id", sessionID))
	return true
}

// ClearOwner tombstones every active session of owner and returns how many
// were cleared.
func (m *Memory) ClearOwner(ctx context.Context, ownerID string) int {
	sessions, err := m.store.ListByOwner(ctx, ownerID, 0)
	if err != nil {
		m.logger.Warn("failed to list sessions", zap.String("owner_id", ownerID), zap.Error(err))
		return 0
	}

	cleared := 0
	for _, s := range sessions {
		if s.Active && m.Clear(ctx, s.ID) {
			cleared++
		}
	}

	m.logger.Info("owner sessions cleared", zap.String("owner_id", ownerID), zap.Int("count", cleared))
	return cleared
}

// ListByOwner returns summaries of the owner's active sessions, most recently
// updated first.
func (m *Memory) ListByOwner(ctx context.Context, ownerID string, limit int) []model.SessionSummary {
	sessions, err := m.store.ListByOwner(ctx, ownerID, 0)
	if err != nil {
		m.logger.Warn("failed to list sessions", zap.String("owner_id", ownerID), zap.Error(err))
		return []model.SessionSummary{}
	}

	out := make([]model.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		if !s.Active {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.Summary())
	}
	return out
}

// Summary returns the session summary, or false when it is unknown.
func (m *Memory) Summary(ctx context.Context, sessionID string) (model.SessionSummary, bool) {
	s, ok := m.Get(ctx, sessionID)
	if !ok {
		return model.SessionSummary{}, false
	}
	return s.Summary(), true
}

var (
	errUnknown  = errors.New("unknown session")
	errInactive = errors.New("session is inactive")
)

// mutate applies fn under the session lock, retrying version conflicts from
// stores shared with other processes.
func (m *Memory) mutate(ctx context.Context, sessionID string, fn func(*model.Session) error) error {
	unlock := m.lock(sessionID)
	defer unlock()

	var err error
	for attempt := 0; attempt < updateAttempts; attempt++ {
		var s *model.Session
		s, err = m.store.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if s == nil {
			return errUnknown
		}
		if err = fn(s); err != nil {
			return err
		}

		err = m.store.Update(ctx, s)
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		m.logger.Debug("session version conflict, retrying",
			zap.String("session_id", sessionID),
			zap.Int("attempt", attempt+1),
		)
	}
	return err
}

// lock acquires the session mutex and returns its release func.
func (m *Memory) lock(sessionID string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		m.locks[sessionID] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, sessionID)
		}
		m.locksMu.Unlock()
	}
}

func tombstone(s *model.Session, now time.Time) {
	s.Active = false
	s.Messages = []model.Message{}
	s.UpdatedAt = now
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
