package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestMemory(t *testing.T, opts ...Option) *Memory {
	t.Helper()
	clock := &stepClock{t: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.now)}, opts...)
	return New(NewMemoryStore(), logger.NewNop(), opts...)
}

func TestMemory_CreateDefaultTitle(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "owner-1", "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	summary, ok := m.Summary(ctx, id)
	require.True(t, ok)
	assert.Equal(t, "Conversation 2026-03-14 09:30", summary.Title)
	assert.True(t, summary.Active)
	assert.Zero(t, summary.MessageCount)

	named, err := m.Create(ctx, "owner-1", "Setup help")
	require.NoError(t, err)
	summary, _ = m.Summary(ctx, named)
	assert.Equal(t, "Setup help", summary.Title)
	assert.NotEqual(t, id, named)
}

func TestMemory_EvictsOldestMessages(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	id, err := m.Create(ctx, "owner", "")
	require.NoError(t, err)

	for i := 1; i <= 12; i++ {
		role := model.RoleUser
		if i%2 == 0 {
			role = model.RoleAssistant
		}
		require.True(t, m.AddMessage(ctx, id, role, fmt.Sprintf("message %d", i), nil))
	}

	history := m.History(ctx, id, 0)
	require.Len(t, history, 10)
	assert.Equal(t, "message 3", history[0].Content)
	assert.Equal(t, "message 12", history[9].Content)
	for _, msg := range history {
		assert.NotEqual(t, "message 1", msg.Content)
		assert.NotEqual(t, "message 2", msg.Content)
	}
}

func TestMemory_HistoryLimit(t *testing.T) {
	m := newTestMemory(t, WithMaxHistory(5))
	ctx := context.Background()
	id, _ := m.Create(ctx, "owner", "")

	for i := 1; i <= 4; i++ {
		m.AddMessage(ctx, id, model.RoleUser, fmt.Sprintf("m%d", i), map[string]string{"i": fmt.Sprint(i)})
	}

	last := m.History(ctx, id, 2)
	require.Len(t, last, 2)
	assert.Equal(t, "m3", last[0].Content)
	assert.Equal(t, "3", last[0].Metadata["i"])
	assert.Len(t, m.History(ctx, id, 100), 4)
}

func TestMemory_UnknownSession(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	assert.False(t, m.AddMessage(ctx, "missing", model.RoleUser, "hi", nil))
	assert.Empty(t, m.History(ctx, "missing", 0))
	assert.NotNil(t, m.History(ctx, "missing", 0))
	assert.Empty(t, m.Context(ctx, "missing", 100))
	assert.False(t, m.Clear(ctx, "missing"))

	_, ok := m.Summary(ctx, "missing")
	assert.False(t, ok)
}

func TestMemory_ClearIsIdempotent(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	id, _ := m.Create(ctx, "owner", "")
	m.AddMessage(ctx, id, model.RoleUser, "hello", nil)

	assert.True(t, m.Clear(ctx, id))
	assert.False(t, m.Clear(ctx, id))
	assert.Empty(t, m.History(ctx, id, 0))

	assert.False(t, m.AddMessage(ctx, id, model.RoleUser, "again", nil), "cleared sessions are never reactivated")

	summary, ok := m.Summary(ctx, id)
	require.True(t, ok, "tombstone is retained")
	assert.False(t, summary.Active)
}

func TestMemory_Context(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	id, _ := m.Create(ctx, "owner", "")

	m.AddMessage(ctx, id, model.RoleUser, strings.Repeat("a", 40), nil)      // 10 tokens
	m.AddMessage(ctx, id, model.RoleAssistant, strings.Repeat("b", 40), nil) // 10 tokens
	m.AddMessage(ctx, id, model.RoleUser, strings.Repeat("c", 40), nil)      // 10 tokens

	full := m.Context(ctx, id, 100)
	assert.Equal(t,
		"User: "+strings.Repeat("a", 40)+"\nAssistant: "+strings.Repeat("b", 40)+"\nUser: "+strings.Repeat("c", 40),
		full,
	)

	budgeted := m.Context(ctx, id, 25)
	assert.Equal(t, "User: "+strings.Repeat("a", 40)+"\nAssistant: "+strings.Repeat("b", 40), budgeted)

	assert.Empty(t, m.Context(ctx, id, 5))
}

func TestMemory_ListByOwner(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	first, _ := m.Create(ctx, "owner", "first")
	second, _ := m.Create(ctx, "owner", "second")
	third, _ := m.Create(ctx, "owner", "third")
	_, _ = m.Create(ctx, "other", "not mine")

	m.AddMessage(ctx, first, model.RoleUser, "bump", nil)
	m.Clear(ctx, third)

	summaries := m.ListByOwner(ctx, "owner", 10)
	require.Len(t, summaries, 2)
	assert.Equal(t, first, summaries[0].ID)
	assert.Equal(t, second, summaries[1].ID)
	assert.Equal(t, 1, summaries[0].MessageCount)

	assert.Len(t, m.ListByOwner(ctx, "owner", 1), 1)
	assert.Empty(t, m.ListByOwner(ctx, "nobody", 10))
}

func TestMemory_ClearOwner(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, "owner", "")
	_, _ = m.Create(ctx, "owner", "")
	other, _ := m.Create(ctx, "other", "")
	m.Clear(ctx, a)

	assert.Equal(t, 1, m.ClearOwner(ctx, "owner"))
	assert.Empty(t, m.ListByOwner(ctx, "owner", 0))

	summary, _ := m.Summary(ctx, other)
	assert.True(t, summary.Active)
}

func TestMemory_ConcurrentAppendsSameSession(t *testing.T) {
	m := newTestMemory(t, WithMaxHistory(1000))
	ctx := context.Background()
	id, _ := m.Create(ctx, "owner", "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.True(t, m.AddMessage(ctx, id, model.RoleUser, fmt.Sprintf("msg %d", i), nil))
		}(i)
	}
	wg.Wait()

	assert.Len(t, m.History(ctx, id, 0), 50)
}

func TestMemory_ConcurrentEvictionKeepsBound(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	ids := make([]string, 4)
	for i := range ids {
		ids[i], _ = m.Create(ctx, "owner", "")
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(id string, i int) {
				defer wg.Done()
				m.AddMessage(ctx, id, model.RoleAssistant, fmt.Sprint(i), nil)
			}(id, i)
		}
	}
	wg.Wait()

	for _, id := range ids {
		assert.Len(t, m.History(ctx, id, 0), DefaultMaxHistory)
	}
	assert.Zero(t, m.lockCount())
}

func (m *Memory) lockCount() int {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	return len(m.locks)
}

func TestMemory_LockTableDoesNotGrow(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		assert.False(t, m.AddMessage(ctx, fmt.Sprintf("unknown-%d", i), model.RoleUser, "hi", nil))
		assert.False(t, m.Clear(ctx, fmt.Sprintf("missing-%d", i)))
	}
	assert.Zero(t, m.lockCount())

	id, err := m.Create(ctx, "owner", "")
	require.NoError(t, err)
	require.True(t, m.AddMessage(ctx, id, model.RoleUser, "hello", nil))
	require.True(t, m.Clear(ctx, id))
	assert.False(t, m.AddMessage(ctx, id, model.RoleUser, "after clear", nil))
	assert.Zero(t, m.lockCount())
}

func TestMemory_LockSerializesSameSession(t *testing.T) {
	m := newTestMemory(t)

	unlock := m.lock("s1")
	acquired := make(chan struct{})
	go func() {
		release := m.lock("s1")
		close(acquired)
		release()
	}()

	// A different session is not blocked by s1.
	other := m.lock("s2")
	other()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held session lock")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired the session lock")
	}
	assert.Eventually(t, func() bool { return m.lockCount() == 0 }, time.Second, 10*time.Millisecond)
}

// conflictStore fails the first n updates with a version conflict.
type conflictStore struct {
	*MemoryStore
	conflicts int
}

func (c *conflictStore) Update(ctx context.Context, s *model.Session) error {
	if c.conflicts > 0 {
		c.conflicts--
		return ErrVersionConflict
	}
	return c.MemoryStore.Update(ctx, s)
}

func TestMemory_RetriesVersionConflicts(t *testing.T) {
	ctx := context.Background()

	store := &conflictStore{MemoryStore: NewMemoryStore(), conflicts: 2}
	m := New(store, logger.NewNop())
	id, _ := m.Create(ctx, "owner", "")
	assert.True(t, m.AddMessage(ctx, id, model.RoleUser, "hi", nil))

	store.conflicts = updateAttempts
	assert.False(t, m.AddMessage(ctx, id, model.RoleUser, "lost", nil))
	assert.Len(t, m.History(ctx, id, 0), 1)
}
