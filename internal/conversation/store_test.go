package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(t *testing.T, limits Limits) (*Store, *fakeClock) {
	clock := newFakeClock()
	n := 0
	gen := func() string {
		n++
		return fmt.Sprintf("conv%08d", n)
	}
	return NewStore(limits, zaptest.NewLogger(t), WithClock(clock.Now), WithIDGenerator(gen)), clock
}

func TestGetOrCreateReturnsExisting(t *testing.T) {
	store, _ := newTestStore(t, DefaultLimits())

	first := store.GetOrCreate("")
	require.NotEmpty(t, first.ID())

	again := store.GetOrCreate(first.ID())
	assert.Same(t, first, again)
	assert.Equal(t, 1, store.Len())
}

func TestGetOrCreateReusesSuppliedID(t *testing.T) {
	store, _ := newTestStore(t, DefaultLimits())
	sess := store.GetOrCreate("caller-chosen")
	assert.Equal(t, "caller-chosen", sess.ID())
}

func TestCapacityEvictsLeastRecentlyAccessed(t *testing.T) {
	store, clock := newTestStore(t, Limits{MaxSessions: 3, SessionTimeout: time.Hour, MaxTurns: 50})

	a := store.GetOrCreate("a")
	clock.Advance(time.Second)
	store.GetOrCreate("b")
	clock.Advance(time.Second)
	store.GetOrCreate("c")
	clock.Advance(time.Second)

	// a becomes the most recently accessed
	a.AddUserMessage("hello")
	clock.Advance(time.Second)

	store.GetOrCreate("d")
	assert.Equal(t, 3, store.Len())

	_, ok := store.Get("b")
	assert.False(t, ok, "b was least recently accessed")
	for _, id := range []string{"a", "c", "d"} {
		_, ok := store.Get(id)
		assert.True(t, ok, id)
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	store, clock := newTestStore(t, Limits{MaxSessions: 5, SessionTimeout: time.Hour, MaxTurns: 50})
	for i := 0; i < 50; i++ {
		store.GetOrCreate("")
		clock.Advance(time.Millisecond)
		assert.LessOrEqual(t, store.Len(), 5)
	}
}

func TestEvictionTieBreaksOnAccessOrder(t *testing.T) {
	store, _ := newTestStore(t, Limits{MaxSessions: 2, SessionTimeout: time.Hour, MaxTurns: 50})
	store.GetOrCreate("x")
	store.GetOrCreate("y")
	store.GetOrCreate("z")

	_, ok := store.Get("x")
	assert.False(t, ok)
	_, ok = store.Get("y")
	assert.True(t, ok)
}

func TestExpiredSessionIsNotReturned(t *testing.T) {
	store, clock := newTestStore(t, Limits{MaxSessions: 5, SessionTimeout: 10 * time.Minute, MaxTurns: 50})
	sess := store.GetOrCreate("")
	id := sess.ID()

	clock.Advance(10*time.Minute + time.Second)

	_, ok := store.Get(id)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())

	fresh := store.GetOrCreate(id)
	assert.NotSame(t, sess, fresh)
	assert.Empty(t, fresh.History())
}

func TestTurnLimitKillsSession(t *testing.T) {
	store, _ := newTestStore(t, Limits{MaxSessions: 5, SessionTimeout: time.Hour, MaxTurns: 2})
	sess := store.GetOrCreate("")

	sess.AddUserMessage("q1")
	sess.AddAssistantMessage("a1")
	_, ok := store.Get(sess.ID())
	assert.True(t, ok, "assistant replies do not count as turns")

	sess.AddUserMessage("q2")
	assert.Equal(t, 2, sess.TurnCount())

	_, ok = store.Get(sess.ID())
	assert.False(t, ok)

	replaced := store.GetOrCreate(sess.ID())
	assert.NotSame(t, sess, replaced)
	assert.Equal(t, 0, replaced.TurnCount())
}

func TestHistoryIsACopy(t *testing.T) {
	store, _ := newTestStore(t, DefaultLimits())
	sess := store.GetOrCreate("")
	sess.AddUserMessage("question")
	sess.AddAssistantMessage("answer")

	history := sess.History()
	require.Len(t, history, 2)
	assert.Equal(t, Message{Role: RoleUser, Content: "question"}, history[0])
	assert.Equal(t, Message{Role: RoleAssistant, Content: "answer"}, history[1])

	history[0].Content = "mutated"
	assert.Equal(t, "question", sess.History()[0].Content)
}

func TestRemoveIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t, DefaultLimits())
	sess := store.GetOrCreate("")
	store.Remove(sess.ID())
	store.Remove(sess.ID())
	store.Remove("never-existed")
	assert.Equal(t, 0, store.Len())
}

func TestStatsPurgesAndReports(t *testing.T) {
	store, clock := newTestStore(t, Limits{MaxSessions: 5, SessionTimeout: time.Minute, MaxTurns: 50})
	old := store.GetOrCreate("old")
	clock.Advance(2 * time.Minute)
	live := store.GetOrCreate("live")
	live.AddUserMessage("q")
	clock.Advance(30 * time.Second)

	stats := store.Stats()
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 5, stats.MaxSessions)
	assert.Equal(t, 60, stats.SessionTimeoutSeconds)
	require.Len(t, stats.Sessions, 1)
	assert.Equal(t, "live", stats.Sessions[0].SessionID)
	assert.Equal(t, 1, stats.Sessions[0].SearchCount)
	assert.Equal(t, 30, stats.Sessions[0].AgeSeconds)
	assert.Equal(t, 30, stats.Sessions[0].IdleSeconds)

	_, ok := store.Get(old.ID())
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	store := NewStore(Limits{MaxSessions: 4, SessionTimeout: time.Hour, MaxTurns: 1000}, zaptest.NewLogger(t))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := store.GetOrCreate(fmt.Sprintf("c%d", i%6))
			sess.AddUserMessage("q")
			sess.AddAssistantMessage("a")
			_ = store.Stats()
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, store.Len(), 4)
}
