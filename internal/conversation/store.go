package conversation

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kocoro-lab/Shannon/go/research/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/research/internal/util"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a conversation is absent or no longer alive
var ErrNotFound = errors.New("conversation expired or not found")

const (
	evictExpired   = "expired"
	evictTurnLimit = "turn_limit"
	evictCapacity  = "capacity"
	evictRemoved   = "removed"
)

// Limits bounds the store. Non-positive SessionTimeout or MaxTurns disable that check.
type Limits struct {
	MaxSessions    int
	SessionTimeout time.Duration
	MaxTurns       int
}

// DefaultLimits returns 20 sessions, 10 minutes idle expiry and 50 turns
func DefaultLimits() Limits {
	return Limits{MaxSessions: 20, SessionTimeout: 10 * time.Minute, MaxTurns: 50}
}

// Option customizes a Store
type Option func(*Store)

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator sets the generator for new conversation ids
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Store holds live conversations with bounded capacity, idle expiry and a turn cap.
// Lock order is store then session; sessions never call back into the store.
type Store struct {
	limits Limits
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
	seq    uint64

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty store
func NewStore(limits Limits, logger *zap.Logger, opts ...Option) *Store {
	if limits.MaxSessions <= 0 {
		limits.MaxSessions = DefaultLimits().MaxSessions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		limits:   limits,
		logger:   logger,
		now:      time.Now,
		newID:    util.NewShortID,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) tick() uint64 { return atomic.AddUint64(&s.seq, 1) }

// Limits returns the configured bounds
func (s *Store) Limits() Limits { return s.limits }

// GetOrCreate returns the live session for id, or creates one. When id is
// empty a fresh id is generated; a dead session with the same id is replaced.
func (s *Store) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purgeLocked(now)

	if id != "" {
		if sess, ok := s.sessions[id]; ok {
			reason := s.deadReason(sess.snapshot(), now)
			if reason == "" {
				return sess
			}
			s.deleteLocked(id, reason)
		}
	}

	if len(s.sessions) >= s.limits.MaxSessions {
		s.evictOldestLocked()
	}

	if id == "" {
		id = s.newID()
	}
	sess := newSession(id, s.now, s.tick)
	s.sessions[id] = sess
	metrics.ConversationsCreated.Inc()
	metrics.ConversationsActive.Set(float64(len(s.sessions)))

	s.logger.Debug("Created conversation",
		zap.String("conversation_id", id),
		zap.Int("active", len(s.sessions)),
	)
	return sess
}

// Get returns the session if it is alive; a dead one is purged
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if reason := s.deadReason(sess.snapshot(), s.now()); reason != "" {
		s.deleteLocked(id, reason)
		return nil, false
	}
	return sess, true
}

// Remove deletes id; absent ids are ignored
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		s.deleteLocked(id, evictRemoved)
	}
}

// Len returns the number of tracked sessions without purging
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SessionStats describes one live session
type SessionStats struct {
	SessionID   string `json:"session_id"`
	SearchCount int    `json:"search_count"`
	AgeSeconds  int    `json:"age_seconds"`
	IdleSeconds int    `json:"idle_seconds"`
}

// Stats is a point-in-time view of the store
type Stats struct {
	ActiveSessions        int            `json:"active_sessions"`
	MaxSessions           int            `json:"max_sessions"`
	SessionTimeoutSeconds int            `json:"session_timeout_seconds"`
	MaxSearches           int            `json:"max_searches_per_session"`
	Sessions              []SessionStats `json:"sessions"`
}

// Stats purges dead sessions and reports the rest, oldest first
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purgeLocked(now)

	out := Stats{
		ActiveSessions:        len(s.sessions),
		MaxSessions:           s.limits.MaxSessions,
		SessionTimeoutSeconds: int(s.limits.SessionTimeout / time.Second),
		MaxSearches:           s.limits.MaxTurns,
		Sessions:              make([]SessionStats, 0, len(s.sessions)),
	}
	for id, sess := range s.sessions {
		snap := sess.snapshot()
		out.Sessions = append(out.Sessions, SessionStats{
			SessionID:   id,
			SearchCount: snap.turnCount,
			AgeSeconds:  int(now.Sub(sess.createdAt) / time.Second),
			IdleSeconds: int(now.Sub(snap.lastAccess) / time.Second),
		})
	}
	sort.Slice(out.Sessions, func(i, j int) bool {
		if out.Sessions[i].AgeSeconds != out.Sessions[j].AgeSeconds {
			return out.Sessions[i].AgeSeconds > out.Sessions[j].AgeSeconds
		}
		return out.Sessions[i].SessionID < out.Sessions[j].SessionID
	})
	return out
}

func (s *Store) deadReason(snap snapshot, now time.Time) string {
	if s.limits.SessionTimeout > 0 && now.Sub(snap.lastAccess) > s.limits.SessionTimeout {
		return evictExpired
	}
	if s.limits.MaxTurns > 0 && snap.turnCount >= s.limits.MaxTurns {
		return evictTurnLimit
	}
	return ""
}

func (s *Store) purgeLocked(now time.Time) {
	for id, sess := range s.sessions {
		if reason := s.deadReason(sess.snapshot(), now); reason != "" {
			s.deleteLocked(id, reason)
		}
	}
}

func (s *Store) evictOldestLocked() {
	var (
		oldestID string
		oldest   snapshot
		found    bool
	)
	for id, sess := range s.sessions {
		snap := sess.snapshot()
		if !found || snap.lastAccess.Before(oldest.lastAccess) ||
			(snap.lastAccess.Equal(oldest.lastAccess) && snap.accessSeq < oldest.accessSeq) {
			oldestID, oldest, found = id, snap, true
		}
	}
	if found {
		s.deleteLocked(oldestID, evictCapacity)
	}
}

func (s *Store) deleteLocked(id, reason string) {
	delete(s.sessions, id)
	metrics.ConversationsEvicted.WithLabelValues(reason).Inc()
	metrics.ConversationsActive.Set(float64(len(s.sessions)))
	s.logger.Debug("Removed conversation",
		zap.String("conversation_id", id),
		zap.String("reason", reason),
	)
}
