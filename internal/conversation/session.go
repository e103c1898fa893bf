package conversation

import (
	"sync"
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one conversation turn as sent to the provider
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is a conversation owned by a Store. Only the two append
// methods mutate it; both bump the last access time.
type Session struct {
	id        string
	createdAt time.Time
	now       func() time.Time
	tick      func() uint64

	mu         sync.Mutex
	messages   []Message
	lastAccess time.Time
	accessSeq  uint64
	turnCount  int
}

func newSession(id string, now func() time.Time, tick func() uint64) *Session {
	t := now()
	return &Session{
		id:         id,
		createdAt:  t,
		now:        now,
		tick:       tick,
		lastAccess: t,
		accessSeq:  tick(),
	}
}

// ID returns the conversation handle
func (s *Session) ID() string { return s.id }

// CreatedAt returns the creation time
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// AddUserMessage appends a user turn; it is the only call that counts toward the turn cap
func (s *Session) AddUserMessage(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{Role: RoleUser, Content: content})
	s.touchLocked()
	s.turnCount++
}

// AddAssistantMessage appends an assistant reply
func (s *Session) AddAssistantMessage(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{Role: RoleAssistant, Content: content})
	s.touchLocked()
}

// History returns a copy of the messages in order
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// TurnCount returns the number of user messages appended
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

// LastAccess returns the time of the last append (or creation)
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

func (s *Session) touchLocked() {
	s.lastAccess = s.now()
	s.accessSeq = s.tick()
}

type snapshot struct {
	lastAccess time.Time
	accessSeq  uint64
	turnCount  int
}

func (s *Session) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{lastAccess: s.lastAccess, accessSeq: s.accessSeq, turnCount: s.turnCount}
}
