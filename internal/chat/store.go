package chat

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ThreadKey identifies the private conversation between two names.
type ThreadKey string

const threadKeySep = "\x00"

// NewThreadKey is order independent: NewThreadKey(a, b) == NewThreadKey(b, a).
func NewThreadKey(a, b string) ThreadKey {
	pair := []string{a, b}
	sort.Strings(pair)
	return ThreadKey(strings.Join(pair, threadKeySep))
}

// Participants returns the two names the key was built from, sorted.
func (k ThreadKey) Participants() (string, string) {
	a, b, _ := strings.Cut(string(k), threadKeySep)
	return a, b
}

type messageLog struct {
	messages  []*Message
	byID      map[string]*Message
	byLocalID map[string]*Message
}

func newMessageLog() *messageLog {
	return &messageLog{
		byID:      make(map[string]*Message),
		byLocalID: make(map[string]*Message),
	}
}

func (l *messageLog) append(m Message) *Message {
	stored := &m
	l.messages = append(l.messages, stored)
	l.byID[m.ID] = stored
	if m.LocalID != "" {
		if _, taken := l.byLocalID[m.LocalID]; !taken {
			l.byLocalID[m.LocalID] = stored
		}
	}
	return stored
}

// find matches the server id first, then the sender's local id.
func (l *messageLog) find(id string) (*Message, bool) {
	if m, ok := l.byID[id]; ok {
		return m, true
	}
	m, ok := l.byLocalID[id]
	return m, ok
}

func (l *messageLog) list() []Message {
	return lo.Map(l.messages, func(m *Message, _ int) Message { return m.Clone() })
}

// Store holds the public log and every private thread. Messages are kept in
// the order the coordinator appended them.
type Store struct {
	public  *messageLog
	threads map[ThreadKey]*messageLog
	clock   Clock
	newID   func() string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the clock used to timestamp messages.
func WithClock(c Clock) StoreOption {
	return func(s *Store) { s.clock = c }
}

// WithIDGenerator replaces the default UUID generator.
func WithIDGenerator(f func() string) StoreOption {
	return func(s *Store) { s.newID = f }
}

// NewStore returns an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		public:  newMessageLog(),
		threads: make(map[ThreadKey]*messageLog),
		clock:   RealClock{},
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendPublic stores a room-wide message and returns a copy of it.
func (s *Store) AppendPublic(sender, body string) Message {
	m := s.public.append(s.newMessage(sender, "", body, ""))
	return m.Clone()
}

// AppendPrivate stores a message in the thread between sender and
// recipient, creating the thread on first use.
func (s *Store) AppendPrivate(sender, recipient, body, localID string) Message {
	key := NewThreadKey(sender, recipient)
	thread, ok := s.threads[key]
	if !ok {
		thread = newMessageLog()
		s.threads[key] = thread
	}
	m := thread.append(s.newMessage(sender, recipient, body, localID))
	return m.Clone()
}

// FindPublic looks id up in the public log only.
func (s *Store) FindPublic(id string) (*Message, bool) {
	return s.public.find(id)
}

// FindPrivate looks id up in the thread between a and b only. id may also be
// the local id the sender attached, since a sender that never saw the stored
// copy only knows its own id.
func (s *Store) FindPrivate(a, b, id string) (*Message, bool) {
	thread, ok := s.threads[NewThreadKey(a, b)]
	if !ok {
		return nil, false
	}
	return thread.find(id)
}

// Public returns the public log in append order.
func (s *Store) Public() []Message {
	return s.public.list()
}

// Thread returns the messages exchanged between a and b in append order.
func (s *Store) Thread(a, b string) []Message {
	thread, ok := s.threads[NewThreadKey(a, b)]
	if !ok {
		return nil
	}
	return thread.list()
}

// ThreadCount returns the number of private threads created so far.
func (s *Store) ThreadCount() int {
	return len(s.threads)
}

func (s *Store) newMessage(from, to, body, localID string) Message {
	return Message{
		ID:        s.newID(),
		From:      from,
		To:        to,
		Body:      body,
		CreatedAt: s.clock.Now(),
		Reactions: Reactions{},
		LocalID:   localID,
	}
}
