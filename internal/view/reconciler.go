// Package view folds the server's event stream into the local state a chat
// client renders.
//
// Message identity is the pair (store, id): a fact naming an id that is
// already present replaces the entry in place, so replays and echoes never
// duplicate history. Private messages sent from this client appear at once
// under a local id and adopt the server id when the stored copy comes back.
package view

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Tyrowin/gochat-presence/internal/protocol"
)

// Message is one entry of the public log or a private thread.
type Message struct {
	ID        string
	From      string
	To        string
	Body      string
	Timestamp time.Time
	Reactions map[string][]string
	// LocalID is the id this client used before the server id was known.
	LocalID string
	// Pending is true until the server acknowledged an optimistic entry.
	Pending bool
}

// Notice is a join or leave line shown alongside the public log.
type Notice struct {
	Kind        protocol.EventType
	DisplayName string
	Timestamp   time.Time
}

// Thread is the local copy of a private conversation with one peer.
type Thread struct {
	Messages []Message
	// PeerTyping is true while the peer is typing to us.
	PeerTyping bool
}

// State is a deep copy of the view.
type State struct {
	Self    string
	Public  []Message
	Threads map[string]Thread
	Online  []protocol.User
	Typers  []string
	Notices []Notice
}

// Reconciler owns one client's view. It is safe for concurrent use; the
// read loop applies facts while the caller records local sends.
type Reconciler struct {
	mu      sync.Mutex
	self    string
	public  []Message
	threads map[string]*Thread
	online  []protocol.User
	typers  []string
	notices []Notice

	now     func() time.Time
	localID func() string
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithNow replaces the clock used to stamp optimistic messages.
func WithNow(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithLocalIDs replaces the generator of optimistic message ids.
func WithLocalIDs(f func() string) Option {
	return func(r *Reconciler) { r.localID = f }
}

// New returns an empty view for the user named self.
func New(self string, opts ...Option) *Reconciler {
	r := &Reconciler{
		self:    self,
		threads: make(map[string]*Thread),
		now:     time.Now,
		localID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetSelf changes the name used to tell sent from received private messages.
func (r *Reconciler) SetSelf(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.self = name
}

// Self returns the local user's display name.
func (r *Reconciler) Self() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.self
}

// OpenThread makes sure a thread with peer exists, even if empty.
func (r *Reconciler) OpenThread(peer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thread(peer)
}

// SendPrivate records an optimistic copy of a private message and returns
// it. Its ID is the local id to attach to the outgoing intent.
func (r *Reconciler) SendPrivate(to, body string) Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.localID()
	m := Message{
		ID:        id,
		From:      r.self,
		To:        to,
		Body:      body,
		Timestamp: r.now(),
		Reactions: map[string][]string{},
		LocalID:   id,
		Pending:   true,
	}
	t := r.thread(to)
	t.Messages = append(t.Messages, m)
	return cloneMessage(m)
}

// Apply folds one fact into the view and reports whether anything changed.
func (r *Reconciler) Apply(fact protocol.Fact) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch f := fact.(type) {
	case protocol.PublicMessage:
		r.public = upsert(r.public, fromWire(f.Message))
		return true

	case protocol.PrivateMessage:
		m := fromWire(f.Message)
		t := r.thread(r.peer(m.From, m.To))
		if m.From == r.self && m.LocalID != "" {
			if i := indexOf(t.Messages, m.LocalID); i >= 0 {
				t.Messages[i] = m
				return true
			}
		}
		t.Messages = upsert(t.Messages, m)
		return true

	case protocol.MessageReaction:
		return r.applyReaction(f)

	case protocol.Typing:
		r.typers = slices.Clone(f.TypingUsers)
		return true

	case protocol.PrivateTyping:
		r.thread(f.From).PeerTyping = f.IsTyping
		return true

	case protocol.UserJoined:
		r.notices = append(r.notices, Notice{Kind: protocol.TypeUserJoined, DisplayName: f.DisplayName, Timestamp: f.Timestamp})
		return true

	case protocol.UserLeft:
		r.notices = append(r.notices, Notice{Kind: protocol.TypeUserLeft, DisplayName: f.DisplayName, Timestamp: f.Timestamp})
		return true

	case protocol.OnlineUsers:
		r.online = slices.Clone([]protocol.User(f))
		return true

	case protocol.UsersUpdated:
		r.online = slices.Clone([]protocol.User(f))
		return true
	}
	return false
}

func (r *Reconciler) applyReaction(f protocol.MessageReaction) bool {
	reactions := cloneReactions(f.Reactions)

	if !f.IsPrivate {
		i := indexOf(r.public, f.MessageID)
		if i < 0 {
			return false
		}
		r.public[i].Reactions = reactions
		return true
	}

	t, ok := r.threads[r.peer(f.From, f.To)]
	if !ok {
		return false
	}
	i := indexOf(t.Messages, f.MessageID)
	if i < 0 && f.LocalID != "" {
		i = indexOf(t.Messages, f.LocalID)
	}
	if i < 0 {
		return false
	}
	t.Messages[i].ID = f.MessageID
	t.Messages[i].Pending = false
	t.Messages[i].Reactions = reactions
	return true
}

// Snapshot returns a deep copy of the view.
func (r *Reconciler) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return State{
		Self:   r.self,
		Public: lo.Map(r.public, func(m Message, _ int) Message { return cloneMessage(m) }),
		Threads: lo.MapValues(r.threads, func(t *Thread, _ string) Thread {
			return Thread{
				Messages:   lo.Map(t.Messages, func(m Message, _ int) Message { return cloneMessage(m) }),
				PeerTyping: t.PeerTyping,
			}
		}),
		Online:  slices.Clone(r.online),
		Typers:  slices.Clone(r.typers),
		Notices: slices.Clone(r.notices),
	}
}

// peer names the other participant of a private message or reaction.
func (r *Reconciler) peer(from, to string) string {
	if from == r.self {
		return to
	}
	return from
}

func (r *Reconciler) thread(peer string) *Thread {
	t, ok := r.threads[peer]
	if !ok {
		t = &Thread{}
		r.threads[peer] = t
	}
	return t
}

func upsert(messages []Message, m Message) []Message {
	if i := indexOf(messages, m.ID); i >= 0 {
		messages[i] = m
		return messages
	}
	return append(messages, m)
}

func indexOf(messages []Message, id string) int {
	_, i, _ := lo.FindIndexOf(messages, func(m Message) bool { return m.ID == id })
	return i
}

func fromWire(m protocol.Message) Message {
	return Message{
		ID:        m.ID,
		From:      m.From,
		To:        m.To,
		Body:      m.Body,
		Timestamp: m.Timestamp,
		Reactions: cloneReactions(m.Reactions),
		LocalID:   m.LocalID,
	}
}

func cloneMessage(m Message) Message {
	m.Reactions = cloneReactions(m.Reactions)
	return m
}

func cloneReactions(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for emoji, names := range in {
		out[emoji] = slices.Clone(names)
	}
	return out
}
