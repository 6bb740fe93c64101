package chatclient

import (
	"sync"
	"time"

	"github.com/Tyrowin/gochat-presence/internal/chat"
)

// DefaultTypingIdle is how long a typing session survives without a keystroke.
const DefaultTypingIdle = 2 * time.Second

// PublicScope is the Typist key for the public room.
const PublicScope = ""

// Typist debounces typing indicators per scope. The first keystroke of a
// session reports typing, and keystrokes keep reporting it every half idle
// period so the server's own expiry stays armed. The session ends with an
// explicit Stop or after the idle period with no further keystroke. A scope
// is PublicScope or the name of a private peer.
type Typist struct {
	mu      sync.Mutex
	clock   chat.Clock
	idle    time.Duration
	refresh time.Duration
	sent    map[string]time.Time
	timers  *chat.TimerTable[string]
	notify  func(scope string, typing bool)
}

// NewTypist returns a Typist that calls notify when a session starts, while
// it is kept alive, and when it ends. notify may run on a timer goroutine.
func NewTypist(clock chat.Clock, idle time.Duration, notify func(scope string, typing bool)) *Typist {
	if clock == nil {
		clock = chat.RealClock{}
	}
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &Typist{
		clock:   clock,
		idle:    idle,
		refresh: idle / 2,
		sent:    make(map[string]time.Time),
		timers:  chat.NewTimerTable[string](clock),
		notify:  notify,
	}
}

// Keystroke starts a session for scope or extends the running one.
func (t *Typist) Keystroke(scope string) {
	now := t.clock.Now()

	t.mu.Lock()
	last, running := t.sent[scope]
	announce := !running || now.Sub(last) >= t.refresh
	if announce {
		t.sent[scope] = now
	}
	t.timers.Arm(scope, t.idle, func(token uint64) {
		if !t.timers.Release(scope, token) {
			return
		}
		t.mu.Lock()
		delete(t.sent, scope)
		t.mu.Unlock()
		t.notify(scope, false)
	})
	t.mu.Unlock()

	if announce {
		t.notify(scope, true)
	}
}

// Stop ends the session for scope, if any.
func (t *Typist) Stop(scope string) {
	t.mu.Lock()
	delete(t.sent, scope)
	stopped := t.timers.Cancel(scope)
	t.mu.Unlock()

	if stopped {
		t.notify(scope, false)
	}
}

// Typing reports whether a session is running for scope.
func (t *Typist) Typing(scope string) bool {
	return t.timers.Pending(scope)
}

// Close drops every session without notifying.
func (t *Typist) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timers.Stop()
	clear(t.sent)
}
