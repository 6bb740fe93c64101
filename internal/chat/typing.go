package chat

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// DefaultTypingTimeout is how long a typing indicator survives without a
// fresh keystroke.
const DefaultTypingTimeout = 2 * time.Second

// TypingKey identifies one typing indicator. An empty Listener is the public
// room; otherwise Speaker is typing to Listener in their private thread.
type TypingKey struct {
	Speaker  string
	Listener string
}

// IsPublic reports whether the key belongs to the public room.
func (k TypingKey) IsPublic() bool {
	return k.Listener == ""
}

// Expiry is handed to the tracker's owner when an inactivity timer fires.
// The owner must pass it back to Expire from the goroutine that owns the
// tracker.
type Expiry struct {
	Key   TypingKey
	Token uint64
}

// Cleared describes what ClearUser removed.
type Cleared struct {
	// Public is true when the user was in the public typer set.
	Public bool
	// Listeners were being shown a private indicator from the user.
	Listeners []string
}

// TypingTracker keeps public and private typing state. Each active indicator
// has exactly one inactivity timer; starting again re-arms it and stopping
// cancels it.
type TypingTracker struct {
	timeout  time.Duration
	timers   *TimerTable[TypingKey]
	onExpire func(Expiry)

	public     []string
	publicConn map[string]string
	private    map[TypingKey]bool
}

// NewTypingTracker returns a tracker whose timers call onExpire when they
// fire. onExpire runs on the timer's goroutine and must not touch the
// tracker directly.
func NewTypingTracker(timeout time.Duration, clock Clock, onExpire func(Expiry)) *TypingTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	if onExpire == nil {
		onExpire = func(Expiry) {}
	}
	return &TypingTracker{
		timeout:    timeout,
		timers:     NewTimerTable[TypingKey](clock),
		onExpire:   onExpire,
		publicConn: make(map[string]string),
		private:    make(map[TypingKey]bool),
	}
}

// SetPublic updates name's public indicator and returns the full typer set.
// connectionID is remembered so an expiry can skip the typer's own
// connection when it is broadcast.
func (t *TypingTracker) SetPublic(name, connectionID string, typing bool) []string {
	key := TypingKey{Speaker: name}
	if typing {
		if !lo.Contains(t.public, name) {
			t.public = append(t.public, name)
		}
		t.publicConn[name] = connectionID
		t.arm(key)
	} else {
		t.removePublic(name)
		t.timers.Cancel(key)
	}
	return t.Typers()
}

// SetPrivate updates the speaker to listener indicator.
func (t *TypingTracker) SetPrivate(speaker, listener string, typing bool) {
	key := TypingKey{Speaker: speaker, Listener: listener}
	if typing {
		t.private[key] = true
		t.arm(key)
		return
	}
	delete(t.private, key)
	t.timers.Cancel(key)
}

// Typers returns the public typer set in the order names started typing.
func (t *TypingTracker) Typers() []string {
	return slices.Clone(t.public)
}

// PublicConnection returns the connection that last reported name typing.
func (t *TypingTracker) PublicConnection(name string) string {
	return t.publicConn[name]
}

// IsTyping reports the current state of key.
func (t *TypingTracker) IsTyping(key TypingKey) bool {
	if key.IsPublic() {
		return lo.Contains(t.public, key.Speaker)
	}
	return t.private[key]
}

// Expire applies a fired timer. It returns false when the timer was
// superseded by a later start or stop, in which case nothing changes.
func (t *TypingTracker) Expire(e Expiry) bool {
	if !t.timers.Release(e.Key, e.Token) {
		return false
	}
	if e.Key.IsPublic() {
		t.removePublic(e.Key.Speaker)
	} else {
		delete(t.private, e.Key)
	}
	return true
}

// ClearUser drops every indicator involving name and cancels its timers.
func (t *TypingTracker) ClearUser(name string) Cleared {
	var cleared Cleared

	if lo.Contains(t.public, name) {
		t.removePublic(name)
		cleared.Public = true
	}

	for key, typing := range t.private {
		switch {
		case key.Speaker == name:
			if typing {
				cleared.Listeners = append(cleared.Listeners, key.Listener)
			}
			delete(t.private, key)
		case key.Listener == name:
			delete(t.private, key)
		}
	}
	slices.Sort(cleared.Listeners)

	t.timers.CancelWhere(func(k TypingKey) bool {
		return k.Speaker == name || k.Listener == name
	})
	return cleared
}

// Pending returns the number of armed inactivity timers.
func (t *TypingTracker) Pending() int {
	return t.timers.Len()
}

// Stop cancels all timers.
func (t *TypingTracker) Stop() {
	t.timers.Stop()
}

func (t *TypingTracker) arm(key TypingKey) {
	t.timers.Arm(key, t.timeout, func(token uint64) {
		t.onExpire(Expiry{Key: key, Token: token})
	})
}

func (t *TypingTracker) removePublic(name string) {
	t.public = lo.Without(t.public, name)
	delete(t.publicConn, name)
}
