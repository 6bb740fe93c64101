package chat

import (
	"sync"
	"time"
)

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock supplies the current time and schedules callbacks. The coordinator and
// the client typing debouncer take a Clock so tests can drive time by hand.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock is the wall-clock implementation backed by the time package.
type RealClock struct{}

// Now returns time.Now.
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type pendingTimer struct {
	token uint64
	timer Timer
}

// TimerTable holds at most one pending timer per key. Every Arm call cancels
// the previous timer for the key and hands out a fresh token; a fired
// callback only counts if its token is still the current one.
type TimerTable[K comparable] struct {
	mu      sync.Mutex
	clock   Clock
	next    uint64
	pending map[K]pendingTimer
}

// NewTimerTable returns an empty table scheduling on clock.
func NewTimerTable[K comparable](clock Clock) *TimerTable[K] {
	if clock == nil {
		clock = RealClock{}
	}
	return &TimerTable[K]{
		clock:   clock,
		pending: make(map[K]pendingTimer),
	}
}

// Arm cancels any timer pending for key and schedules fire after d. The
// callback receives the token it was armed with.
func (t *TimerTable[K]) Arm(key K, d time.Duration, fire func(token uint64)) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.pending[key]; ok {
		prev.timer.Stop()
	}

	t.next++
	token := t.next
	t.pending[key] = pendingTimer{
		token: token,
		timer: t.clock.AfterFunc(d, func() { fire(token) }),
	}
	return token
}

// Cancel stops the pending timer for key. It reports whether one existed.
func (t *TimerTable[K]) Cancel(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.pending[key]
	if !ok {
		return false
	}
	prev.timer.Stop()
	delete(t.pending, key)
	return true
}

// Release consumes the entry for key if token is still current. A false
// result means the timer was re-armed or cancelled after it fired.
func (t *TimerTable[K]) Release(key K, token uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.pending[key]
	if !ok || prev.token != token {
		return false
	}
	delete(t.pending, key)
	return true
}

// Pending reports whether a timer is armed for key.
func (t *TimerTable[K]) Pending(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[key]
	return ok
}

// Len returns the number of armed timers.
func (t *TimerTable[K]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// CancelWhere stops and removes every timer whose key matches.
func (t *TimerTable[K]) CancelWhere(match func(K) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for key, prev := range t.pending {
		if !match(key) {
			continue
		}
		prev.timer.Stop()
		delete(t.pending, key)
		n++
	}
	return n
}

// Stop cancels every pending timer.
func (t *TimerTable[K]) Stop() {
	t.CancelWhere(func(K) bool { return true })
}
