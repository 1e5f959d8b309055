// Package guard implements the cooldown that stops an operation from running twice in a short window, ie. a user
// double clicking "send". The window is keyed by operation name only: two different wallets calling the same operation
// share it.
package guard

import (
	"sync"
	"time"
)

// Cooldown is the default window during which an operation may not run again.
const Cooldown = 5000 * time.Millisecond

// Limiter remembers when each operation last ran.
type Limiter struct {
	mu     sync.Mutex
	last   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

var (
	shared     *Limiter
	sharedOnce sync.Once
)

// New returns a limiter with the given window.
func New(window time.Duration) *Limiter {
	return &Limiter{last: make(map[string]time.Time), window: window, now: time.Now}
}

// Shared returns the process wide limiter used by every wallet unless another one is injected.
func Shared() *Limiter {
	sharedOnce.Do(func() { shared = New(Cooldown) })
	return shared
}

// CanRun reports whether op may run now. When it may, the current time is recorded as its last run.
func (l *Limiter) CanRun(op string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if t, ok := l.last[op]; ok && now.Sub(t) < l.window {
		return false
	}
	l.last[op] = now
	return true
}

// Reset forgets the last run of op.
func (l *Limiter) Reset(op string) {
	l.mu.Lock()
	delete(l.last, op)
	l.mu.Unlock()
}

// SetClock replaces the time source, used by tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}
