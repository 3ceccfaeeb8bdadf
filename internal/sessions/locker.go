package sessions

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrLockTimeout is returned when acquiring a session lock times out.
	ErrLockTimeout = errors.New("session: lock acquisition timeout")
)

// Locker serializes turn processing per session: while one turn holds the
// lock, the session's next turn waits. Different sessions proceed
// concurrently.
type Locker interface {
	Lock(ctx context.Context, sessionID string) error
	Unlock(sessionID string)
}

// LocalLocker is an in-process Locker. Each session maps to a one-slot
// channel; acquisition waits on the channel, the context, and the
// configured timeout, whichever finishes first.
type LocalLocker struct {
	mu      sync.Mutex
	locks   map[string]*sessionLock
	timeout time.Duration
}

type sessionLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates a LocalLocker. timeout bounds how long Lock
// waits for a busy session; zero means 30 seconds.
func NewLocalLocker(timeout time.Duration) *LocalLocker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LocalLocker{
		locks:   make(map[string]*sessionLock),
		timeout: timeout,
	}
}

// Lock acquires the session's lock, waiting up to the configured timeout.
func (l *LocalLocker) Lock(ctx context.Context, sessionID string) error {
	l.mu.Lock()
	sl, ok := l.locks[sessionID]
	if !ok {
		sl = &sessionLock{ch: make(chan struct{}, 1)}
		l.locks[sessionID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case sl.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(sessionID)
		return ctx.Err()
	case <-timer.C:
		l.release(sessionID)
		return ErrLockTimeout
	}
}

// Unlock releases the session's lock. Calling Unlock for a session that
// is not locked is a no-op.
func (l *LocalLocker) Unlock(sessionID string) {
	l.mu.Lock()
	sl, ok := l.locks[sessionID]
	l.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-sl.ch:
	default:
	}
	l.release(sessionID)
}

// release drops one reference and removes the entry once unused, keeping
// the map from growing with dead sessions.
func (l *LocalLocker) release(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, ok := l.locks[sessionID]
	if !ok {
		return
	}
	sl.refs--
	if sl.refs <= 0 && len(sl.ch) == 0 {
		delete(l.locks, sessionID)
	}
}
