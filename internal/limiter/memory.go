package limiter

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	fails        int
	updatedAt    time.Time
	blockedUntil time.Time
}

// Memory is a process-local limiter for tests and single-instance dev servers.
type Memory struct {
	mu     sync.Mutex
	policy Policy
	now    func() time.Time
	m      map[string]*entry
}

// NewMemory constructs an in-memory limiter. A nil clock means time.Now.
func NewMemory(p Policy, clock func() time.Time) *Memory {
	if clock == nil {
		clock = time.Now
	}
	return &Memory{policy: p, now: clock, m: make(map[string]*entry)}
}

func key(email string, ipHash []byte) string { return email + "\x00" + string(ipHash) }

// Allow implements Limiter.
func (l *Memory) Allow(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.m[key(email, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if now := l.now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success implements Limiter.
func (l *Memory) Success(_ context.Context, email string, ipHash []byte) error {
	l.mu.Lock()
	delete(l.m, key(email, ipHash))
	l.mu.Unlock()
	return nil
}

// Failure implements Limiter.
func (l *Memory) Failure(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := key(email, ipHash)
	e, ok := l.m[k]
	if !ok || now.Sub(e.updatedAt) > l.policy.Window {
		e = &entry{}
		l.m[k] = e
	}
	e.fails++
	e.updatedAt = now
	if e.fails < l.policy.MaxFails {
		return false, 0, nil
	}
	e.blockedUntil = now.Add(l.policy.BlockFor)
	return true, l.policy.BlockFor, nil
}
