package limiter

import (
	"context"
	"sync"
	"time"
)

type attempts struct {
	fails        int
	updatedAt    time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter with the same semantics as PG.
type Memory struct {
	mu     sync.Mutex
	policy Policy
	now    func() time.Time
	state  map[string]*attempts
}

// NewMemory constructs an in-memory limiter. A nil clock means time.Now.
func NewMemory(p Policy, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{policy: p, now: now, state: map[string]*attempts{}}
}

func memKey(login string, ipHash []byte) string { return login + "\x00" + string(ipHash) }

func (m *Memory) Allow(_ context.Context, login string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state[memKey(login, ipHash)]
	if !ok {
		return true, 0, nil
	}
	now := m.now()
	if a.blockedUntil.After(now) {
		return false, a.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

func (m *Memory) Success(_ context.Context, login string, ipHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, memKey(login, ipHash))
	return nil
}

func (m *Memory) Failure(_ context.Context, login string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	k := memKey(login, ipHash)
	a, ok := m.state[k]
	if !ok {
		a = &attempts{}
		m.state[k] = a
	}
	if ok && now.Sub(a.updatedAt) > m.policy.Window {
		a.fails = 0
	}
	a.fails++
	a.updatedAt = now
	if a.fails >= m.policy.MaxFails {
		a.blockedUntil = now.Add(m.policy.BlockFor)
		return true, m.policy.BlockFor, nil
	}
	return false, 0, nil
}
