// Package ratelimit counts attempts per key in fixed-length windows.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultLimit  = 5
	DefaultWindow = 15 * time.Minute
)

// Actions limited independently of each other.
const (
	ActionLogin    = "login"
	ActionRegister = "register"
	ActionRecovery = "recovery"
)

// Limiter decides whether another attempt is allowed for key.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// Key composes the limiter key for a client and an action.
func Key(client, action string) string {
	return client + "|" + action
}

type window struct {
	count int
	start time.Time
}

// Memory is a process-local Limiter. A key's window opens on its first
// attempt and lasts Window; attempts past Limit inside it are refused.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// MemoryOption configures a Memory limiter.
type MemoryOption func(*Memory)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an in-memory limiter. Non-positive values use the defaults.
func NewMemory(limit int, windowLen time.Duration, opts ...MemoryOption) *Memory {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowLen <= 0 {
		windowLen = DefaultWindow
	}
	m := &Memory{
		limit:   limit,
		window:  windowLen,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Allow records an attempt for key and reports whether it is within the limit.
func (m *Memory) Allow(_ context.Context, key string) bool {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) > m.window {
		m.windows[key] = &window{count: 1, start: now}
		return true
	}
	if w.count >= m.limit {
		return false
	}
	w.count++
	return true
}

// Sweep drops expired windows and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, w := range m.windows {
		if now.Sub(w.start) > m.window {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Memory) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
