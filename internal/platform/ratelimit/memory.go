package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	start time.Time
	count int64
}

// Memory is a process-local Limiter, used when no Redis is configured.
type Memory struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

var _ Limiter = (*Memory)(nil)

// NewMemory returns an in-process fixed-window limiter.
func NewMemory(cfg Config) (*Memory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Memory{cfg: cfg, now: time.Now, counters: make(map[string]*counter)}, nil
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()
	start := windowStart(now, m.cfg.Window)

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok || !c.start.Equal(start) {
		m.prune(start)
		c = &counter{start: start}
		m.counters[key] = c
	}
	c.count++
	return decide(m.cfg, c.count, start, now), nil
}

// prune drops counters from earlier windows. Caller holds mu.
func (m *Memory) prune(current time.Time) {
	for k, c := range m.counters {
		if c.start.Before(current) {
			delete(m.counters, k)
		}
	}
}
