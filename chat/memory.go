// Package chat holds per-session conversation state and the orchestrator
// that turns a question into a grounded answer.
package chat

import (
	"log/slog"
	"sync"
	"time"
)

// Exchange is one completed question/answer turn.
type Exchange struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// MemoryConfig tunes per-session retention.
type MemoryConfig struct {
	// MaxExchanges caps how many turns a session keeps. Older turns are
	// dropped FIFO.
	MaxExchanges int

	// MaxIdle evicts sessions untouched for this long. Zero disables
	// idle eviction.
	MaxIdle time.Duration
}

// DefaultMemoryConfig returns the production retention settings.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{MaxExchanges: 20, MaxIdle: 30 * time.Minute}
}

type session struct {
	mu        sync.Mutex
	exchanges []Exchange
	lastSeen  time.Time
}

// Memory is an in-process store of conversation histories keyed by session
// ID. Idle sessions are evicted lazily on access and in bulk by Sweep.
type Memory struct {
	mu       sync.RWMutex
	cfg      MemoryConfig
	sessions map[string]*session
	now      func() time.Time
}

// NewMemory creates an empty session store.
func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.MaxExchanges <= 0 {
		cfg.MaxExchanges = DefaultMemoryConfig().MaxExchanges
	}
	return &Memory{
		cfg:      cfg,
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Append records a completed exchange, trimming the oldest turns beyond
// MaxExchanges. A new session is created on first touch.
func (m *Memory) Append(sessionID string, ex Exchange) {
	if ex.At.IsZero() {
		ex.At = m.now()
	}

	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		s = &session{}
		m.sessions[sessionID] = s
	}
	m.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges = append(s.exchanges, ex)
	if overflow := len(s.exchanges) - m.cfg.MaxExchanges; overflow > 0 {
		s.exchanges = append([]Exchange(nil), s.exchanges[overflow:]...)
	}
	s.lastSeen = m.now()
}

// History returns the session's most recent limit turns in chronological
// order, most recent last. limit <= 0 returns everything retained. An
// unknown or expired session yields an empty slice.
func (m *Memory) History(sessionID string, limit int) []Exchange {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m.expiredLocked(s) {
		go m.Clear(sessionID)
		return nil
	}
	s.lastSeen = m.now()

	exchanges := s.exchanges
	if limit > 0 && len(exchanges) > limit {
		exchanges = exchanges[len(exchanges)-limit:]
	}
	out := make([]Exchange, len(exchanges))
	copy(out, exchanges)
	return out
}

// Clear removes a session. Clearing an absent session is a no-op.
func (m *Memory) Clear(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// Len reports the number of live sessions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep evicts every idle session and reports how many were removed. Meant
// to run on a ticker from the process main loop.
func (m *Memory) Sweep() int {
	if m.cfg.MaxIdle <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		expired := m.expiredLocked(s)
		s.mu.Unlock()
		if expired {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Swept idle sessions", "removed", removed, "remaining", len(m.sessions))
	}
	return removed
}

// StartSweeper runs Sweep on an interval until stop is closed.
func (m *Memory) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-stop:
			return
		}
	}
}

func (m *Memory) expiredLocked(s *session) bool {
	return m.cfg.MaxIdle > 0 && !s.lastSeen.IsZero() && m.now().Sub(s.lastSeen) > m.cfg.MaxIdle
}
