package service

import (
	"errors"
	"sync"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/session"
)

// staleAfter marks a session inactive when every member's last ping is
// older than this.
const staleAfter = 90 * time.Second

// ErrSelfPairing is returned when an account tries to pair with itself.
var ErrSelfPairing = errors.New("Cannot create session with yourself")

// SessionManager owns the live pair sessions. Everything here is
// in-memory; sessions are rebuilt from zero after a daemon restart.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session.Shared
	updates  map[string][]session.Update
	cursors  map[string]int // sessionID+"/"+reader → consumed count
	now      func() time.Time
}

// NewSessionManager creates an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*session.Shared),
		updates:  make(map[string][]session.Update),
		cursors:  make(map[string]int),
		now:      time.Now,
	}
}

// CreateSession starts a live pair between initiator and participant.
// Self-pairing is rejected.
func (m *SessionManager) CreateSession(initiator, participant, workspace string) (*session.Shared, error) {
	if initiator == participant {
		return nil, ErrSelfPairing
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s := &session.Shared{
		ID:          domain.NewID(),
		Initiator:   initiator,
		Participant: participant,
		Workspace:   workspace,
		StartedAt:   now.UTC(),
		Active:      true,
		LastPing:    map[string]int64{initiator: now.UnixMilli()},
	}
	m.sessions[s.ID] = s
	return cloneSession(s), nil
}

// JoinSession marks the participant joined. Only the configured
// participant may join, and only while the session is active. Joining
// twice is a no-op.
func (m *SessionManager) JoinSession(id, account string) (*session.Shared, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !s.Active {
		return nil, errors.New("session is no longer active")
	}
	if account != s.Participant {
		return nil, domain.ErrUnauthorized
	}
	s.Joined = true
	s.LastPing[account] = m.now().UnixMilli()
	return cloneSession(s), nil
}

// AddUpdate appends an opaque update from a member. It reports whether
// the update was stored.
func (m *SessionManager) AddUpdate(id, from, data string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || !s.Active || !s.Member(from) {
		return false
	}
	m.updates[id] = append(m.updates[id], session.Update{
		From:      from,
		Data:      data,
		Timestamp: m.now().UTC(),
	})
	return true
}

// GetUpdates returns the updates the reader has not consumed yet and
// advances the reader's cursor. Non-members get nothing.
func (m *SessionManager) GetUpdates(id, reader string) []session.Update {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || !s.Member(reader) {
		return nil
	}
	key := id + "/" + reader
	all := m.updates[id]
	cursor := m.cursors[key]
	if cursor >= len(all) {
		return []session.Update{}
	}
	out := make([]session.Update, len(all)-cursor)
	copy(out, all[cursor:])
	m.cursors[key] = len(all)
	return out
}

// RecordPing refreshes a member's liveness. Non-members are ignored and
// get false.
func (m *SessionManager) RecordPing(id, account string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || !s.Active || !s.Member(account) {
		return false
	}
	s.LastPing[account] = m.now().UnixMilli()
	return true
}

// EndSession deactivates the session. Only members may end it; ending
// twice is idempotent.
func (m *SessionManager) EndSession(id, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !s.Member(account) {
		return domain.ErrUnauthorized
	}
	s.Active = false
	return nil
}

// Get returns a snapshot of the session for a member.
func (m *SessionManager) Get(id, account string) (*session.Shared, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !s.Member(account) {
		return nil, domain.ErrUnauthorized
	}
	return cloneSession(s), nil
}

// CleanupStale marks sessions inactive when every member's last ping is
// older than the stale window. It returns how many were deactivated.
func (m *SessionManager) CleanupStale() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-staleAfter).UnixMilli()
	n := 0
	for _, s := range m.sessions {
		if !s.Active {
			continue
		}
		alive := false
		for _, last := range s.LastPing {
			if last >= cutoff {
				alive = true
				break
			}
		}
		if !alive {
			s.Active = false
			n++
		}
	}
	return n
}

// PurgeInactive drops inactive sessions older than the threshold,
// together with their updates and read cursors. Active sessions are
// never removed.
func (m *SessionManager) PurgeInactive(olderThan time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-olderThan)
	n := 0
	for id, s := range m.sessions {
		if s.Active || s.StartedAt.After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		delete(m.updates, id)
		for key := range m.cursors {
			if len(key) > len(id) && key[:len(id)] == id && key[len(id)] == '/' {
				delete(m.cursors, key)
			}
		}
		n++
	}
	return n
}

// RunJanitor applies both cleanup steps on an interval until done is
// closed.
func (m *SessionManager) RunJanitor(done <-chan struct{}, interval, purgeAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.CleanupStale()
			m.PurgeInactive(purgeAfter)
		}
	}
}

func cloneSession(s *session.Shared) *session.Shared {
	cp := *s
	cp.LastPing = make(map[string]int64, len(s.LastPing))
	for k, v := range s.LastPing {
		cp.LastPing[k] = v
	}
	return &cp
}
