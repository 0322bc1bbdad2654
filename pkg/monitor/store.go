package monitor

import (
	"sync"
	"time"
)

// SessionStore holds the registry of monitoring sessions. It is owned and
// passed by the scheduler, never a package global. All reads hand out
// copies; all writes re-check that the session is still registered, so a
// result computed for a session removed mid-flight is discarded instead of
// resurrecting it.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*MonitoringSession
	order    []string
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*MonitoringSession)}
}

// Replace clears all registered sessions and registers the given one,
// returning how many were cleared. The engine supports a single logically
// active session owner; registration is therefore a replace, not an add.
func (s *SessionStore) Replace(session MonitoringSession) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := len(s.sessions)
	s.sessions = map[string]*MonitoringSession{session.ID: &session}
	s.order = []string{session.ID}
	return cleared
}

// Remove deletes one session, reporting whether it was registered.
func (s *SessionStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes all sessions and returns the count removed.
func (s *SessionStore) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := len(s.sessions)
	s.sessions = make(map[string]*MonitoringSession)
	s.order = nil
	return cleared
}

// Count returns the number of registered sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IDs returns the registered session ids in registration order.
func (s *SessionStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Snapshot returns a copy of one session.
func (s *SessionStore) Snapshot(id string) (MonitoringSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return MonitoringSession{}, false
	}
	return copySession(session), true
}

// List returns copies of all sessions in registration order.
func (s *SessionStore) List() []MonitoringSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]MonitoringSession, 0, len(s.order))
	for _, id := range s.order {
		if session, ok := s.sessions[id]; ok {
			out = append(out, copySession(session))
		}
	}
	return out
}

// RecordSuccess replaces the session's last result with this cycle's
// extraction output and stamps both check timestamps. The previous result
// is never merged in: stale data must not survive a successful check.
// Returns false when the session is no longer registered.
func (s *SessionStore) RecordSuccess(id string, slots []AppointmentSlot, attempts []Attempt, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return false
	}
	session.LastResult = append([]AppointmentSlot(nil), slots...)
	session.LastCheckedAt = at
	session.LastSuccessAt = at
	session.LastError = ""
	session.LastAttempts = append([]Attempt(nil), attempts...)
	session.ConsecutiveFailures = 0
	return true
}

// RecordFailure stamps the attempted check and the failure while keeping
// the previous result: stale-but-available beats erasing data on a
// transient blip. Returns false when the session is no longer registered.
func (s *SessionStore) RecordFailure(id string, err error, attempts []Attempt, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return false
	}
	session.LastCheckedAt = at
	session.LastError = err.Error()
	session.LastAttempts = append([]Attempt(nil), attempts...)
	session.ConsecutiveFailures++
	return true
}

func copySession(session *MonitoringSession) MonitoringSession {
	cp := *session
	cp.LocationNames = append([]string(nil), session.LocationNames...)
	cp.LastResult = append([]AppointmentSlot(nil), session.LastResult...)
	cp.LastAttempts = append([]Attempt(nil), session.LastAttempts...)
	return cp
}
