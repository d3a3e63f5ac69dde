package session

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and single-process deployments.
// Rows are copied on the way in and out so callers can never mutate stored
// state behind the mutex.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byToken  map[string]string
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[string]*Session),
		byToken:  make(map[string]string),
	}
}

func (s *MemStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	s.sessions[cp.ID] = &cp
	s.byToken[cp.Token] = cp.ID
	return nil
}

func (s *MemStore) FindByID(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemStore) FindActiveByToken(_ context.Context, token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	sess, ok := s.sessions[id]
	if !ok || !sess.IsActive || sess.Token != token {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemStore) ListActiveByUser(_ context.Context, userID string) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) RotateToken(_ context.Context, id, newToken string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byToken, sess.Token)
	sess.Token = newToken
	sess.LastActivityAt = at
	s.byToken[newToken] = id
	return nil
}

func (s *MemStore) TouchActivity(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if at.Sub(sess.LastActivityAt) < TouchInterval {
		return nil
	}
	sess.LastActivityAt = at
	return nil
}

func (s *MemStore) Deactivate(_ context.Context, id, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || !sess.IsActive {
		return false, nil
	}
	sess.IsActive = false
	sess.RevokedAt = at
	sess.RevokedReason = reason
	return true, nil
}

func (s *MemStore) DeactivateAllForUser(_ context.Context, userID, keepID, reason string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, sess := range s.sessions {
		if sess.UserID != userID || !sess.IsActive || sess.ID == keepID {
			continue
		}
		sess.IsActive = false
		sess.RevokedAt = at
		sess.RevokedReason = reason
		count++
	}
	return count, nil
}

var _ Store = (*MemStore)(nil)
