package memory

import (
	"sync"

	"audience-quiz-service/internal/app"
	"audience-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// The store lock only guards the map; per-round mutation is serialized by
// each session's own lock so different slides never block each other.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(cfg domain.QuizSlideConfig) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[cfg.SlideID]; ok {
		return session
	}
	session := app.NewSession(cfg)
	s.sessions[cfg.SlideID] = session
	return session
}

func (s *SessionStore) Create(cfg domain.QuizSlideConfig) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.sessions[cfg.SlideID]; ok {
		old.Close()
	}
	session := app.NewSession(cfg)
	s.sessions[cfg.SlideID] = session
	return session
}

func (s *SessionStore) Get(slideID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[slideID]
	return session, ok
}

func (s *SessionStore) Delete(slideID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[slideID]; ok {
		session.Close()
		delete(s.sessions, slideID)
	}
}
