package redis

import (
	"context"
	"sync"
	"time"

	"audience-quiz-service/internal/app"
	"audience-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions themselves stay in a local in-memory map; the state machine
//     and its timers are single-process by design.
//   - Redis marks session liveness per slide so other instances (and ops
//     tooling) can see which rounds are live.
//   - Sharding presentations across processes would pair this with a pub/sub
//     projector; that is an explicit deployment decision, not assumed here.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
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
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(cfg.SlideID), "1", s.ttl).Err()
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
	_ = s.client.Set(context.Background(), s.key(cfg.SlideID), "1", s.ttl).Err()
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
	session, ok := s.sessions[slideID]
	if !ok {
		return
	}
	session.Close()
	delete(s.sessions, slideID)
	_ = s.client.Del(context.Background(), s.key(slideID)).Err()
}

func (s *SessionStore) key(slideID string) string {
	return "quiz:session:" + slideID
}
