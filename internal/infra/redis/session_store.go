package redis

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"tutor-quiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions own a ticker and subscriber channels, so the sessions
//     themselves stay in a local map.
//   - Redis holds a liveness marker per session (value: student id) so other
//     instances and operators can see which attempts are in progress. The
//     marker's TTL is refreshed every ttl/2 until the session is deleted or closed.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
	stops    map[string]chan struct{}
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
		stops:    make(map[string]chan struct{}),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := session.ID()
	s.sessions[id] = session
	// best-effort liveness marker
	student := strconv.Itoa(session.Request().StudentID)
	_ = s.client.Set(context.Background(), s.key(id), student, s.ttl).Err()

	if stop, ok := s.stops[id]; ok {
		close(stop)
	}
	if s.ttl <= 0 {
		delete(s.stops, id)
		return
	}
	stop := make(chan struct{})
	s.stops[id] = stop
	go s.keepAlive(id, session.Done(), stop)
}

func (s *SessionStore) keepAlive(id string, done <-chan struct{}, stop <-chan struct{}) {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-stop:
			return
		case <-ticker.C:
			_ = s.client.Expire(context.Background(), s.key(id), s.ttl).Err()
		}
	}
}

func (s *SessionStore) Get(id string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	if stop, ok := s.stops[id]; ok {
		close(stop)
		delete(s.stops, id)
	}
	_ = s.client.Del(context.Background(), s.key(id)).Err()
}

func (s *SessionStore) key(id string) string {
	return "quiz:session:" + id
}
