// Package session keeps logged-in admins and their unwrapped data keys in
// process memory.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chobbledotcom/tickets-sub006/internal/envelope"
)

const DefaultTTL = 12 * time.Hour

type Session struct {
	Token    string
	AdminID  int64
	Username string
	Key      *envelope.SessionKey
	Expires  time.Time
}

type Store struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Store{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create stores key under a new random token. The store owns key from now on.
func (s *Store) Create(adminID int64, username string, key *envelope.SessionKey) *Session {
	sess := &Session{
		Token:    uuid.NewString(),
		AdminID:  adminID,
		Username: username,
		Key:      key,
		Expires:  s.now().Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()

	return sess
}

// Get returns the live session for token. Expired sessions are removed.
func (s *Store) Get(token string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, false
	}
	if !s.now().Before(sess.Expires) {
		s.remove(token)
		return nil, false
	}

	return sess, true
}

// Delete ends a session and destroys its key.
func (s *Store) Delete(token string) {
	s.mu.Lock()
	s.remove(token)
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes expired sessions every interval until ctx is done.
func (s *Store) Sweep(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for token, sess := range s.sessions {
		if !now.Before(sess.Expires) {
			s.remove(token)
			n++
		}
	}

	return n
}

// remove must be called with mu held.
func (s *Store) remove(token string) {
	if sess, ok := s.sessions[token]; ok {
		sess.Key.Destroy()
		delete(s.sessions, token)
	}
}
