// Package session keeps one matrix session per browser.
package session

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"committee/internal/log"
	"committee/internal/matrix"
)

// CookieName carries the viewer session id.
const CookieName = "committee_session"

// Store holds the live viewer sessions. Sessions idle longer than the TTL
// are dropped, and the least recently used one goes when the store is full.
type Store struct {
	sessions *lru[*matrix.Session]
	ttl      time.Duration
	logger   *log.Logger
	secure   bool

	stop chan struct{}
	done chan struct{}
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.sessions.now = now }
}

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(s *Store) { s.secure = secure }
}

func NewStore(maxSessions int, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		sessions: newLRU[*matrix.Session](maxSessions, ttl, time.Now),
		ttl:      ttl,
		logger:   log.Default(log.ComponentSession),
	}
	s.sessions.onEvict = func(id string, _ *matrix.Session) {
		s.logger.Debug("Session evicted", log.FieldSessionID, id)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the session with id, if it is still alive.
func (s *Store) Get(id string) (*matrix.Session, bool) {
	if id == "" {
		return nil, false
	}
	return s.sessions.get(id)
}

// GetOrCreate returns the session with id or a new one stored under a
// fresh id. The returned id is the one to hand back to the browser.
func (s *Store) GetOrCreate(id string) (string, *matrix.Session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	sess, existed := s.sessions.getOrAdd(id, matrix.NewSession)
	return id, sess, existed
}

// FromRequest resolves the session for r and sets its cookie on w.
func (s *Store) FromRequest(w http.ResponseWriter, r *http.Request) (string, *matrix.Session) {
	var current string
	if c, err := r.Cookie(CookieName); err == nil {
		current = c.Value
	}
	// Resent on every request so the browser expiry slides with the idle TTL.
	id, sess, _ := s.GetOrCreate(current)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id, sess
}

func (s *Store) Delete(id string) {
	s.sessions.delete(id)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.sessions.size()
}

// CleanExpired drops idle sessions and returns how many were removed.
func (s *Store) CleanExpired() int {
	return s.sessions.cleanExpired()
}

// StartCleanup sweeps expired sessions every interval until ctx ends or
// Stop is called.
func (s *Store) StartCleanup(ctx context.Context, interval time.Duration) {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.CleanExpired(); n > 0 {
					s.logger.Debug("Expired sessions removed", log.FieldCount, n, "live", s.Len())
				}
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop ends the cleanup loop started by StartCleanup.
func (s *Store) Stop() {
	if s.stop == nil {
		return
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}
