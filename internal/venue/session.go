package venue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrNotAuthenticated means the venue rejected the stored session cookie.
var ErrNotAuthenticated = errors.New("venue session not authenticated")

// Session resolves the venue's auth state exactly once and lets interested
// parties observe the result by subscription instead of polling the probe.
type Session struct {
	client *Client
	log    *slog.Logger

	once  sync.Once
	ready chan struct{}
	err   error
}

func NewSession(client *Client, log *slog.Logger) *Session {
	return &Session{
		client: client,
		log:    log,
		ready:  make(chan struct{}),
	}
}

// Verify runs the auth probe and resolves the session. Subsequent calls are
// no-ops; the first result sticks.
func (s *Session) Verify(ctx context.Context) {
	s.once.Do(func() {
		defer close(s.ready)
		ok, err := s.client.CheckUserStatus(ctx)
		switch {
		case err != nil:
			s.err = err
			s.log.Warn("venue session probe failed", "error", err)
		case !ok:
			s.err = ErrNotAuthenticated
			s.log.Warn("venue session cookie rejected; reservations will fail until creds are updated")
		default:
			s.log.Info("venue session verified")
		}
	})
}

// Ready is closed once Verify has resolved, successfully or not.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Err reports the probe result. Only meaningful after Ready is closed.
func (s *Session) Err() error {
	select {
	case <-s.ready:
		return s.err
	default:
		return errors.New("venue session not yet verified")
	}
}
