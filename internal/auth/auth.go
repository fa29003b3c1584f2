// Package auth exposes the session layer: current-user state plus sign-in,
// sign-up and sign-out over a pluggable identity provider, kept in sync with
// the provider's change notifications.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"glassweather/internal/apperr"
)

// User is the authenticated identity record.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is an identity state-change notification.
type Event int

const (
	EventSignedIn Event = iota
	EventSignedOut
	EventTokenRefreshed
)

// Provider is the identity port. It owns at most one live session at a
// time; CurrentUser reflects that session. Subscribe registers a change
// listener and returns its release function.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (*User, error)
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
	CurrentUser(ctx context.Context) (*User, error)
	Subscribe(fn func(Event)) (unsubscribe func())
}

// Session tracks the process-wide authenticated identity. While the initial
// restore is in flight it reports loading=true with a nil user.
type Session struct {
	provider Provider

	mu          sync.Mutex
	user        *User
	loading     bool
	closed      bool
	unsubscribe func()
}

// NewSession starts the session layer: it subscribes to provider change
// notifications and restores any existing session asynchronously.
func NewSession(provider Provider) *Session {
	s := &Session{provider: provider, loading: true}
	s.unsubscribe = provider.Subscribe(s.onEvent)
	go s.restore()
	return s
}

func (s *Session) restore() {
	user, _ := s.provider.CurrentUser(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.user = user
	s.loading = false
}

// onEvent reacts to provider notifications: sign-in and token refresh
// re-fetch the canonical user record, sign-out clears local state.
func (s *Session) onEvent(ev Event) {
	switch ev {
	case EventSignedIn, EventTokenRefreshed:
		user, _ := s.provider.CurrentUser(context.Background())
		s.mu.Lock()
		if !s.closed {
			s.user = user
			s.loading = false
		}
		s.mu.Unlock()
	case EventSignedOut:
		s.mu.Lock()
		if !s.closed {
			s.user = nil
			s.loading = false
		}
		s.mu.Unlock()
	}
}

// User returns the current user, nil when unauthenticated.
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Loading reports whether an auth operation or the initial restore is in
// flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// SignIn authenticates with the provider. Failures come back as typed
// errors for inline rendering, never as panics.
func (s *Session) SignIn(ctx context.Context, email, password string) *apperr.Error {
	return s.mutate(func() error {
		_, err := s.provider.SignIn(ctx, email, password)
		return err
	}, "An unexpected error occurred during sign in", apperr.CodeSignIn)
}

// SignUp registers a new identity with the provider.
func (s *Session) SignUp(ctx context.Context, email, password string) *apperr.Error {
	return s.mutate(func() error {
		_, err := s.provider.SignUp(ctx, email, password)
		return err
	}, "An unexpected error occurred during sign up", apperr.CodeSignUp)
}

// SignOut ends the provider session.
func (s *Session) SignOut(ctx context.Context) *apperr.Error {
	return s.mutate(func() error {
		return s.provider.SignOut(ctx)
	}, "An unexpected error occurred during sign out", apperr.CodeSignOut)
}

func (s *Session) mutate(op func() error, fallback, code string) *apperr.Error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	err := op()

	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()

	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.New(fallback, code)
}

// Close releases the provider subscription; later notifications and the
// restore result are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
