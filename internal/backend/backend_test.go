package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"glassweather/internal/auth"
	"glassweather/internal/favorites"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open backend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSignUpTokenAndResolve(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	user, token, err := b.SignUpToken(ctx, "Alice@Example.com", "secret1")
	if err != nil {
		t.Fatalf("sign up failed: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("expected normalized email, got %q", user.Email)
	}
	if token == "" {
		t.Fatal("expected a session token")
	}

	resolved, err := b.UserForToken(ctx, token)
	if err != nil {
		t.Fatalf("token resolution failed: %v", err)
	}
	if resolved.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, resolved.ID)
	}
}

func TestSignUpTokenRejectsDuplicateEmail(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if _, _, err := b.SignUpToken(ctx, "bob@example.com", "secret1"); err != nil {
		t.Fatalf("first sign up failed: %v", err)
	}
	_, _, err := b.SignUpToken(ctx, "bob@example.com", "other-secret")
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignInTokenRejectsBadPassword(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if _, _, err := b.SignUpToken(ctx, "carol@example.com", "secret1"); err != nil {
		t.Fatalf("sign up failed: %v", err)
	}
	if _, _, err := b.SignInToken(ctx, "carol@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := b.SignInToken(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestExpiredTokenIsRejectedAndRemoved(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, token, err := b.SignUpToken(ctx, "dave@example.com", "secret1")
	if err != nil {
		t.Fatalf("sign up failed: %v", err)
	}

	err = b.db.Model(&sessionRecord{}).
		Where("token = ?", token).
		Update("expires_at", time.Now().Add(-time.Minute)).Error
	if err != nil {
		t.Fatalf("failed to backdate session: %v", err)
	}

	if _, err := b.UserForToken(ctx, token); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}

	var count int64
	b.db.Model(&sessionRecord{}).Where("token = ?", token).Count(&count)
	if count != 0 {
		t.Error("expected expired session to be deleted on discovery")
	}
}

func TestProviderSessionLifecycle(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	var events []auth.Event
	unsubscribe := b.Subscribe(func(ev auth.Event) { events = append(events, ev) })
	defer unsubscribe()

	if _, err := b.SignUp(ctx, "erin@example.com", "secret1"); err != nil {
		t.Fatalf("sign up failed: %v", err)
	}

	user, err := b.CurrentUser(ctx)
	if err != nil {
		t.Fatalf("current user failed: %v", err)
	}
	if user == nil || user.Email != "erin@example.com" {
		t.Fatalf("expected signed-in user, got %+v", user)
	}

	if err := b.RefreshSession(ctx); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if user, err = b.CurrentUser(ctx); err != nil || user == nil {
		t.Fatalf("expected user to survive refresh, got %+v err=%v", user, err)
	}

	if err := b.SignOut(ctx); err != nil {
		t.Fatalf("sign out failed: %v", err)
	}
	user, err = b.CurrentUser(ctx)
	if err != nil {
		t.Fatalf("current user after sign out failed: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user after sign out, got %+v", user)
	}

	want := []auth.Event{auth.EventSignedIn, auth.EventTokenRefreshed, auth.EventSignedOut}
	if len(events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: expected %v, got %v", i, want[i], events[i])
		}
	}
}

func TestFavoritesRepository(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	user, _, err := b.SignUpToken(ctx, "frank@example.com", "secret1")
	if err != nil {
		t.Fatalf("sign up failed: %v", err)
	}

	first, err := b.Create(ctx, user.ID, favorites.CityInput{CityName: "London", Lat: 51.5072, Lon: -0.1276})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := b.Create(ctx, user.ID, favorites.CityInput{CityName: "Paris", Lat: 48.8566, Lon: 2.3522})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	list, err := b.List(ctx, user.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 favorites, got %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Error("expected newest favorite first")
	}

	exists, err := b.Exists(ctx, user.ID, "London")
	if err != nil || !exists {
		t.Errorf("expected London to exist, got %v err=%v", exists, err)
	}
	exists, _ = b.Exists(ctx, user.ID, "Tokyo")
	if exists {
		t.Error("expected Tokyo to be absent")
	}

	if err := b.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	list, _ = b.List(ctx, user.ID)
	if len(list) != 1 || list[0].CityName != "Paris" {
		t.Errorf("expected only Paris to remain, got %+v", list)
	}
}
