package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"ykj/studio/internal/model"
	"ykj/studio/internal/store"
)

func newTestService(kv store.KV) *Service {
	return NewService(kv, "test-secret", time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterLoginLogout(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc := newTestService(st)

	user, tokens, err := svc.Register(ctx, "Ann", "Ann@X.io", "secret1")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Email != "ann@x.io" || user.Name != "Ann" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if tokens.AccessToken == "" {
		t.Fatalf("token must not be empty")
	}
	if _, err := svc.ParseAccess(tokens.AccessToken); err != nil {
		t.Fatalf("parse access: %v", err)
	}

	if err := svc.Logout(ctx); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, ok := svc.Current(); ok {
		t.Fatalf("session should be cleared")
	}
	if _, err := svc.ParseAccess(tokens.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("token should be rejected after logout, got %v", err)
	}
	if _, err := st.Get(ctx, model.KeyActiveSession); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("session snapshot should be removed")
	}

	user, _, err = svc.Login(ctx, "ANN@x.io", "secret1")
	if err != nil {
		t.Fatalf("login with different casing failed: %v", err)
	}
	if user.Email != "ann@x.io" || user.Name != "Ann" {
		t.Fatalf("unexpected login user: %+v", user)
	}
}

func TestRegisterDuplicateIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemoryStore())
	if _, _, err := svc.Register(ctx, "Ann", "ann@x.io", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Register(ctx, "Other", "ANN@X.IO", "another"); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestEmailKeyKeepsSurroundingSpaces(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemoryStore())
	if _, _, err := svc.Register(ctx, "Ann", "ann@x.io", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Login(ctx, " ann@x.io", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("padded email must not match, got %v", err)
	}
	user, _, err := svc.Register(ctx, "Spacey", " Ann@x.io", "secret2")
	if err != nil {
		t.Fatalf("padded email is a separate account: %v", err)
	}
	if user.Email != " ann@x.io" {
		t.Fatalf("unexpected email %q", user.Email)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemoryStore())
	cases := []struct{ name, email, password string }{
		{"", "a@b.c", "secret1"},
		{"Ann", " ", "secret1"},
		{"Ann", "a@b.c", "12345"},
	}
	for _, c := range cases {
		if _, _, err := svc.Register(ctx, c.name, c.email, c.password); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("register(%q,%q,%q): expected invalid input, got %v", c.name, c.email, c.password, err)
		}
	}
	if _, ok := svc.Current(); ok {
		t.Fatalf("failed registration must not start a session")
	}
}

func TestLoginWrongPasswordKeepsSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemoryStore())
	if _, _, err := svc.Register(ctx, "Ann", "ann@x.io", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Login(ctx, "ann@x.io", "wrong!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@x.io", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
	if u, ok := svc.Current(); !ok || u.Email != "ann@x.io" {
		t.Fatalf("session should be unchanged, got %+v %v", u, ok)
	}
}

func TestRestoreSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	first := newTestService(st)
	if _, _, err := first.Register(ctx, "Ann", "ann@x.io", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	second := newTestService(st)
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	user, tokens, err := second.Resume()
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if user.Email != "ann@x.io" {
		t.Fatalf("unexpected restored user: %+v", user)
	}
	if _, err := second.ParseAccess(tokens.AccessToken); err != nil {
		t.Fatalf("resumed token rejected: %v", err)
	}
}

func TestRestoreDiscardsCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	if err := st.Set(ctx, model.KeyActiveSession, []byte("{not json")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newTestService(st)
	if err := svc.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, ok := svc.Current(); ok {
		t.Fatalf("corrupt snapshot must start logged out")
	}
	if _, err := st.Get(ctx, model.KeyActiveSession); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("corrupt snapshot should be deleted")
	}
	if _, _, err := svc.Resume(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected no session, got %v", err)
	}
}

func TestTokenFromPreviousLoginIsRejected(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemoryStore())
	_, first, err := svc.Register(ctx, "Ann", "ann@x.io", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Register(ctx, "Bob", "bob@x.io", "secret2"); err != nil {
		t.Fatalf("register bob: %v", err)
	}
	if _, err := svc.ParseAccess(first.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stale token should be rejected, got %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemoryStore())
	base := time.Now()
	svc.now = func() time.Time { return base }
	_, tokens, err := svc.Register(ctx, "Ann", "ann@x.io", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	svc.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := svc.ParseAccess(tokens.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}
