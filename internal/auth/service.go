package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ykj/studio/internal/model"
	"ykj/studio/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrDuplicateAccount   = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid registration input")
	ErrNoSession          = errors.New("no active session")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTokenExpired       = errors.New("token expired")
)

const minPasswordLen = 6

type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	ExpiresInSec int64  `json:"expires_in_sec"`
}

// Service is the local session store: one active user plus the registry of
// every account ever registered on this machine.
type Service struct {
	kv        store.KV
	secret    []byte
	accessTTL time.Duration
	log       *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	current   *model.User
	sessionID string
}

func NewService(kv store.KV, secret string, accessTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		kv:        kv,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		log:       logger,
		now:       time.Now,
	}
}

// Restore loads the persisted active session. A snapshot that cannot be
// parsed is removed and the process starts logged out.
func (s *Service) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var user model.User
	err := store.GetJSON(ctx, s.kv, model.KeyActiveSession, &user)
	switch {
	case err == nil && user.Email != "":
		s.current = &user
		s.sessionID = uuid.NewString()
		s.log.Info("session_restored", "email", user.Email)
		return nil
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		s.log.Warn("session_snapshot_discarded", "error", err)
		if delErr := s.kv.Delete(ctx, model.KeyActiveSession); delErr != nil {
			return fmt.Errorf("discard session snapshot: %w", delErr)
		}
		return nil
	}
}

func (s *Service) Register(ctx context.Context, name, email, password string) (model.User, Tokens, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || strings.TrimSpace(email) == "" || len(password) < minPasswordLen {
		return model.User{}, Tokens{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	registry, err := s.loadRegistry(ctx)
	if err != nil {
		return model.User{}, Tokens{}, err
	}
	if _, ok := registry[email]; ok {
		return model.User{}, Tokens{}, ErrDuplicateAccount
	}
	registry[email] = model.Credential{Name: name, Email: email, Password: password}
	if err := store.SetJSON(ctx, s.kv, model.KeyRegistry, registry); err != nil {
		return model.User{}, Tokens{}, fmt.Errorf("persist registry: %w", err)
	}

	user := model.User{Name: name, Email: email}
	tokens, err := s.activateLocked(ctx, user)
	if err != nil {
		return model.User{}, Tokens{}, err
	}
	s.log.Info("account_registered", "email", email)
	return user, tokens, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (model.User, Tokens, error) {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	registry, err := s.loadRegistry(ctx)
	if err != nil {
		return model.User{}, Tokens{}, err
	}
	cred, ok := registry[email]
	if !ok || subtle.ConstantTimeCompare([]byte(cred.Password), []byte(password)) != 1 {
		return model.User{}, Tokens{}, ErrInvalidCredentials
	}
	user := model.User{Name: cred.Name, Email: cred.Email}
	tokens, err := s.activateLocked(ctx, user)
	if err != nil {
		return model.User{}, Tokens{}, err
	}
	return user, tokens, nil
}

// Resume issues a token for a session restored at start-up.
func (s *Service) Resume() (model.User, Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return model.User{}, Tokens{}, ErrNoSession
	}
	tokens, err := s.issueTokensLocked(*s.current)
	if err != nil {
		return model.User{}, Tokens{}, err
	}
	return *s.current, tokens, nil
}

// Logout clears the active session. The registry is never touched.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.sessionID = ""
	if err := s.kv.Delete(ctx, model.KeyActiveSession); err != nil {
		return fmt.Errorf("clear session snapshot: %w", err)
	}
	return nil
}

func (s *Service) Current() (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return model.User{}, false
	}
	return *s.current, true
}

func (s *Service) ParseAccess(tokenString string) (Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrUnauthorized
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || claims.ID != s.sessionID || claims.Email != s.current.Email {
		return Claims{}, ErrUnauthorized
	}
	return *claims, nil
}

func (s *Service) activateLocked(ctx context.Context, user model.User) (Tokens, error) {
	if err := store.SetJSON(ctx, s.kv, model.KeyActiveSession, user); err != nil {
		return Tokens{}, fmt.Errorf("persist session: %w", err)
	}
	s.current = &user
	s.sessionID = uuid.NewString()
	return s.issueTokensLocked(user)
}

func (s *Service) issueTokensLocked(user model.User) (Tokens, error) {
	now := s.now().UTC()
	claims := Claims{
		Email: user.Email,
		Name:  user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ykj-studio",
			Subject:   user.Email,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        s.sessionID,
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Tokens{}, fmt.Errorf("sign access token: %w", err)
	}
	return Tokens{
		AccessToken:  access,
		ExpiresInSec: int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *Service) loadRegistry(ctx context.Context) (map[string]model.Credential, error) {
	registry := map[string]model.Credential{}
	err := store.GetJSON(ctx, s.kv, model.KeyRegistry, &registry)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return registry, nil
}

// normalizeEmail only folds case; surrounding spaces stay part of the key.
func normalizeEmail(email string) string {
	return strings.ToLower(email)
}
