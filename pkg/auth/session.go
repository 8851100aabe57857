package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harrisonrobin/famtasks/pkg/kv"
	"golang.org/x/oauth2"
)

// ErrNoToken means no backend session exists; callers fall back to the cache.
var ErrNoToken = errors.New("not authenticated")

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Login     string `json:"login"`
	Role      string `json:"role"`
	Coins     int    `json:"coins"`
}

// Session is the persisted backend session: the bearer token and the user it
// belongs to.
type Session struct {
	store kv.Store
}

func NewSession(store kv.Store) *Session {
	return &Session{store: store}
}

func (s *Session) Token(ctx context.Context) (string, error) {
	tok, ok, err := s.store.Get(ctx, kv.KeyAuthToken)
	if err != nil {
		return "", fmt.Errorf("read auth token: %w", err)
	}
	if !ok || tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

func (s *Session) User(ctx context.Context) (*User, error) {
	raw, ok, err := s.store.Get(ctx, kv.KeyAuthUser)
	if err != nil {
		return nil, fmt.Errorf("read auth user: %w", err)
	}
	if !ok {
		return nil, ErrNoToken
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("failed to decode auth user: %w", err)
	}
	return &u, nil
}

func (s *Session) Set(ctx context.Context, token string, user User) error {
	if token == "" {
		return fmt.Errorf("empty token")
	}
	b, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, kv.KeyAuthToken, token); err != nil {
		return fmt.Errorf("save auth token: %w", err)
	}
	if err := s.store.Set(ctx, kv.KeyAuthUser, string(b)); err != nil {
		return fmt.Errorf("save auth user: %w", err)
	}
	return nil
}

// Clear drops the local session. Called on logout and whenever the backend
// answers 401.
func (s *Session) Clear(ctx context.Context) error {
	return s.store.Remove(ctx, kv.KeyAuthToken, kv.KeyAuthUser)
}

func (s *Session) Authenticated(ctx context.Context) bool {
	_, err := s.Token(ctx)
	return err == nil
}

// TokenSource reads the stored token on every call, so a login or logout takes
// effect on the next request without rebuilding the HTTP client.
func (s *Session) TokenSource() oauth2.TokenSource {
	return storeTokenSource{s}
}

type storeTokenSource struct {
	s *Session
}

func (ts storeTokenSource) Token() (*oauth2.Token, error) {
	tok, err := ts.s.Token(context.Background())
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}
