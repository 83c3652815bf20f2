// Package session keeps the access token handed over by the remote auth API
// after a password login. It only answers "is there a live session"; it
// never issues or verifies tokens.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/org/applock/internal/storage"
	"github.com/org/applock/internal/vault"
	"github.com/rs/zerolog/log"
)

const leeway = 30 * time.Second

// KV is the slice of the vault this package needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
}

// Store persists the session artifact in the vault.
type Store struct {
	kv  KV
	now func() time.Time
}

// NewStore creates a session Store.
func NewStore(kv KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Save stores the access token. Tokens that are not JWTs are rejected since
// their expiry could never be checked.
func (s *Store) Save(ctx context.Context, token string) error {
	if _, err := parseClaims(token); err != nil {
		return err
	}
	return s.kv.Set(ctx, vault.KeySessionToken, token)
}

// Clear drops the access token, e.g. on logout.
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Remove(ctx, vault.KeySessionToken)
}

// Valid reports whether a present, unexpired access token exists.
// Any read or parse problem counts as no session.
func (s *Store) Valid(ctx context.Context) bool {
	token, err := s.kv.Get(ctx, vault.KeySessionToken)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Str("component", "session").Msg("reading session token")
		}
		return false
	}
	claims, err := parseClaims(token)
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("stored session token unreadable")
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false
	}
	if exp == nil {
		return true
	}
	return s.now().Before(exp.Add(leeway))
}

func parseClaims(token string) (jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	if token == "" {
		return claims, errors.New("empty session token")
	}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return claims, fmt.Errorf("parsing session token: %w", err)
	}
	return claims, nil
}
