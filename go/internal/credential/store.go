package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/ironclad/go/internal/anchor"
)

// tokenKey is where the access token lives in the KV
const tokenKey = "token"

// ErrNoCredential is returned by Token when nothing has been stored
var ErrNoCredential = errors.New("no stored credential")

// Credential is what the backend hands out once an identity is verified
type Credential struct {
	AccessToken string `json:"access_token"`
}

// Store keeps the session credential next to the timer anchors
type Store struct {
	kv anchor.KV
}

// NewStore creates a credential store over kv
func NewStore(kv anchor.KV) *Store {
	return &Store{kv: kv}
}

// Save persists cred, replacing any previous credential
func (s *Store) Save(ctx context.Context, cred Credential) error {
	if cred.AccessToken == "" {
		return fmt.Errorf("credential has no access token")
	}
	if err := s.kv.Set(ctx, tokenKey, cred.AccessToken); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Token returns the stored access token
func (s *Store) Token(ctx context.Context) (string, error) {
	token, ok, err := s.kv.Get(ctx, tokenKey)
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	if !ok || token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

// Clear forgets the stored credential
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, tokenKey); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}
