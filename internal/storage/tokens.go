package storage

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
)

// TokenReader is the read-only view of the token slot handed to everything
// except the auth session store.
type TokenReader interface {
	AccessToken(ctx context.Context) string
	RefreshToken(ctx context.Context) string
}

// TokenStore is the single process-wide token slot.
type TokenStore struct {
	storage Storage
}

func NewTokenStore(s Storage) *TokenStore {
	return &TokenStore{storage: s}
}

// AccessToken returns "" when no token is stored or storage fails.
func (t *TokenStore) AccessToken(ctx context.Context) string {
	return t.read(ctx, KeyAccessToken)
}

// RefreshToken returns "" when no token is stored or storage fails.
func (t *TokenStore) RefreshToken(ctx context.Context) string {
	return t.read(ctx, KeyRefreshToken)
}

func (t *TokenStore) read(ctx context.Context, key string) string {
	v, err := t.storage.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("[Storage] Failed to read %s: %v", key, err)
		}
		return ""
	}
	return v
}

// Save stores both tokens. An empty refresh token keeps the previous one.
func (t *TokenStore) Save(ctx context.Context, access, refresh string) error {
	if err := t.storage.Set(ctx, KeyAccessToken, access); err != nil {
		return err
	}
	if refresh == "" {
		return nil
	}
	return t.storage.Set(ctx, KeyRefreshToken, refresh)
}

// Clear removes both tokens. Both deletes are attempted.
func (t *TokenStore) Clear(ctx context.Context) error {
	return errors.Join(
		t.storage.Delete(ctx, KeyAccessToken),
		t.storage.Delete(ctx, KeyRefreshToken),
	)
}

// GuestID returns the persisted anonymous identifier, creating one on first use.
func GuestID(ctx context.Context, s Storage) (string, error) {
	id, err := s.Get(ctx, KeyGuestID)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	id = uuid.New().String()
	if err := s.Set(ctx, KeyGuestID, id); err != nil {
		return "", err
	}
	return id, nil
}
