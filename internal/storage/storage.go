// Package storage persists the small amount of local client state: the
// token slot, the cached cart and the guest identifier.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ec-storefront/internal/config"
)

// Fixed storage keys.
const (
	KeyAccessToken  = "authToken"
	KeyRefreshToken = "refreshToken"
	KeyCart         = "luxe:cart_data"
	KeyGuestID      = "luxe:guest_id"
)

var ErrNotFound = errors.New("storage: key not found")

// Storage is a string key/value slot store.
type Storage interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete is idempotent.
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open builds the backend selected by cfg.Storage.
func Open(ctx context.Context, cfg *config.Config) (Storage, error) {
	switch cfg.Storage {
	case config.StorageMemory, "":
		return NewMemoryStorage(), nil
	case config.StorageFile:
		return NewFileStorage(cfg.StoragePath)
	case config.StorageRedis:
		return NewRedisStorageFromURL(ctx, cfg.RedisURL)
	case config.StoragePostgres:
		db, err := ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		s := NewPostgresStorage(db)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
