// Package tokenstore persists the single bearer token of the current session.
//
// Every backend stores the token under Key and reports persistence failures
// as storage errors (code STORE-001) instead of swallowing them.
package tokenstore

import (
	"context"
	"fmt"
	"io"

	"github.com/felixgeelhaar/servicehub/internal/config"
	"github.com/felixgeelhaar/servicehub/internal/errors"
)

// Key is the fixed storage key of the persisted token record.
const Key = "@app:auth_token"

// Store is durable storage for exactly one token value.
type Store interface {
	// Get returns the stored token. ok is false if no token was ever set or
	// it has been removed.
	Get(ctx context.Context) (token string, ok bool, err error)

	// Set overwrites any existing token.
	Set(ctx context.Context, token string) error

	// Remove deletes the token. Removing an absent token is not an error.
	Remove(ctx context.Context) error
}

// IsStorageError reports whether err is a persistence failure.
func IsStorageError(err error) bool {
	return errors.HasCode(err, errors.ErrCodeStorageUnavailable) ||
		errors.HasCode(err, errors.ErrCodeStorageCorrupt)
}

// Open builds the store selected by cfg. Opening performs no I/O; backends
// touch the medium on first use.
func Open(cfg config.StorageConfig) (Store, error) {
	var store Store
	switch cfg.Backend {
	case config.BackendFile, "":
		if cfg.Path == "" {
			return nil, errors.NewConfigError("storage.path", "required for the file backend")
		}
		store = NewFileStore(cfg.Path)
	case config.BackendBolt:
		if cfg.Path == "" {
			return nil, errors.NewConfigError("storage.path", "required for the bolt backend")
		}
		store = NewBoltStore(cfg.Path)
	case config.BackendMemory:
		store = NewMemoryStore()
	default:
		return nil, errors.NewConfigError("storage.backend", fmt.Sprintf("unknown backend %q", cfg.Backend))
	}

	if cfg.EncryptionKey != "" {
		store = NewEncryptedStore(store, cfg.EncryptionKey)
	}
	return store, nil
}

// Close releases resources held by s, if any.
func Close(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func checkContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewStorageError(op, err)
	}
	return nil
}
