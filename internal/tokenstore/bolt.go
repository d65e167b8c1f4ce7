package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/felixgeelhaar/servicehub/internal/errors"
)

var boltBucket = []byte("auth")

// BoltStore persists the token in a bbolt database. The database is opened
// on first use and held until Close, so two processes cannot write the same
// file concurrently.
type BoltStore struct {
	path string

	mu sync.Mutex
	db *bbolt.DB
}

// NewBoltStore creates a store backed by the database file at path.
func NewBoltStore(path string) *BoltStore {
	return &BoltStore{path: path}
}

func (b *BoltStore) open() (*bbolt.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		return b.db, nil
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return nil, errors.NewStorageError("open", err)
	}
	db, err := bbolt.Open(b.path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.NewStorageError("open", err)
	}
	b.db = db
	return db, nil
}

// Get returns the stored token.
func (b *BoltStore) Get(ctx context.Context) (string, bool, error) {
	if err := checkContext(ctx, "get"); err != nil {
		return "", false, err
	}
	db, err := b.open()
	if err != nil {
		return "", false, err
	}

	var (
		token string
		found bool
	)
	err = db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(boltBucket)
		if bkt == nil {
			return nil
		}
		if v := bkt.Get([]byte(Key)); v != nil {
			token, found = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, errors.NewStorageError("get", err)
	}
	return token, found, nil
}

// Set overwrites the stored token.
func (b *BoltStore) Set(ctx context.Context, token string) error {
	if err := checkContext(ctx, "set"); err != nil {
		return err
	}
	db, err := b.open()
	if err != nil {
		return err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(boltBucket)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(Key), []byte(token))
	})
	if err != nil {
		return errors.NewStorageError("set", err)
	}
	return nil
}

// Remove deletes the token.
func (b *BoltStore) Remove(ctx context.Context) error {
	if err := checkContext(ctx, "remove"); err != nil {
		return err
	}
	db, err := b.open()
	if err != nil {
		return err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(boltBucket)
		if bkt == nil {
			return nil
		}
		return bkt.Delete([]byte(Key))
	})
	if err != nil {
		return errors.NewStorageError("remove", err)
	}
	return nil
}

// Close releases the database file.
func (b *BoltStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}
