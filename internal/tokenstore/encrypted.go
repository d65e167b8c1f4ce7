package tokenstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/felixgeelhaar/servicehub/internal/errors"
)

const (
	encryptedPrefix = "v1:"
	saltSize        = 16

	argonTime    = 1
	argonMemory  = 19 * 1024
	argonThreads = 1
)

// EncryptedStore encrypts the token before handing it to the wrapped store.
// The key is derived from a passphrase with Argon2id; every value carries its
// own salt and nonce.
type EncryptedStore struct {
	inner      Store
	passphrase []byte

	mu       sync.Mutex
	lastSalt []byte
	lastKey  []byte
}

// NewEncryptedStore wraps inner with XChaCha20-Poly1305 encryption.
func NewEncryptedStore(inner Store, passphrase string) *EncryptedStore {
	return &EncryptedStore{inner: inner, passphrase: []byte(passphrase)}
}

// Get decrypts the stored token.
func (e *EncryptedStore) Get(ctx context.Context) (string, bool, error) {
	sealed, ok, err := e.inner.Get(ctx)
	if err != nil || !ok {
		return "", ok, err
	}
	token, err := e.open(sealed)
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

// Set encrypts and stores token.
func (e *EncryptedStore) Set(ctx context.Context, token string) error {
	sealed, err := e.seal(token)
	if err != nil {
		return err
	}
	return e.inner.Set(ctx, sealed)
}

// Remove deletes the stored token.
func (e *EncryptedStore) Remove(ctx context.Context) error {
	return e.inner.Remove(ctx)
}

// Close closes the wrapped store.
func (e *EncryptedStore) Close() error {
	return Close(e.inner)
}

func (e *EncryptedStore) key(salt []byte) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastKey != nil && bytes.Equal(salt, e.lastSalt) {
		return e.lastKey
	}
	key := argon2.IDKey(e.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	e.lastSalt = append([]byte(nil), salt...)
	e.lastKey = key
	return key
}

func (e *EncryptedStore) seal(token string) (string, error) {
	buf := make([]byte, saltSize+chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.NewStorageError("encrypt", err)
	}
	salt, nonce := buf[:saltSize], buf[saltSize:]

	aead, err := chacha20poly1305.NewX(e.key(salt))
	if err != nil {
		return "", errors.NewStorageError("encrypt", err)
	}
	out := aead.Seal(buf, nonce, []byte(token), []byte(Key))
	return encryptedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

func (e *EncryptedStore) open(sealed string) (string, error) {
	corrupt := func(cause error) error {
		return errors.Wrap(errors.ErrCodeStorageCorrupt, "stored token cannot be decrypted", cause).
			WithSuggestion("Check SERVICEHUB_STORAGE_ENCRYPTION_KEY").
			WithSuggestion("Run 'servicehub auth logout' and sign in again")
	}

	payload, ok := strings.CutPrefix(sealed, encryptedPrefix)
	if !ok {
		return "", corrupt(nil)
	}
	raw, err := base64.RawStdEncoding.DecodeString(payload)
	if err != nil {
		return "", corrupt(err)
	}
	if len(raw) < saltSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return "", corrupt(nil)
	}
	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ciphertext := raw[saltSize+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(e.key(salt))
	if err != nil {
		return "", corrupt(err)
	}
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(Key))
	if err != nil {
		return "", corrupt(err)
	}
	return string(plain), nil
}
