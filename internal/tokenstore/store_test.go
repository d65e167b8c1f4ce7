package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/felixgeelhaar/servicehub/internal/config"
	"github.com/felixgeelhaar/servicehub/internal/errors"
)

type storeFactory struct {
	name string
	// open returns a store over the same backing medium each time it is
	// called with the same dir, simulating a process restart.
	open func(t *testing.T, dir string) Store
}

func factories() []storeFactory {
	return []storeFactory{
		{"file", func(t *testing.T, dir string) Store {
			return NewFileStore(filepath.Join(dir, "auth.json"))
		}},
		{"bolt", func(t *testing.T, dir string) Store {
			s := NewBoltStore(filepath.Join(dir, "auth.db"))
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
		{"encrypted-file", func(t *testing.T, dir string) Store {
			return NewEncryptedStore(NewFileStore(filepath.Join(dir, "auth.json")), "passphrase")
		}},
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			dir := t.TempDir()
			store := f.open(t, dir)

			_, ok, err := store.Get(ctx)
			require.NoError(t, err)
			assert.False(t, ok, "fresh store must be empty")

			require.NoError(t, store.Set(ctx, "first"))
			require.NoError(t, store.Set(ctx, "second"))

			token, ok, err := store.Get(ctx)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "second", token, "Set must overwrite")

			require.NoError(t, store.Remove(ctx))
			_, ok, err = store.Get(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Remove(ctx), "Remove must be idempotent")
		})
	}
}

func TestMemoryStoreContract(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Remove(ctx))
	require.NoError(t, store.Set(ctx, ""))
	token, ok, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "an empty token is still a stored value")
	assert.Empty(t, token)
}

func TestStorePersistsAcrossInstances(t *testing.T) {
	for _, f := range factories() {
		if f.name == "bolt" {
			// bbolt holds an exclusive lock until Close; covered below.
			continue
		}
		t.Run(f.name, func(t *testing.T) {
			dir := t.TempDir()
			rapid.Check(t, func(rt *rapid.T) {
				ctx := context.Background()
				token := string(rapid.SliceOf(rapid.Byte()).Draw(rt, "token"))

				require.NoError(rt, f.open(t, dir).Set(ctx, token))

				got, ok, err := f.open(t, dir).Get(ctx)
				require.NoError(rt, err)
				assert.True(rt, ok)
				assert.Equal(rt, token, got)
			})
		})
	}
}

func TestBoltStorePersistsAfterClose(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth.db")

	first := NewBoltStore(path)
	require.NoError(t, first.Set(ctx, "bolt-token"))
	require.NoError(t, first.Close())

	second := NewBoltStore(path)
	defer second.Close()
	token, ok, err := second.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bolt-token", token)
}

func TestFileStoreFormat(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "auth.json")
	store := NewFileStore(path)

	require.NoError(t, store.Set(ctx, "abc"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"@app:auth_token": "abc"`)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, store.Remove(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file holding only the token is removed")
}

func TestFileStorePreservesOtherKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"@app:locale":"en"}`), 0o600))

	store := NewFileStore(path)
	require.NoError(t, store.Set(ctx, "abc"))
	require.NoError(t, store.Remove(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "@app:locale")
}

func TestFileStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	store := NewFileStore(filepath.Join(blocker, "auth.json"))

	err := store.Set(ctx, "token")
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
	assert.True(t, errors.HasCode(err, errors.ErrCodeStorageUnavailable))

	_, _, err = store.Get(ctx)
	require.Error(t, err, "reading through a file used as directory must fail")
	assert.True(t, IsStorageError(err))
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, _, err := NewFileStore(path).Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStorageCorrupt))
}

func TestFileStoreCorruptRecovery(t *testing.T) {
	ctx := context.Background()

	t.Run("remove deletes the document", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
		store := NewFileStore(path)

		require.NoError(t, store.Remove(ctx))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))

		_, ok, err := store.Get(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set replaces the document", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"@app:auth_token": 42}`), 0o600))
		store := NewFileStore(path)

		require.NoError(t, store.Set(ctx, "fresh-token"))
		token, ok, err := store.Get(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "fresh-token", token)
	})

	t.Run("bad base64 value", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.json")
		doc := `{"@app:auth_token": "%%%", "@app:auth_token#encoding": "base64"}`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

		_, _, err := NewFileStore(path).Get(ctx)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeStorageCorrupt))
	})
}

func TestFileStoreInvalidUTF8(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth.json")
	store := NewFileStore(path)

	require.NoError(t, store.Set(ctx, "abc\xffdef"))
	token, ok, err := NewFileStore(path).Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc\xffdef", token)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"@app:auth_token#encoding": "base64"`)

	require.NoError(t, store.Set(ctx, "plain"))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "#encoding", "a valid UTF-8 token is stored as is")
	assert.Contains(t, string(data), `"@app:auth_token": "plain"`)

	require.NoError(t, store.Set(ctx, "\xfe"))
	require.NoError(t, store.Remove(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "the encoding marker is removed with the token")
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewMemoryStore().Set(ctx, "token")
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
}

func TestEncryptedStore(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	store := NewEncryptedStore(inner, "correct horse")

	require.NoError(t, store.Set(ctx, "secret-token"))

	raw, ok, err := inner.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(raw, encryptedPrefix))
	assert.NotContains(t, raw, "secret-token")

	token, ok, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "secret-token", token)

	t.Run("wrong passphrase", func(t *testing.T) {
		_, _, err := NewEncryptedStore(inner, "wrong").Get(ctx)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeStorageCorrupt))
	})

	t.Run("plaintext value", func(t *testing.T) {
		plain := NewMemoryStore()
		require.NoError(t, plain.Set(ctx, "legacy-token"))
		_, _, err := NewEncryptedStore(plain, "pass").Get(ctx)
		require.Error(t, err)
		assert.True(t, IsStorageError(err))
	})
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		want    any
		wantErr bool
	}{
		{"file", config.StorageConfig{Backend: config.BackendFile, Path: filepath.Join(dir, "a.json")}, &FileStore{}, false},
		{"bolt", config.StorageConfig{Backend: config.BackendBolt, Path: filepath.Join(dir, "a.db")}, &BoltStore{}, false},
		{"memory", config.StorageConfig{Backend: config.BackendMemory}, &MemoryStore{}, false},
		{"encrypted", config.StorageConfig{Backend: config.BackendMemory, EncryptionKey: "k"}, &EncryptedStore{}, false},
		{"file without path", config.StorageConfig{Backend: config.BackendFile}, nil, true},
		{"unknown", config.StorageConfig{Backend: "etcd"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, store)
			assert.NoError(t, Close(store))
		})
	}
}
