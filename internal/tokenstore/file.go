package tokenstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"github.com/google/renameio/v2"

	"github.com/felixgeelhaar/servicehub/internal/errors"
)

// encodingKey marks how the value under Key is encoded.
const encodingKey = Key + "#encoding"

// FileStore persists the token in a small JSON document:
//
//	{ "@app:auth_token": "<token>" }
//
// A token that is not valid UTF-8 is stored base64-encoded, with
// encodingKey set to "base64", so every byte survives the round trip.
//
// Other keys in the document are preserved. Writes replace the file
// atomically so a crash never leaves a truncated document behind. A
// document that cannot be decoded is reported by Get and replaced by Set
// and Remove.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the file at path. The file and its
// directory are created on the first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// Get returns the stored token.
func (f *FileStore) Get(ctx context.Context) (string, bool, error) {
	if err := checkContext(ctx, "get"); err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return "", false, err
	}
	token, ok := doc[Key]
	if !ok {
		return "", false, nil
	}
	if doc[encodingKey] == "base64" {
		raw, err := base64.StdEncoding.DecodeString(token)
		if err != nil {
			return "", false, f.corrupt(err)
		}
		token = string(raw)
	}
	return token, true, nil
}

// Set overwrites the stored token.
func (f *FileStore) Set(ctx context.Context, token string) error {
	if err := checkContext(ctx, "set"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if errors.HasCode(err, errors.ErrCodeStorageCorrupt) {
		doc, err = map[string]string{}, nil
	}
	if err != nil {
		return err
	}
	if utf8.ValidString(token) {
		doc[Key] = token
		delete(doc, encodingKey)
	} else {
		doc[Key] = base64.StdEncoding.EncodeToString([]byte(token))
		doc[encodingKey] = "base64"
	}
	return f.write(doc)
}

// Remove deletes the token, and the file once it holds nothing else.
func (f *FileStore) Remove(ctx context.Context) error {
	if err := checkContext(ctx, "remove"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if errors.HasCode(err, errors.ErrCodeStorageCorrupt) {
		return f.removeFile()
	}
	if err != nil {
		return err
	}
	if _, ok := doc[Key]; !ok {
		return nil
	}
	delete(doc, Key)
	delete(doc, encodingKey)

	if len(doc) == 0 {
		return f.removeFile()
	}
	return f.write(doc)
}

func (f *FileStore) removeFile() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError("remove", err)
	}
	return nil
}

func (f *FileStore) corrupt(err error) error {
	return errors.Wrap(errors.ErrCodeStorageCorrupt, fmt.Sprintf("credentials file %s is corrupt", f.path), err).
		WithSuggestion("Run 'servicehub auth logout' to reset the stored credentials")
}

func (f *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.NewStorageError("read", err)
	}

	doc := map[string]string{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, f.corrupt(err)
	}
	return doc, nil
}

func (f *FileStore) write(doc map[string]string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.NewStorageError("encode", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.NewStorageError("write", err)
	}
	if err := renameio.WriteFile(f.path, data, 0o600); err != nil {
		return errors.NewStorageError("write", err)
	}
	return nil
}
